package service

import (
	"context"
	"errors"
	"sort"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/logger"
)

// DefaultTopN is used when RankOptions.TopN is not positive.
const DefaultTopN = 50

// RankInput pairs a catalog item with its embedding. A nil embedding is absent.
type RankInput struct {
	Item      *domain.CatalogItem
	Embedding []float32
}

// RankOptions bounds the ranked result.
type RankOptions struct {
	TopN     int
	MinScore float64 // percentage, inclusive
}

// Rank orders items by similarity to the query.
// Items without an embedding are dropped, items of another dimension are skipped
// with a warning. Scores are rounded before filtering, and ties keep ascending
// catalog id order.
// Parameters:
//   - ctx: used for logging only.
//   - query: query embedding.
//   - items: candidates, not modified.
//   - opts: top-N and minimum score.
// Returns:
//   - []domain.MatchCandidate: at most TopN candidates, never nil.
func Rank(ctx context.Context, query []float32, items []RankInput, opts RankOptions) []domain.MatchCandidate {
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	candidates := make([]domain.MatchCandidate, 0, len(items))
	for _, in := range items {
		if in.Item == nil || len(in.Embedding) == 0 {
			continue
		}
		sim, err := CosineSimilarity(query, in.Embedding)
		if err != nil {
			var dimErr *domain.DimensionMismatchError
			if errors.As(err, &dimErr) {
				logger.With(logger.Fields{
					logger.FieldItemID: in.Item.ID,
				}).Warn(ctx, "Skipping item with embedding dimension %d, query has %d", dimErr.Right, dimErr.Left)
			}
			continue
		}
		score := RoundScore(ToPercentage(sim))
		if score < opts.MinScore {
			continue
		}
		candidates = append(candidates, domain.NewMatchCandidate(in.Item, score))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})

	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates
}
