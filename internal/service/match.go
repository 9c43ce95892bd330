package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/logger"
)

// CatalogLoader provides a catalog snapshot per request.
type CatalogLoader interface {
	Load(ctx context.Context) (*domain.CatalogSnapshot, error)
}

// MatchConfig holds configuration for the match pipeline.
type MatchConfig struct {
	DefaultTopN     int
	DefaultMinScore float64
	Timeout         time.Duration
	FallbackWorkers int
}

// MatchRequest is one match request.
type MatchRequest struct {
	Image    ImageInput
	TopN     int      // <= 0 uses the configured default
	MinScore *float64 // nil uses the configured default
	UserID   string   // optional caller identity, enables history
}

// MatchResponse is the ranked result of a match request.
type MatchResponse struct {
	MatchID      string                  `json:"match_id"`
	Matches      []domain.MatchCandidate `json:"matches"`
	QueryImage   string                  `json:"query_image"`
	TotalMatches int                     `json:"total_matches"`
}

// MatchService runs the extract-then-rank pipeline.
type MatchService struct {
	catalog   CatalogLoader
	extractor Extractor
	resolver  *ImageResolver
	history   *HistoryService
	cfg       MatchConfig
}

// NewMatchService creates a new match service. history may be nil.
func NewMatchService(
	catalog CatalogLoader,
	extractor Extractor,
	resolver *ImageResolver,
	history *HistoryService,
	cfg *MatchConfig,
) *MatchService {
	c := *cfg
	if c.DefaultTopN <= 0 {
		c.DefaultTopN = DefaultTopN
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FallbackWorkers <= 0 {
		c.FallbackWorkers = 4
	}
	return &MatchService{
		catalog:   catalog,
		extractor: extractor,
		resolver:  resolver,
		history:   history,
		cfg:       c,
	}
}

type pipelineResult struct {
	resp  *MatchResponse
	image *ResolvedImage
	err   error
}

// Match resolves the query image, embeds it and ranks the catalog against it.
// The pipeline is bounded by the configured timeout. On timeout the in-flight
// work is abandoned and domain.ErrTimeout is returned.
// Parameters:
//   - ctx: request context.
//   - req: query image and ranking options.
// Returns:
//   - *MatchResponse: ranked matches, never with embeddings.
//   - error: domain.ErrInvalidInput, domain.ErrImageDecode, domain.ErrFetch,
//     domain.ErrCatalogLoad or domain.ErrTimeout.
func (s *MatchService) Match(ctx context.Context, req *MatchRequest) (*MatchResponse, error) {
	matchID := uuid.New().String()
	ctx = logger.SetMatchID(ctx, matchID)
	start := time.Now()

	pctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	done := make(chan pipelineResult, 1)
	go func() {
		resp, img, err := s.run(pctx, req)
		done <- pipelineResult{resp: resp, image: img, err: err}
	}()

	var res pipelineResult
	select {
	case res = <-done:
	case <-pctx.Done():
		res = pipelineResult{err: pctx.Err()}
	}

	// only the pipeline's own deadline is a timeout; a fetch deadline stays a FetchError
	if res.err != nil && errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.err = fmt.Errorf("%w after %s", domain.ErrTimeout, s.cfg.Timeout)
	}
	matchDuration.Observe(time.Since(start).Seconds())
	if res.err != nil {
		matchRequestsTotal.WithLabelValues(matchStatus(res.err)).Inc()
		logger.With(logger.Fields{
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
			logger.FieldStatus:     matchStatus(res.err),
		}).Warn(ctx, "Match failed: %v", res.err)
		return nil, res.err
	}

	res.resp.MatchID = matchID
	matchRequestsTotal.WithLabelValues(statusSuccess).Inc()
	logger.With(logger.Fields{
		logger.FieldCount:      res.resp.TotalMatches,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldStrategy:   s.extractor.Name(),
	}).Info(ctx, "Match completed")

	if req.UserID != "" {
		queryRef := res.image.Ref
		if !res.image.Remote {
			queryRef = res.image.Digest()
		}
		s.history.Record(ctx, req.UserID, queryRef, res.resp.Matches)
	}
	return res.resp, nil
}

func (s *MatchService) run(ctx context.Context, req *MatchRequest) (*MatchResponse, *ResolvedImage, error) {
	if req.MinScore != nil && (math.IsNaN(*req.MinScore) || math.IsInf(*req.MinScore, 0)) {
		return nil, nil, fmt.Errorf("%w: minScore must be a finite number", domain.ErrInvalidInput)
	}
	img, err := s.resolver.Resolve(ctx, req.Image)
	if err != nil {
		return nil, nil, err
	}
	query, err := s.extractor.Extract(ctx, img.Data)
	if err != nil {
		return nil, nil, err
	}

	snap, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	inputs := s.rankInputs(ctx, snap)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	opts := RankOptions{TopN: req.TopN, MinScore: s.cfg.DefaultMinScore}
	if opts.TopN <= 0 {
		opts.TopN = s.cfg.DefaultTopN
	}
	if req.MinScore != nil {
		opts.MinScore = *req.MinScore
	}
	matches := Rank(ctx, query, inputs, opts)

	return &MatchResponse{
		Matches:      matches,
		QueryImage:   img.Ref,
		TotalMatches: len(matches),
	}, img, nil
}

// rankInputs pairs every item with its embedding. Items never attempted
// before are embedded now, in parallel; failures leave the item absent.
func (s *MatchService) rankInputs(ctx context.Context, snap *domain.CatalogSnapshot) []RankInput {
	inputs := make([]RankInput, len(snap.Items))
	var pending []int
	for i := range snap.Items {
		item := &snap.Items[i]
		vec, known := snap.Embeddings.Lookup(item.ID)
		inputs[i] = RankInput{Item: item, Embedding: vec}
		if !known {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return inputs
	}

	logger.With(logger.Fields{logger.FieldCount: len(pending)}).
		Info(ctx, "Computing missing catalog embeddings on demand")

	var g errgroup.Group
	g.SetLimit(s.cfg.FallbackWorkers)
	for _, i := range pending {
		g.Go(func() error {
			item := inputs[i].Item
			vec, err := extractRef(ctx, s.extractor, item.ImageRef())
			if err != nil {
				catalogFallbackTotal.WithLabelValues(statusFailure).Inc()
				logger.With(logger.Fields{logger.FieldItemID: item.ID}).
					Warn(ctx, "Failed to embed catalog item: %v", err)
				return nil
			}
			catalogFallbackTotal.WithLabelValues(statusSuccess).Inc()
			inputs[i].Embedding = vec
			return nil
		})
	}
	_ = g.Wait()
	return inputs
}

func matchStatus(err error) string {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrImageDecode):
		return "invalid"
	case errors.Is(err, domain.ErrFetch):
		return "fetch_error"
	default:
		return statusFailure
	}
}
