package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/logger"
)

const historyTopMatches = 5

// HistoryStore persists search history records.
type HistoryStore interface {
	Create(ctx context.Context, h *domain.SearchHistory) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.SearchHistory, error)
}

// HistoryResult reports what Record did. Callers may ignore it.
type HistoryResult struct {
	ID       string
	Recorded bool
	Err      error
}

// HistoryService records the match requests of identified callers.
type HistoryService struct {
	store HistoryStore
	now   func() time.Time
}

// NewHistoryService creates a new history service.
func NewHistoryService(store HistoryStore) *HistoryService {
	return &HistoryService{store: store, now: time.Now}
}

// Record stores a search with its first matches. It never fails the caller:
// errors are logged and returned in the result.
// Parameters:
//   - ctx: request context.
//   - userID: caller identity, nothing is recorded when empty.
//   - queryImage: URL or digest of the query image.
//   - matches: ranked matches, only the top few are kept.
// Returns:
//   - HistoryResult: id of the record and the outcome.
func (s *HistoryService) Record(ctx context.Context, userID, queryImage string, matches []domain.MatchCandidate) HistoryResult {
	if s == nil || s.store == nil || userID == "" {
		return HistoryResult{}
	}

	top := matches
	if len(top) > historyTopMatches {
		top = top[:historyTopMatches]
	}
	kept := make(domain.HistoryMatches, len(top))
	for i, m := range top {
		kept[i] = domain.HistoryMatch{
			ProductID:    m.ID,
			ProductName:  m.Name,
			ProductImage: m.Image,
			Score:        m.Score,
			Price:        m.Price,
		}
	}

	record := &domain.SearchHistory{
		ID:           uuid.New().String(),
		UserID:       userID,
		QueryImage:   queryImage,
		SearchMode:   domain.SearchModeLocal,
		ResultsCount: len(matches),
		TopMatches:   kept,
		SearchedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, record); err != nil {
		logger.CtxWarn(ctx, "Failed to save search history: %v", err)
		return HistoryResult{ID: record.ID, Err: err}
	}
	return HistoryResult{ID: record.ID, Recorded: true}
}

// List returns the latest searches of a user, newest first.
func (s *HistoryService) List(ctx context.Context, userID string, limit int) ([]domain.SearchHistory, error) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	records, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.SearchHistory{}
	}
	return records, nil
}
