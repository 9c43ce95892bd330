package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/timmy/vismatch/internal/domain"
)

// HistoryRepository handles search history persistence.
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create inserts a history record.
func (r *HistoryRepository) Create(ctx context.Context, h *domain.SearchHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

// ListByUser returns the most recent searches of a user, newest first.
// Parameters:
//   - ctx: context for cancellation.
//   - userID: caller identity.
//   - limit: maximum number of records.
// Returns:
//   - []domain.SearchHistory: records, possibly empty.
//   - error: non-nil if the query fails.
func (r *HistoryRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.SearchHistory, error) {
	var records []domain.SearchHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("searched_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// CountByUser returns the number of searches recorded for a user.
func (r *HistoryRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.SearchHistory{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
