package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// OutboxRepository stores notification intents until they are delivered.
type OutboxRepository interface {
	Enqueue(ctx context.Context, entries []models.NotificationOutbox) ([]uint, error)
	ListPending(ctx context.Context, ids []uint, limit int) ([]models.NotificationOutbox, error)
	MarkDispatched(ctx context.Context, id uint, at time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string, maxAttempts int) error
	WithTx(tx *gorm.DB) OutboxRepository
}

type outboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository constructs the notification outbox repository.
func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) WithTx(tx *gorm.DB) OutboxRepository {
	return &outboxRepository{db: tx}
}

// Enqueue inserts the intents, skipping any whose dedup key already exists, and returns
// the identifiers of the rows that were written.
func (r *outboxRepository) Enqueue(ctx context.Context, entries []models.NotificationOutbox) ([]uint, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	for i := range entries {
		if entries[i].Status == "" {
			entries[i].Status = models.OutboxStatusPending
		}
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_key"}}, DoNothing: true}).
		Create(&entries).Error; err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.DedupKey)
	}

	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.NotificationOutbox{}).
		Where("dedup_key IN ?", keys).
		Where("status = ?", models.OutboxStatusPending).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	return ids, nil
}

// ListPending returns undelivered intents, optionally restricted to ids.
func (r *outboxRepository) ListPending(ctx context.Context, ids []uint, limit int) ([]models.NotificationOutbox, error) {
	if limit <= 0 {
		limit = 100
	}

	query := r.db.WithContext(ctx).Where("status = ?", models.OutboxStatusPending)
	if ids != nil {
		if len(ids) == 0 {
			return []models.NotificationOutbox{}, nil
		}
		query = query.Where("id IN ?", ids)
	}

	var entries []models.NotificationOutbox
	if err := query.Order("id ASC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *outboxRepository) MarkDispatched(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.NotificationOutbox{}).
		Where("id = ?", id).
		Where("status = ?", models.OutboxStatusPending).
		Updates(map[string]interface{}{
			"status":        models.OutboxStatusDispatched,
			"attempts":      gorm.Expr("attempts + 1"),
			"dispatched_at": at,
			"last_error":    "",
		}).Error
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uint, reason string, maxAttempts int) error {
	status := gorm.Expr("CASE WHEN attempts + 1 >= ? THEN ? ELSE ? END", maxAttempts, models.OutboxStatusFailed, models.OutboxStatusPending)
	return r.db.WithContext(ctx).Model(&models.NotificationOutbox{}).
		Where("id = ?", id).
		Where("status = ?", models.OutboxStatusPending).
		Updates(map[string]interface{}{
			"status":     status,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
}
