package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// ActivityLogFilter narrows audit trail queries. Zero values mean no constraint and a
// PageSize of zero returns every match.
type ActivityLogFilter struct {
	Page       int
	PageSize   int
	ActorID    *uint
	Action     string
	EntityType string
	EntityID   *uint
}

func (f ActivityLogFilter) scope(db *gorm.DB) *gorm.DB {
	if f.ActorID != nil {
		db = db.Where("actor_id = ?", *f.ActorID)
	}
	if f.EntityID != nil {
		db = db.Where("entity_id = ?", *f.EntityID)
	}
	if f.Action != "" {
		db = db.Where("action = ?", f.Action)
	}
	if f.EntityType != "" {
		db = db.Where("entity_type = ?", f.EntityType)
	}
	return db
}

func (f ActivityLogFilter) page(db *gorm.DB) *gorm.DB {
	if f.PageSize <= 0 {
		return db
	}
	return db.Limit(f.PageSize).Offset((max(f.Page, 1) - 1) * f.PageSize)
}

// ActivityLogRepository persists the grading audit trail.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error)
}

type activityLogRepository struct {
	db *gorm.DB
}

// NewActivityLogRepository returns a gorm backed ActivityLogRepository.
func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// List returns one page of matching entries, newest first, with the total match count.
func (r *activityLogRepository) List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	base := filter.scope(r.db.WithContext(ctx).Model(&models.ActivityLog{}))

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.ActivityLog{}, 0, nil
	}

	var entries []models.ActivityLog
	err := base.Session(&gorm.Session{}).
		Scopes(filter.page).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
