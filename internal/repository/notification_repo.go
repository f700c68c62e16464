package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

const (
	defaultInboxPage = 50
	maxInboxPage     = 100
)

// NotificationRepository stores student inbox notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id uint, userID string) (models.Notification, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository returns a gorm backed NotificationRepository.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// ListByUser returns the newest notifications first. limit falls back to 50 and is capped at 100.
func (r *notificationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > maxInboxPage {
		limit = defaultInboxPage
	}
	offset = max(offset, 0)

	var inbox []models.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&inbox).Error
	return inbox, err
}

// MarkRead flags the notification as read when it belongs to userID. Notifications owned
// by someone else report gorm.ErrRecordNotFound.
func (r *notificationRepository) MarkRead(ctx context.Context, id uint, userID string) (models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).Take(&notification).Error; err != nil {
			return err
		}
		if notification.Read {
			return nil
		}
		notification.Read = true
		return tx.Model(&notification).Update("read", true).Error
	})
	if err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}
