package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

var errEmptyNotification = errors.New("notification message is empty")

// Notifier delivers a message to a student's inbox.
type Notifier interface {
	Notify(ctx context.Context, studentID uint, message string) error
}

// NotificationService stores inbox notifications and streams them to connected students.
type NotificationService interface {
	Notifier
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	Subscribe(userID string) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo      repository.NotificationRepository
	relay     notificationRelay
	hub       *inboxHub
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
	origin    string
}

// NewNotificationService wires the inbox store with the relay derived from channelBase.
// An empty channelBase, or no broker connection, keeps streaming local to this process.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	log := logger.With().Str("component", "notification_service").Logger()

	return &notificationService{
		repo:      repo,
		relay:     newNotificationRelay(channelBase, natsConn, redisClient, log),
		hub:       newInboxHub(),
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/notification"),
		logger:    log,
		origin:    uuid.NewString(),
	}
}

// Start subscribes to notifications published by other nodes until ctx ends.
func (s *notificationService) Start(ctx context.Context) {
	if s.relay == nil {
		return
	}
	if err := s.relay.listen(ctx, s.receive); err != nil {
		s.logger.Error().Err(err).Str("relay", s.relay.name()).Msg("notification relay unavailable")
		return
	}
	s.logger.Info().Str("relay", s.relay.name()).Msg("listening for relayed notifications")
}

func (s *notificationService) Notify(ctx context.Context, studentID uint, message string) error {
	_, err := s.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  strconv.FormatUint(uint64(studentID), 10),
		Type:    models.NotificationTypeGrade,
		Message: message,
	})
	return err
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	message := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if message == "" {
		return dto.NotificationResponse{}, errEmptyNotification
	}

	ctx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.String("notification.user_id", payload.UserID),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	record := models.Notification{UserID: payload.UserID, Type: payload.Type, Message: message}
	if err := s.repo.Create(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store_failed")
		return dto.NotificationResponse{}, fmt.Errorf("store notification: %w", err)
	}

	notification := dto.NewNotificationResponse(record)
	delivered := s.hub.deliver(notification)
	span.SetAttributes(attribute.Int("notification.live_streams", delivered))
	observability.NotificationsPublishedTotal().WithLabelValues(notification.Type).Inc()

	if s.relay != nil {
		payload, err := encodeEnvelope(s.origin, notification)
		if err == nil {
			err = s.relay.send(ctx, payload)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("relay", s.relay.name()).Uint("notification_id", notification.ID).Msg("failed to relay notification")
		}
	}

	return notification, nil
}

func (s *notificationService) List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	records, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationResponseSlice(records), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.Int64("notification.id", int64(id)),
		attribute.String("notification.user_id", userID),
	))
	defer span.End()

	record, err := s.repo.MarkRead(ctx, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.NotificationResponse{}, ErrNotificationNotFound
	}
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}
	return dto.NewNotificationResponse(record), nil
}

// Subscribe opens a live stream for userID. The returned func closes it.
func (s *notificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	stream := s.hub.attach(userID)
	observability.NotificationClientsActive().Inc()

	var once sync.Once
	return stream, func() {
		once.Do(func() {
			s.hub.detach(userID, stream)
			observability.NotificationClientsActive().Dec()
		})
	}
}

func (s *notificationService) receive(payload []byte) {
	var envelope relayEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("dropping malformed relayed notification")
		return
	}
	if envelope.Origin == s.origin {
		return
	}
	s.hub.deliver(envelope.Notification)
}
