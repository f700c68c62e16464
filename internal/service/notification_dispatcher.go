package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// DispatcherConfig tunes outbox delivery.
type DispatcherConfig struct {
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
}

// NotificationDispatcher delivers committed notification intents. Delivery is
// at-least-once: an intent stays pending until the notifier accepts it or it runs out
// of attempts.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, ids []uint)
	Run(ctx context.Context)
}

type notificationDispatcher struct {
	outbox   repository.OutboxRepository
	notifier Notifier
	cfg      DispatcherConfig
	logger   zerolog.Logger
	now      func() time.Time
	mu       sync.Mutex
}

// NewNotificationDispatcher builds the outbox dispatcher.
func NewNotificationDispatcher(outbox repository.OutboxRepository, notifier Notifier, cfg DispatcherConfig, logger zerolog.Logger) NotificationDispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &notificationDispatcher{
		outbox:   outbox,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "notification_dispatcher").Logger(),
		now:      time.Now,
	}
}

// Dispatch delivers the given intents right away. Failures are logged and left for Run.
func (d *notificationDispatcher) Dispatch(ctx context.Context, ids []uint) {
	if len(ids) == 0 {
		return
	}
	d.deliver(ctx, ids, len(ids))
}

// Run retries pending intents until ctx is cancelled.
func (d *notificationDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.deliver(ctx, nil, d.cfg.BatchSize)
		}
	}
}

func (d *notificationDispatcher) deliver(ctx context.Context, ids []uint, limit int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.outbox.ListPending(ctx, ids, limit)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to load pending notifications")
		return
	}

	for _, entry := range entries {
		if err := d.notifier.Notify(ctx, entry.StudentID, entry.Message); err != nil {
			observability.NotificationDispatches().WithLabelValues("failed").Inc()
			d.logger.Warn().
				Err(err).
				Uint("outbox_id", entry.ID).
				Uint("submission_id", entry.SubmissionID).
				Int("attempt", entry.Attempts+1).
				Msg("notification delivery failed")
			if markErr := d.outbox.MarkFailed(ctx, entry.ID, err.Error(), d.cfg.MaxAttempts); markErr != nil {
				d.logger.Error().Err(markErr).Uint("outbox_id", entry.ID).Msg("failed to record notification failure")
			}
			continue
		}

		observability.NotificationDispatches().WithLabelValues("dispatched").Inc()
		if err := d.outbox.MarkDispatched(ctx, entry.ID, d.now().UTC()); err != nil {
			d.logger.Error().Err(err).Uint("outbox_id", entry.ID).Msg("failed to mark notification dispatched")
		}
	}
}
