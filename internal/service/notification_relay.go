package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
)

const inboxStreamBuffer = 16

// inboxHub keeps the live streams opened by connected students on this node.
type inboxHub struct {
	mu      sync.RWMutex
	streams map[string]map[chan dto.NotificationResponse]struct{}
}

func newInboxHub() *inboxHub {
	return &inboxHub{streams: make(map[string]map[chan dto.NotificationResponse]struct{})}
}

func (h *inboxHub) attach(userID string) chan dto.NotificationResponse {
	stream := make(chan dto.NotificationResponse, inboxStreamBuffer)

	h.mu.Lock()
	set, ok := h.streams[userID]
	if !ok {
		set = make(map[chan dto.NotificationResponse]struct{})
		h.streams[userID] = set
	}
	set[stream] = struct{}{}
	h.mu.Unlock()

	return stream
}

func (h *inboxHub) detach(userID string, stream chan dto.NotificationResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.streams[userID]
	if !ok {
		return
	}
	if _, present := set[stream]; !present {
		return
	}
	delete(set, stream)
	close(stream)
	if len(set) == 0 {
		delete(h.streams, userID)
	}
}

// deliver hands the notification to every open stream of the recipient. Slow readers
// miss the live copy but still find it in their inbox.
func (h *inboxHub) deliver(notification dto.NotificationResponse) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for stream := range h.streams[notification.UserID] {
		select {
		case stream <- notification:
			delivered++
		default:
		}
	}
	return delivered
}

// relayEnvelope is the cross-node message carrying a freshly stored notification.
type relayEnvelope struct {
	Origin       string                   `json:"origin"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

// notificationRelay forwards notifications between API nodes.
type notificationRelay interface {
	send(ctx context.Context, payload []byte) error
	listen(ctx context.Context, handle func([]byte)) error
	name() string
}

// newNotificationRelay picks the transport for channelBase. NATS wins over Redis when both
// are configured. A nil relay keeps fan-out local to this node.
func newNotificationRelay(channelBase string, conn *nats.Conn, client *redis.Client, logger zerolog.Logger) notificationRelay {
	if channelBase == "" {
		return nil
	}

	switch {
	case conn != nil:
		return &natsRelay{conn: conn, subject: strings.ReplaceAll(channelBase, ":", ".") + ".notifications", logger: logger}
	case client != nil:
		return &redisRelay{client: client, channel: channelBase + ":notifications", logger: logger}
	}
	return nil
}

type natsRelay struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

func (r *natsRelay) name() string { return "nats" }

func (r *natsRelay) send(_ context.Context, payload []byte) error {
	return r.conn.Publish(r.subject, payload)
}

func (r *natsRelay) listen(ctx context.Context, handle func([]byte)) error {
	sub, err := r.conn.Subscribe(r.subject, func(msg *nats.Msg) {
		handle(msg.Data)
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			r.logger.Warn().Err(err).Str("subject", r.subject).Msg("failed to drain notification subscription")
		}
	}()
	return nil
}

type redisRelay struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

func (r *redisRelay) name() string { return "redis" }

func (r *redisRelay) send(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *redisRelay) listen(ctx context.Context, handle func([]byte)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	go func() {
		defer func() { _ = pubsub.Close() }()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					r.logger.Error().Err(err).Str("channel", r.channel).Msg("notification channel closed")
				}
				return
			}
			handle([]byte(msg.Payload))
		}
	}()
	return nil
}

func encodeEnvelope(origin string, notification dto.NotificationResponse) ([]byte, error) {
	return json.Marshal(relayEnvelope{Origin: origin, Notification: notification, SentAt: time.Now().UTC()})
}
