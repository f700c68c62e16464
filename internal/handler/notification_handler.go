package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// NotificationHandler serves the student inbox and its live SSE and websocket streams.
type NotificationHandler struct {
	service   service.NotificationService
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewNotificationHandler builds the handler. Live streams send a keep-alive every
// timeout/2; a non-positive timeout means 30s.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger, timeout time.Duration) *NotificationHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &NotificationHandler{
		service:   service,
		logger:    logger.With().Str("component", "notification_handler").Logger(),
		keepAlive: timeout / 2,
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Use("/notifications/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})

	router.Get("/notifications", h.list)
	router.Get("/notifications/stream", h.stream)
	router.Get("/notifications/ws", websocket.New(h.socket))
	router.Patch("/notifications/:id/read", h.markRead)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	inbox, err := h.service.List(withRequestContext(c), userID, limit, offset)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list notifications")
	}
	return utils.SendSuccess(c, "notifications", inbox)
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	notification, err := h.service.MarkRead(withRequestContext(c), id, userID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update notification")
	}
	return utils.SendSuccess(c, "notification updated", notification)
}

// notificationSink is one live transport attached to a student's inbox.
type notificationSink interface {
	send(notification dto.NotificationResponse) error
	keepAlive() error
}

// pump forwards notifications to sink until the stream closes, done fires or a write fails.
func (h *NotificationHandler) pump(userID string, sink notificationSink, done <-chan struct{}) {
	stream, unsubscribe := h.service.Subscribe(userID)
	defer unsubscribe()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		var err error
		select {
		case notification, ok := <-stream:
			if !ok {
				return
			}
			err = sink.send(notification)
		case <-ticker.C:
			err = sink.keepAlive()
		case <-done:
			return
		}
		if err != nil {
			h.logger.Debug().Err(err).Str("user_id", userID).Msg("live notification stream closed")
			return
		}
	}
}

func (h *NotificationHandler) stream(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		h.pump(userID, sseSink{w: w}, nil)
	})
	return nil
}

type sseSink struct {
	w *bufio.Writer
}

func (s sseSink) send(notification dto.NotificationResponse) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: notification\ndata: %s\n\n", notification.ID, payload); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s sseSink) keepAlive() error {
	if _, err := s.w.WriteString(": ping\n\n"); err != nil {
		return err
	}
	return s.w.Flush()
}

// socket pushes each notification as a JSON text frame. Client frames are read only to
// notice the disconnect.
func (h *NotificationHandler) socket(conn *websocket.Conn) {
	userID := websocketUserID(conn)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user not authenticated"))
		_ = conn.Close()
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug().Str("user_id", userID).Msg("notification websocket connected")
	h.pump(userID, socketSink{conn: conn}, closed)
	h.logger.Debug().Str("user_id", userID).Msg("notification websocket disconnected")
}

type socketSink struct {
	conn *websocket.Conn
}

func (s socketSink) send(notification dto.NotificationResponse) error {
	return s.conn.WriteJSON(notification)
}

func (s socketSink) keepAlive() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}

func websocketUserID(conn *websocket.Conn) string {
	if id, ok := conn.Locals(middleware.LocalUserID).(uint); ok && id > 0 {
		return strconv.FormatUint(uint64(id), 10)
	}
	return ""
}
