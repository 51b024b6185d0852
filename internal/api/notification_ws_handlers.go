package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sigaedu/siga/internal/escalation"
	"github.com/sigaedu/siga/internal/middleware"
	"github.com/sigaedu/siga/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the frontend deployment domains are fixed
		return true
	},
}

// NotificationWebSocketHandlers holds dependencies for the notification feed.
type NotificationWebSocketHandlers struct {
	broadcaster *notify.Broadcaster
}

// NewNotificationWebSocketHandlers creates a new NotificationWebSocketHandlers
// instance.
func NewNotificationWebSocketHandlers(broadcaster *notify.Broadcaster) *NotificationWebSocketHandlers {
	return &NotificationWebSocketHandlers{broadcaster: broadcaster}
}

// Subscribe handles WebSocket connections for real-time escalation
// notifications.
// GET /notifications/ws?audience={teacher|coordinator|student}
func (h *NotificationWebSocketHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	audience := escalation.Audience(r.URL.Query().Get("audience"))
	switch audience {
	case escalation.AudienceTeacher, escalation.AudienceCoordinator, escalation.AudienceStudent:
	default:
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation,
			"audience must be one of: teacher, coordinator, student")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection",
			"error", err,
			"audience", string(audience),
		)
		return
	}

	h.broadcaster.Subscribe(audience, conn)

	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "websocket client subscribed to notifications",
		"audience", string(audience),
		"request_id", requestID,
	)

	defer func() {
		h.broadcaster.Unsubscribe(conn)
		conn.Close()
		slog.InfoContext(ctx, "websocket client unsubscribed",
			"audience", string(audience),
			"request_id", requestID,
		)
	}()

	// Clients only listen; reading detects disconnection.
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly",
					"error", err,
					"audience", string(audience),
				)
			}
			break
		}
	}
}
