package notify

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// WebSocketHandler pushes every event as one JSON text message
// `{"message": "..."}`. Messages sent by the client are ignored.
type WebSocketHandler struct {
	Hub      *Hub
	Upgrader websocket.Upgrader
}

// NewWebSocketHandler accepts connections from allowedOrigin, or from any
// origin when it is "*".
func NewWebSocketHandler(hub *Hub, allowedOrigin string) *WebSocketHandler {
	return &WebSocketHandler{
		Hub: hub,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Hub.logger().Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(sub)

	logger := h.Hub.logger().With("subscriber", sub.ID)
	logger.Info("websocket connected", "total", h.Hub.SubscriberCount())
	defer logger.Info("websocket disconnected")

	// The read loop only serves pongs and notices the client going away.
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case ev := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Warn("websocket write failed", "error", err)
				return
			}
		}
	}
}
