package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEHandler streams every event as a server sent event of the form
// `data: {"message": "..."}`.
type SSEHandler struct {
	Hub *Hub
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(sub)

	logger := h.Hub.logger().With("subscriber", sub.ID)
	logger.Info("event stream connected", "total", h.Hub.SubscriberCount())
	defer logger.Info("event stream disconnected")

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case ev := <-sub.C:
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error("failed to marshal event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
