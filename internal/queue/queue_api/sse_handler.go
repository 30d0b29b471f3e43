package queue_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// heartbeatInterval keeps proxies from closing idle streams.
var heartbeatInterval = 25 * time.Second

// Stream serves a day as Server-Sent Events: one "snapshot" event, then a
// "change" event per committed mutation in revision order. When the server
// drops the subscription it sends "resync" and closes; the client must
// reconnect and take a fresh snapshot.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	snap, events, unsubscribe, err := h.Queue.Subscribe(ctx, day)
	if err != nil {
		h.writeError(w, r, "Stream", err)
		return
	}
	defer unsubscribe()

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := writeSSE(w, "snapshot", snap.Meta.Revision, snap); err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to write snapshot for %s: %v", day, err))
		return
	}
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client subscribed to %s at rev=%d", day, snap.Meta.Revision))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				fmt.Fprintf(w, "event: resync\ndata: {\"business_day\":%q}\n\n", day)
				flusher.Flush()
				h.Logger.Debug("SSE", fmt.Sprintf("Stream for %s closed by server", day))
				return
			}
			if err := writeSSE(w, "change", e.Revision, e); err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize change event: %v", err))
				continue
			}
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from %s", day))
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, id int64, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, payload)
	return err
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
