package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/store"
)

var keepaliveInterval = 15 * time.Second

// snapshotEvent is the first event of every stream.
type snapshotEvent struct {
	Messages  []domain.Message       `json:"messages"`
	State     domain.ConnectionState `json:"state"`
	Connected bool                   `json:"connected"`
}

// Stream pushes store changes of the caller's session as server-sent events.
// The first event is a snapshot of the log; later events are "appended",
// "cleared" and "connection".
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before the snapshot so no change falls between the two.
	events, cancel := s.Store.Subscribe()
	defer cancel()

	msgs, err := s.Store.Messages(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to read messages")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snapshot, err := json.Marshal(snapshotEvent{
		Messages:  msgs,
		State:     s.Manager.State(),
		Connected: s.Store.IsConnected(),
	})
	if err != nil {
		slog.Warn("failed to marshal SSE snapshot", "error", err)
		return
	}
	if err := writeSSE(w, "snapshot", string(snapshot)); err != nil {
		slog.Warn("failed to write SSE snapshot", "error", err, "session_id", s.ID)
		return
	}
	flusher.Flush()
	slog.Info("Chat stream opened", "session_id", s.ID)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("Chat stream disconnected", "session_id", s.ID)
			return
		case ev, ok := <-events:
			if !ok {
				if err := writeSSE(w, "closed", `{"status":"session closed"}`); err == nil {
					flusher.Flush()
				}
				return
			}
			if err := writeStoreEvent(w, ev); err != nil {
				slog.Warn("failed to write SSE event", "error", err, "session_id", s.ID)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				slog.Warn("failed to write SSE keepalive ping", "error", err, "session_id", s.ID)
				return
			}
			flusher.Flush()
		}
	}
}

func writeStoreEvent(w io.Writer, ev store.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal store event: %w", err)
	}
	return writeSSE(w, string(ev.Type), string(data))
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
