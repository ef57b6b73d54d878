package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/graaaaa/mclog-companion/internal/event"
)

// heartbeatInterval is the interval for sending SSE heartbeat comments.
const heartbeatInterval = 20 * time.Second

// streamRecord is the data payload of one SSE message.
type streamRecord struct {
	Kind   string       `json:"kind"`
	Record event.Record `json:"record"`
}

// handleStream handles GET /api/v1/stream (SSE). Each newly inserted record
// is sent as an event named after its kind.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case rec, ok := <-sub.Records():
			if !ok {
				return
			}
			writeSSERecord(w, rec)
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprintf(w, ":\n\n")
			flusher.Flush()

		case <-ctx.Done():
			return

		case <-sub.Done():
			return
		}
	}
}

// writeSSERecord writes a single record in SSE format.
func writeSSERecord(w http.ResponseWriter, rec event.Record) {
	data, err := json.Marshal(streamRecord{Kind: rec.Kind(), Record: rec})
	if err != nil {
		return
	}
	if id := recordID(rec); id != 0 {
		fmt.Fprintf(w, "id: %s-%d\n", rec.Kind(), id)
	}
	fmt.Fprintf(w, "event: %s\n", rec.Kind())
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func recordID(rec event.Record) int64 {
	switch r := rec.(type) {
	case *event.ChatMessage:
		return r.ID
	case *event.Punishment:
		return r.ID
	case *event.Report:
		return r.ID
	case *event.KillEvent:
		return r.ID
	}
	return 0
}
