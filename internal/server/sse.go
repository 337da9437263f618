// Package server: push-stream implementation.
//
// SSE implementation note: this keeps the teacher's custom Server-Sent
// Events writer (a small wrapper over http.ResponseWriter) rather than a
// third-party SSE framework. It integrates directly with the event bus and
// needs nothing a heavier framework would add.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gemini-legion/legion/internal/event"
	"github.com/gemini-legion/legion/internal/logging"
	"github.com/gemini-legion/legion/pkg/types"
)

// pushEnvelope is the wire shape spec §6 names for the real-time push
// surface: "{event_type, payload, timestamp, event_id}". message_id is
// promoted out of the payload when present so clients can dedupe (spec §8
// S4) without knowing every payload shape.
type pushEnvelope struct {
	EventType types.EventType `json:"event_type"`
	Payload   any             `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	EventID   string          `json:"event_id"`
	MessageID string          `json:"message_id,omitempty"`
}

const sseHeartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprint(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// messageIDOf extracts message_id from a payload that carries one, for
// client-side dedup (spec §8 S4). Only MessagePosted payloads carry one.
func messageIDOf(e types.Event) string {
	if data, ok := e.Payload.(event.MessagePostedData); ok {
		return data.Message.MessageID
	}
	return ""
}

// pushEvents handles GET /events: a single SSE stream mirroring every
// event published on the bus, filterable client-side by event_type.
func (s *Server) pushEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Subscribe before flushing headers: a client that proceeds the moment
	// it sees headers must not be able to race a publish that happens
	// right after, or it would miss the event entirely.
	events := make(chan types.Event, 32)
	unsub := s.bus.SubscribeAll(func(e types.Event) {
		select {
		case events <- e:
		default:
			logging.Warn().Str("eventType", string(e.Type)).Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			env := pushEnvelope{
				EventType: e.Type,
				Payload:   e.Payload,
				Timestamp: e.Timestamp,
				EventID:   e.EventID,
				MessageID: messageIDOf(e),
			}
			if err := sse.writeEvent("message", env); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
