// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/bureau-foundation/foreman/lib/pubsub"
	"github.com/bureau-foundation/foreman/lib/session"
)

// outputBuffer is each output stream's chunk capacity. Terminal
// output bursts during full-screen redraws; the buffer rides those
// out without ever blocking the session's event path.
const outputBuffer = 256

// handleEvents serves the coordination feed as server-sent events: a
// snapshot comment and message first, then one message per state
// change, with heartbeat comments at the configured cadence. A closed
// connection unregisters the observer and nothing else.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError,
			errorBody{Error: "response writer does not support streaming"})
		return
	}

	// Subscribe before taking the snapshot so no change between the
	// two is missed. A change landing in that window appears in the
	// snapshot and again as an incremental event; feed events carry
	// full contexts, so replaying one over the snapshot is harmless.
	events, cancel := s.coordinator.Subscribe()
	defer cancel()

	s.setStreamHeaders(w)

	// The ticker exists before the first byte goes out: a client that
	// has read the snapshot can rely on the cadence being armed.
	heartbeat := s.clock.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	if _, err := fmt.Fprint(w, ": snapshot\n\n"); err != nil {
		return
	}
	if err := writeSSE(w, "snapshot", s.coordinator.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				// The feed closed this observer for lagging; the
				// client reconnects for a fresh snapshot.
				return
			}
			if err := writeSSE(w, string(event.Type), event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleOutput streams a session's raw output chunks as server-sent
// events, from live output at connect time until the session reaches
// a terminal status or the client goes away.
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError,
			errorBody{Error: "response writer does not support streaming"})
		return
	}

	id := r.PathValue("id")

	// Watch for the session's terminal event before subscribing to
	// its output, so a stop landing between the two still ends the
	// stream instead of leaving it hanging on heartbeats.
	ended := make(chan struct{})
	var once sync.Once
	cancelEvents := s.sessions.SubscribeEvents(func(event session.Event) {
		if event.SessionID != id {
			return
		}
		if event.Type == session.EventStopped || event.Type == session.EventError {
			once.Do(func() { close(ended) })
		}
	})
	defer cancelEvents()

	buffer := pubsub.NewBuffer[session.OutputChunk](outputBuffer)
	cancelOutput, err := s.sessions.SubscribeOutput(id, func(chunk session.OutputChunk) {
		if buffer.Deliver(chunk) {
			s.logger.Warn("output stream lagged; closed its channel", "session", id)
		}
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cancelOutput()

	s.setStreamHeaders(w)

	heartbeat := s.clock.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	// Push the headers out now: a quiet session may not produce a
	// chunk for a full heartbeat interval.
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ended:
			// The session's last chunks can arrive ahead of its
			// terminal event; flush them before closing the stream.
			for {
				select {
				case chunk, open := <-buffer.C():
					if !open {
						return
					}
					if err := writeSSE(w, "output", chunk); err != nil {
						return
					}
					flusher.Flush()
				default:
					return
				}
			}
		case chunk, open := <-buffer.C():
			if !open {
				return
			}
			if err := writeSSE(w, "output", chunk); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

// writeSSE frames one server-sent event with a type and a JSON body.
func writeSSE(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
