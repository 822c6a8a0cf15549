// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/sse"
)

// FeedUpdate is one decoded message from the daemon's coordination
// feed. Exactly one field is non-nil: Snapshot for the opening state
// transfer, Event for every incremental update after it.
type FeedUpdate struct {
	Snapshot *coordinator.Snapshot
	Event    *coordinator.FeedEvent
}

// EventStream is an open connection to the daemon's coordination
// feed. Next blocks until the daemon sends the next message; Close
// unblocks it. Cancelling the context passed to Events does too.
type EventStream struct {
	body     io.ReadCloser
	scanner  *sse.Scanner
	activity *activityReader
}

// Events opens the daemon's server-sent coordination feed. The
// context governs the whole stream lifetime, not just the dial.
func (c *Client) Events(ctx context.Context) (*EventStream, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("Accept", "text/event-stream")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("contacting daemon: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		defer response.Body.Close()
		return nil, decodeAPIError(response)
	}

	activity := &activityReader{reader: response.Body}
	activity.last.Store(time.Now().UnixNano())
	return &EventStream{
		body:     response.Body,
		scanner:  sse.NewScanner(activity),
		activity: activity,
	}, nil
}

// Next returns the next decoded feed message. It returns io.EOF when
// the daemon closes the stream (shutdown, or this observer lagged and
// was disconnected); the caller reconnects for a fresh snapshot.
func (s *EventStream) Next() (FeedUpdate, error) {
	for s.scanner.Next() {
		event := s.scanner.Event()
		if event.Type == "snapshot" {
			var snapshot coordinator.Snapshot
			if err := json.Unmarshal([]byte(event.Data), &snapshot); err != nil {
				return FeedUpdate{}, fmt.Errorf("decoding snapshot: %w", err)
			}
			return FeedUpdate{Snapshot: &snapshot}, nil
		}

		var feedEvent coordinator.FeedEvent
		if err := json.Unmarshal([]byte(event.Data), &feedEvent); err != nil {
			return FeedUpdate{}, fmt.Errorf("decoding %s event: %w", event.Type, err)
		}
		return FeedUpdate{Event: &feedEvent}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return FeedUpdate{}, err
	}
	return FeedUpdate{}, io.EOF
}

// LastActivity returns the time of the last byte received on the
// stream. Heartbeat comments are SSE comment lines the scanner
// swallows before Next sees them, but they still move this clock, so
// a consumer can tell a quiet daemon from a dead connection.
func (s *EventStream) LastActivity() time.Time {
	return time.Unix(0, s.activity.last.Load())
}

// Close terminates the stream. A blocked Next returns after Close.
func (s *EventStream) Close() error {
	return s.body.Close()
}

// activityReader timestamps every successful read. Safe for the
// stream reader and LastActivity callers on different goroutines.
type activityReader struct {
	reader io.Reader
	last   atomic.Int64
}

func (r *activityReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.last.Store(time.Now().UnixNano())
	}
	return n, err
}
