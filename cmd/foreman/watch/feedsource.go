// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/foreman/cmd/foreman/client"
	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/watchui"
)

const (
	// initialBackoff is the delay before the first reconnect attempt;
	// the delay doubles on each failure up to maxBackoff.
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second

	// eventBuffer bounds the subscriber channel. State is folded
	// before dispatch, so a dropped wakeup is covered by the next one.
	eventBuffer = 64
)

// FeedSource feeds the dashboard from the daemon's coordination feed.
// It maintains the event stream in a background goroutine, folds every
// message into a local [watchui.State], and reconnects with backoff
// when the stream drops. During an outage the last received state
// stays visible; the header's connection phase and activity age tell
// the operator it is stale, and the snapshot on reconnect replaces it
// wholesale.
type FeedSource struct {
	client *client.Client
	logger *slog.Logger

	mutex      sync.Mutex
	state      watchui.State
	connection string

	// stream is the live event stream, nil between connections.
	// lastSeen preserves the final activity timestamp across the gap.
	stream   atomic.Pointer[client.EventStream]
	lastSeen atomic.Int64

	events chan watchui.Event
	cancel context.CancelFunc
}

// NewFeedSource creates a source for the daemon behind daemonClient
// and starts its stream goroutine. Close releases it.
func NewFeedSource(daemonClient *client.Client, logger *slog.Logger) *FeedSource {
	ctx, cancel := context.WithCancel(context.Background())
	source := &FeedSource{
		client:     daemonClient,
		logger:     logger,
		connection: watchui.ConnectionConnecting,
		events:     make(chan watchui.Event, eventBuffer),
		cancel:     cancel,
	}
	go source.streamLoop(ctx)
	return source
}

// streamLoop runs the stream until the context is cancelled,
// reconnecting with exponential backoff after each failure.
func (source *FeedSource) streamLoop(ctx context.Context) {
	backoff := initialBackoff
	for {
		err := source.runStream(ctx)
		if ctx.Err() != nil {
			return
		}
		source.markDisconnected()
		source.logger.Warn("coordination feed disconnected",
			"error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// runStream opens one event stream and folds its messages until it
// fails. The stream's closing activity timestamp is preserved so
// LastActivity stays meaningful while disconnected.
func (source *FeedSource) runStream(ctx context.Context) error {
	stream, err := source.client.Events(ctx)
	if err != nil {
		return err
	}
	source.stream.Store(stream)
	defer func() {
		source.lastSeen.Store(stream.LastActivity().UnixNano())
		source.stream.Store(nil)
		stream.Close()
	}()

	for {
		update, err := stream.Next()
		if err != nil {
			return err
		}
		switch {
		case update.Snapshot != nil:
			source.fold(watchui.Update{Snapshot: update.Snapshot})
			source.setConnection(watchui.ConnectionLive)
			source.dispatch(watchui.Event{Kind: "snapshot"})
		case update.Event != nil:
			source.fold(watchui.Update{Event: update.Event})
			source.dispatch(watchui.Event{
				Kind:      string(update.Event.Type),
				SessionID: update.Event.SessionID,
			})
		}
	}
}

func (source *FeedSource) fold(update watchui.Update) {
	source.mutex.Lock()
	source.state.Apply(update)
	source.mutex.Unlock()
}

func (source *FeedSource) setConnection(phase string) {
	source.mutex.Lock()
	changed := source.connection != phase
	source.connection = phase
	source.mutex.Unlock()
	if changed {
		source.dispatch(watchui.Event{Kind: "connection"})
	}
}

// markDisconnected moves a live connection to the reconnecting phase.
// A source that never reached the daemon stays in the connecting
// phase, which the dashboard renders as its startup message.
func (source *FeedSource) markDisconnected() {
	source.mutex.Lock()
	changed := source.connection == watchui.ConnectionLive
	if changed {
		source.connection = watchui.ConnectionReconnecting
	}
	source.mutex.Unlock()
	if changed {
		source.dispatch(watchui.Event{Kind: "connection"})
	}
}

// dispatch signals the subscriber without blocking the stream
// goroutine. The channel is buffered; a full buffer drops the signal.
func (source *FeedSource) dispatch(event watchui.Event) {
	select {
	case source.events <- event:
	default:
	}
}

// State returns a copy of the current coordination state.
func (source *FeedSource) State() watchui.State {
	source.mutex.Lock()
	defer source.mutex.Unlock()
	state := source.state
	state.Tasks = slices.Clone(state.Tasks)
	state.Pending = slices.Clone(state.Pending)
	return state
}

// ConnectionState returns the current stream phase.
func (source *FeedSource) ConnectionState() string {
	source.mutex.Lock()
	defer source.mutex.Unlock()
	return source.connection
}

// LastActivity reports when the feed last carried bytes. While
// disconnected it returns the last timestamp of the previous stream,
// so the dashboard can show how stale the displayed state is.
func (source *FeedSource) LastActivity() time.Time {
	if stream := source.stream.Load(); stream != nil {
		return stream.LastActivity()
	}
	nanos := source.lastSeen.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Subscribe returns the channel carrying change notifications.
func (source *FeedSource) Subscribe() <-chan watchui.Event {
	return source.events
}

// Confirm approves or rejects a session's queued confirmation. The
// resolution arrives back through the feed.
func (source *FeedSource) Confirm(ctx context.Context, sessionID string, approved bool) error {
	_, err := source.client.Confirm(ctx, sessionID, approved, nil)
	return err
}

// SetSupervision changes the coordinator's supervision level.
func (source *FeedSource) SetSupervision(ctx context.Context, level coordinator.Supervision) error {
	return source.client.SetSupervision(ctx, string(level))
}

// Send delivers operator text to a session's agent.
func (source *FeedSource) Send(ctx context.Context, sessionID, text string) error {
	return source.client.Send(ctx, sessionID, text)
}

// Close stops the stream goroutine and unblocks a pending read.
func (source *FeedSource) Close() {
	source.cancel()
}

var (
	_ watchui.Source = (*FeedSource)(nil)
	_ watchui.Actor  = (*FeedSource)(nil)
)
