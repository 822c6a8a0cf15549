// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi exposes the daemon's control surface over HTTP:
// JSON routes for session and coordination commands, and server-sent
// event streams for the coordination feed and raw session output. The
// server holds no state of its own; every request reads or mutates
// the session manager and coordinator it wraps.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bureau-foundation/foreman/lib/clock"
	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/rules"
	"github.com/bureau-foundation/foreman/lib/session"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// Config assembles a Server. Address, Sessions, and Coordinator are
// required.
type Config struct {
	// Address is the TCP listen address (e.g., "127.0.0.1:7733").
	Address string

	// Sessions is the session manager behind the /api/sessions routes.
	Sessions *session.Manager

	// Coordinator is the decision loop behind the coordination routes.
	Coordinator *coordinator.Coordinator

	// CredentialRules resolves credential names in a spawn request
	// into once auto-response rules. Nil rejects spawn requests that
	// name credentials.
	CredentialRules func(names []string) ([]rules.Rule, error)

	// HeartbeatInterval is the cadence of keep-alive comments on event
	// streams. Defaults to 30 seconds.
	HeartbeatInterval time.Duration

	// ShutdownTimeout bounds the graceful drain after the serve
	// context is cancelled. Defaults to 10 seconds.
	ShutdownTimeout time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server serves the control API on a TCP listener. Serve(ctx) blocks
// until the context is cancelled, then drains: event streams are
// released first, in-flight requests get ShutdownTimeout to finish.
type Server struct {
	address         string
	sessions        *session.Manager
	coordinator     *coordinator.Coordinator
	credentialRules func(names []string) ([]rules.Rule, error)
	heartbeat       time.Duration
	shutdownTimeout time.Duration
	clock           clock.Clock
	logger          *slog.Logger

	handler http.Handler

	// ready closes once the listener is bound and accepting.
	ready chan struct{}

	// addr is the resolved listen address, valid after ready closes.
	addr net.Addr
}

// New builds a Server. Call Serve to bind the listener and start
// accepting connections.
func New(config Config) (*Server, error) {
	if config.Address == "" {
		return nil, errors.New("httpapi: listen address is required")
	}
	if config.Sessions == nil {
		return nil, errors.New("httpapi: session manager is required")
	}
	if config.Coordinator == nil {
		return nil, errors.New("httpapi: coordinator is required")
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaultHeartbeatInterval
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	server := &Server{
		address:         config.Address,
		sessions:        config.Sessions,
		coordinator:     config.Coordinator,
		credentialRules: config.CredentialRules,
		heartbeat:       config.HeartbeatInterval,
		shutdownTimeout: config.ShutdownTimeout,
		clock:           config.Clock,
		logger:          config.Logger,
		ready:           make(chan struct{}),
	}
	server.handler = server.logRequests(server.routes())
	return server, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/tasks/{sessionId}", s.handleTask)
	mux.HandleFunc("GET /api/pending", s.handlePending)
	mux.HandleFunc("POST /api/confirm/{sessionId}", s.handleConfirm)
	mux.HandleFunc("GET /api/supervision", s.handleSupervisionGet)
	mux.HandleFunc("POST /api/supervision", s.handleSupervisionSet)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("POST /api/sessions", s.handleSpawn)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("POST /api/sessions/{id}/send", s.handleSend)
	mux.HandleFunc("POST /api/sessions/{id}/keys", s.handleKeys)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleStop)
	mux.HandleFunc("GET /api/sessions/{id}/output", s.handleOutput)

	return mux
}

// Ready returns a channel that is closed once the server is bound and
// accepting connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the resolved listen address. Only valid after Ready()
// is closed; with a ":0" address it carries the OS-assigned port.
func (s *Server) Addr() net.Addr { return s.addr }

// Serve accepts connections until ctx is cancelled, then shuts down
// gracefully. Event-stream handlers watch their request contexts,
// which descend from the serve context, so cancelling ctx releases
// them and lets the drain finish inside ShutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	// Request contexts descend from connCtx. Cancelling it releases
	// the long-lived event streams that would otherwise hold the
	// graceful shutdown open for its full timeout.
	connCtx, cancelConns := context.WithCancel(context.Background())
	defer cancelConns()

	server := &http.Server{
		Handler:           s.handler,
		BaseContext:       func(net.Listener) context.Context { return connCtx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: event streams stay open indefinitely and
		// rely on heartbeats to detect dead peers.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("api server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server shutting down")
	case err := <-serveDone:
		return err
	}

	cancelConns()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	s.logger.Info("api server stopped")
	return nil
}

// logRequests wraps the route table with per-request logging. Event
// streams log on disconnect, with the connection's lifetime as the
// duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", s.clock.Now().Sub(start),
		)
	})
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so streaming handlers keep
// their http.Flusher through the recorder.
func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
