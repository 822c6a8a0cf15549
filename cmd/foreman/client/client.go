// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/httpapi"
	"github.com/bureau-foundation/foreman/lib/session"
)

// DefaultAddress is the daemon's default listen address, matching the
// config default.
const DefaultAddress = "127.0.0.1:7663"

// Connection manages the daemon address flag for CLI commands. Embed
// it in a params struct; BindFlags calls AddFlags through the
// FlagBinder interface.
type Connection struct {
	Address string
}

// AddFlags registers the --address flag. The default comes from the
// FOREMAN_ADDRESS environment variable when set, otherwise the
// daemon's default listen address.
func (c *Connection) AddFlags(flagSet *pflag.FlagSet) {
	addressDefault := DefaultAddress
	if envAddress := os.Getenv("FOREMAN_ADDRESS"); envAddress != "" {
		addressDefault = envAddress
	}
	flagSet.StringVar(&c.Address, "address", addressDefault,
		"daemon address (host:port or URL)")
}

// Client returns a Client for the configured address.
func (c *Connection) Client() *Client {
	return New(c.Address)
}

// Client is an HTTP client for the daemon API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the daemon at address. A bare host:port is
// promoted to an http URL; a trailing slash is tolerated.
//
// The underlying http.Client carries no timeout: the event feed is a
// long-lived stream. Unary calls bound their lifetime with the
// context they are given.
func New(address string) *Client {
	base := address
	if base == "" {
		base = DefaultAddress
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{},
	}
}

// APIError is an error response from the daemon, carrying the HTTP
// status code and the daemon's error message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a daemon 404: an unknown session,
// task, or pending confirmation.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusNotFound
}

// Status fetches the coordinator's status report.
func (c *Client) Status(ctx context.Context) (coordinator.Status, error) {
	return requestJSON[coordinator.Status](ctx, c, http.MethodGet, "/api/status", nil)
}

// Task fetches the coordination task context for a session.
func (c *Client) Task(ctx context.Context, sessionID string) (coordinator.TaskContext, error) {
	return requestJSON[coordinator.TaskContext](ctx, c, http.MethodGet,
		"/api/tasks/"+url.PathEscape(sessionID), nil)
}

// Pending fetches the queued confirmations awaiting human approval.
func (c *Client) Pending(ctx context.Context) ([]coordinator.PendingConfirmation, error) {
	return requestJSON[[]coordinator.PendingConfirmation](ctx, c, http.MethodGet, "/api/pending", nil)
}

// ConfirmResult reports what the daemon did with a confirmation.
type ConfirmResult struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
}

// Confirm approves or rejects a session's pending confirmation. A
// non-nil override replaces the queued decision's input on approval.
func (c *Client) Confirm(ctx context.Context, sessionID string, approved bool, override *coordinator.Override) (ConfirmResult, error) {
	body := httpapi.ConfirmRequest{Approved: approved, Override: override}
	return requestJSON[ConfirmResult](ctx, c, http.MethodPost,
		"/api/confirm/"+url.PathEscape(sessionID), body)
}

// Supervision fetches the current supervision level.
func (c *Client) Supervision(ctx context.Context) (string, error) {
	payload, err := requestJSON[httpapi.SupervisionPayload](ctx, c, http.MethodGet, "/api/supervision", nil)
	if err != nil {
		return "", err
	}
	return payload.Level, nil
}

// SetSupervision changes the supervision level.
func (c *Client) SetSupervision(ctx context.Context, level string) error {
	body := httpapi.SupervisionPayload{Level: level}
	_, err := requestJSON[httpapi.SupervisionPayload](ctx, c, http.MethodPost, "/api/supervision", body)
	return err
}

// Spawn creates a new agent session.
func (c *Client) Spawn(ctx context.Context, request httpapi.SpawnRequest) (session.Session, error) {
	return requestJSON[session.Session](ctx, c, http.MethodPost, "/api/sessions", request)
}

// Sessions lists sessions, optionally filtered by agent type and
// status. Empty filter values match everything.
func (c *Client) Sessions(ctx context.Context, agentType, status string) ([]session.Session, error) {
	query := url.Values{}
	if agentType != "" {
		query.Set("agentType", agentType)
	}
	if status != "" {
		query.Set("status", status)
	}
	path := "/api/sessions"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return requestJSON[[]session.Session](ctx, c, http.MethodGet, path, nil)
}

// Session fetches one session by id.
func (c *Client) Session(ctx context.Context, id string) (session.Session, error) {
	return requestJSON[session.Session](ctx, c, http.MethodGet,
		"/api/sessions/"+url.PathEscape(id), nil)
}

// Send delivers text to a session's terminal, submitted with Enter.
func (c *Client) Send(ctx context.Context, id, text string) error {
	body := httpapi.SendRequest{Text: text}
	return c.requestNoContent(ctx, http.MethodPost,
		"/api/sessions/"+url.PathEscape(id)+"/send", body)
}

// Keys delivers named keys (tmux syntax, e.g. "Enter", "C-c", "Up")
// to a session's terminal.
func (c *Client) Keys(ctx context.Context, id string, keys []string) error {
	body := httpapi.KeysRequest{Keys: keys}
	return c.requestNoContent(ctx, http.MethodPost,
		"/api/sessions/"+url.PathEscape(id)+"/keys", body)
}

// Stop requests a session's graceful shutdown. Stopping an unknown or
// already-stopped session succeeds: the daemon treats stop as
// idempotent.
func (c *Client) Stop(ctx context.Context, id, reason string) error {
	path := "/api/sessions/" + url.PathEscape(id)
	if reason != "" {
		path += "?" + url.Values{"reason": {reason}}.Encode()
	}
	return c.requestNoContent(ctx, http.MethodDelete, path, nil)
}

// do issues one request and returns the response with its body still
// open. Status codes of 400 and above decode into an APIError.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("contacting daemon: %w", err)
	}
	if response.StatusCode >= http.StatusBadRequest {
		defer response.Body.Close()
		return nil, decodeAPIError(response)
	}
	return response, nil
}

func (c *Client) requestNoContent(ctx context.Context, method, path string, body any) error {
	response, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, response.Body)
	return response.Body.Close()
}

// requestJSON issues a request and decodes the JSON response body
// into T. A 204 response yields T's zero value.
func requestJSON[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var result T
	response, err := c.do(ctx, method, path, body)
	if err != nil {
		return result, err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNoContent {
		return result, nil
	}
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("decoding response: %w", err)
	}
	return result, nil
}

// decodeAPIError turns an error response into an APIError. The body
// is bounded: a misconfigured address can point this client at
// something that is not the daemon.
func decodeAPIError(response *http.Response) error {
	apiError := &APIError{StatusCode: response.StatusCode}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(response.Body, 64*1024)).Decode(&body); err == nil {
		apiError.Message = body.Error
	}
	if apiError.Message == "" {
		apiError.Message = http.StatusText(response.StatusCode)
	}
	return apiError
}
