// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/foreman/lib/adapter"
	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/rules"
	"github.com/bureau-foundation/foreman/lib/session"
)

// SpawnRequest is the body of POST /api/sessions.
type SpawnRequest struct {
	AgentType      string            `json:"agentType"`
	Name           string            `json:"name,omitempty"`
	Workdir        string            `json:"workdir"`
	Env            map[string]string `json:"env,omitempty"`
	InitialTask    string            `json:"initialTask,omitempty"`
	MemoryContent  string            `json:"memoryContent,omitempty"`
	ApprovalPreset string            `json:"approvalPreset,omitempty"`

	// Label names the task on the coordination feed. Defaults to the
	// session name. Meaningful only with an initial task: sessions
	// spawned with a task are coordinated automatically.
	Label string `json:"label,omitempty"`

	// Rules extend the session's auto-response rules.
	Rules []rules.Rule `json:"rules,omitempty"`

	// Credentials names sealed credentials to register as once rules.
	Credentials []string `json:"credentials,omitempty"`
}

// SendRequest is the body of POST /api/sessions/{id}/send.
type SendRequest struct {
	Text string `json:"text"`
}

// KeysRequest is the body of POST /api/sessions/{id}/keys.
type KeysRequest struct {
	Keys []string `json:"keys"`
}

// ConfirmRequest is the body of POST /api/confirm/{sessionId}.
type ConfirmRequest struct {
	Approved bool                  `json:"approved"`
	Override *coordinator.Override `json:"override,omitempty"`
}

// SupervisionPayload carries the supervision level in both directions
// on /api/supervision.
type SupervisionPayload struct {
	Level string `json:"level"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coordinator.Status())
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.coordinator.Task(r.PathValue("sessionId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coordinator.Pending())
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var request ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}

	id := r.PathValue("sessionId")
	if err := s.coordinator.Confirm(id, request.Approved, request.Override); err != nil {
		s.writeError(w, err)
		return
	}

	outcome := "rejected"
	if request.Approved {
		outcome = "applied"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": outcome, "sessionId": id})
}

func (s *Server) handleSupervisionGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, SupervisionPayload{Level: string(s.coordinator.Supervision())})
}

func (s *Server) handleSupervisionSet(w http.ResponseWriter, r *http.Request) {
	var request SupervisionPayload
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if err := s.coordinator.SetSupervision(coordinator.Supervision(request.Level)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SupervisionPayload{Level: request.Level})
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var request SpawnRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if request.AgentType == "" {
		s.badRequest(w, "agentType is required")
		return
	}
	if request.Workdir == "" {
		s.badRequest(w, "workdir is required")
		return
	}
	if _, err := rules.NewEngine(request.Rules...); err != nil {
		s.badRequest(w, "invalid rules: %v", err)
		return
	}

	var credentialRules []rules.Rule
	if len(request.Credentials) > 0 {
		if s.credentialRules == nil {
			s.badRequest(w, "no credential bundle configured")
			return
		}
		resolved, err := s.credentialRules(request.Credentials)
		if err != nil {
			s.badRequest(w, "resolving credentials: %v", err)
			return
		}
		credentialRules = resolved
	}

	spawned, err := s.sessions.Spawn(r.Context(), session.SpawnConfig{
		AgentType:       request.AgentType,
		Name:            request.Name,
		Workdir:         request.Workdir,
		Env:             request.Env,
		InitialTask:     request.InitialTask,
		MemoryContent:   request.MemoryContent,
		ApprovalPreset:  adapter.ApprovalPreset(request.ApprovalPreset),
		Rules:           request.Rules,
		CredentialRules: credentialRules,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Sessions spawned with a task come under coordination right away.
	if request.InitialTask != "" {
		label := request.Label
		if label == "" {
			label = spawned.Name
		}
		if _, err := s.coordinator.Coordinate(spawned.ID, label, request.InitialTask); err != nil {
			s.logger.Warn("spawned session could not be coordinated",
				"session", spawned.ID,
				"error", err,
			)
		}
	}

	s.writeJSON(w, http.StatusCreated, spawned)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	filter := session.Filter{
		AgentType: r.URL.Query().Get("agentType"),
		Status:    session.Status(r.URL.Query().Get("status")),
	}
	s.writeJSON(w, http.StatusOK, s.sessions.List(filter))
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var request SendRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if request.Text == "" {
		s.badRequest(w, "text is required")
		return
	}
	if err := s.sessions.Send(r.Context(), r.PathValue("id"), request.Text); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	var request KeysRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if len(request.Keys) == 0 {
		s.badRequest(w, "keys are required")
		return
	}
	if err := s.sessions.SendKeys(r.Context(), r.PathValue("id"), request.Keys); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStop acknowledges with 204 even for unknown ids: Stop is
// idempotent all the way down, so a repeated stop is not an error.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if err := s.sessions.Stop(r.Context(), r.PathValue("id"), reason); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Warn("writing JSON response", "error", err)
	}
}

func (s *Server) badRequest(w http.ResponseWriter, format string, args ...any) {
	s.writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf(format, args...)})
}

// writeError maps domain errors onto HTTP statuses: unknown ids and
// absent queue entries are 404s, enum and override violations are
// 400s, a duplicate coordination request is a 409, and everything
// else is a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, coordinator.ErrTaskNotFound),
		errors.Is(err, coordinator.ErrNoPendingConfirmation):
		status = http.StatusNotFound
	case errors.Is(err, adapter.ErrUnknownAgentType),
		errors.Is(err, coordinator.ErrInvalidSupervision),
		errors.Is(err, coordinator.ErrInvalidOverride):
		status = http.StatusBadRequest
	case errors.Is(err, coordinator.ErrTaskExists):
		status = http.StatusConflict
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}
