// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator runs the swarm decision loop. It watches
// session lifecycle events, and whenever a coordinated session blocks
// on an unrecognized prompt, goes quiet past its idle interval, or
// finishes a turn, it builds a textual prompt from the task's history
// and terminal output, asks the reasoning provider for a decision,
// and applies, queues, or escalates the result according to the
// supervision level.
//
// Task contexts and pending confirmations live only in memory; the
// coordinator is rebuilt from live session state on restart.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bureau-foundation/foreman/lib/clock"
	"github.com/bureau-foundation/foreman/lib/llm"
	"github.com/bureau-foundation/foreman/lib/pubsub"
	"github.com/bureau-foundation/foreman/lib/session"
)

const (
	defaultMaxTokens       = 1024
	defaultIdleInterval    = 2 * time.Minute
	defaultIdleGrowth      = 1.5
	defaultMaxIdleChecks   = 5
	defaultHistoryWindow   = 5
	defaultOutputTailLines = 60
	defaultDecisionTimeout = 60 * time.Second
	applyTimeout           = 30 * time.Second
)

// Config configures a Coordinator.
type Config struct {
	// Model is the reasoning provider's model identifier. Required.
	Model string

	// MaxTokens caps each reasoning response.
	MaxTokens int

	// IdleInterval is how long a task must be quiet before its first
	// idle check.
	IdleInterval time.Duration

	// IdleGrowth multiplies the interval after each consecutive idle
	// check. Values below 1 fall back to the default.
	IdleGrowth float64

	// MaxIdleChecks bounds consecutive idle checks; reaching it forces
	// an escalation regardless of what the reasoning call answers.
	MaxIdleChecks int

	// HistoryWindow is how many recent decisions are replayed into
	// each prompt.
	HistoryWindow int

	// OutputTailLines is how many terminal lines go into each prompt.
	OutputTailLines int

	// DecisionTimeout bounds each reasoning call.
	DecisionTimeout time.Duration

	// Supervision is the initial level; empty means autonomous.
	Supervision Supervision

	// Prompts overrides the default prompt text blocks.
	Prompts PromptConfig
}

func (c *Config) withDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = defaultIdleInterval
	}
	if c.IdleGrowth < 1 {
		c.IdleGrowth = defaultIdleGrowth
	}
	if c.MaxIdleChecks <= 0 {
		c.MaxIdleChecks = defaultMaxIdleChecks
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = defaultHistoryWindow
	}
	if c.OutputTailLines <= 0 {
		c.OutputTailLines = defaultOutputTailLines
	}
	if c.DecisionTimeout <= 0 {
		c.DecisionTimeout = defaultDecisionTimeout
	}
	c.Prompts = c.Prompts.withDefaults()
}

// Metrics are the coordinator's monotonic counters, exposed in the
// status payload. Counts cover every session the coordinator
// observes, not only coordinated ones.
type Metrics struct {
	SessionsSpawned      int64 `json:"sessionsSpawned"`
	AutoResponses        int64 `json:"autoResponses"`
	DecisionsRespond     int64 `json:"decisionsRespond"`
	DecisionsEscalate    int64 `json:"decisionsEscalate"`
	DecisionsIgnore      int64 `json:"decisionsIgnore"`
	DecisionsComplete    int64 `json:"decisionsComplete"`
	UnparseableDecisions int64 `json:"unparseableDecisions"`
	StallClassifications int64 `json:"stallClassifications"`
	WorkerFaults         int64 `json:"workerFaults"`
}

func (m *Metrics) countDecision(action Action) {
	switch action {
	case ActionRespond:
		m.DecisionsRespond++
	case ActionEscalate:
		m.DecisionsEscalate++
	case ActionIgnore:
		m.DecisionsIgnore++
	case ActionComplete:
		m.DecisionsComplete++
	}
}

// Status is the coordinator's query payload.
type Status struct {
	Supervision          Supervision   `json:"supervisionLevel"`
	TaskCount            int           `json:"taskCount"`
	Tasks                []TaskContext `json:"tasks"`
	PendingConfirmations int           `json:"pendingConfirmationsCount"`
	Metrics              Metrics       `json:"metrics"`
}

// Coordinator drives coordination decisions for registered tasks.
type Coordinator struct {
	logger   *slog.Logger
	sessions *session.Manager
	provider llm.Provider
	clock    clock.Clock
	config   Config

	// runCtx is cancelled by Close; reasoning calls and decision
	// application inherit it.
	runCtx  context.Context
	stopRun context.CancelFunc

	cancelEvents func()
	reasoning    sync.WaitGroup

	feed *pubsub.Hub[FeedEvent]

	mu      sync.Mutex
	closed  bool
	level   Supervision
	tasks   map[string]*taskState
	pending map[string]*PendingConfirmation
	seen    map[string]bool
	metrics Metrics
}

// taskState is a TaskContext plus the coordinator's live bookkeeping.
type taskState struct {
	TaskContext

	// idleTimer schedules the next idle check. idleGen invalidates
	// fired callbacks from superseded schedules.
	idleTimer *clock.Timer
	idleGen   uint64

	// deciding is set while a reasoning call for this task is in
	// flight; new triggers are skipped until it resolves.
	deciding bool
}

func (t *taskState) snapshot() TaskContext {
	copied := t.TaskContext
	copied.History = append([]DecisionEntry(nil), t.History...)
	return copied
}

func (t *taskState) record(entry DecisionEntry) {
	t.History = append(t.History, entry)
	t.UpdatedAt = entry.Time
}

// New builds a Coordinator and subscribes it to the session manager's
// lifecycle events.
func New(config Config, sessions *session.Manager, provider llm.Provider, clk clock.Clock, logger *slog.Logger) (*Coordinator, error) {
	if sessions == nil {
		return nil, errors.New("coordinator: session manager is required")
	}
	if provider == nil {
		return nil, errors.New("coordinator: reasoning provider is required")
	}
	if config.Model == "" {
		return nil, errors.New("coordinator: model is required")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	config.withDefaults()

	level := config.Supervision
	if level == "" {
		level = SupervisionAutonomous
	} else if _, err := ParseSupervision(string(level)); err != nil {
		return nil, err
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	c := &Coordinator{
		logger:   logger,
		sessions: sessions,
		provider: provider,
		clock:    clk,
		config:   config,
		runCtx:   runCtx,
		stopRun:  stopRun,
		feed:     pubsub.NewHub[FeedEvent](),
		level:    level,
		tasks:    make(map[string]*taskState),
		pending:  make(map[string]*PendingConfirmation),
		seen:     make(map[string]bool),
	}
	c.cancelEvents = sessions.SubscribeEvents(c.handleSessionEvent)
	return c, nil
}

// Coordinate registers a session for coordination. The session must
// exist; its agent type and workdir seed the task context. Sessions
// spawned with an initial task are coordinated by the daemon
// automatically.
func (c *Coordinator) Coordinate(sessionID, label, originalTask string) (TaskContext, error) {
	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		return TaskContext{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return TaskContext{}, errors.New("coordinator closed")
	}
	if c.tasks[sessionID] != nil {
		c.mu.Unlock()
		return TaskContext{}, ErrTaskExists
	}

	now := c.clock.Now()
	task := &taskState{
		TaskContext: TaskContext{
			SessionID:    sessionID,
			AgentType:    sess.AgentType,
			Label:        label,
			OriginalTask: originalTask,
			Workdir:      sess.Workdir,
			Status:       TaskActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
	c.tasks[sessionID] = task
	c.armIdleLocked(task, c.config.IdleInterval)
	snapshot := task.snapshot()
	c.mu.Unlock()

	c.logger.Info("coordinating session",
		"session_id", sessionID,
		"label", label)
	c.feed.Publish(FeedEvent{Type: FeedTask, SessionID: sessionID, Task: &snapshot, Time: now})
	return snapshot, nil
}

// Task returns the task context for a session.
func (c *Coordinator) Task(sessionID string) (TaskContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task := c.tasks[sessionID]
	if task == nil {
		return TaskContext{}, ErrTaskNotFound
	}
	return task.snapshot(), nil
}

// Pending lists queued confirmations, oldest first.
func (c *Coordinator) Pending() []PendingConfirmation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

// Status assembles the coordinator's query payload.
func (c *Coordinator) Status() Status {
	snapshot := c.Snapshot()
	return Status{
		Supervision:          snapshot.Supervision,
		TaskCount:            len(snapshot.Tasks),
		Tasks:                snapshot.Tasks,
		PendingConfirmations: len(snapshot.Pending),
		Metrics:              snapshot.Metrics,
	}
}

// Metrics returns a copy of the counters.
func (c *Coordinator) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Supervision returns the current supervision level.
func (c *Coordinator) Supervision() Supervision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// SetSupervision changes the supervision level. Pending confirmations
// queued under confirm stay queued; a human still resolves them.
func (c *Coordinator) SetSupervision(level Supervision) error {
	parsed, err := ParseSupervision(string(level))
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.level = parsed
	now := c.clock.Now()
	c.mu.Unlock()

	c.logger.Info("supervision level changed", "level", parsed)
	c.feed.Publish(FeedEvent{Type: FeedSupervision, Supervision: parsed, Time: now})
	return nil
}

// Close unsubscribes from session events, cancels idle schedules and
// in-flight reasoning calls, and waits for them to drain.
func (c *Coordinator) Close() error {
	c.cancelEvents()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, task := range c.tasks {
		c.stopIdleLocked(task)
	}
	c.mu.Unlock()

	c.stopRun()
	c.reasoning.Wait()
	return nil
}

// armIdleLocked schedules the next idle check after wait, superseding
// any earlier schedule. Caller must hold c.mu.
func (c *Coordinator) armIdleLocked(task *taskState, wait time.Duration) {
	if task.idleTimer != nil {
		task.idleTimer.Stop()
	}
	task.idleGen++
	generation := task.idleGen
	sessionID := task.SessionID
	task.idleTimer = c.clock.AfterFunc(wait, func() {
		c.idleFire(sessionID, generation)
	})
}

// stopIdleLocked cancels the idle schedule. Caller must hold c.mu.
func (c *Coordinator) stopIdleLocked(task *taskState) {
	task.idleGen++
	if task.idleTimer != nil {
		task.idleTimer.Stop()
		task.idleTimer = nil
	}
}

// resetIdleLocked restarts the idle ladder after observed session
// activity. Caller must hold c.mu.
func (c *Coordinator) resetIdleLocked(task *taskState) {
	task.IdleChecks = 0
	c.armIdleLocked(task, c.config.IdleInterval)
}

// idleIntervalLocked is the wait before the task's next idle check:
// the base interval grown once per consecutive check already made.
// Caller must hold c.mu.
func (c *Coordinator) idleIntervalLocked(task *taskState) time.Duration {
	grown := float64(c.config.IdleInterval) * math.Pow(c.config.IdleGrowth, float64(task.IdleChecks))
	return time.Duration(grown)
}

// finishTaskLocked moves a task to a terminal status and cancels its
// schedule. Already-terminal tasks are left alone. Caller must hold
// c.mu.
func (c *Coordinator) finishTaskLocked(task *taskState, status TaskStatus) {
	if task.Status.Terminal() {
		return
	}
	c.stopIdleLocked(task)
	task.Status = status
	task.UpdatedAt = c.clock.Now()
}
