// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bureau-foundation/foreman/lib/adapter"
	"github.com/bureau-foundation/foreman/lib/clock"
	"github.com/bureau-foundation/foreman/lib/pubsub"
	"github.com/bureau-foundation/foreman/lib/rules"
	"github.com/bureau-foundation/foreman/lib/scrollback"
	"github.com/bureau-foundation/foreman/lib/stall"
)

const (
	defaultScrollbackLines = 2000
	defaultStallTimeout    = 4 * time.Second
	defaultSettleDelay     = time.Second
	defaultCompleteSettle  = time.Second
	defaultStopGrace       = 5 * time.Second

	// detectWindowLines bounds the text handed to prompt detection
	// and the rule engine: the output since the last input we sent,
	// clipped to this many trailing lines.
	detectWindowLines = 40

	// readyWindowLines bounds ready detection, which scans the whole
	// recent tail rather than input-relative output.
	readyWindowLines = 80

	// stallWindowLines bounds the output handed to the stall
	// classifier.
	stallWindowLines = 120

	// partialLimit caps the unterminated-line accumulator. Full
	// screen TUI redraws can run long without a newline.
	partialLimit = 4096

	classifyTimeout = 60 * time.Second
)

// Config assembles a Manager. Strategy and Adapters are required.
type Config struct {
	Strategy Strategy
	Adapters *adapter.Registry

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Classifier, when set, is consulted whenever a busy session goes
	// quiet for StallTimeout. Nil disables stall classification.
	Classifier stall.Classifier

	// ScrollbackLines bounds each session's retained output window.
	ScrollbackLines int

	// StallTimeout is the quiet period after which a busy session is
	// handed to the classifier.
	StallTimeout time.Duration

	// SettleDelay is the pause between the first ready transition and
	// sending a deferred initial task, so the send cannot race the
	// agent's first interactive render.
	SettleDelay time.Duration

	// CompleteSettle is the quiet period a turn-complete signature
	// must survive before the turn is declared finished. Screen
	// redraws briefly show the idle footer mid-turn; a completion
	// that is immediately followed by more output was one of those.
	CompleteSettle time.Duration

	// StopGrace is how long Stop waits after the termination signal
	// before killing the process outright.
	StopGrace time.Duration

	// BaseRules are pre-loaded into every session's rule engine ahead
	// of per-spawn rules.
	BaseRules []rules.Rule

	// AgentRules are pre-loaded like BaseRules, but only into sessions
	// of the matching agent type. They register after BaseRules and
	// before per-spawn rules.
	AgentRules map[string][]rules.Rule

	// OnFinish, when set, receives the final state of every session
	// that reaches a terminal status. It is called on the session's
	// event path before the terminal event publishes, so consumers
	// that need coordinator task state can still look it up.
	// Implementations must return quickly and must not call Manager
	// methods; blocking work (archival I/O) belongs on another
	// goroutine.
	OnFinish func(FinalState)
}

func (c *Config) withDefaults() {
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ScrollbackLines <= 0 {
		c.ScrollbackLines = defaultScrollbackLines
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = defaultStallTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.CompleteSettle <= 0 {
		c.CompleteSettle = defaultCompleteSettle
	}
	if c.StopGrace <= 0 {
		c.StopGrace = defaultStopGrace
	}
}

// SpawnConfig describes one session to spawn.
type SpawnConfig struct {
	// AgentType selects the adapter.
	AgentType string

	// Name is a display name; defaults to the session id.
	Name string

	// Workdir is the agent's working directory, created if missing.
	Workdir string

	// Env is extra environment for the agent process, merged over the
	// adapter's own environment.
	Env map[string]string

	// InitialTask, when non-empty, is sent to the agent once, shortly
	// after its first ready transition.
	InitialTask string

	// MemoryContent is written to the adapter's memory file before
	// the process starts, so the agent reads it at boot.
	MemoryContent string

	// ApprovalPreset selects the approval configuration written
	// before the process starts. Empty skips approval files.
	ApprovalPreset adapter.ApprovalPreset

	// Rules extend the session's rule engine beyond the manager's
	// base rules.
	Rules []rules.Rule

	// CredentialRules are registered after Rules. They carry secrets
	// and are expected to be marked Once so a crafted prompt can
	// never replay them.
	CredentialRules []rules.Rule
}

// Manager owns the session table.
type Manager struct {
	strategy   Strategy
	adapters   *adapter.Registry
	clock      clock.Clock
	logger     *slog.Logger
	classifier stall.Classifier

	scrollbackLines int
	stallTimeout    time.Duration
	settleDelay     time.Duration
	completeSettle  time.Duration
	stopGrace       time.Duration
	baseRules       []rules.Rule
	agentRules      map[string][]rules.Rule
	onFinish        func(FinalState)

	ctx    context.Context
	cancel context.CancelFunc

	events   *pubsub.Hub[Event]
	loopDone chan struct{}

	mu       sync.Mutex
	closed   bool
	sessions map[string]*liveSession
}

// liveSession is the manager's mutable record for one session. All
// fields below mu are guarded by it; the fields above are set at
// spawn and never change.
type liveSession struct {
	id          string
	agentType   string
	name        string
	workdir     string
	createdAt   time.Time
	initialTask string
	adapter     *adapter.Adapter
	rules       *rules.Engine
	scroll      *scrollback.Buffer
	output      *pubsub.Hub[OutputChunk]

	mu           sync.Mutex
	status       Status
	lastActivity time.Time
	lastOutput   time.Time

	// partial accumulates output since the last newline. Prompts live
	// here: they end mid-line.
	partial string

	// everReady latches on the first ready transition. Before it,
	// detected prompts emit events without leaving spawning; after
	// it, they move the session to blocked.
	everReady bool

	// promptOutstanding suppresses re-detection of a prompt that has
	// already been surfaced and not yet answered. Cleared on input.
	promptOutstanding bool

	// inputMarker is the scrollback position of the last input sent
	// to the agent. Prompt detection only looks at output after it:
	// anything earlier was already answered or surfaced.
	inputMarker uint64

	// taskMarker/taskActive frame the current turn for response
	// capture. Set on Send and on the deferred initial task.
	taskMarker uint64
	taskActive bool

	// pendingTask/taskPending hold the deferred initial task until
	// the first ready transition delivers it, exactly once.
	pendingTask string
	taskPending bool

	outputGen        uint64
	classifyInFlight bool

	settleTimer   *clock.Timer
	stallTimer    *clock.Timer
	completeTimer *clock.Timer
	killTimer     *clock.Timer

	stopRequested bool
	stopReason    string

	// finished latches when the session reaches a terminal status.
	// Late strategy events and timer callbacks for a finished session
	// are dropped; nothing resurrects it.
	finished bool
}

// ruleResponse is an auto-response decided under the session lock and
// delivered to the strategy outside it.
type ruleResponse struct {
	text string
	keys []string
}

// NewManager builds a Manager and starts its event loop.
func NewManager(config Config) (*Manager, error) {
	if config.Strategy == nil {
		return nil, fmt.Errorf("session manager requires a strategy")
	}
	if config.Adapters == nil {
		return nil, fmt.Errorf("session manager requires an adapter registry")
	}
	config.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	manager := &Manager{
		strategy:        config.Strategy,
		adapters:        config.Adapters,
		clock:           config.Clock,
		logger:          config.Logger,
		classifier:      config.Classifier,
		scrollbackLines: config.ScrollbackLines,
		stallTimeout:    config.StallTimeout,
		settleDelay:     config.SettleDelay,
		completeSettle:  config.CompleteSettle,
		stopGrace:       config.StopGrace,
		baseRules:       config.BaseRules,
		agentRules:      config.AgentRules,
		onFinish:        config.OnFinish,
		ctx:             ctx,
		cancel:          cancel,
		events:          pubsub.NewHub[Event](),
		loopDone:        make(chan struct{}),
		sessions:        make(map[string]*liveSession),
	}
	go manager.eventLoop()
	return manager, nil
}

// Spawn starts one agent session. Boot files (memory, approval
// configuration) are written before the process starts so the agent
// reads them at boot. Spawn returns once the process handle exists,
// which is usually before the agent is ready.
func (m *Manager) Spawn(ctx context.Context, config SpawnConfig) (Session, error) {
	agent, err := m.adapters.Get(config.AgentType)
	if err != nil {
		return Session{}, &SpawnError{AgentType: config.AgentType, Err: err}
	}
	if config.Workdir == "" {
		return Session{}, &SpawnError{AgentType: config.AgentType, Err: fmt.Errorf("workdir required")}
	}
	if err := os.MkdirAll(config.Workdir, 0o755); err != nil {
		return Session{}, &SpawnError{AgentType: config.AgentType, Err: err}
	}
	if err := agent.WriteBootFiles(config.Workdir, config.MemoryContent, config.ApprovalPreset); err != nil {
		return Session{}, &SpawnError{AgentType: config.AgentType, Err: err}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Session{}, &SpawnError{AgentType: config.AgentType, Err: fmt.Errorf("manager closed")}
	}
	id := m.newSessionIDLocked(config.AgentType)
	now := m.clock.Now()
	name := config.Name
	if name == "" {
		name = id
	}
	s := &liveSession{
		id:           id,
		agentType:    config.AgentType,
		name:         name,
		workdir:      config.Workdir,
		createdAt:    now,
		initialTask:  config.InitialTask,
		adapter:      agent,
		scroll:       scrollback.New(m.scrollbackLines),
		output:       pubsub.NewHub[OutputChunk](),
		status:       StatusSpawning,
		lastActivity: now,
		lastOutput:   now,
	}

	// The initial-task listener must exist before any setup that
	// could surface output, so a fast-booting agent cannot slip its
	// ready transition past us. Rule registration comes after.
	if config.InitialTask != "" {
		s.pendingTask = config.InitialTask
		s.taskPending = true
	}

	typeRules := m.agentRules[config.AgentType]
	sessionRules := make([]rules.Rule, 0, len(m.baseRules)+len(typeRules)+len(config.Rules)+len(config.CredentialRules))
	sessionRules = append(sessionRules, m.baseRules...)
	sessionRules = append(sessionRules, typeRules...)
	sessionRules = append(sessionRules, config.Rules...)
	sessionRules = append(sessionRules, config.CredentialRules...)
	engine, err := rules.NewEngine(sessionRules...)
	if err != nil {
		m.mu.Unlock()
		return Session{}, &SpawnError{AgentType: config.AgentType, Err: err}
	}
	s.rules = engine

	m.sessions[id] = s
	m.mu.Unlock()

	env := make(map[string]string, len(agent.Env())+len(config.Env))
	for key, value := range agent.Env() {
		env[key] = value
	}
	for key, value := range config.Env {
		env[key] = value
	}

	spec := SpawnSpec{
		SessionID: id,
		Name:      "foreman-" + id,
		Command:   agent.Command(),
		Workdir:   config.Workdir,
		Env:       env,
	}
	if err := m.strategy.Spawn(ctx, spec); err != nil {
		m.removeSession(id)
		return Session{}, &SpawnError{AgentType: config.AgentType, Err: err}
	}

	m.logger.Info("session spawned",
		"session", id,
		"agent_type", config.AgentType,
		"workdir", config.Workdir,
		"initial_task", config.InitialTask != "")

	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return snapshot, nil
}

// Send types text plus Enter into the session and marks the start of
// a turn: the output from here to the next turn-complete becomes the
// captured response.
func (m *Manager) Send(ctx context.Context, id, text string) error {
	s := m.lookup(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	now := m.clock.Now()
	previousStatus := s.status
	previousTask := s.taskActive
	s.noteInputLocked(now)
	s.taskMarker = s.scroll.Mark()
	s.taskActive = true
	if s.everReady {
		m.transitionLocked(s, StatusBusy)
		m.armStallLocked(s)
	}
	s.mu.Unlock()

	if err := m.strategy.Send(ctx, id, text); err != nil {
		s.mu.Lock()
		if !s.finished && s.status == StatusBusy {
			s.status = previousStatus
			s.taskActive = previousTask
		}
		s.mu.Unlock()
		return fmt.Errorf("sending to session %s: %w", id, err)
	}
	return nil
}

// SendKeys sends raw key names to the session. Unlike Send it does
// not start a turn: keys answer menus and sub-flows, they do not
// carry tasks.
func (m *Manager) SendKeys(ctx context.Context, id string, keys []string) error {
	s := m.lookup(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.noteInputLocked(m.clock.Now())
	if s.everReady {
		m.transitionLocked(s, StatusBusy)
		m.armStallLocked(s)
	}
	s.mu.Unlock()

	if err := m.strategy.SendKeys(ctx, id, keys); err != nil {
		return fmt.Errorf("sending keys to session %s: %w", id, err)
	}
	return nil
}

// Stop terminates the session: termination signal first, hard kill
// after the grace period. The session leaves the table when its exit
// event arrives. Stop is idempotent; stopping an unknown or already
// stopping session is a no-op.
func (m *Manager) Stop(ctx context.Context, id, reason string) error {
	s := m.lookup(id)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if s.finished || s.stopRequested {
		s.mu.Unlock()
		return nil
	}
	s.stopRequested = true
	if reason == "" {
		reason = "requested"
	}
	s.stopReason = reason
	s.taskPending = false
	s.stopTimersLocked()
	s.mu.Unlock()

	if err := m.strategy.Signal(ctx, id, int(syscall.SIGTERM)); err != nil {
		m.logger.Debug("stop signal failed", "session", id, "error", err)
	}

	s.mu.Lock()
	if !s.finished {
		s.killTimer = m.clock.AfterFunc(m.stopGrace, func() {
			m.forceKill(s)
		})
	}
	s.mu.Unlock()
	return nil
}

func (m *Manager) forceKill(s *liveSession) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := m.strategy.Stop(m.ctx, s.id); err != nil {
		m.logger.Warn("session kill failed", "session", s.id, "error", err)
	}
}

// Get returns a snapshot of the session, or ErrSessionNotFound.
func (m *Manager) Get(id string) (Session, error) {
	s := m.lookup(id)
	if s == nil {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// List returns snapshots of sessions matching the filter, ordered by
// creation time.
func (m *Manager) List(filter Filter) []Session {
	m.mu.Lock()
	live := make([]*liveSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	listed := make([]Session, 0, len(live))
	for _, s := range live {
		s.mu.Lock()
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		if filter.matches(snapshot) {
			listed = append(listed, snapshot)
		}
	}
	sort.Slice(listed, func(i, j int) bool {
		if !listed[i].CreatedAt.Equal(listed[j].CreatedAt) {
			return listed[i].CreatedAt.Before(listed[j].CreatedAt)
		}
		return listed[i].ID < listed[j].ID
	})
	return listed
}

// TailOutput returns the last n scrollback lines for the session.
// The scrollback is the single source for both stall classification
// and response capture, so callers see the same text those do.
func (m *Manager) TailOutput(id string, n int) (string, error) {
	s := m.lookup(id)
	if s == nil {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tailWindowLocked(n), nil
}

// Capture returns the session's current pane content from the
// strategy, trailing maxLines lines.
func (m *Manager) Capture(ctx context.Context, id string, maxLines int) (string, error) {
	if m.lookup(id) == nil {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	content, err := m.strategy.Capture(ctx, id, maxLines)
	if err != nil {
		return "", fmt.Errorf("capturing session %s: %w", id, err)
	}
	return content, nil
}

// AddRules extends the session's rule engine at runtime.
func (m *Manager) AddRules(id string, additions ...rules.Rule) error {
	s := m.lookup(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.rules.Add(additions...)
}

// SubscribeEvents registers a callback for lifecycle events across
// all sessions. The returned cancel removes it.
func (m *Manager) SubscribeEvents(callback func(Event)) (cancel func()) {
	return m.events.Subscribe(callback)
}

// SubscribeOutput registers a callback for the session's output
// chunks, invoked in output order.
func (m *Manager) SubscribeOutput(id string, callback func(OutputChunk)) (cancel func(), err error) {
	s := m.lookup(id)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.output.Subscribe(callback), nil
}

// Close stops every session, shuts the strategy down, and stops the
// event loop. Sessions are marked stopped (reason "shutdown") without
// waiting for their exit events.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	live := make([]*liveSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		if err := m.strategy.Stop(m.ctx, s.id); err != nil {
			m.logger.Debug("shutdown kill failed", "session", s.id, "error", err)
		}
		s.mu.Lock()
		s.stopRequested = true
		s.stopReason = "shutdown"
		s.mu.Unlock()
		m.finishSession(s, 0)
	}

	if err := m.strategy.Close(); err != nil {
		m.logger.Warn("strategy close failed", "error", err)
	}
	m.cancel()
	<-m.loopDone
	return nil
}

// --- event loop ---

func (m *Manager) eventLoop() {
	defer close(m.loopDone)
	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.strategy.Events():
			if !ok {
				return
			}
			m.dispatch(event)
		}
	}
}

func (m *Manager) dispatch(event StrategyEvent) {
	switch event.Type {
	case StrategyOutput:
		s := m.lookup(event.SessionID)
		if s == nil {
			return
		}
		m.handleOutput(s, event.Text, event.Time)
	case StrategyExited:
		s := m.lookup(event.SessionID)
		if s == nil {
			return
		}
		m.finishSession(s, event.ExitCode)
	case StrategySessionError:
		s := m.lookup(event.SessionID)
		if s == nil {
			return
		}
		m.failSession(s, event.Message)
	case StrategyWorkerExit:
		m.handleWorkerExit(event.ExitCode, event.Signal)
	default:
		m.logger.Warn("unknown strategy event", "type", string(event.Type))
	}
}

// handleOutput runs the per-chunk pipeline: scrollback ingestion,
// rule matching, adapter detection, status transitions. Auto
// responses and event publication happen after the session lock is
// released; the event loop's serial dispatch keeps chunk processing
// in order regardless.
func (m *Manager) handleOutput(s *liveSession, text string, when time.Time) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	if when.IsZero() {
		when = m.clock.Now()
	}
	s.lastOutput = when
	s.lastActivity = when
	s.outputGen++
	s.ingestLocked(text)

	// New output invalidates a pending completion settle; inspect
	// re-arms it if the signature still holds.
	if s.completeTimer != nil {
		s.completeTimer.Stop()
		s.completeTimer = nil
	}

	events, respond := m.inspectLocked(s, when)

	if s.status == StatusBusy {
		m.armStallLocked(s)
	}
	s.mu.Unlock()

	if respond != nil {
		// Delivered off the event loop: a strategy round-trip must
		// not stall event dispatch for every other session.
		go m.deliverRuleResponse(s, respond)
	}
	for _, event := range events {
		m.events.Publish(event)
	}

	// The chunk goes out after the lifecycle events it produced, so a
	// subscriber that has seen the chunk has seen its consequences.
	s.output.Publish(OutputChunk{Text: text, Time: when})
}

// inspectLocked classifies the session's recent output. At most one
// detection fires per chunk, in precedence order: auto-response rule,
// login, interactive prompt, readiness, turn completion.
func (m *Manager) inspectLocked(s *liveSession, now time.Time) (events []Event, respond *ruleResponse) {
	window := s.detectionWindowLocked()

	if match := s.rules.Match(window); match != nil {
		respond = &ruleResponse{text: match.Rule.Response, keys: match.Rule.Keys}
		prompt := s.adapter.DetectPrompt(window)
		if prompt == nil {
			prompt = &adapter.Prompt{Kind: match.Rule.Type, Text: match.Text}
		}
		s.noteInputLocked(now)
		if s.everReady {
			m.transitionLocked(s, StatusBusy)
		}
		m.logger.Info("auto-response fired",
			"session", s.id,
			"rule_type", match.Rule.Type,
			"once", match.Rule.Once,
			"safe", match.Rule.Safe)
		events = append(events, m.eventLocked(s, Event{
			Type:          EventBlocked,
			Prompt:        prompt,
			AutoResponded: true,
		}))
		return events, respond
	}

	if !s.promptOutstanding {
		if login := s.adapter.DetectLogin(window); login != nil {
			s.promptOutstanding = true
			if s.everReady {
				m.transitionLocked(s, StatusBlocked)
				s.stopStallLocked()
			}
			events = append(events, m.eventLocked(s, Event{
				Type:  EventLoginRequired,
				Login: login,
			}))
			return events, nil
		}
		if prompt := s.adapter.DetectPrompt(window); prompt != nil {
			s.promptOutstanding = true
			if s.everReady {
				m.transitionLocked(s, StatusBlocked)
				s.stopStallLocked()
			}
			events = append(events, m.eventLocked(s, Event{
				Type:   EventBlocked,
				Prompt: prompt,
			}))
			return events, nil
		}
	}

	if !s.everReady {
		if s.adapter.Ready(s.tailWindowLocked(readyWindowLines)) {
			s.everReady = true
			m.transitionLocked(s, StatusReady)
			events = append(events, m.eventLocked(s, Event{Type: EventReady}))
			if s.taskPending {
				m.scheduleInitialTaskLocked(s)
			}
		}
		return events, nil
	}

	if s.status == StatusBusy {
		// With a task in flight the window starts at the task send;
		// otherwise (keys-driven activity) at the last input.
		window := s.turnWindowLocked()
		if !s.taskActive {
			window = s.detectionWindowLocked()
		}
		if s.adapter.TurnComplete(window) {
			m.armCompleteLocked(s)
		}
	}
	return events, nil
}

func (m *Manager) deliverRuleResponse(s *liveSession, respond *ruleResponse) {
	var err error
	if len(respond.keys) > 0 {
		err = m.strategy.SendKeys(m.ctx, s.id, respond.keys)
	} else {
		err = m.strategy.Send(m.ctx, s.id, respond.text)
	}
	if err != nil {
		// Not retried: a once rule's secret has been consumed and
		// must not be replayed on a guess about transport state.
		m.logger.Error("auto-response delivery failed", "session", s.id, "error", err)
	}
}

// --- deferred initial task ---

func (m *Manager) scheduleInitialTaskLocked(s *liveSession) {
	if s.settleTimer != nil {
		return
	}
	s.settleTimer = m.clock.AfterFunc(m.settleDelay, func() {
		m.sendInitialTask(s)
	})
}

func (m *Manager) sendInitialTask(s *liveSession) {
	s.mu.Lock()
	if s.finished || !s.taskPending {
		s.mu.Unlock()
		return
	}
	s.taskPending = false
	task := s.pendingTask
	s.pendingTask = ""
	now := m.clock.Now()
	s.noteInputLocked(now)
	s.taskMarker = s.scroll.Mark()
	s.taskActive = true
	m.transitionLocked(s, StatusBusy)
	m.armStallLocked(s)
	s.mu.Unlock()

	if err := m.strategy.Send(m.ctx, s.id, task); err != nil {
		m.logger.Error("initial task delivery failed", "session", s.id, "error", err)
		return
	}
	m.logger.Info("initial task sent", "session", s.id)
}

// --- turn completion ---

func (m *Manager) armCompleteLocked(s *liveSession) {
	if s.completeTimer != nil {
		return
	}
	s.completeTimer = m.clock.AfterFunc(m.completeSettle, func() {
		m.settleComplete(s)
	})
}

func (m *Manager) settleComplete(s *liveSession) {
	s.mu.Lock()
	s.completeTimer = nil
	if s.finished || s.status != StatusBusy {
		s.mu.Unlock()
		return
	}
	if m.clock.Now().Sub(s.lastOutput) < m.completeSettle {
		s.mu.Unlock()
		return
	}

	if !s.taskActive {
		// Keys-driven activity wound down with no task in flight;
		// back to idle without a completion event.
		m.transitionLocked(s, StatusReady)
		s.stopStallLocked()
		s.mu.Unlock()
		m.logger.Debug("session returned to idle", "session", s.id)
		return
	}

	captured, truncated := s.scroll.Since(s.taskMarker)
	if truncated {
		m.logger.Warn("captured response truncated by scrollback eviction", "session", s.id)
	}
	s.taskActive = false
	m.transitionLocked(s, StatusReady)
	s.stopStallLocked()
	event := m.eventLocked(s, Event{
		Type:             EventTaskComplete,
		CapturedResponse: captured,
	})
	s.mu.Unlock()

	m.logger.Info("turn complete", "session", s.id, "captured_bytes", len(captured))
	m.events.Publish(event)
}

// --- stall monitoring ---

func (m *Manager) armStallLocked(s *liveSession) {
	if m.classifier == nil {
		return
	}
	if s.stallTimer == nil {
		s.stallTimer = m.clock.AfterFunc(m.stallTimeout, func() {
			m.handleStallTimeout(s)
		})
		return
	}
	s.stallTimer.Reset(m.stallTimeout)
}

func (s *liveSession) stopStallLocked() {
	if s.stallTimer != nil {
		s.stallTimer.Stop()
	}
}

func (m *Manager) handleStallTimeout(s *liveSession) {
	s.mu.Lock()
	if s.finished || s.status != StatusBusy || s.classifyInFlight {
		s.mu.Unlock()
		return
	}
	elapsed := m.clock.Now().Sub(s.lastOutput)
	if elapsed < m.stallTimeout {
		s.stallTimer.Reset(m.stallTimeout - elapsed)
		s.mu.Unlock()
		return
	}
	s.classifyInFlight = true
	generation := s.outputGen
	recent := s.tailWindowLocked(stallWindowLines)
	s.mu.Unlock()

	go m.classify(s, recent, elapsed, generation)
}

func (m *Manager) classify(s *liveSession, recent string, elapsed time.Duration, generation uint64) {
	ctx, cancel := context.WithTimeout(m.ctx, classifyTimeout)
	defer cancel()
	classification, err := m.classifier.Classify(ctx, s.id, recent, elapsed)

	s.mu.Lock()
	s.classifyInFlight = false
	if s.finished || s.status != StatusBusy {
		s.mu.Unlock()
		return
	}
	if generation != s.outputGen {
		// Output arrived while we were classifying; the verdict is
		// stale and the stall timer has already been re-armed.
		s.mu.Unlock()
		return
	}

	if err != nil {
		m.logger.Warn("stall classification failed", "session", s.id, "error", err)
		s.stallTimer.Reset(m.stallTimeout)
		s.mu.Unlock()
		return
	}
	if classification == nil || classification.State == stall.StateWorking {
		s.stallTimer.Reset(m.stallTimeout)
		s.mu.Unlock()
		return
	}

	detail := classification.Detail
	if detail == "" {
		detail = "session is quiet and appears to be waiting for input"
	}
	s.promptOutstanding = true
	m.transitionLocked(s, StatusBlocked)
	s.stopStallLocked()
	event := m.eventLocked(s, Event{
		Type:   EventBlocked,
		Prompt: &adapter.Prompt{Kind: "stall", Text: detail},
	})
	s.mu.Unlock()

	m.logger.Info("stall classified as awaiting input", "session", s.id, "quiet", elapsed)
	m.events.Publish(event)
}

// --- teardown ---

// finishSession handles the session's process exit: stopped when a
// stop was requested after the session had been ready, error
// otherwise.
func (m *Manager) finishSession(s *liveSession, exitCode int) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	var event Event
	switch {
	case s.stopRequested && !s.everReady:
		m.transitionLocked(s, StatusError)
		event = m.eventLocked(s, Event{
			Type:    EventError,
			Message: fmt.Sprintf("stopped while spawning: %s", s.stopReason),
		})
	case s.stopRequested:
		m.transitionLocked(s, StatusStopped)
		event = m.eventLocked(s, Event{
			Type:   EventStopped,
			Reason: s.stopReason,
		})
	case !s.everReady:
		m.transitionLocked(s, StatusError)
		event = m.eventLocked(s, Event{
			Type:    EventError,
			Message: fmt.Sprintf("agent exited during startup (exit code %d)", exitCode),
		})
	default:
		m.transitionLocked(s, StatusError)
		event = m.eventLocked(s, Event{
			Type:    EventError,
			Message: fmt.Sprintf("agent exited unexpectedly (exit code %d)", exitCode),
		})
	}
	s.mu.Unlock()

	if m.onFinish != nil {
		m.onFinish(m.finalState(s, event))
	}
	m.releaseSession(s)
	m.logger.Info("session finished",
		"session", s.id,
		"status", string(event.Session.Status),
		"exit_code", exitCode)
	m.events.Publish(event)
}

// failSession handles an unrecoverable session fault reported by the
// strategy.
func (m *Manager) failSession(s *liveSession, message string) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	m.transitionLocked(s, StatusError)
	event := m.eventLocked(s, Event{Type: EventError, Message: message})
	s.mu.Unlock()

	if m.onFinish != nil {
		m.onFinish(m.finalState(s, event))
	}
	m.releaseSession(s)
	m.logger.Error("session failed", "session", s.id, "error", message)
	m.events.Publish(event)
}

func (m *Manager) handleWorkerExit(exitCode, signal int) {
	m.logger.Error("worker exited", "exit_code", exitCode, "signal", signal)
	m.events.Publish(Event{
		Type:     EventWorkerExit,
		ExitCode: exitCode,
		Signal:   signal,
		Time:     m.clock.Now(),
	})

	m.mu.Lock()
	live := make([]*liveSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		m.failSession(s, fmt.Sprintf("worker exited (exit code %d, signal %d)", exitCode, signal))
	}
}

// teardownLocked latches finished and cancels every pending timer and
// listener, so nothing fires for the session afterwards.
func (s *liveSession) teardownLocked() {
	s.finished = true
	s.taskPending = false
	s.pendingTask = ""
	s.stopTimersLocked()
}

func (s *liveSession) stopTimersLocked() {
	for _, timer := range []*clock.Timer{s.settleTimer, s.stallTimer, s.completeTimer, s.killTimer} {
		if timer != nil {
			timer.Stop()
		}
	}
}

// finalState assembles the OnFinish payload from a terminal event.
// The scrollback has its own lock and the session is already latched
// finished, so no session lock is needed here.
func (m *Manager) finalState(s *liveSession, event Event) FinalState {
	transcript, truncated := s.scroll.Since(0)
	return FinalState{
		Session:     *event.Session,
		InitialTask: s.initialTask,
		Transcript:  transcript,
		Truncated:   truncated,
		StopReason:  event.Reason,
		Message:     event.Message,
	}
}

func (m *Manager) releaseSession(s *liveSession) {
	m.removeSession(s.id)
	if m.classifier != nil {
		m.classifier.Forget(s.id)
	}
}

// --- helpers ---

func (m *Manager) lookup(id string) *liveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *Manager) removeSession(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) newSessionIDLocked(agentType string) string {
	for {
		var raw [4]byte
		rand.Read(raw[:])
		id := agentType + "-" + hex.EncodeToString(raw[:])
		if _, taken := m.sessions[id]; !taken {
			return id
		}
	}
}

// transitionLocked applies a status change, refusing moves the status
// machine does not allow. A no-op when already at the target.
func (m *Manager) transitionLocked(s *liveSession, to Status) {
	if s.status == to {
		return
	}
	if !validTransitions[s.status][to] {
		m.logger.Warn("refusing invalid status transition",
			"session", s.id,
			"from", string(s.status),
			"to", string(to))
		return
	}
	s.status = to
}

func (m *Manager) eventLocked(s *liveSession, event Event) Event {
	snapshot := s.snapshotLocked()
	event.SessionID = s.id
	event.Session = &snapshot
	event.Time = m.clock.Now()
	return event
}

func (s *liveSession) snapshotLocked() Session {
	return Session{
		ID:             s.id,
		AgentType:      s.agentType,
		Name:           s.name,
		Workdir:        s.workdir,
		Status:         s.status,
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivity,
	}
}

// noteInputLocked records that input was just sent to the agent: the
// unterminated line (usually the answered prompt) is flushed to
// scrollback, the input marker advances past everything seen so far,
// and any outstanding prompt is considered answered.
func (s *liveSession) noteInputLocked(now time.Time) {
	if s.partial != "" {
		s.scroll.Append(collapseCarriage(s.partial))
		s.partial = ""
	}
	s.inputMarker = s.scroll.Mark()
	s.promptOutstanding = false
	s.lastActivity = now
}

// ingestLocked appends a raw chunk to the line assembler: completed
// lines go to scrollback, the trailing unterminated piece stays in
// partial.
func (s *liveSession) ingestLocked(text string) {
	start := 0
	for {
		index := strings.IndexByte(text[start:], '\n')
		if index < 0 {
			break
		}
		line := s.partial + text[start:start+index]
		s.partial = ""
		s.scroll.Append(collapseCarriage(strings.TrimSuffix(line, "\r")))
		start += index + 1
	}
	s.partial += text[start:]
	if len(s.partial) > partialLimit {
		s.partial = s.partial[len(s.partial)-partialLimit:]
	}
}

// detectionWindowLocked is the text prompt detection and rule
// matching run against: output since the last input, clipped to a
// bounded tail, plus the unterminated line.
func (s *liveSession) detectionWindowLocked() string {
	text, _ := s.scroll.Since(s.inputMarker)
	return joinWindow(tailLines(text, detectWindowLines), s.partial)
}

// turnWindowLocked is the text turn-completion detection runs
// against: output since the turn's task was sent.
func (s *liveSession) turnWindowLocked() string {
	text, _ := s.scroll.Since(s.taskMarker)
	return joinWindow(tailLines(text, detectWindowLines), s.partial)
}

// tailWindowLocked is the trailing n scrollback lines plus the
// unterminated line.
func (s *liveSession) tailWindowLocked(n int) string {
	return joinWindow(s.scroll.TailText(n), s.partial)
}

func joinWindow(text, partial string) string {
	partial = collapseCarriage(partial)
	if partial == "" {
		return text
	}
	if text == "" {
		return partial
	}
	return text + "\n" + partial
}

// collapseCarriage resolves carriage-return overwrites: the text
// after the last \r is what the terminal actually shows.
func collapseCarriage(line string) string {
	if index := strings.LastIndexByte(line, '\r'); index >= 0 {
		return line[index+1:]
	}
	return line
}

// tailLines returns the last n lines of text.
func tailLines(text string, n int) string {
	if n <= 0 || text == "" {
		return ""
	}
	end := len(text)
	for remaining := n; remaining > 0; remaining-- {
		index := strings.LastIndexByte(text[:end], '\n')
		if index < 0 {
			return text
		}
		end = index
	}
	return text[end+1:]
}
