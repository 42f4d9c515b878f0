// Package sessionmanager implements the public debugging API: a single
// Manager struct with injected collaborators (policy registry, session
// store, worker factory, logger) rather than inheritance layering. Event
// observation is a typed per-session listener registry with token-based
// detach instead of ad hoc callback bookkeeping.
package sessionmanager

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/oriys/dapbridge/internal/envelope"
	"github.com/oriys/dapbridge/internal/policy"
	"github.com/oriys/dapbridge/internal/proxyworker"
	"github.com/oriys/dapbridge/internal/sessionstore"
)

// WorkerFactory builds the Proxy Worker backing one debug run. A nil factory
// selects proxyworker.New; the package tests use that default and reach the
// in-process mock adapter through the mock language, so no real adapters
// need to be on PATH.
type WorkerFactory func(opts proxyworker.Options) *proxyworker.Worker

// Config carries the composition root's choices into the Manager: base
// paths, environment-derived settings (frame-trace path, disabled
// languages), and the adapter executable overrides used to build
// SpawnOptions per run.
type Config struct {
	LogRootDir        string
	TraceFramesToPath string
	DisabledLanguages map[string]bool
	PythonExe         string
	NodeExe           string
	LLDBExe           string
	CodeLLDBExe       string
	VendorJSDebug     string
	PortRangeStart    int

	// ValidateToolchain, when set, lets the composition root plug in a
	// toolchain-compatibility check
	// ahead of every startDebugging call; nil means every toolchain is
	// treated as compatible.
	ValidateToolchain func(language, executableHint string) *sessionstore.ToolchainValidation

	// LookPath resolves an adapter executable name to a runnable path,
	// defaulting to exec.LookPath; a fake can be injected so startDebugging's
	// executable-resolution failure paths don't depend on PATH contents.
	LookPath func(file string) (string, error)
}

// Manager is the composition root's single entry point for every
// debugging operation.
type Manager struct {
	store    *sessionstore.Store
	registry *policy.Registry
	logger   *logrus.Logger
	factory  WorkerFactory
	cfg      Config

	nextPort int32

	mu      sync.Mutex
	workers map[string]*workerEntry
}

// New constructs a Manager. factory defaults to proxyworker.New when nil.
func New(store *sessionstore.Store, registry *policy.Registry, logger *logrus.Logger, factory WorkerFactory, cfg Config) *Manager {
	if factory == nil {
		factory = func(opts proxyworker.Options) *proxyworker.Worker { return proxyworker.New(opts) }
	}
	if cfg.PortRangeStart == 0 {
		cfg.PortRangeStart = 45000
	}
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}
	return &Manager{
		store:    store,
		registry: registry,
		logger:   logger,
		factory:  factory,
		cfg:      cfg,
		nextPort: int32(cfg.PortRangeStart),
		workers:  make(map[string]*workerEntry),
	}
}

// workerEntry bundles everything the Manager needs to talk to one live
// Proxy Worker: the bus, a correlation table for in-flight DAP commands, and
// a listener registry for anything that needs to observe status/events as
// they arrive.
type workerEntry struct {
	sessionID string
	worker    *proxyworker.Worker
	bus       *envelope.Bus
	cancel    context.CancelFunc

	pendingMu sync.Mutex
	pending   map[string]chan envelope.DAPResponsePayload

	listenMu  sync.Mutex
	nextToken int
	listeners map[int]chan envelope.Message

	// autoContinueOnEntry is set for the duration of one launch when the
	// caller did not request stopOnEntry; the first "entry" stopped event
	// then triggers a one-shot auto-continue.
	autoContinueOnEntry bool

	// lastStopReason records the most recent `stopped` event's reason
	// (e.g. "entry", "breakpoint", "step"), used by StartDebugging to
	// derive its "reason" result field.
	lastStopReason string
}

func newWorkerEntry(sessionID string, bus *envelope.Bus, worker *proxyworker.Worker, cancel context.CancelFunc) *workerEntry {
	return &workerEntry{
		sessionID: sessionID,
		bus:       bus,
		worker:    worker,
		cancel:    cancel,
		pending:   make(map[string]chan envelope.DAPResponsePayload),
		listeners: make(map[int]chan envelope.Message),
	}
}

// subscribe registers a new listener and returns a detach token plus the
// channel it will receive every subsequent worker->parent message on.
// Double-detach of the returned token is a no-op.
func (e *workerEntry) subscribe() (int, <-chan envelope.Message) {
	e.listenMu.Lock()
	defer e.listenMu.Unlock()
	e.nextToken++
	token := e.nextToken
	ch := make(chan envelope.Message, 16)
	e.listeners[token] = ch
	return token, ch
}

func (e *workerEntry) unsubscribe(token int) {
	e.listenMu.Lock()
	defer e.listenMu.Unlock()
	if ch, ok := e.listeners[token]; ok {
		delete(e.listeners, token)
		close(ch)
	}
}

func (e *workerEntry) broadcast(msg envelope.Message) {
	e.listenMu.Lock()
	defer e.listenMu.Unlock()
	for _, ch := range e.listeners {
		select {
		case ch <- msg:
		default:
			// 订阅者消费不过来：丢弃这条通知而不是阻塞事件循环，
			// 相当于一个慢消费者错过一次广播。
		}
	}
}

// CreateSession allocates a Session in Created; no adapter is spawned yet.
func (m *Manager) CreateSession(language, name, executableHint string) (*sessionstore.Session, error) {
	policyName, err := policyNameForLanguage(language)
	if err != nil {
		return nil, err
	}
	if m.cfg.DisabledLanguages[normalizeLanguage(language)] {
		return nil, fmt.Errorf("unsupported-language: %s is disabled", language)
	}

	sess := sessionstore.NewSession(language, name, executableHint)
	sess.SetPolicyID(policyName)
	m.store.Create(sess)
	return sess, nil
}

// CloseSession idempotently tears a session down: stops its worker (if any),
// detaches listeners, and marks it Terminated. Returns false if the session
// never existed.
func (m *Manager) CloseSession(id string) bool {
	sess, ok := m.store.Get(id)
	if !ok {
		return false
	}

	m.stopWorker(id, "session closed")

	sess.SetExecution(sessionstore.ExecStopped)
	sess.SetLifecycle(sessionstore.LifecycleTerminated)
	return true
}

// CloseAllSessions closes every live session sequentially.
func (m *Manager) CloseAllSessions() {
	for _, sess := range m.store.All() {
		m.CloseSession(sess.ID())
	}
}

func (m *Manager) stopWorker(id string, reason string) {
	m.mu.Lock()
	entry, ok := m.workers[id]
	if ok {
		delete(m.workers, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	entry.pendingMu.Lock()
	for corrID, ch := range entry.pending {
		ch <- envelope.DAPResponsePayload{CorrelationID: corrID, Err: fmt.Errorf("session terminated: %s", reason)}
		close(ch)
	}
	entry.pending = make(map[string]chan envelope.DAPResponsePayload)
	entry.pendingMu.Unlock()

	entry.listenMu.Lock()
	for token, ch := range entry.listeners {
		delete(entry.listeners, token)
		close(ch)
	}
	entry.listenMu.Unlock()

	entry.cancel()
}

func (m *Manager) getEntry(id string) (*workerEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.workers[id]
	return e, ok
}

func (m *Manager) allocatePort() int {
	return int(atomic.AddInt32(&m.nextPort, 1))
}

func fmtSessionNotFound(id string) error {
	return fmt.Errorf("session-not-found: %s", id)
}
