package sessionmanager

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/dapbridge/internal/envelope"
	"github.com/oriys/dapbridge/internal/policy"
	"github.com/oriys/dapbridge/internal/sessionstore"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return New(sessionstore.New(), policy.NewRegistry(), logger, nil, Config{})
}

// startMockSession drives a session through CreateSession and a blocking,
// non-dry-run StartDebugging against the "mock" policy's in-process
// adapter, returning the session id once the Session Manager reports it
// ready (the mock adapter stops with reason "breakpoint" shortly after
// configurationDone, per internal/proxyworker/mockadapter.go).
func startMockSession(t *testing.T, m *Manager) string {
	t.Helper()
	sess, err := m.CreateSession("mock", "fixture", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	result, err := m.StartDebugging(sess.ID(), "fixture.mock", nil, nil, false, nil)
	if err != nil {
		t.Fatalf("StartDebugging: %v", err)
	}
	if !result.Success {
		t.Fatalf("StartDebugging did not succeed: %+v", result)
	}
	if result.State != string(sessionstore.ExecPaused) {
		t.Fatalf("expected session Paused after start, got %q", result.State)
	}
	return sess.ID()
}

func TestCreateSessionRejectsUnsupportedLanguage(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateSession("cobol", "x", ""); err == nil {
		t.Fatal("expected an error for an unsupported language")
	}
}

func TestCreateSessionRejectsDisabledLanguage(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	m := New(sessionstore.New(), policy.NewRegistry(), logger, nil, Config{
		DisabledLanguages: map[string]bool{"mock": true},
	})
	if _, err := m.CreateSession("mock", "x", ""); err == nil {
		t.Fatal("expected an error for a disabled language")
	}
}

func TestStartDebuggingDryRun(t *testing.T) {
	m := newTestManager(t)
	sess, err := m.CreateSession("mock", "fixture", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	result, err := m.StartDebugging(sess.ID(), "fixture.mock", []string{"--flag"}, nil, true, nil)
	if err != nil {
		t.Fatalf("StartDebugging: %v", err)
	}
	if !result.Success {
		t.Fatalf("dry run did not succeed: %+v", result)
	}
	if result.Data["script"] != "fixture.mock" {
		t.Fatalf("dry run data missing script: %+v", result.Data)
	}
}

func TestStartDebuggingReachesPaused(t *testing.T) {
	m := newTestManager(t)
	id := startMockSession(t, m)

	sess, _ := m.store.Get(id)
	if sess.Execution() != sessionstore.ExecPaused {
		t.Fatalf("expected Paused, got %s", sess.Execution())
	}
}

func TestSetBreakpointVerifiesAgainstRunningWorker(t *testing.T) {
	m := newTestManager(t)
	id := startMockSession(t, m)

	bp, err := m.SetBreakpoint(id, "fixture.mock", 10, "")
	if err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	if !bp.Verified {
		t.Fatalf("expected breakpoint to be verified by the mock adapter, got %+v", bp)
	}
}

func TestSetBreakpointUnknownSession(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.SetBreakpoint("does-not-exist", "x.py", 1, ""); err == nil {
		t.Fatal("expected session-not-found error")
	}
}

func TestStepOverReturnsLocationOnStop(t *testing.T) {
	m := newTestManager(t)
	id := startMockSession(t, m)

	res, err := m.StepOver(id)
	if err != nil {
		t.Fatalf("StepOver: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected step to succeed, got %+v", res)
	}
	if res.Location == nil {
		t.Fatal("expected a best-effort location after a step stop")
	}
}

func TestStepOverRejectsWhenNotPaused(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.CreateSession("mock", "fixture", "")

	res, err := m.StepOver(sess.ID())
	if err != nil {
		t.Fatalf("StepOver: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure: session was never started")
	}
}

func TestContinueDoesNotEagerlySetRunning(t *testing.T) {
	m := newTestManager(t)
	id := startMockSession(t, m)

	sess, _ := m.store.Get(id)
	res, err := m.Continue(id)
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected continue to succeed, got %+v", res)
	}
	// The mock adapter's continue handler issues no further event, so the
	// session must still read whatever applyEvent last set it to rather
	// than Continue having forced Running itself.
	if got := sess.Execution(); got != sessionstore.ExecPaused {
		t.Fatalf("expected execution state to stay Paused after continue, got %s", got)
	}
}

func TestPauseSucceedsWhenAlreadyPaused(t *testing.T) {
	m := newTestManager(t)
	id := startMockSession(t, m)

	res, err := m.Pause(id)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected Pause on an already-paused session to succeed, got %+v", res)
	}
}

func TestGetStackTraceAndLocalVariables(t *testing.T) {
	m := newTestManager(t)
	id := startMockSession(t, m)

	frames, err := m.GetStackTrace(id, false)
	if err != nil {
		t.Fatalf("GetStackTrace: %v", err)
	}
	if len(frames) == 0 {
		t.Fatal("expected at least one stack frame from the mock adapter")
	}

	vars, err := m.GetLocalVariables(id, false)
	if err != nil {
		t.Fatalf("GetLocalVariables: %v", err)
	}
	if len(vars) == 0 {
		t.Fatal("expected the mock adapter's single local variable")
	}
	if vars[0].Name != "i" || vars[0].Value != "6" {
		t.Fatalf("unexpected local variable: %+v", vars[0])
	}
}

func TestGetStackTraceEmptyWhenNotPaused(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.CreateSession("mock", "fixture", "")

	frames, err := m.GetStackTrace(sess.ID(), false)
	if err != nil {
		t.Fatalf("GetStackTrace: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no frames for a session with no worker, got %+v", frames)
	}
}

func TestEvaluateExpressionEchoesMockResult(t *testing.T) {
	m := newTestManager(t)
	id := startMockSession(t, m)

	res, err := m.EvaluateExpression(id, "1 + 1", 0, "")
	if err != nil {
		t.Fatalf("EvaluateExpression: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected evaluate to succeed, got %+v", res)
	}
	if res.Result != "1 + 1" {
		t.Fatalf("expected the mock adapter to echo the expression, got %q", res.Result)
	}
}

func TestEvaluateExpressionRejectsEmpty(t *testing.T) {
	m := newTestManager(t)
	id := startMockSession(t, m)

	res, err := m.EvaluateExpression(id, "   ", 0, "")
	if err != nil {
		t.Fatalf("EvaluateExpression: %v", err)
	}
	if res.Success {
		t.Fatal("expected empty expression to fail")
	}
}

func TestClassifyEvalErrorKnownCategories(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"NameError: name 'x' is not defined", "NameError"},
		{"TypeError: unsupported operand type(s)", "TypeError"},
		{"SyntaxError: invalid syntax", "SyntaxError"},
		{"ReferenceError: foo is not defined", "ReferenceError"},
		{"couldn't evaluate expression", "LLDBError"},
		{"something completely unrecognized", "Unknown"},
	}
	for _, tc := range cases {
		got, suggestion := classifyEvalError("expr", tc.message)
		if got != tc.want {
			t.Errorf("classifyEvalError(%q) = %q, want %q", tc.message, got, tc.want)
		}
		if suggestion == "" {
			t.Errorf("classifyEvalError(%q) returned empty suggestion", tc.message)
		}
	}
}

func TestCloseSessionStopsWorkerAndTerminatesLifecycle(t *testing.T) {
	m := newTestManager(t)
	id := startMockSession(t, m)

	if !m.CloseSession(id) {
		t.Fatal("expected CloseSession to report success for a known session")
	}
	sess, _ := m.store.Get(id)
	if sess.Lifecycle() != sessionstore.LifecycleTerminated {
		t.Fatalf("expected Terminated lifecycle, got %s", sess.Lifecycle())
	}

	if m.CloseSession("unknown") {
		t.Fatal("expected CloseSession to report false for an unknown session")
	}
}

func TestCloseAllSessions(t *testing.T) {
	m := newTestManager(t)
	idA := startMockSession(t, m)
	idB := startMockSession(t, m)

	m.CloseAllSessions()

	for _, id := range []string{idA, idB} {
		sess, _ := m.store.Get(id)
		if sess.Lifecycle() != sessionstore.LifecycleTerminated {
			t.Fatalf("session %s not terminated after CloseAllSessions", id)
		}
	}
}

func TestWaitReadyTimesOutWithoutBlockingForever(t *testing.T) {
	m := newTestManager(t)
	sess, _ := m.CreateSession("mock", "fixture", "")
	pol, _ := m.registry.ByName("mock")
	entry := newWorkerEntry(sess.ID(), envelope.NewBus(0), nil, func() {})

	ch := make(chan bool, 1)
	go func() {
		ch <- m.waitReady(sess, entry, pol, policy.ReadinessOptions{}, 50*time.Millisecond)
	}()
	select {
	case ready := <-ch:
		if ready {
			t.Fatal("expected waitReady to report not-ready for a session that never started")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waitReady did not return within its own timeout ceiling")
	}
}
