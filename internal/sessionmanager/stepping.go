package sessionmanager

import (
	"time"

	dap "github.com/google/go-dap"

	"github.com/oriys/dapbridge/internal/envelope"
	"github.com/oriys/dapbridge/internal/sessionstore"
)

// stepTimeout bounds stepOver/stepInto/stepOut's wait for a stop, terminate,
// or exit event.
const stepTimeout = 5 * time.Second

// StepOver sends a `next` request for the session's current thread.
func (m *Manager) StepOver(id string) (*StepResult, error) { return m.stepCommand(id, "next") }

// StepInto sends a `stepIn` request for the session's current thread.
func (m *Manager) StepInto(id string) (*StepResult, error) { return m.stepCommand(id, "stepIn") }

// StepOut sends a `stepOut` request for the session's current thread.
func (m *Manager) StepOut(id string) (*StepResult, error) { return m.stepCommand(id, "stepOut") }

func (m *Manager) stepCommand(id, command string) (*StepResult, error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, fmtSessionNotFound(id)
	}
	if sess.Execution() != sessionstore.ExecPaused {
		return &StepResult{Success: false, Error: "session is not paused"}, nil
	}
	threadID, hasThread := sess.CurrentThreadID()
	if !hasThread {
		return &StepResult{Success: false, Error: "no known thread id"}, nil
	}
	entry, ok := m.getEntry(id)
	if !ok {
		return &StepResult{Success: false, Error: "proxy-not-running"}, nil
	}

	// Subscribe before sending so a `stopped` event that races the
	// request's own response can never be missed.
	token, ch := entry.subscribe()
	defer entry.unsubscribe(token)

	req := stepRequest(command, threadID)
	if _, err := m.sendDAP(entry, req, 0); err != nil {
		return &StepResult{Success: false, Error: err.Error()}, nil
	}

	deadline := time.After(stepTimeout)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return &StepResult{Success: false, Error: "session terminated"}, nil
			}
			if msg.Kind != envelope.KindDAPEvent {
				continue
			}
			switch msg.DAPEvent.(type) {
			case *dap.StoppedEvent:
				return &StepResult{Success: true, Location: m.bestEffortLocation(entry, threadID)}, nil
			case *dap.TerminatedEvent, *dap.ExitedEvent:
				return &StepResult{Success: true}, nil
			}
		case <-deadline:
			return &StepResult{Success: false, Error: "step timed out"}, nil
		}
	}
}

func stepRequest(command string, threadID int) dap.RequestMessage {
	switch command {
	case "next":
		return &dap.NextRequest{Request: dap.Request{Command: "next"}, Arguments: dap.NextArguments{ThreadId: threadID}}
	case "stepIn":
		return &dap.StepInRequest{Request: dap.Request{Command: "stepIn"}, Arguments: dap.StepInArguments{ThreadId: threadID}}
	default:
		return &dap.StepOutRequest{Request: dap.Request{Command: "stepOut"}, Arguments: dap.StepOutArguments{ThreadId: threadID}}
	}
}

// bestEffortLocation issues a 1-level stackTrace to report the current
// frame after a step lands; a failure here does not fail the step itself.
func (m *Manager) bestEffortLocation(entry *workerEntry, threadID int) *Location {
	resp, err := m.sendDAP(entry, &dap.StackTraceRequest{
		Request:   dap.Request{Command: "stackTrace"},
		Arguments: dap.StackTraceArguments{ThreadId: threadID, Levels: 1},
	}, 2000)
	if err != nil {
		return nil
	}
	st, ok := resp.(*dap.StackTraceResponse)
	if !ok || len(st.Body.StackFrames) == 0 {
		return nil
	}
	f := st.Body.StackFrames[0]
	path := ""
	if f.Source != nil {
		path = f.Source.Path
	}
	return &Location{File: path, Line: f.Line, Column: f.Column}
}

// Continue sends a `continue` request for the session's current thread. It
// does not eagerly mark the session Running; only a subsequent `continued`
// event does that.
func (m *Manager) Continue(id string) (*StepResult, error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, fmtSessionNotFound(id)
	}
	if sess.Execution() != sessionstore.ExecPaused {
		return &StepResult{Success: false, Error: "session is not paused"}, nil
	}
	threadID, hasThread := sess.CurrentThreadID()
	if !hasThread {
		return &StepResult{Success: false, Error: "no known thread id"}, nil
	}
	entry, ok := m.getEntry(id)
	if !ok {
		return &StepResult{Success: false, Error: "proxy-not-running"}, nil
	}

	req := &dap.ContinueRequest{Request: dap.Request{Command: "continue"}, Arguments: dap.ContinueArguments{ThreadId: threadID}}
	if _, err := m.sendDAP(entry, req, 0); err != nil {
		return &StepResult{Success: false, Error: err.Error()}, nil
	}
	return &StepResult{Success: true}, nil
}

// Pause requests a stop on the session's known thread, or the first thread
// reported by `threads` (falling back to thread id 1) when none is yet
// known. Like Continue, a successful request does not by itself mark the
// session Paused; that happens when the `stopped` event arrives.
func (m *Manager) Pause(id string) (*StepResult, error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, fmtSessionNotFound(id)
	}
	switch sess.Execution() {
	case sessionstore.ExecPaused:
		return &StepResult{Success: true}, nil
	case sessionstore.ExecRunning:
	default:
		return &StepResult{Success: false, Error: "session is not running"}, nil
	}

	entry, ok := m.getEntry(id)
	if !ok {
		return &StepResult{Success: false, Error: "proxy-not-running"}, nil
	}

	threadID, hasThread := sess.CurrentThreadID()
	if !hasThread {
		threadID = m.probeFirstThread(entry)
	}

	req := &dap.PauseRequest{Request: dap.Request{Command: "pause"}, Arguments: dap.PauseArguments{ThreadId: threadID}}
	if _, err := m.sendDAP(entry, req, 0); err != nil {
		return &StepResult{Success: false, Error: err.Error()}, nil
	}
	return &StepResult{Success: true}, nil
}

func (m *Manager) probeFirstThread(entry *workerEntry) int {
	resp, err := m.sendDAP(entry, &dap.ThreadsRequest{Request: dap.Request{Command: "threads"}}, 2000)
	if err == nil {
		if tr, ok := resp.(*dap.ThreadsResponse); ok && len(tr.Body.Threads) > 0 {
			return tr.Body.Threads[0].Id
		}
	}
	return 1
}
