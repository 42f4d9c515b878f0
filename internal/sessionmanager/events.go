package sessionmanager

import (
	"context"

	dap "github.com/google/go-dap"

	"github.com/oriys/dapbridge/internal/envelope"
	"github.com/oriys/dapbridge/internal/sessionstore"
)

// runEventLoop is the single goroutine that drains one worker's
// bus.ToParent channel for the lifetime of a debug run: it resolves
// correlated DAP responses, updates the Session's execution state from
// adapter events, and fans every message out to whatever operations are
// currently waiting on a listener subscription.
func (m *Manager) runEventLoop(ctx context.Context, sess *sessionstore.Session, entry *workerEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-entry.bus.ToParent:
			if !ok {
				return
			}
			m.handleParentMessage(sess, entry, msg)
		}
	}
}

func (m *Manager) handleParentMessage(sess *sessionstore.Session, entry *workerEntry, msg envelope.Message) {
	switch msg.Kind {
	case envelope.KindDAPResponse:
		m.resolvePending(entry, msg.DAPResponse)
	case envelope.KindDAPEvent:
		m.applyEvent(sess, entry, msg.DAPEvent)
	case envelope.KindError:
		if sess.Execution() != sessionstore.ExecStopped {
			sess.SetExecution(sessionstore.ExecError)
		}
		if m.logger != nil {
			m.logger.WithError(msg.Err).WithField("session", sess.ID()).Warn("sessionmanager: worker reported error")
		}
	case envelope.KindStatus:
		if msg.Status == envelope.StatusTerminated && sess.Execution() != sessionstore.ExecError {
			sess.SetExecution(sessionstore.ExecStopped)
		}
	}

	entry.broadcast(msg)
}

func (m *Manager) resolvePending(entry *workerEntry, resp *envelope.DAPResponsePayload) {
	if resp == nil || resp.CorrelationID == "" {
		return
	}
	entry.pendingMu.Lock()
	ch, ok := entry.pending[resp.CorrelationID]
	if ok {
		delete(entry.pending, resp.CorrelationID)
	}
	entry.pendingMu.Unlock()
	if !ok {
		return
	}
	ch <- *resp
	close(ch)
}

// applyEvent updates Session execution state from an inbound adapter event
//. stopped auto-continues past a
// stopOnEntry=false entry stop; continued is dropped when the session is
// already Paused.
func (m *Manager) applyEvent(sess *sessionstore.Session, entry *workerEntry, ev dap.EventMessage) {
	switch e := ev.(type) {
	case *dap.StoppedEvent:
		sess.SetCurrentThreadID(e.Body.ThreadId)
		entry.lastStopReason = e.Body.Reason

		if e.Body.Reason == "entry" && entry.autoContinueOnEntry {
			// 调用方没有要求 stopOnEntry：这次入口停点是瞬态的，立刻替
			// 调用方 continue 掉，对外状态保持 Running 而不是 Paused。
			// 事件循环是串行的，之后真正的断点 stopped 会照常置 Paused。
			entry.autoContinueOnEntry = false
			sess.SetExecution(sessionstore.ExecRunning)
			go m.autoContinue(sess, entry, e.Body.ThreadId)
			break
		}
		sess.SetExecution(sessionstore.ExecPaused)

	case *dap.ContinuedEvent:
		if sess.Execution() == sessionstore.ExecPaused {
			if m.logger != nil {
				m.logger.WithField("session", sess.ID()).Debug("sessionmanager: suppressing late continued event, already paused")
			}
			return
		}
		sess.SetExecution(sessionstore.ExecRunning)

	case *dap.TerminatedEvent:
		sess.SetExecution(sessionstore.ExecStopped)

	case *dap.ExitedEvent:
		sess.SetExecution(sessionstore.ExecStopped)

	case *dap.ThreadEvent:
		// 线程创建/退出通知；不改变整体执行态。

	case *dap.OutputEvent:
		// 程序输出透传给上层（outer RPC 范畴之外），这里不做任何状态变更。
	}
}

// autoContinue issues a continue request on behalf of the caller when a
// stopOnEntry=false launch still produced an initial entry stop.
func (m *Manager) autoContinue(sess *sessionstore.Session, entry *workerEntry, threadID int) {
	req := &dap.ContinueRequest{
		Request:   dap.Request{Command: "continue"},
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}
	_, _ = m.sendDAP(entry, req, 0)
}
