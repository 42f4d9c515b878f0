package sessionmanager

import (
	"fmt"
	"time"

	dap "github.com/google/go-dap"
	"github.com/google/uuid"

	"github.com/oriys/dapbridge/internal/envelope"
	"github.com/oriys/dapbridge/internal/policy"
	"github.com/oriys/dapbridge/internal/sessionstore"
)

// sendDAP forwards one DAP request to a worker over its bus and blocks until
// a correlated response, the worker's pending table is drained by
// stopWorker, or the channel is otherwise closed. timeoutMS is forwarded to
// the worker, which applies it to the underlying dapwire.Client request
// (0 means dapwire's own default).
func (m *Manager) sendDAP(entry *workerEntry, req dap.RequestMessage, timeoutMS int) (dap.Message, error) {
	corrID := uuid.NewString()
	ch := make(chan envelope.DAPResponsePayload, 1)

	entry.pendingMu.Lock()
	entry.pending[corrID] = ch
	entry.pendingMu.Unlock()

	entry.bus.ToWorker <- envelope.Message{
		Kind:      envelope.KindDAP,
		SessionID: entry.sessionID,
		DAPCommand: &envelope.DAPCommandPayload{
			CorrelationID: corrID,
			Request:       req,
			TimeoutMS:     timeoutMS,
		},
	}

	result, ok := <-ch
	if !ok {
		return nil, fmt.Errorf("session terminated while awaiting %s response", req.GetRequest().Command)
	}
	return result.Response, result.Err
}

// awaitStatusOn blocks until a KindStatus message with the given tag arrives
// on an already-subscribed listener channel, a KindError arrives, or timeout
// elapses. The caller must have subscribed before triggering the work whose
// status it waits for, or the status can slip past unobserved.
func awaitStatusOn(ch <-chan envelope.Message, want envelope.Status, timeout time.Duration) (map[string]interface{}, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil, false
			}
			if msg.Kind == envelope.KindStatus && msg.Status == want {
				return msg.StatusData, true
			}
			if msg.Kind == envelope.KindError {
				return nil, false
			}
		case <-deadline:
			return nil, false
		}
	}
}

// waitReady blocks until the policy's IsSessionReady predicate is satisfied
// against the session's current execution state, re-checking on every
// broadcast message (stopped/continued/status events all flow through the
// same channel), or until timeout elapses.
func (m *Manager) waitReady(sess *sessionstore.Session, entry *workerEntry, pol policy.Policy, opts policy.ReadinessOptions, timeout time.Duration) bool {
	token, ch := entry.subscribe()
	defer entry.unsubscribe(token)

	// 先订阅再做首次判定：反过来的话，状态转移若恰好落在判定与订阅的
	// 间隙里且之后再无消息，就会一直等到超时。
	if pol.IsSessionReady(string(sess.Execution()), opts, policy.NewState()) {
		return true
	}

	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return false
			}
			if pol.IsSessionReady(string(sess.Execution()), opts, policy.NewState()) {
				return true
			}
		case <-deadline:
			return false
		}
	}
}
