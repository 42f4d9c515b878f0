package proxyworker

import (
	"github.com/oriys/dapbridge/internal/envelope"
)

// shutdown tears a worker down exactly once: rejects anything still queued,
// disconnects every child session, closes the adapter connection, kills the
// subprocess if still alive, and finally reports Terminated. Safe to call
// more than once; only the first call has any effect.
func (w *Worker) shutdown(reason string) {
	// 状态检查与转移必须是同一个临界区：shutdown 可能同时从 Run 循环和
	// 适配器退出监控两个协程被触发。
	w.mu.Lock()
	if w.state == StateTerminated || w.state == StateShuttingDown {
		w.mu.Unlock()
		return
	}
	w.state = StateShuttingDown
	preConnect := w.preConnectQueue
	w.preConnectQueue = nil
	queued := w.commandQueue
	w.commandQueue = nil
	w.mu.Unlock()

	for _, pending := range preConnect {
		w.emitResponse(pending.CorrelationID, nil, fmtErr("session terminated: %s", reason))
	}
	for _, qc := range queued {
		if qc.corrID != "" {
			w.emitResponse(qc.corrID, nil, fmtErr("session terminated: %s", reason))
		}
	}

	if w.children != nil {
		w.children.CloseAll()
	}

	if w.client != nil {
		_ = w.client.Close()
	}

	if w.process != nil {
		_ = w.process.Kill()
	}

	if w.cancel != nil {
		w.cancel()
	}

	w.setState(StateTerminated)
	w.emitStatus(envelope.StatusTerminated, map[string]interface{}{"reason": reason})
}
