package proxyworker

import (
	"context"
	"time"

	dap "github.com/google/go-dap"

	"github.com/oriys/dapbridge/internal/childsession"
	"github.com/oriys/dapbridge/internal/envelope"
	"github.com/oriys/dapbridge/internal/policy"
)

// handleDAPCommand services one parent-originated 'dap' envelope message:
// queue while the adapter is still initializing, route to an active child
// session when the command is debuggee-scoped, otherwise dispatch straight
// to the parent adapter connection.
func (w *Worker) handleDAPCommand(ctx context.Context, payload *envelope.DAPCommandPayload) {
	if payload == nil || payload.Request == nil {
		return
	}

	switch w.State() {
	case StateUninitialized:
		w.emitResponse(payload.CorrelationID, nil, fmtErr("worker not initialized"))
		return
	case StateTerminated, StateShuttingDown:
		w.emitResponse(payload.CorrelationID, nil, fmtErr("session already terminated"))
		return
	case StateInitializing:
		if w.client == nil {
			// 适配器连接尚未建立：先排队，等握手完成
			// （finishConfiguredAndLaunched）后再补发。
			w.mu.Lock()
			w.preConnectQueue = append(w.preConnectQueue, *payload)
			w.mu.Unlock()
			return
		}
	}

	if child, ok := w.children.Active(); ok && w.routeToChild(payload.Request) {
		w.sendToChild(child, payload)
		return
	}

	decision := w.policy.ShouldQueueCommand(payload.Request, w.adstate)
	if decision.ShouldQueue {
		w.mu.Lock()
		w.commandQueue = append(w.commandQueue, queuedCorrelatedCommand{
			corrID: payload.CorrelationID,
			cmd:    policy.QueuedCommand{Request: payload.Request},
		})
		w.mu.Unlock()
		return
	}

	w.dispatchDirect(payload)
}

// routeToChild reports whether a command is debuggee-scoped and therefore
// belongs to whatever child session is currently active, rather than the
// parent connection.
func (w *Worker) routeToChild(req dap.RequestMessage) bool {
	switch req.GetRequest().Command {
	case "threads", "stackTrace", "scopes", "variables", "evaluate",
		"continue", "next", "stepIn", "stepOut", "pause", "setBreakpoints":
		return w.children.Count() > 0
	default:
		return false
	}
}

const childStackTraceReadyTimeout = 12 * time.Second

func (w *Worker) sendToChild(child *childsession.Child, payload *envelope.DAPCommandPayload) {
	if payload.Request.GetRequest().Command == "stackTrace" && !child.Ready() {
		ctx, cancel := context.WithTimeout(context.Background(), childStackTraceReadyTimeout)
		ready, ok := w.children.WaitActiveReady(ctx, childStackTraceReadyTimeout)
		cancel()
		if !ok {
			if w.policy.StackTraceRequiresChild() {
				w.emitResponse(payload.CorrelationID, nil, fmtErr("no ready child session for stackTrace"))
				return
			}
		} else {
			child = ready
		}
	}

	timeout := time.Duration(payload.TimeoutMS) * time.Millisecond
	resp, err := child.Client.SendRequest(payload.Request, timeout)
	if err != nil {
		if isGracefulCompletionCommand(payload.Request) && w.children.Count() == 0 {
			// 子会话已经消失：优雅终止类命令视为已经完成。
			w.emitResponse(payload.CorrelationID, syntheticSuccess(payload.Request), nil)
			return
		}
		w.emitResponse(payload.CorrelationID, nil, err)
		return
	}
	w.emitResponse(payload.CorrelationID, resp, nil)
}

func isGracefulCompletionCommand(req dap.RequestMessage) bool {
	switch req.GetRequest().Command {
	case "disconnect", "terminate", "continue":
		return true
	default:
		return false
	}
}

func syntheticSuccess(req dap.RequestMessage) dap.Message {
	base := req.GetRequest()
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		RequestSeq:      base.Seq,
		Success:         true,
		Command:         base.Command,
	}
}

// dispatchDirect sends a command that is not subject to queueing straight to
// the parent adapter connection.
func (w *Worker) dispatchDirect(payload *envelope.DAPCommandPayload) {
	timeout := time.Duration(payload.TimeoutMS) * time.Millisecond
	w.policy.UpdateStateOnCommand(payload.Request, w.adstate)
	resp, err := w.client.SendRequest(payload.Request, timeout)
	w.policy.UpdateStateOnResponse(payload.Request, resp, w.adstate)
	w.emitResponse(payload.CorrelationID, resp, err)
}

// sendDirect is used during the init handshake for commands the worker
// itself originates (no caller-supplied correlation ID to answer).
func (w *Worker) sendDirect(req dap.RequestMessage, timeout time.Duration) (dap.Message, error) {
	w.policy.UpdateStateOnCommand(req, w.adstate)
	resp, err := w.client.SendRequest(req, timeout)
	return resp, err
}

// enqueueOrSend is the funnel for worker-originated setBreakpoints/
// configurationDone during init, and for launch as well under policies that
// require command queueing (js-debug), which get them buffered until the
// initialized event drains the queue; everyone else sends immediately, in
// call order, and sends launch from its own goroutine in handleInit instead.
func (w *Worker) enqueueOrSend(req dap.RequestMessage, silent bool) {
	if w.policy.RequiresCommandQueueing() {
		decision := w.policy.ShouldQueueCommand(req, w.adstate)
		if decision.ShouldQueue {
			w.mu.Lock()
			w.commandQueue = append(w.commandQueue, queuedCorrelatedCommand{cmd: policy.QueuedCommand{Request: req, Silent: silent}, silent: silent})
			w.mu.Unlock()
			return
		}
	}

	w.policy.UpdateStateOnCommand(req, w.adstate)
	resp, err := w.client.SendRequest(req, 0)
	w.policy.UpdateStateOnResponse(req, resp, w.adstate)
	if err != nil && w.logger != nil {
		w.logger.WithError(err).WithField("command", req.GetRequest().Command).Warn("proxyworker: init command failed")
	}
}

// takeCommandQueue snapshots and clears the buffered command queue under
// the worker lock; the drain goroutine and the Run goroutine both touch it.
func (w *Worker) takeCommandQueue() []queuedCorrelatedCommand {
	w.mu.Lock()
	q := w.commandQueue
	w.commandQueue = nil
	w.mu.Unlock()
	return q
}

// drainCommandQueue is invoked once the adapter's initialized event fires
// for queueing policies: it reorders the buffered queue per policy, then
// sends every entry in order, answering each caller and finally declaring
// the session configured and launched. Commands that slip into the queue
// while a batch is in flight are picked up by the next loop iteration.
func (w *Worker) drainCommandQueue() {
	for {
		batch := w.takeCommandQueue()
		if len(batch) == 0 {
			break
		}

		raw := make([]policy.QueuedCommand, len(batch))
		corrIDs := make([]string, len(batch))
		for i, qc := range batch {
			raw[i] = qc.cmd
			corrIDs[i] = qc.corrID
		}

		ordered := w.policy.ProcessQueuedCommands(raw, w.adstate)
		if ordered == nil {
			ordered = raw
		}

		// ProcessQueuedCommands 可能重排顺序；用请求指针找回对应的
		// correlation id（没有命中的多半是 init 阶段发出的无调用方命令）。
		corrByReq := make(map[dap.RequestMessage]string, len(raw))
		for i, q := range raw {
			corrByReq[q.Request] = corrIDs[i]
		}

		for _, qc := range ordered {
			if qc.Request.GetRequest().Command == "configurationDone" {
				w.deferConfigDoneForAdoption()
			}
			w.policy.UpdateStateOnCommand(qc.Request, w.adstate)
			resp, err := w.client.SendRequest(qc.Request, 0)
			w.policy.UpdateStateOnResponse(qc.Request, resp, w.adstate)
			if qc.Request.GetRequest().Command == "configurationDone" {
				w.adstate.ConfigDoneSent = true
			}
			if !qc.Silent {
				if corrID, ok := corrByReq[qc.Request]; ok && corrID != "" {
					w.emitResponse(corrID, resp, err)
				}
			}
		}
	}

	w.finishConfiguredAndLaunched()
}

// deferConfigDoneForAdoption holds back the parent's configurationDone while
// a reverse startDebugging request is still adopting a child session, up to
// the bounded deferral window. With no adoption in flight it returns
// immediately.
func (w *Worker) deferConfigDoneForAdoption() {
	if !w.policy.GetInitializationBehavior().DeferConfigDone {
		return
	}
	if child, ok := w.children.Active(); !ok || child.Ready() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), configDoneDeferWindow)
	_, _ = w.children.WaitActiveReady(ctx, configDoneDeferWindow)
	cancel()
}

// finishConfiguredAndLaunched declares the handshake complete: the adapter
// has been initialized, launched, and had configurationDone acknowledged.
// From here on the worker is purely reactive to parent commands and
// adapter events.
func (w *Worker) finishConfiguredAndLaunched() {
	w.adstate.ConfiguredAndLaunched = true
	w.setState(StateConnected)
	w.emitStatus(envelope.StatusConfiguredLaunched, nil)
	w.enforceInitialStopIfRequired()

	w.mu.Lock()
	pending := w.preConnectQueue
	w.preConnectQueue = nil
	w.mu.Unlock()
	for _, p := range pending {
		p := p
		w.handleDAPCommand(context.Background(), &p)
	}
}
