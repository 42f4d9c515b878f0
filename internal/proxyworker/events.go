package proxyworker

import (
	"time"

	dap "github.com/google/go-dap"
)

// configDoneDeferWindow bounds how long a queueing policy (js-debug) may
// hold back the final configurationDone while a reverse startDebugging
// request is still in flight adopting a child session.
const configDoneDeferWindow = 1500 * time.Millisecond

// onAdapterEvent is the dapwire.Client event callback: every event is
// forwarded upstream unconditionally, with a few events additionally
// driving the worker's own handshake state machine.
func (w *Worker) onAdapterEvent(ev dap.EventMessage) {
	w.policy.UpdateStateOnEvent(ev, w.adstate)

	switch e := ev.(type) {
	case *dap.InitializedEvent:
		w.onInitialized()
	case *dap.StoppedEvent:
		w.currentThreadID = e.Body.ThreadId
		w.hasThreadID = true
	case *dap.TerminatedEvent:
		w.emitEvent(ev)
		w.shutdown("adapter reported terminated")
		return
	case *dap.ExitedEvent:
		w.emitEvent(ev)
		return
	}

	w.emitEvent(ev)
}

// onInitialized fires once the adapter signals it is ready to receive
// launch/breakpoints/configurationDone. It closes initializedCh, which for
// non-queueing policies releases handleInit to send the initial breakpoints
// and configurationDone; for queueing policies it also drains the buffered
// command queue now.
//
// The drain issues its own SendRequest calls and must therefore run off the
// dapwire.Client read-loop goroutine that invoked this callback — blocking
// here would stop that same goroutine from ever reading the responses it is
// waiting on.
func (w *Worker) onInitialized() {
	if w.initializedCh != nil {
		select {
		case <-w.initializedCh:
			// already closed, duplicate initialized event
		default:
			close(w.initializedCh)
		}
	}

	if !w.policy.RequiresCommandQueueing() {
		return
	}

	go w.drainCommandQueue()
}
