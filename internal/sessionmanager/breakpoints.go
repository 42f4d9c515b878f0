package sessionmanager

import (
	"fmt"

	dap "github.com/google/go-dap"

	"github.com/oriys/dapbridge/internal/sessionstore"
)

// SetBreakpoint records a breakpoint and, if a worker is currently Running
// or Paused, re-sends the full per-file breakpoint set to the adapter,
// replacing whatever set that file previously had.
func (m *Manager) SetBreakpoint(id, file string, line int, condition string) (*sessionstore.Breakpoint, error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, fmtSessionNotFound(id)
	}
	if sess.Lifecycle() == sessionstore.LifecycleTerminated {
		return nil, fmt.Errorf("session terminated: %s", id)
	}

	bp := sess.UpsertBreakpoint(sessionstore.Breakpoint{
		File:              file,
		Line:              line,
		Condition:         condition,
		Verified:          false,
		ConditionVerified: sessionstore.TriUnset,
	})

	entry, hasWorker := m.getEntry(id)
	if !hasWorker {
		return bp, nil
	}

	switch sess.Execution() {
	case sessionstore.ExecRunning, sessionstore.ExecPaused:
	default:
		return bp, nil
	}

	fileBPs := sess.BreakpointsForFile(file)
	srcBPs := make([]dap.SourceBreakpoint, 0, len(fileBPs))
	for _, fbp := range fileBPs {
		srcBPs = append(srcBPs, dap.SourceBreakpoint{Line: fbp.Line, Condition: fbp.Condition})
	}

	req := &dap.SetBreakpointsRequest{
		Request: dap.Request{Command: "setBreakpoints"},
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: file},
			Breakpoints: srcBPs,
		},
	}

	resp, err := m.sendDAP(entry, req, 0)
	if err != nil {
		// Adapter-side failure leaves the breakpoint recorded but
		// unverified; setBreakpoint itself still succeeds.
		return bp, nil
	}
	sbResp, ok := resp.(*dap.SetBreakpointsResponse)
	if !ok {
		return bp, nil
	}

	// DAP guarantees the response breakpoints array is positionally
	// aligned with the request's, so results are zipped by index rather
	// than matched heuristically by line.
	for i, result := range sbResp.Body.Breakpoints {
		if i >= len(fileBPs) {
			break
		}
		target := fileBPs[i]
		sess.UpdateBreakpoint(target.ID, func(stored *sessionstore.Breakpoint) {
			stored.Verified = result.Verified
			stored.Line = result.Line
			stored.Message = result.Message
			if stored.Condition != "" {
				if result.Verified {
					stored.ConditionVerified = sessionstore.TriTrue
				} else {
					stored.ConditionVerified = sessionstore.TriFalse
				}
			} else {
				stored.ConditionVerified = sessionstore.TriUnset
			}
			if !result.Verified && result.Message != "" {
				stored.ConditionError = result.Message
			}
		})
	}

	updated, _ := sess.Breakpoint(bp.ID)
	return updated, nil
}
