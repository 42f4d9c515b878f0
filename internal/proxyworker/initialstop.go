package proxyworker

import (
	"time"

	dap "github.com/google/go-dap"
)

// initialStopPollInterval/Timeout bound the RequiresInitialStop polling
// loop: poll threads every 100ms for at most 12s.
const (
	initialStopPollInterval = 100 * time.Millisecond
	initialStopPollTimeout  = 12 * time.Second
)

// enforceInitialStopIfRequired starts the post-launch thread-poll-then-pause
// routine when the selected policy's InitializationBehavior requests it. No
// shipped policy currently sets RequiresInitialStop, so the routine runs
// only for a policy that turns the flag on.
func (w *Worker) enforceInitialStopIfRequired() {
	if !w.policy.GetInitializationBehavior().RequiresInitialStop {
		return
	}
	go w.pollForInitialStop()
}

func (w *Worker) pollForInitialStop() {
	deadline := time.Now().Add(initialStopPollTimeout)
	for time.Now().Before(deadline) {
		if w.State() != StateConnected {
			return
		}

		resp, err := w.sendDirect(&dap.ThreadsRequest{Request: dap.Request{Command: "threads"}}, 2*time.Second)
		if err == nil {
			if tr, ok := resp.(*dap.ThreadsResponse); ok && len(tr.Body.Threads) > 0 {
				tid := tr.Body.Threads[0].Id
				_, _ = w.sendDirect(&dap.PauseRequest{
					Request:   dap.Request{Command: "pause"},
					Arguments: dap.PauseArguments{ThreadId: tid},
				}, 2*time.Second)
				return
			}
		}

		time.Sleep(initialStopPollInterval)
	}
}
