package policy

import (
	"context"

	dap "github.com/google/go-dap"
)

// base 提供大多数策略共享的保守默认值，各家族策略通过结构体嵌入复用它，
// 只覆盖自己真正特别的钩子，把"什么都不用做"的样板钩子集中到一处。
type base struct{}

func (base) RequiresCommandQueueing() bool { return false }

func (base) ShouldQueueCommand(cmd dap.RequestMessage, state *State) QueueDecision {
	return QueueDecision{ShouldQueue: false}
}

func (base) ProcessQueuedCommands(queue []QueuedCommand, state *State) []QueuedCommand {
	return nil
}

func (base) UpdateStateOnCommand(cmd dap.RequestMessage, state *State) {}

func (base) UpdateStateOnResponse(cmd dap.RequestMessage, resp dap.Message, state *State) {}

func (base) UpdateStateOnEvent(ev dap.EventMessage, state *State) {}

func (base) HandleReverseRequest(req dap.RequestMessage, state *State) ReverseOutcome {
	return ReverseOutcome{Handled: false}
}

func (base) PerformHandshake(ctx context.Context, state *State) error { return nil }

func (base) StackTraceRequiresChild() bool { return false }

func (base) NormalizeInitializeArgs(args dap.InitializeRequestArguments) dap.InitializeRequestArguments {
	return args
}

func (base) NormalizeLaunchConfig(cfg map[string]interface{}) map[string]interface{} {
	return cfg
}

// executionReady is the shared default readiness predicate: anything past
// Initializing counts as ready once an initial stop (or running state) has
// been observed.
func executionReady(execState string) bool {
	switch execState {
	case "Running", "Paused", "Stopped", "Error":
		return true
	default:
		return false
	}
}
