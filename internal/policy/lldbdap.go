package policy

import (
	"context"
	"strings"
)

// LLDBDAP targets LLVM's lldb-dap binary. Unlike the other native
// adapters it speaks DAP over its own process's stdin/stdout rather than a
// TCP port — the upstream project documents lldb-dap exiting immediately
// when something tries to connect to it over TCP, since it was built
// stdio-first. SpawnConfig carries a Transport field the Proxy Worker
// switches on: for this policy it is always TransportStdio, so the worker
// pipes the child process's stdio into the same dapwire.Client used for
// TCP adapters instead of dialing anything.
type LLDBDAP struct {
	base
}

func NewLLDBDAP() *LLDBDAP { return &LLDBDAP{} }

func (p *LLDBDAP) Name() string { return "lldb-dap" }

func (p *LLDBDAP) MatchesAdapter(spawn SpawnConfig) bool {
	cmd := strings.ToLower(spawn.Command)
	return strings.Contains(cmd, "lldb-dap") || strings.Contains(cmd, "lldb-vscode")
}

func (p *LLDBDAP) GetAdapterSpawnConfig(ctx context.Context, opts SpawnOptions) (SpawnConfig, error) {
	exe := opts.LLDBExe
	if exe == "" {
		exe = "lldb-dap"
	}
	return SpawnConfig{
		Command:   exe,
		Transport: TransportStdio,
	}, nil
}

func (p *LLDBDAP) GetDapAdapterConfiguration() DapAdapterConfiguration {
	return DapAdapterConfiguration{AdapterID: "lldb"}
}

func (p *LLDBDAP) GetInitializationBehavior() InitializationBehavior {
	return InitializationBehavior{
		DeferConfigDone:         false,
		RequiresInitialStop:     false,
		AddRuntimeExecutable:    false,
		TrackInitializeResponse: false,
	}
}

func (p *LLDBDAP) IsSessionReady(execState string, opts ReadinessOptions, state *State) bool {
	return executionReady(execState)
}
