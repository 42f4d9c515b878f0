package policy

import (
	"context"
)

// Mock is an adapter family with no external process at all. Proxy Worker
// recognizes SpawnConfig.Transport == TransportMock and starts an
// in-process DAP responder connected over net.Pipe instead of forking
// anything, letting the rest of the core (policy selection, framing,
// request tracking, session manager) run against a predictable, fast
// adapter in tests.
type Mock struct {
	base
}

func NewMock() *Mock { return &Mock{} }

func (p *Mock) Name() string { return "mock" }

func (p *Mock) MatchesAdapter(spawn SpawnConfig) bool {
	return spawn.Transport == TransportMock
}

func (p *Mock) GetAdapterSpawnConfig(ctx context.Context, opts SpawnOptions) (SpawnConfig, error) {
	return SpawnConfig{Command: "__mock__", Transport: TransportMock}, nil
}

func (p *Mock) GetDapAdapterConfiguration() DapAdapterConfiguration {
	return DapAdapterConfiguration{AdapterID: "mock"}
}

func (p *Mock) GetInitializationBehavior() InitializationBehavior {
	return InitializationBehavior{}
}

func (p *Mock) IsSessionReady(execState string, opts ReadinessOptions, state *State) bool {
	return executionReady(execState)
}
