package policy

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CodeLLDB targets vadimcn's CodeLLDB extension adapter, spawned listening
// on a TCP port like debugpy. Unlike debugpy it settles into a ready state
// only after its own internal handshake completes following the initial
// stop, so it gets a PerformHandshake hook that pauses for a short fixed
// window before readiness is reported; the hook does not observe that
// handshake itself.
type CodeLLDB struct {
	base
}

func NewCodeLLDB() *CodeLLDB { return &CodeLLDB{} }

func (p *CodeLLDB) Name() string { return "codelldb" }

func (p *CodeLLDB) MatchesAdapter(spawn SpawnConfig) bool {
	if strings.Contains(strings.ToLower(spawn.Command), "codelldb") {
		return true
	}
	for _, a := range spawn.Args {
		if strings.Contains(strings.ToLower(a), "codelldb") {
			return true
		}
	}
	return false
}

func (p *CodeLLDB) GetAdapterSpawnConfig(ctx context.Context, opts SpawnOptions) (SpawnConfig, error) {
	exe := opts.CodeLLDBExe
	if exe == "" {
		exe = "codelldb"
	}
	return SpawnConfig{
		Command:   exe,
		Args:      []string{"--port", fmt.Sprintf("%d", opts.Port)},
		Transport: TransportTCP,
	}, nil
}

func (p *CodeLLDB) GetDapAdapterConfiguration() DapAdapterConfiguration {
	return DapAdapterConfiguration{AdapterID: "lldb"}
}

func (p *CodeLLDB) GetInitializationBehavior() InitializationBehavior {
	return InitializationBehavior{
		DeferConfigDone:         false,
		RequiresInitialStop:     false,
		AddRuntimeExecutable:    false,
		TrackInitializeResponse: false,
	}
}

// PerformHandshake gives CodeLLDB a brief settle window after launch before
// the Session Manager reports readiness; CodeLLDB's own module-load
// notifications race the configurationDone acknowledgment on some builds.
func (p *CodeLLDB) PerformHandshake(ctx context.Context, state *State) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(150 * time.Millisecond):
		return nil
	}
}

func (p *CodeLLDB) IsSessionReady(execState string, opts ReadinessOptions, state *State) bool {
	return executionReady(execState)
}

func (p *CodeLLDB) NormalizeLaunchConfig(cfg map[string]interface{}) map[string]interface{} {
	if cfg == nil {
		cfg = make(map[string]interface{})
	}
	if _, ok := cfg["terminal"]; !ok {
		cfg["terminal"] = "console"
	}
	return cfg
}
