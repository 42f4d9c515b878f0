package policy

import (
	"context"
	"fmt"
	"strings"
)

// Debugpy targets Microsoft's debugpy adapter for Python. It is spawned as
// a TCP-listening subprocess of the interpreter itself
// (`python -m debugpy.adapter --port <p>`); the port is allocated by the
// Session Manager and handed down through SpawnOptions.
type Debugpy struct {
	base
}

func NewDebugpy() *Debugpy { return &Debugpy{} }

func (p *Debugpy) Name() string { return "debugpy" }

func (p *Debugpy) MatchesAdapter(spawn SpawnConfig) bool {
	if strings.Contains(strings.ToLower(spawn.Command), "python") {
		return true
	}
	for _, a := range spawn.Args {
		if strings.Contains(a, "debugpy") {
			return true
		}
	}
	return false
}

func (p *Debugpy) GetAdapterSpawnConfig(ctx context.Context, opts SpawnOptions) (SpawnConfig, error) {
	exe := opts.PythonExe
	if exe == "" {
		exe = "python3"
	}
	return SpawnConfig{
		Command:   exe,
		Args:      []string{"-m", "debugpy.adapter", "--port", fmt.Sprintf("%d", opts.Port)},
		Transport: TransportTCP,
	}, nil
}

func (p *Debugpy) GetDapAdapterConfiguration() DapAdapterConfiguration {
	return DapAdapterConfiguration{AdapterID: "debugpy"}
}

func (p *Debugpy) GetInitializationBehavior() InitializationBehavior {
	return InitializationBehavior{
		DeferConfigDone:         false,
		RequiresInitialStop:     false,
		AddRuntimeExecutable:    true,
		TrackInitializeResponse: false,
	}
}

func (p *Debugpy) IsSessionReady(execState string, opts ReadinessOptions, state *State) bool {
	return executionReady(execState)
}

func (p *Debugpy) NormalizeLaunchConfig(cfg map[string]interface{}) map[string]interface{} {
	if cfg == nil {
		cfg = make(map[string]interface{})
	}
	if _, ok := cfg["console"]; !ok {
		cfg["console"] = "internalConsole"
	}
	if _, ok := cfg["justMyCode"]; !ok {
		cfg["justMyCode"] = false
	}
	return cfg
}
