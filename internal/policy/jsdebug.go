package policy

import (
	"context"
	"strconv"
	"strings"

	dap "github.com/google/go-dap"
)

// JSDebug targets VS Code's js-debug (pwa-node), which defers most commands
// until after the adapter's own `initialized` event and spawns child debug
// sessions via a reverse `startDebugging` request whenever it attaches to a
// worker thread or a child process. It is spawned as node running the
// vendored vsDebugServer.js entry point listening on a TCP port.
type JSDebug struct {
	base
}

func NewJSDebug() *JSDebug { return &JSDebug{} }

func (p *JSDebug) Name() string { return "js-debug" }

func (p *JSDebug) MatchesAdapter(spawn SpawnConfig) bool {
	if strings.Contains(strings.ToLower(spawn.Command), "node") {
		for _, a := range spawn.Args {
			if strings.Contains(a, "vsDebugServer") || strings.Contains(a, "js-debug") {
				return true
			}
		}
	}
	return false
}

func (p *JSDebug) GetAdapterSpawnConfig(ctx context.Context, opts SpawnOptions) (SpawnConfig, error) {
	node := opts.NodeExe
	if node == "" {
		node = "node"
	}
	vendor := opts.VendorJSDebug
	if vendor == "" {
		vendor = "vsDebugServer.js"
	}
	return SpawnConfig{
		Command:   node,
		Args:      []string{vendor, "--port", strconv.Itoa(opts.Port)},
		Transport: TransportTCP,
	}, nil
}

func (p *JSDebug) GetDapAdapterConfiguration() DapAdapterConfiguration {
	return DapAdapterConfiguration{AdapterID: "pwa-node"}
}

func (p *JSDebug) GetInitializationBehavior() InitializationBehavior {
	return InitializationBehavior{
		DeferConfigDone:         true,
		RequiresInitialStop:     false,
		AddRuntimeExecutable:    false,
		TrackInitializeResponse: true,
	}
}

func (p *JSDebug) RequiresCommandQueueing() bool { return true }

func (p *JSDebug) ShouldQueueCommand(cmd dap.RequestMessage, state *State) QueueDecision {
	req := cmd.GetRequest()
	if state.ConfiguredAndLaunched {
		return QueueDecision{ShouldQueue: false}
	}
	if req.Command == "configurationDone" {
		return QueueDecision{ShouldQueue: true, ShouldDefer: true, Reason: "configurationDone deferred until child session adoption settles"}
	}
	return QueueDecision{ShouldQueue: true, Reason: "js-debug queues commands until initialized"}
}

func (p *JSDebug) ProcessQueuedCommands(queue []QueuedCommand, state *State) []QueuedCommand {
	var setBP, configDone, rest []QueuedCommand
	for _, q := range queue {
		switch q.Request.GetRequest().Command {
		case "setBreakpoints":
			setBP = append(setBP, q)
		case "configurationDone":
			configDone = append(configDone, q)
		default:
			rest = append(rest, q)
		}
	}
	ordered := make([]QueuedCommand, 0, len(queue))
	ordered = append(ordered, setBP...)
	ordered = append(ordered, rest...)
	ordered = append(ordered, configDone...)
	return ordered
}

func (p *JSDebug) UpdateStateOnResponse(cmd dap.RequestMessage, resp dap.Message, state *State) {
	if cmd.GetRequest().Command == "initialize" {
		state.InitializeResponded = true
	}
}

// HandleReverseRequest adopts a child debug session announced via
// `startDebugging`. js-debug uses this whenever it attaches to a worker
// thread, a cluster child, or a nested process; the nested session's own
// connection port travels inside the configuration payload as
// __jsDebugChildServer.
func (p *JSDebug) HandleReverseRequest(req dap.RequestMessage, state *State) ReverseOutcome {
	if req.GetRequest().Command != "startDebugging" {
		return ReverseOutcome{Handled: false}
	}

	sd, ok := req.(*dap.StartDebuggingRequest)
	if !ok {
		return ReverseOutcome{Handled: false}
	}
	cfg := sd.Arguments.Configuration

	return ReverseOutcome{
		Handled:            true,
		CreateChildSession: true,
		ChildConfig: &ChildSessionConfig{
			Host:       "127.0.0.1",
			Port:       childServerPort(cfg),
			LaunchArgs: cfg,
		},
	}
}

// childServerPort digs js-debug's child DAP endpoint port out of a
// startDebugging configuration. It arrives as a string on current js-debug
// builds but older ones sent a number.
func childServerPort(cfg map[string]interface{}) int {
	switch v := cfg["__jsDebugChildServer"].(type) {
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	case float64:
		return int(v)
	}
	return 0
}

func (p *JSDebug) IsSessionReady(execState string, opts ReadinessOptions, state *State) bool {
	return executionReady(execState)
}

// StackTraceRequiresChild 为 true：js-debug 的父连接只负责编排，真正的
// 调试目标总是挂在子会话上，stackTrace 没有父会话可以回退——子会话在
// 等待窗口内没有就绪时必须返回失败，而不是把请求发给父连接。
func (p *JSDebug) StackTraceRequiresChild() bool { return true }

// NormalizeLaunchConfig forces stopOnEntry false and strips any inspector
// flags the caller may have supplied, so the Session Manager's own
// entry-stop auto-continue logic is the single place deciding whether to
// pause at program start.
func (p *JSDebug) NormalizeLaunchConfig(cfg map[string]interface{}) map[string]interface{} {
	if cfg == nil {
		cfg = make(map[string]interface{})
	}
	cfg["stopOnEntry"] = false

	// launch 配置可能来自 JSON 解码（[]interface{}）也可能由 Go 调用方
	// 直接构造（[]string），两种形状都要剥掉 --inspect[-brk]。
	switch rawArgs := cfg["runtimeArgs"].(type) {
	case []string:
		filtered := make([]string, 0, len(rawArgs))
		for _, a := range rawArgs {
			if strings.HasPrefix(a, "--inspect") {
				continue
			}
			filtered = append(filtered, a)
		}
		cfg["runtimeArgs"] = filtered
	case []interface{}:
		filtered := make([]interface{}, 0, len(rawArgs))
		for _, a := range rawArgs {
			if s, ok := a.(string); ok && strings.HasPrefix(s, "--inspect") {
				continue
			}
			filtered = append(filtered, a)
		}
		cfg["runtimeArgs"] = filtered
	}
	return cfg
}
