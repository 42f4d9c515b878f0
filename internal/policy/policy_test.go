package policy

import (
	"context"
	"strings"
	"testing"

	dap "github.com/google/go-dap"
)

func TestRegistryResolvesByMatcherOrder(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		name  string
		spawn SpawnConfig
		want  string
	}{
		{"debugpy by command", SpawnConfig{Command: "python3", Args: []string{"-m", "debugpy.adapter"}}, "debugpy"},
		{"js-debug by vendored server", SpawnConfig{Command: "node", Args: []string{"vsDebugServer.js", "--port", "9000"}}, "js-debug"},
		{"codelldb by command", SpawnConfig{Command: "/opt/codelldb", Args: []string{"--port", "9001"}}, "codelldb"},
		{"lldb-dap by command", SpawnConfig{Command: "lldb-dap"}, "lldb-dap"},
		{"mock by transport", SpawnConfig{Transport: TransportMock}, "mock"},
		{"unknown falls to default", SpawnConfig{Command: "gdbserver"}, "default"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := r.Resolve(tc.spawn)
			if got.Name() != tc.want {
				t.Fatalf("Resolve(%+v) = %q, want %q", tc.spawn, got.Name(), tc.want)
			}
		})
	}
}

func TestRegistryByName(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"debugpy", "js-debug", "codelldb", "lldb-dap", "mock", "default"} {
		p, ok := r.ByName(name)
		if !ok {
			t.Fatalf("ByName(%q) not found", name)
		}
		if p.Name() != name {
			t.Fatalf("ByName(%q) returned policy %q", name, p.Name())
		}
	}
	if _, ok := r.ByName("gdb"); ok {
		t.Fatal("expected ByName to miss for an unregistered policy")
	}
}

func TestDebugpySpawnConfig(t *testing.T) {
	cfg, err := NewDebugpy().GetAdapterSpawnConfig(context.Background(), SpawnOptions{Port: 45001, PythonExe: "python3"})
	if err != nil {
		t.Fatalf("GetAdapterSpawnConfig: %v", err)
	}
	if cfg.Transport != TransportTCP {
		t.Fatalf("expected TCP transport, got %q", cfg.Transport)
	}
	joined := cfg.Command + " " + strings.Join(cfg.Args, " ")
	if !strings.Contains(joined, "debugpy.adapter") || !strings.Contains(joined, "45001") {
		t.Fatalf("unexpected spawn command line: %q", joined)
	}
}

func TestLLDBDAPUsesStdioTransport(t *testing.T) {
	cfg, err := NewLLDBDAP().GetAdapterSpawnConfig(context.Background(), SpawnOptions{Port: 45002})
	if err != nil {
		t.Fatalf("GetAdapterSpawnConfig: %v", err)
	}
	if cfg.Transport != TransportStdio {
		t.Fatalf("lldb-dap must use stdio transport, got %q", cfg.Transport)
	}
}

func TestJSDebugQueuesCommandsUntilConfigured(t *testing.T) {
	p := NewJSDebug()
	if !p.RequiresCommandQueueing() {
		t.Fatal("js-debug must require command queueing")
	}
	if !p.StackTraceRequiresChild() {
		t.Fatal("js-debug must route stackTrace to a child session, with no parent fallback")
	}
	if NewDebugpy().StackTraceRequiresChild() {
		t.Fatal("debugpy serves stackTrace on its own connection")
	}

	state := NewState()
	d := p.ShouldQueueCommand(&dap.LaunchRequest{Request: dap.Request{Command: "launch"}}, state)
	if !d.ShouldQueue {
		t.Fatal("expected launch to queue before configuration completes")
	}
	d = p.ShouldQueueCommand(&dap.ConfigurationDoneRequest{Request: dap.Request{Command: "configurationDone"}}, state)
	if !d.ShouldQueue || !d.ShouldDefer {
		t.Fatalf("expected configurationDone to queue and defer, got %+v", d)
	}

	state.ConfiguredAndLaunched = true
	d = p.ShouldQueueCommand(&dap.NextRequest{Request: dap.Request{Command: "next"}}, state)
	if d.ShouldQueue {
		t.Fatal("expected no queueing once configured and launched")
	}
}

func TestJSDebugDrainOrderPutsBreakpointsFirstConfigDoneLast(t *testing.T) {
	p := NewJSDebug()
	queue := []QueuedCommand{
		{Request: &dap.ConfigurationDoneRequest{Request: dap.Request{Command: "configurationDone"}}},
		{Request: &dap.LaunchRequest{Request: dap.Request{Command: "launch"}}},
		{Request: &dap.SetBreakpointsRequest{Request: dap.Request{Command: "setBreakpoints"}}},
	}

	ordered := p.ProcessQueuedCommands(queue, NewState())
	if len(ordered) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(ordered))
	}
	if got := ordered[0].Request.GetRequest().Command; got != "setBreakpoints" {
		t.Fatalf("expected setBreakpoints first, got %q", got)
	}
	if got := ordered[2].Request.GetRequest().Command; got != "configurationDone" {
		t.Fatalf("expected configurationDone last, got %q", got)
	}
}

func TestJSDebugNormalizeLaunchConfigForcesEntrySemantics(t *testing.T) {
	p := NewJSDebug()

	cfg := p.NormalizeLaunchConfig(map[string]interface{}{
		"stopOnEntry": true,
		"runtimeArgs": []interface{}{"--inspect-brk", "--max-old-space-size=256"},
	})
	if cfg["stopOnEntry"] != false {
		t.Fatalf("expected stopOnEntry forced false, got %v", cfg["stopOnEntry"])
	}
	args, ok := cfg["runtimeArgs"].([]interface{})
	if !ok {
		t.Fatalf("unexpected runtimeArgs shape %T", cfg["runtimeArgs"])
	}
	if len(args) != 1 || args[0] != "--max-old-space-size=256" {
		t.Fatalf("expected --inspect-brk stripped, got %v", args)
	}

	cfg = p.NormalizeLaunchConfig(map[string]interface{}{
		"runtimeArgs": []string{"--inspect", "--trace-warnings"},
	})
	strArgs, ok := cfg["runtimeArgs"].([]string)
	if !ok {
		t.Fatalf("unexpected runtimeArgs shape %T", cfg["runtimeArgs"])
	}
	if len(strArgs) != 1 || strArgs[0] != "--trace-warnings" {
		t.Fatalf("expected --inspect stripped, got %v", strArgs)
	}
}

func TestJSDebugHandleReverseRequestAdoptsStartDebugging(t *testing.T) {
	p := NewJSDebug()

	req := &dap.StartDebuggingRequest{
		Request: dap.Request{Command: "startDebugging"},
		Arguments: dap.StartDebuggingRequestArguments{
			Request: "attach",
			Configuration: map[string]interface{}{
				"type":                 "pwa-node",
				"__jsDebugChildServer": "9230",
			},
		},
	}

	outcome := p.HandleReverseRequest(req, NewState())
	if !outcome.Handled || !outcome.CreateChildSession {
		t.Fatalf("expected startDebugging to request child adoption, got %+v", outcome)
	}
	if outcome.ChildConfig == nil || outcome.ChildConfig.LaunchArgs["type"] != "pwa-node" {
		t.Fatalf("expected child launch args carried over, got %+v", outcome.ChildConfig)
	}
	if outcome.ChildConfig.Port != 9230 {
		t.Fatalf("expected child server port 9230, got %d", outcome.ChildConfig.Port)
	}

	other := &dap.RunInTerminalRequest{Request: dap.Request{Command: "runInTerminal"}}
	if out := p.HandleReverseRequest(other, NewState()); out.Handled {
		t.Fatal("expected runInTerminal to fall through to default handling")
	}
}

func TestAdapterIDs(t *testing.T) {
	cases := []struct {
		pol  Policy
		want string
	}{
		{NewDebugpy(), "debugpy"},
		{NewJSDebug(), "pwa-node"},
		{NewCodeLLDB(), "lldb"},
		{NewLLDBDAP(), "lldb"},
	}
	for _, tc := range cases {
		if got := tc.pol.GetDapAdapterConfiguration().AdapterID; got != tc.want {
			t.Errorf("%s adapterId = %q, want %q", tc.pol.Name(), got, tc.want)
		}
	}
}

func TestExecutionReadyPredicate(t *testing.T) {
	for _, st := range []string{"Running", "Paused", "Stopped", "Error"} {
		if !executionReady(st) {
			t.Errorf("expected %q to be ready", st)
		}
	}
	for _, st := range []string{"Created", "Initializing", ""} {
		if executionReady(st) {
			t.Errorf("expected %q to not be ready", st)
		}
	}
}
