package sessionmanager

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/oriys/dapbridge/internal/envelope"
	"github.com/oriys/dapbridge/internal/policy"
	"github.com/oriys/dapbridge/internal/proxyworker"
	"github.com/oriys/dapbridge/internal/sessionstore"
)

const (
	defaultDryRunTimeout  = 5 * time.Second
	startReadinessTimeout = 30 * time.Second
	handshakeTimeout      = 5 * time.Second
)

// StartDebugging spawns (or respawns) the Proxy Worker backing a session and
// drives it through the handshake to either a dry-run snapshot or a ready
// debugging state.
func (m *Manager) StartDebugging(id, scriptPath string, args []string, dapLaunchArgs map[string]interface{}, dryRun bool, adapterLaunchOverride map[string]interface{}) (*StartResult, error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, fmtSessionNotFound(id)
	}
	if sess.Lifecycle() == sessionstore.LifecycleTerminated {
		return &StartResult{Success: false, Error: fmt.Sprintf("session terminated: %s", id), ErrorType: "session-terminated"}, nil
	}

	// A worker already exists for a prior run: stop it before starting a
	// fresh one.
	m.stopWorker(id, "restarting debug session")

	sess.ClearThreadID()
	sess.SetExecution(sessionstore.ExecInitializing)
	sess.SetLifecycle(sessionstore.LifecycleActive)

	pol, ok := m.registry.ByName(sess.PolicyID())
	if !ok {
		pol, _ = m.registry.ByName("default")
	}

	if m.cfg.ValidateToolchain != nil {
		validation := m.cfg.ValidateToolchain(sess.Language(), sess.ExecutableHint())
		sess.SetToolchainValidation(validation)
		if validation != nil && !validation.Compatible && validation.Behavior != "continue" {
			sess.SetLifecycle(sessionstore.LifecycleCreated)
			sess.SetExecution(sessionstore.ExecCreated)
			return &StartResult{
				Success:     false,
				Error:       validation.Message,
				ErrorType:   "incompatible-toolchain",
				Toolchain:   validation,
				CanContinue: validation.Behavior != "error",
			}, nil
		}
	}

	if err := m.resolveExecutable(sess.Language()); err != nil {
		sess.SetLifecycle(sessionstore.LifecycleCreated)
		sess.SetExecution(sessionstore.ExecCreated)
		errType := "executable-not-found"
		switch normalizeLanguage(sess.Language()) {
		case "python", "python3", "py":
			errType = "python-not-found"
		}
		return &StartResult{Success: false, Error: err.Error(), ErrorType: errType}, nil
	}

	launchCfg := map[string]interface{}{"program": scriptPath}
	if len(args) > 0 {
		launchCfg["args"] = args
	}
	launchCfg["cwd"] = filepath.Dir(scriptPath)
	for k, v := range dapLaunchArgs {
		launchCfg[k] = v
	}
	for k, v := range adapterLaunchOverride {
		launchCfg[k] = v
	}

	requestedStopOnEntry, _ := launchCfg["stopOnEntry"].(bool)
	dryRunTimeout := dryRunTimeoutFrom(launchCfg)

	ctx, cancel := context.WithCancel(context.Background())
	bus := envelope.NewBus(0)
	worker := m.factory(proxyworker.Options{
		SessionID: id,
		Registry:  m.registry,
		Logger:    m.logger,
		Bus:       bus,
		SpawnOpts: policy.SpawnOptions{
			Port:          m.allocatePort(),
			ScriptPath:    scriptPath,
			Args:          args,
			PythonExe:     m.cfg.PythonExe,
			NodeExe:       m.cfg.NodeExe,
			LLDBExe:       m.cfg.LLDBExe,
			CodeLLDBExe:   m.cfg.CodeLLDBExe,
			VendorJSDebug: m.cfg.VendorJSDebug,
		},
	})

	entry := newWorkerEntry(id, bus, worker, cancel)
	entry.autoContinueOnEntry = !requestedStopOnEntry

	m.mu.Lock()
	m.workers[id] = entry
	m.mu.Unlock()
	sess.SetHasWorker(true)

	go worker.Run(ctx)
	go m.runEventLoop(ctx, sess, entry)

	logDir := sess.LogDir()
	if logDir == "" && m.cfg.LogRootDir != "" {
		logDir = filepath.Join(m.cfg.LogRootDir, id)
		sess.SetLogDir(logDir)
	}

	// 订阅要先于 init 消息发出：worker 的 dry_run_complete 可能在几微秒
	// 内就回来，晚订阅会漏掉它。
	var dryRunCh <-chan envelope.Message
	if dryRun {
		token, ch := entry.subscribe()
		defer entry.unsubscribe(token)
		dryRunCh = ch
	}

	bus.ToWorker <- envelope.Message{
		Kind:      envelope.KindInit,
		SessionID: id,
		Init: &envelope.InitPayload{
			Language:           sess.Language(),
			PolicyName:         sess.PolicyID(),
			ScriptPath:         scriptPath,
			Args:               args,
			LaunchConfig:       launchCfg,
			DryRun:             dryRun,
			AdapterOverride:    adapterLaunchOverride,
			LogDir:             logDir,
			TraceFramesToPath:  m.cfg.TraceFramesToPath,
			InitialBreakpoints: groupBreakpointsByFile(sess.AllBreakpoints()),
		},
	}

	if dryRun {
		data, ready := awaitStatusOn(dryRunCh, envelope.StatusDryRunComplete, dryRunTimeout)
		if !ready {
			return &StartResult{Success: false, Error: "dry run timed out", ErrorType: "dap-request-timeout"}, nil
		}
		sess.SetExecution(sessionstore.ExecStopped)
		return &StartResult{
			Success: true,
			State:   string(sessionstore.ExecStopped),
			Data: map[string]interface{}{
				"dryRun":  true,
				"command": data["command"],
				"script":  data["script"],
			},
		}, nil
	}

	handshakeCtx, handshakeCancel := context.WithTimeout(context.Background(), handshakeTimeout)
	if err := pol.PerformHandshake(handshakeCtx, policy.NewState()); err != nil && m.logger != nil {
		m.logger.WithError(err).WithField("session", id).Warn("sessionmanager: adapter handshake routine failed")
	}
	handshakeCancel()

	ready := m.waitReady(sess, entry, pol, policy.ReadinessOptions{StopOnEntry: requestedStopOnEntry}, startReadinessTimeout)
	if !ready {
		return &StartResult{Success: false, Error: "start debugging timed out waiting for session to become ready", ErrorType: "dap-request-timeout"}, nil
	}

	reason := entry.lastStopReason
	if reason == "" {
		reason = "entry"
	}
	return &StartResult{Success: true, State: string(sess.Execution()), Reason: reason}, nil
}

func groupBreakpointsByFile(bps []*sessionstore.Breakpoint) map[string][]envelope.BreakpointSpec {
	out := make(map[string][]envelope.BreakpointSpec)
	for _, bp := range bps {
		out[bp.File] = append(out[bp.File], envelope.BreakpointSpec{ID: bp.ID, Line: bp.Line, Condition: bp.Condition})
	}
	return out
}

func dryRunTimeoutFrom(launchCfg map[string]interface{}) time.Duration {
	raw, ok := launchCfg["dryRunTimeoutMs"]
	if !ok {
		return defaultDryRunTimeout
	}
	switch v := raw.(type) {
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v) * time.Millisecond
	default:
		return defaultDryRunTimeout
	}
}

// resolveExecutable maps a session's language to the adapter executable it
// would spawn and confirms it is reachable on PATH. A Python session's
// "not found" is reported as its own error type so callers can point users
// at installing an interpreter rather than a generic adapter.
func (m *Manager) resolveExecutable(language string) error {
	var exe string
	switch normalizeLanguage(language) {
	case "python", "python3", "py":
		exe = m.cfg.PythonExe
		if exe == "" {
			exe = "python3"
		}
	case "javascript", "typescript", "js", "ts", "node", "nodejs":
		exe = m.cfg.NodeExe
		if exe == "" {
			exe = "node"
		}
	case "cpp", "c++", "c", "rust", "swift", "codelldb":
		exe = m.cfg.CodeLLDBExe
		if exe == "" {
			exe = "codelldb"
		}
	case "lldb-dap", "lldb", "lldb-vscode":
		exe = m.cfg.LLDBExe
		if exe == "" {
			exe = "lldb-dap"
		}
	default:
		return nil
	}

	if _, err := m.cfg.LookPath(exe); err != nil {
		return fmt.Errorf("executable not found: %s", exe)
	}
	return nil
}
