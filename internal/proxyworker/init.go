package proxyworker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	dap "github.com/google/go-dap"
	"golang.org/x/sync/errgroup"

	"github.com/oriys/dapbridge/internal/dapwire"
	"github.com/oriys/dapbridge/internal/envelope"
	"github.com/oriys/dapbridge/internal/logging"
	"github.com/oriys/dapbridge/internal/policy"
)

const initializedWaitTimeout = 10 * time.Second

// handleInit runs the Proxy Worker init sequence. It is
// always invoked from the Worker's own Run goroutine, so no locking is
// needed around the sequencing itself; only the exposed state transitions
// go through w.mu.
func (w *Worker) handleInit(ctx context.Context, payload *envelope.InitPayload) {
	if payload == nil {
		w.emitError(fmt.Errorf("init message carried no payload"))
		return
	}
	switch w.State() {
	case StateInitializing:
		// 1. 重复 init：幂等，仅重新确认收到。
		w.emitStatus(envelope.StatusAcknowledged, nil)
		return
	case StateUninitialized:
		// 继续往下走。
	default:
		w.emitError(fmt.Errorf("invalid state for init: %s", w.State()))
		return
	}

	w.setState(StateInitializing)
	w.emitStatus(envelope.StatusAcknowledged, nil)

	// 2. 选择策略，创建 Adapter State。
	pol, ok := w.registry.ByName(payload.PolicyName)
	if !ok {
		pol, _ = w.registry.ByName("default")
	}
	w.policy = pol
	w.adstate = policy.NewState()

	// 3. 创建会话日志目录，按需启用 DAP 帧追踪。
	if payload.LogDir != "" {
		if err := os.MkdirAll(payload.LogDir, 0o755); err != nil {
			w.failCritical(fmt.Errorf("failed to create session log dir %s: %w", payload.LogDir, err))
			return
		}
	}
	if payload.TraceFramesToPath != "" {
		path := payload.TraceFramesToPath
		if payload.LogDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(payload.LogDir, path)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			w.tracer = logging.NewFrameTracer(f)
		} else if w.logger != nil {
			w.logger.WithError(err).Warn("proxyworker: failed to open DAP frame trace file")
		}
	}

	spawnCfg, err := pol.GetAdapterSpawnConfig(ctx, w.spawnOpts)
	if err != nil {
		w.failCritical(fmt.Errorf("failed to build adapter spawn config: %w", err))
		return
	}

	// 4. dry-run：只报告命令，不真正连接适配器。
	if payload.DryRun {
		w.runDryRun(pol, spawnCfg, payload)
		return
	}

	// 5. 启动适配器子进程，附加退出监控，通过 DAP 连接并重试。
	spawner := w.spawner
	if spawnCfg.Transport == policy.TransportMock {
		spawner = MockSpawner{}
	}
	proc, err := spawner.Spawn(ctx, spawnCfg, w.spawnOpts)
	if err != nil {
		w.failCritical(fmt.Errorf("failed to spawn adapter process: %w", err))
		return
	}
	w.process = proc

	connCtx, cancel := context.WithTimeout(ctx, initializedWaitTimeout)
	conn, err := proc.Conn(connCtx)
	cancel()
	if err != nil {
		w.failCritical(fmt.Errorf("failed to connect to debug adapter: %w", err))
		return
	}

	client := dapwire.New(conn, w.logger)
	if w.tracer != nil {
		client.SetFrameTracer(w.tracer)
	}
	w.client = client
	w.initializedCh = make(chan struct{})

	client.SetEventHandler(w.onAdapterEvent)
	client.SetReverseRequestHandler(w.onReverseRequest)

	// 子进程的退出监控与 DAP 读循环放进同一个 errgroup，任一方结束都
	// 触发一次 worker 关闭。
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Serve()
	})
	g.Go(func() error {
		err := proc.Wait()
		if w.State() == StateTerminated || w.State() == StateShuttingDown {
			return nil
		}
		return err
	})
	go func() {
		if err := g.Wait(); err != nil && w.logger != nil {
			w.logger.WithError(err).WithField("session", w.sessionID).Warn("proxyworker: adapter session ended")
		}
		if w.State() != StateTerminated && w.State() != StateShuttingDown {
			w.shutdown("adapter session ended")
		}
	}()

	w.emitStatus(envelope.StatusAdapterConnected, nil)

	// 6/7. 按策略握手：initialize 永远直接发送（它本身就是触发
	// initialized 事件的前提，不可能被排队等待它自己）。排队策略的
	// launch/setBreakpoints/configurationDone 统一走 enqueueOrSend，排队到
	// initialized 事件触发 drain；非排队策略的 launch 由单独的协程直接
	// 发出，setBreakpoints/configurationDone 在 initialized 之后走
	// enqueueOrSend 立即发送。
	initArgs := pol.NormalizeInitializeArgs(dap.InitializeRequestArguments{
		AdapterID:                    pol.GetDapAdapterConfiguration().AdapterID,
		ClientID:                     "dapbridge",
		ClientName:                   "DAP Bridge",
		LinesStartAt1:                true,
		ColumnsStartAt1:              true,
		PathFormat:                   "path",
		SupportsRunInTerminalRequest: true,
	})
	initReq := &dap.InitializeRequest{
		Request:   dap.Request{Command: "initialize"},
		Arguments: initArgs,
	}
	if _, err := w.sendDirect(initReq, 0); err != nil {
		w.failCritical(fmt.Errorf("initialize failed: %w", err))
		return
	}
	pol.UpdateStateOnResponse(initReq, nil, w.adstate)

	launchCfg := pol.NormalizeLaunchConfig(payload.LaunchConfig)
	launchBody, _ := json.Marshal(launchCfg)
	launchReq := &dap.LaunchRequest{
		Request:   dap.Request{Command: "launch"},
		Arguments: launchBody,
	}

	if pol.RequiresCommandQueueing() {
		// 排队策略：launch/setBreakpoints/configurationDone 全部进队列，
		// 等 initialized 事件触发的 drain（见 events.go）按策略顺序补发
		// 并调用 finishConfiguredAndLaunched。
		w.enqueueOrSend(launchReq, false)
		for _, req := range breakpointRequests(payload.InitialBreakpoints) {
			w.enqueueOrSend(req, false)
		}
		w.enqueueOrSend(&dap.ConfigurationDoneRequest{Request: dap.Request{Command: "configurationDone"}}, false)
		return
	}

	// 非排队策略：launch 异步发出——debugpy 等适配器要等 configurationDone
	// 之后才应答 launch，阻塞等它的响应会让握手自锁；随后等 initialized
	// 事件到达，再补发初始断点与 configurationDone。
	go func() {
		if _, err := w.client.SendRequest(launchReq, 0); err != nil && w.logger != nil {
			w.logger.WithError(err).WithField("session", w.sessionID).Warn("proxyworker: launch failed")
		}
	}()

	select {
	case <-w.initializedCh:
	case <-time.After(initializedWaitTimeout):
		w.failCritical(fmt.Errorf("timed out waiting for initialized event"))
		return
	case <-ctx.Done():
		return
	}

	for _, req := range breakpointRequests(payload.InitialBreakpoints) {
		w.enqueueOrSend(req, false)
	}
	w.enqueueOrSend(&dap.ConfigurationDoneRequest{Request: dap.Request{Command: "configurationDone"}}, false)
	w.finishConfiguredAndLaunched()
}

// breakpointRequests 把按文件分组的初始断点表展开成每文件一条
// setBreakpoints 请求。
func breakpointRequests(byFile map[string][]envelope.BreakpointSpec) []dap.RequestMessage {
	out := make([]dap.RequestMessage, 0, len(byFile))
	for file, bps := range byFile {
		srcBPs := make([]dap.SourceBreakpoint, 0, len(bps))
		for _, bp := range bps {
			srcBPs = append(srcBPs, dap.SourceBreakpoint{Line: bp.Line, Condition: bp.Condition})
		}
		out = append(out, &dap.SetBreakpointsRequest{
			Request: dap.Request{Command: "setBreakpoints"},
			Arguments: dap.SetBreakpointsArguments{
				Source:      dap.Source{Path: file},
				Breakpoints: srcBPs,
			},
		})
	}
	return out
}

func (w *Worker) failCritical(err error) {
	w.emitError(err)
	w.setState(StateTerminated)
	w.exitHook(1)
}

func (w *Worker) runDryRun(pol policy.Policy, spawnCfg policy.SpawnConfig, payload *envelope.InitPayload) {
	cmdline := spawnCfg.Command
	for _, a := range spawnCfg.Args {
		cmdline += " " + a
	}
	data := map[string]interface{}{
		"command": cmdline,
		"script":  payload.ScriptPath,
	}
	w.emitStatus(envelope.StatusDryRunComplete, data)
	// 短暂停留让确认消息先于终止状态离开总线。
	time.Sleep(100 * time.Millisecond)
	w.setState(StateTerminated)
	w.emitStatus(envelope.StatusTerminated, map[string]interface{}{"reason": "dry run complete"})
}

