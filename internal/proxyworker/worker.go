// Package proxyworker 实现每个会话独占的 Proxy Worker：
// 拥有一个调试适配器子进程和一条 DAP 客户端连接，执行 DAP 握手，并把
// 事件/响应经由 internal/envelope 的消息总线转发回 Session Manager。
//
// worker 本身不按适配器类型分支："一个适配器家族一种行为"由
// internal/policy 的策略值描述，worker 只执行策略给出的决定；
// DAP 读循环与子进程退出监控两个协程由 golang.org/x/sync/errgroup
// 统一管理，任何一个结束都会触发一次完整的关闭流程。
package proxyworker

import (
	"context"
	"fmt"
	"sync"

	dap "github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/oriys/dapbridge/internal/childsession"
	"github.com/oriys/dapbridge/internal/dapwire"
	"github.com/oriys/dapbridge/internal/envelope"
	"github.com/oriys/dapbridge/internal/policy"
)

// WorkerState 是 Proxy Worker 自身的生命周期态。
type WorkerState string

const (
	StateUninitialized WorkerState = "Uninitialized"
	StateInitializing  WorkerState = "Initializing"
	StateConnected     WorkerState = "Connected"
	StateShuttingDown  WorkerState = "ShuttingDown"
	StateTerminated    WorkerState = "Terminated"
)

// ExitHook 是供测试注入的进程退出钩子，替代直接调用 os.Exit，使
// worker-init-critical 故障路径可以在测试里被观察而不是真的杀死宿主
// 进程。
type ExitHook func(code int)

// Options 配置一个 Worker 实例。
type Options struct {
	SessionID  string
	Registry   *policy.Registry
	Logger     *logrus.Logger
	Bus        *envelope.Bus
	ExitHook   ExitHook
	SpawnOpts  policy.SpawnOptions
	Spawner    Spawner
}

// Worker 是一个会话独占的 Proxy Worker。
type Worker struct {
	sessionID string
	bus       *envelope.Bus
	logger    *logrus.Logger
	exitHook  ExitHook
	spawner   Spawner
	spawnOpts policy.SpawnOptions
	registry  *policy.Registry

	mu    sync.Mutex
	state WorkerState

	policy   policy.Policy
	adstate  *policy.State
	process  Process
	client   *dapwire.Client
	tracer   dapwire.FrameTracer

	// initializedCh is closed exactly once, the first time the adapter's
	// initialized event arrives; nil until a non-dry-run init sequence
	// creates the client connection.
	initializedCh chan struct{}

	preConnectQueue []envelope.DAPCommandPayload
	commandQueue    []queuedCorrelatedCommand

	currentThreadID int
	hasThreadID     bool

	children *childsession.Manager

	dryRun     bool
	dryRunInfo map[string]interface{}

	cancel context.CancelFunc
}

type queuedCorrelatedCommand struct {
	corrID string
	cmd    policy.QueuedCommand
	silent bool
}

// New constructs a Worker bound to one session; the caller must call Run in
// its own goroutine.
func New(opts Options) *Worker {
	if opts.ExitHook == nil {
		opts.ExitHook = func(code int) {}
	}
	if opts.Spawner == nil {
		opts.Spawner = OSSpawner{}
	}
	return &Worker{
		sessionID: opts.SessionID,
		bus:       opts.Bus,
		logger:    opts.Logger,
		exitHook:  opts.ExitHook,
		spawner:   opts.Spawner,
		spawnOpts: opts.SpawnOpts,
		registry:  opts.Registry,
		state:     StateUninitialized,
		children:  childsession.NewManager(),
	}
}

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Run processes the worker's inbound envelope messages until Terminated or
// ctx is canceled. It is the single entry point the Session Manager's
// worker factory invokes per session.
func (w *Worker) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			w.shutdown("context canceled")
			return
		case msg, ok := <-w.bus.ToWorker:
			if !ok {
				w.shutdown("bus closed")
				return
			}
			if msg.SessionID != w.sessionID {
				continue
			}
			switch msg.Kind {
			case envelope.KindInit:
				w.handleInit(ctx, msg.Init)
			case envelope.KindDAP:
				w.handleDAPCommand(ctx, msg.DAPCommand)
			case envelope.KindTerminate:
				w.shutdown("terminate requested")
				return
			}
		}
		if w.State() == StateTerminated {
			return
		}
	}
}

func (w *Worker) emit(msg envelope.Message) {
	msg.SessionID = w.sessionID
	select {
	case w.bus.ToParent <- msg:
	default:
		// 总线已满：阻塞发送以保证有序交付，代价是短暂背压而不是丢消息。
		w.bus.ToParent <- msg
	}
}

func (w *Worker) emitStatus(status envelope.Status, data map[string]interface{}) {
	w.emit(envelope.Message{Kind: envelope.KindStatus, Status: status, StatusData: data})
}

func (w *Worker) emitError(err error) {
	w.emit(envelope.Message{Kind: envelope.KindError, Err: err})
}

func (w *Worker) emitEvent(ev dap.EventMessage) {
	w.emit(envelope.Message{Kind: envelope.KindDAPEvent, DAPEvent: ev})
}

func (w *Worker) emitResponse(corrID string, resp dap.Message, err error) {
	w.emit(envelope.Message{Kind: envelope.KindDAPResponse, DAPResponse: &envelope.DAPResponsePayload{
		CorrelationID: corrID,
		Response:      resp,
		Err:           err,
	}})
}

func fmtErr(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
