// Package policy 为每一种受支持的调试器家族（debugpy、js-debug、CodeLLDB、
// lldb-dap、mock）封装其独有的古怪行为：如何拼出子进程命令行、哪些命令
// 需要排队等 initialized 事件、如何处理反向请求、如何规整 launch
// 配置、以及何时认为会话已经就绪。Proxy Worker 在初始化时只选择一次
// 策略，运行期间不再按适配器类型分支。
package policy

import (
	"context"
	"fmt"

	dap "github.com/google/go-dap"
)

// Transport 标识 Proxy Worker 应当如何连接到已启动的适配器进程。
type Transport string

const (
	// TransportTCP 表示适配器监听一个 TCP 端口（debugpy、js-debug、
	// CodeLLDB）。
	TransportTCP Transport = "tcp"
	// TransportStdio 表示适配器把 DAP 帧直接读写在自己的 stdin/stdout
	// 上（lldb-dap）。
	TransportStdio Transport = "stdio"
	// TransportMock 表示不存在真实子进程：Proxy Worker 应当启动一个
	// 进程内的模拟适配器，仅用于测试。
	TransportMock Transport = "mock"
)

// SpawnConfig 是某个适配器家族的规范化子进程调用方式。
type SpawnConfig struct {
	Command   string
	Args      []string
	Env       []string
	Transport Transport
}

// InitializationBehavior 描述该适配器握手阶段的差异点。
type InitializationBehavior struct {
	// DeferConfigDone 为 true 时，configurationDone 要等待策略认为合适的
	// 时机（通常与命令排队一起使用）才发送。
	DeferConfigDone bool
	// RequiresInitialStop 为 true 时，Proxy Worker 在 launch/attach 之后
	// 异步轮询 threads 并对第一个线程发 pause，保证用户在单步之前有一个
	// 确定的停止点。
	RequiresInitialStop bool
	// AddRuntimeExecutable 是策略声明的描述性标志：Proxy Worker 不读取它，
	// 规整 launch 参数时也不会注入 runtimeExecutable。
	AddRuntimeExecutable bool
	// TrackInitializeResponse 为 true 表示该策略会在 initialize 响应后
	// 置位 State.InitializeResponded；没有排队判定读取这个字段。
	TrackInitializeResponse bool
}

// QueueDecision 是 ShouldQueueCommand 对单条命令的判定结果。
type QueueDecision struct {
	ShouldQueue bool
	ShouldDefer bool
	Reason      string
}

// ReverseOutcome 是 HandleReverseRequest 的判定结果。
type ReverseOutcome struct {
	Handled          bool
	CreateChildSession bool
	ChildConfig      *ChildSessionConfig
}

// ChildSessionConfig 描述如何连接一个由反向 startDebugging 请求指定的
// 子调试会话。
type ChildSessionConfig struct {
	Host string
	Port int
	// LaunchArgs 是子会话握手时使用的（已规整的）launch 参数。
	LaunchArgs map[string]interface{}
}

// ReadinessOptions 是 IsSessionReady 判定所需的上下文。
type ReadinessOptions struct {
	StopOnEntry bool
}

// State 是某一次调试运行期间，策略钩子读写的一小包布尔值/计数器。
// 由 NewState 构造；策略钩子与 Proxy Worker 都会写入其字段。
type State struct {
	InitializeResponded bool
	LaunchSent          bool
	ConfiguredAndLaunched bool
	ConfigDoneSent      bool
	Extra               map[string]interface{}
}

// NewState 返回一个空的 Adapter State。
func NewState() *State {
	return &State{Extra: make(map[string]interface{})}
}

// QueuedCommand 是命令队列中挂起的一条待发送 DAP 请求。
type QueuedCommand struct {
	Request dap.RequestMessage
	// Silent 为 true 时，排空队列时发送该命令但不把响应转发给上游调用方
	// （例如策略自行注入的防抖 configurationDone）。
	Silent bool
}

// Policy 是每个适配器家族必须实现的稳定能力集合。
// 所有实现都不可持有可变状态：每次运行期间的可变数据交给调用方通过
// State 参数传入/携带。
type Policy interface {
	// Name 是这条策略的稳定标识（如 "debugpy"、"js-debug"、"default"）。
	Name() string

	// MatchesAdapter 通过模式匹配可执行文件/参数来识别适配器家族。
	MatchesAdapter(spawn SpawnConfig) bool

	// GetAdapterSpawnConfig 返回规范化的子进程调用方式。
	GetAdapterSpawnConfig(ctx context.Context, opts SpawnOptions) (SpawnConfig, error)

	// GetDapAdapterConfiguration 返回 initialize 请求里使用的 adapterId。
	GetDapAdapterConfiguration() DapAdapterConfiguration

	// GetInitializationBehavior 描述握手阶段的行为差异。
	GetInitializationBehavior() InitializationBehavior

	// RequiresCommandQueueing 为 true 表示命令可能要推迟到 initialized
	// 事件之后才发送（js-debug）。
	RequiresCommandQueueing() bool

	// ShouldQueueCommand 对单条命令做细粒度排队判定。
	ShouldQueueCommand(cmd dap.RequestMessage, state *State) QueueDecision

	// ProcessQueuedCommands 对排空顺序重新排序（例如确保 setBreakpoints
	// 先于 configurationDone）。返回 nil 表示保持原顺序。
	ProcessQueuedCommands(queue []QueuedCommand, state *State) []QueuedCommand

	// UpdateStateOnCommand/OnResponse/OnEvent 在对应时机变更 Adapter
	// State；实现可以什么都不做。
	UpdateStateOnCommand(cmd dap.RequestMessage, state *State)
	UpdateStateOnResponse(cmd dap.RequestMessage, resp dap.Message, state *State)
	UpdateStateOnEvent(ev dap.EventMessage, state *State)

	// HandleReverseRequest 处理适配器发起的反向请求；Handled=false 表示
	// 交给默认处理（对未知命令回复空 success）。
	HandleReverseRequest(req dap.RequestMessage, state *State) ReverseOutcome

	// PerformHandshake 是 launch 之后的就绪例程（如 CodeLLDB 在报告就绪前
	// 留出一段固定的短暂稳定窗口）。大多数策略什么也不做。
	PerformHandshake(ctx context.Context, state *State) error

	// IsSessionReady 给定当前执行态和启动选项，判断是否可以向调用方
	// 报告"已就绪"。
	IsSessionReady(execState string, opts ReadinessOptions, state *State) bool

	// StackTraceRequiresChild 为 true 时，stackTrace 必须路由到子会话，
	// 没有父会话回退。
	StackTraceRequiresChild() bool

	// NormalizeInitializeArgs / NormalizeLaunchConfig 在发送前规整
	// initialize/launch 参数。
	NormalizeInitializeArgs(args dap.InitializeRequestArguments) dap.InitializeRequestArguments
	NormalizeLaunchConfig(cfg map[string]interface{}) map[string]interface{}
}

// DapAdapterConfiguration 携带 initialize 请求需要的 adapterId。
type DapAdapterConfiguration struct {
	AdapterID string
}

// SpawnOptions 是构造 SpawnConfig 所需的运行期输入。
type SpawnOptions struct {
	Port           int
	ScriptPath     string
	Args           []string
	PythonExe      string
	NodeExe        string
	LLDBExe        string
	CodeLLDBExe    string
	VendorJSDebug  string
	Host           string
}

// Addr 返回 TCP 适配器应当监听/被连接的地址。
func (o SpawnOptions) Addr() string {
	host := o.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, o.Port)
}
