// Package envelope 实现 Proxy Worker 与 Session Manager 之间的消息
// 总线：一组有序、带类型的消息，在本实现中通过 Go channel 传递，从而
// 对调用方屏蔽"这是进程内 goroutine 还是外部 IPC/管道"的区别。
package envelope

import (
	dap "github.com/google/go-dap"
)

// Kind 标识信封消息的种类。
type Kind string

const (
	// Parent -> Worker

	// KindInit 请求 worker 初始化（选策略、建连接、握手）。
	KindInit Kind = "init"
	// KindDAP 请求 worker 代为发送一条 DAP 命令。
	KindDAP Kind = "dap"
	// KindTerminate 请求 worker 优雅关闭。
	KindTerminate Kind = "terminate"

	// Worker -> Parent

	// KindStatus 携带 worker 生命周期状态变化。
	KindStatus Kind = "status"
	// KindDAPResponse 携带一次 dap 命令的结果。
	KindDAPResponse Kind = "dapResponse"
	// KindDAPEvent 携带适配器上报的一条 DAP 事件。
	KindDAPEvent Kind = "dapEvent"
	// KindError 携带 worker 侧的致命错误。
	KindError Kind = "error"
)

// Status 是 KindStatus 消息携带的状态标签。
type Status string

const (
	StatusAcknowledged       Status = "acknowledged"
	StatusAdapterConnected   Status = "adapter_connected"
	StatusConfiguredLaunched Status = "adapter_configured_and_launched"
	StatusDryRunComplete     Status = "dry_run_complete"
	StatusTerminated         Status = "terminated"
)

// Message 是总线上流转的单条信封消息，总是携带 SessionID 以便
// Session Manager 把消息路由回正确的会话。
type Message struct {
	Kind      Kind
	SessionID string

	// Init 仅在 Kind == KindInit 时有效。
	Init *InitPayload
	// DAPCommand 仅在 Kind == KindDAP（parent->worker）时有效。
	DAPCommand *DAPCommandPayload
	// DAPResponse 仅在 Kind == KindDAPResponse 时有效。
	DAPResponse *DAPResponsePayload
	// DAPEvent 仅在 Kind == KindDAPEvent 时有效。
	DAPEvent dap.EventMessage
	// Status 仅在 Kind == KindStatus 时有效。
	Status Status
	// StatusData 携带状态消息的附加数据（如 dry-run 快照）。
	StatusData map[string]interface{}
	// Err 仅在 Kind == KindError 时有效。
	Err error
}

// BreakpointSpec is the minimal shape of a breakpoint the worker needs to
// re-assert at launch time, grouped by file in InitPayload.
type BreakpointSpec struct {
	ID        string
	Line      int
	Condition string
}

// InitPayload 是 worker 初始化所需的全部输入。
type InitPayload struct {
	Language           string
	PolicyName         string
	ScriptPath         string
	Args               []string
	LaunchConfig       map[string]interface{}
	DryRun             bool
	AdapterOverride    map[string]interface{}
	LogDir             string
	TraceFramesToPath  string
	InitialBreakpoints map[string][]BreakpointSpec
}

// DAPCommandPayload 是请求 worker 转发的一条 DAP 命令及其关联标识。
type DAPCommandPayload struct {
	// CorrelationID 由调用方生成，用于把 KindDAPResponse 对应回发起者
	// （总线内部不关心 DAP 自身的 request_seq，那是 dapwire.Tracker 的
	// 职责）。
	CorrelationID string
	Request       dap.RequestMessage
	TimeoutMS     int
}

// DAPResponsePayload 是一次 dap 命令的结果。
type DAPResponsePayload struct {
	CorrelationID string
	Response      dap.Message
	Err           error
}
