// Package sessionstore 是调试会话的进程内登记表：会话的生命周期态、
// 执行态与断点表都通过它读写，保证所有观察者看到一致的状态演进顺序。
// 会话状态分两条独立轴线：跨运行的生命周期态（Created/Active/
// Terminated）与单次调试运行内的执行态（Created/Initializing/Running/
// Paused/Stopped/Error）。
package sessionstore

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// LifecycleState 是跨越多次调试运行持续存在的会话态。
type LifecycleState string

const (
	LifecycleCreated    LifecycleState = "Created"
	LifecycleActive     LifecycleState = "Active"
	LifecycleTerminated LifecycleState = "Terminated"
)

// ExecutionState 是单次调试运行期间的状态。
type ExecutionState string

const (
	ExecCreated      ExecutionState = "Created"
	ExecInitializing ExecutionState = "Initializing"
	ExecRunning      ExecutionState = "Running"
	ExecPaused       ExecutionState = "Paused"
	ExecStopped      ExecutionState = "Stopped"
	ExecError        ExecutionState = "Error"
)

// TriState 编码条件断点验证的"未知/是/否"三态。
type TriState int

const (
	TriUnset TriState = iota
	TriTrue
	TriFalse
)

// Breakpoint 是一个按文件路径+行号登记的断点。
type Breakpoint struct {
	ID                string
	File              string
	Line              int
	Condition         string
	Verified          bool
	Message           string
	ConditionVerified TriState
	ConditionError    string
}

// ToolchainValidation 是 StartDebugging 对工具链不兼容情况的结构化
// 记录。
type ToolchainValidation struct {
	Compatible bool
	Behavior   string // "continue" | "warn" | "error"
	Message    string
}

// Session 是一个具名、有状态的调试上下文。所有字段的读写都必须通过
// 其方法加锁完成；Store 只负责按 ID 索引 Session 指针本身。
type Session struct {
	mu sync.RWMutex

	id             string
	language       string
	name           string
	executableHint string
	createdAt      time.Time
	updatedAt      time.Time
	logDir         string
	policyID       string

	lifecycle LifecycleState
	execution ExecutionState

	breakpoints map[string]*Breakpoint
	nextBPSeq   int

	currentThreadID int
	hasThreadID     bool

	toolchain *ToolchainValidation

	// hasWorker 记录当前是否存在一个与此会话关联的 Proxy Worker。
	// 实际 worker 对象由 sessionmanager 单独持有，Session 本身不引用
	// worker 类型，避免包之间的循环依赖。
	hasWorker bool
}

// NewSession 创建一个处于 Created/Created 态的新会话。
func NewSession(language, name, executableHint string) *Session {
	now := time.Now()
	return &Session{
		id:             uuid.New().String(),
		language:       language,
		name:           name,
		executableHint: executableHint,
		createdAt:      now,
		updatedAt:      now,
		lifecycle:      LifecycleCreated,
		execution:      ExecCreated,
		breakpoints:    make(map[string]*Breakpoint),
	}
}

func (s *Session) ID() string             { return s.id }
func (s *Session) Language() string       { return s.language }
func (s *Session) Name() string           { return s.name }
func (s *Session) ExecutableHint() string { return s.executableHint }
func (s *Session) CreatedAt() time.Time   { return s.createdAt }

func (s *Session) SetLogDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logDir = dir
}

func (s *Session) LogDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logDir
}

func (s *Session) SetPolicyID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policyID = id
}

func (s *Session) PolicyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policyID
}

func (s *Session) Lifecycle() LifecycleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lifecycle
}

func (s *Session) SetLifecycle(st LifecycleState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifecycle = st
	s.updatedAt = time.Now()
}

func (s *Session) Execution() ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.execution
}

func (s *Session) SetExecution(st ExecutionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execution = st
	s.updatedAt = time.Now()
}

// CompareAndSetExecution 只有当当前执行态等于 expect 时才更新为 next，
// 返回是否发生了更新。事件处理路径与工具调用路径可能并发改写执行态，
// 需要条件转移时用它而不是先读后写。
func (s *Session) CompareAndSetExecution(expect, next ExecutionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execution != expect {
		return false
	}
	s.execution = next
	s.updatedAt = time.Now()
	return true
}

func (s *Session) SetHasWorker(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasWorker = v
}

func (s *Session) HasWorker() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasWorker
}

func (s *Session) SetCurrentThreadID(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentThreadID = id
	s.hasThreadID = true
}

func (s *Session) CurrentThreadID() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentThreadID, s.hasThreadID
}

func (s *Session) ClearThreadID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasThreadID = false
	s.currentThreadID = 0
}

func (s *Session) SetToolchainValidation(v *ToolchainValidation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolchain = v
}

func (s *Session) ToolchainValidation() *ToolchainValidation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.toolchain
}

// UpsertBreakpoint inserts or overwrites a breakpoint entry keyed by its
// internal ID (allocating one if bp.ID is empty) and returns the stored
// pointer.
func (s *Session) UpsertBreakpoint(bp Breakpoint) *Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bp.ID == "" {
		s.nextBPSeq++
		bp.ID = uuid.New().String()
	}
	stored := bp
	s.breakpoints[stored.ID] = &stored
	s.updatedAt = time.Now()
	return &stored
}

// BreakpointsForFile 返回某文件当前登记的全部断点（深拷贝，调用方
// 可以安全修改）。
func (s *Session) BreakpointsForFile(file string) []*Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Breakpoint
	for _, bp := range s.breakpoints {
		if bp.File == file {
			cp := *bp
			out = append(out, &cp)
		}
	}
	return out
}

// UpdateBreakpoint mutates a stored breakpoint in place via fn, identified
// by ID. Returns false if the ID is unknown.
func (s *Session) UpdateBreakpoint(id string, fn func(*Breakpoint)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp, ok := s.breakpoints[id]
	if !ok {
		return false
	}
	fn(bp)
	s.updatedAt = time.Now()
	return true
}

// Breakpoint returns a copy of a single stored breakpoint by id.
func (s *Session) Breakpoint(id string) (*Breakpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bp, ok := s.breakpoints[id]
	if !ok {
		return nil, false
	}
	cp := *bp
	return &cp, true
}

// AllBreakpoints returns a copy of every breakpoint currently registered on
// the session, across all files.
func (s *Session) AllBreakpoints() []*Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Breakpoint, 0, len(s.breakpoints))
	for _, bp := range s.breakpoints {
		cp := *bp
		out = append(out, &cp)
	}
	return out
}
