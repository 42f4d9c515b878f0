package dapwire

import (
	"fmt"
	"sync"
	"time"

	dap "github.com/google/go-dap"
)

// DefaultRequestTimeout 是单条 DAP 请求的默认超时时间。
const DefaultRequestTimeout = 30 * time.Second

// TimeoutError 在请求超过其截止时间仍未收到响应时返回。
type TimeoutError struct {
	Command string
	Seq     int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dap request timed out: %s (seq=%d)", e.Command, e.Seq)
}

// DisconnectedError 在连接关闭时，用于拒绝所有仍在等待的请求。
type DisconnectedError struct{}

func (e *DisconnectedError) Error() string { return "dap connection disconnected" }

// RequestFailedError wraps an adapter-reported failure (response.success ==
// false) with the command name and the extracted error message, so callers can distinguish a
// dap-request-failed from a timeout or disconnect.
type RequestFailedError struct {
	Command string
	Message string
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("dap request failed: %s: %s", e.Command, e.Message)
}

// Result 是 Tracker 对一次请求的最终裁决：要么拿到响应消息，要么拿到
// 一个结构化的错误（超时、连接断开，或适配器报告失败时的
// RequestFailedError）。
type Result struct {
	Message dap.Message
	Err     error
}

type pendingRequest struct {
	command string
	ch      chan Result
	timer   *time.Timer
	done    bool
}

// Tracker 按 request_seq 关联发出的请求与收到的响应，并为每个请求
// 维护一个独立的超时计时器。晚到的、已经超时或已关闭的响应会被
// 丢弃并交给 OnLateResponse 回调（Client 用它记录一条日志），而不是
// 引发 panic。
type Tracker struct {
	mu      sync.Mutex
	seq     int
	pending map[int]*pendingRequest
	closed  bool

	onLateResponse func(seq int)
}

// NewTracker 创建一个空的请求追踪器。
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[int]*pendingRequest)}
}

// OnLateResponse 注册一个回调，在收到一个已经被驱逐（超时或已关闭）的
// seq 的响应时调用，便于上层记录日志。
func (t *Tracker) OnLateResponse(fn func(seq int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLateResponse = fn
}

// NextSeq 分配并返回下一个请求序号。
func (t *Tracker) NextSeq() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	return t.seq
}

// Track 登记一个已分配 seq 的请求，返回一个会在响应到达、超时或
// 追踪器关闭时写入且随后关闭的通道。timeout<=0 时使用
// DefaultRequestTimeout。
func (t *Tracker) Track(seq int, command string, timeout time.Duration) (<-chan Result, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, &DisconnectedError{}
	}

	ch := make(chan Result, 1)
	entry := &pendingRequest{command: command, ch: ch}
	t.pending[seq] = entry
	entry.timer = time.AfterFunc(timeout, func() {
		t.settle(seq, Result{Err: &TimeoutError{Command: command, Seq: seq}})
	})
	t.mu.Unlock()

	return ch, nil
}

// Resolve 把一条收到的响应消息投递给对应的等待者。没有匹配的等待者时
// （请求已超时、已被驱逐或从未被追踪），触发 onLateResponse 回调并丢弃
// 这条响应。
func (t *Tracker) Resolve(seq int, msg dap.Message) {
	if !t.settle(seq, Result{Message: msg}) {
		t.mu.Lock()
		cb := t.onLateResponse
		t.mu.Unlock()
		if cb != nil {
			cb(seq)
		}
	}
}

// Reject settles a pending request with an adapter-reported failure rather
// than a successful message. Same late/evicted-entry handling as Resolve.
func (t *Tracker) Reject(seq int, err error) {
	if !t.settle(seq, Result{Err: err}) {
		t.mu.Lock()
		cb := t.onLateResponse
		t.mu.Unlock()
		if cb != nil {
			cb(seq)
		}
	}
}

// settle 是驱逐/解决请求的唯一入口：找到对应条目、停止计时器、
// 投递结果并关闭通道。返回 false 表示该 seq 已经不在等待表中。
func (t *Tracker) settle(seq int, res Result) bool {
	t.mu.Lock()
	entry, ok := t.pending[seq]
	if ok {
		delete(t.pending, seq)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}

	entry.timer.Stop()
	entry.ch <- res
	close(entry.ch)
	return true
}

// Shutdown 以 DisconnectedError 拒绝所有仍在等待的请求，并阻止后续
// 的 Track 调用成功。
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	pending := t.pending
	t.pending = make(map[int]*pendingRequest)
	t.mu.Unlock()

	for _, entry := range pending {
		entry.timer.Stop()
		entry.ch <- Result{Err: &DisconnectedError{}}
		close(entry.ch)
	}
}

// PendingCount 返回当前仍在等待响应的请求数量，主要用于测试断言。
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
