package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// FrameTrace 是一条 NDJSON 线路帧记录。Payload 保持原始
// JSON，不做二次解析——这里只是一份原始线路抓包，不是日志流。
type FrameTrace struct {
	Timestamp time.Time       `json:"ts"`
	Direction string          `json:"direction"`
	Payload   json.RawMessage `json:"payload"`
}

// FrameTracer 把经过 dapwire.Client 的每一条 DAP 帧追加写入一个
// NDJSON 文件。与日志记录器（logrus）无关：这是协议层面的原始抓包，
// 所以只用 encoding/json.Encoder，原始 json.RawMessage 直接落盘，
// 不做结构化包装。
type FrameTracer struct {
	mu  sync.Mutex
	enc *json.Encoder
	w   io.WriteCloser

	// now 允许测试注入固定时钟。
	now func() time.Time
}

// NewFrameTracer 包装一个可写的文件句柄。调用方负责打开/关闭该句柄
// 的生命周期边界，或者依赖 FrameTracer.Close。
func NewFrameTracer(w io.WriteCloser) *FrameTracer {
	return &FrameTracer{
		enc: json.NewEncoder(w),
		w:   w,
		now: time.Now,
	}
}

// TraceFrame 实现 dapwire.FrameTracer。direction 必须是 "in" 或 "out"。
func (t *FrameTracer) TraceFrame(direction string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := FrameTrace{
		Timestamp: t.now(),
		Direction: direction,
		Payload:   append(json.RawMessage(nil), payload...),
	}
	if err := t.enc.Encode(rec); err != nil {
		fmt.Fprintf(t.w, `{"trace_error":%q}`+"\n", err.Error())
	}
}

// Close 关闭底层文件句柄。
func (t *FrameTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.Close()
}
