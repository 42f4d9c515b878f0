package dapwire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	dap "github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// FrameTracer 记录每一条经过 Client 的 DAP 帧，用于按会话落盘的
// NDJSON 线路追踪。Direction 是 "in" 或 "out"。
type FrameTracer interface {
	TraceFrame(direction string, payload []byte)
}

// ReverseRequestHandler 处理由适配器发起、指向客户端的反向请求
// （如 runInTerminal、startDebugging）。实现者负责构造并通过
// Client.Respond 把响应写回适配器。
type ReverseRequestHandler func(req dap.RequestMessage)

// Client 是到单个 DAP 适配器的一条连接：可以是 TCP 套接字（debugpy、
// js-debug、CodeLLDB），也可以是子进程的 stdio 管道（lldb-dap）。
// 一个 Client 只服务于一个 Proxy Worker。
type Client struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	framer *Framer
	logger *logrus.Logger
	tracer FrameTracer

	tracker *Tracker

	writeMu sync.Mutex

	onEvent   func(dap.EventMessage)
	onReverse ReverseRequestHandler

	connected bool
	closeOnce sync.Once
}

// New 包装一条已建立的读写连接（net.Conn 或子进程 stdio 管道）为
// DAP 客户端。调用方必须在返回后调用 Serve 启动读循环。
func New(rwc io.ReadWriteCloser, logger *logrus.Logger) *Client {
	c := &Client{
		rwc:       rwc,
		reader:    bufio.NewReader(rwc),
		framer:    NewFramer(logger),
		logger:    logger,
		tracker:   NewTracker(),
		connected: true,
	}
	if logger != nil {
		c.tracker.OnLateResponse(func(seq int) {
			logger.WithField("seq", seq).Warn("dapwire: discarding late response for an evicted request")
		})
	}
	return c
}

// SetEventHandler 注册事件回调；每条 inbound 的 DAP 事件都会转发到这里。
func (c *Client) SetEventHandler(fn func(dap.EventMessage)) {
	c.onEvent = fn
}

// SetReverseRequestHandler 注册反向请求回调。
func (c *Client) SetReverseRequestHandler(fn ReverseRequestHandler) {
	c.onReverse = fn
}

// SetFrameTracer 启用线路帧追踪。
func (c *Client) SetFrameTracer(tracer FrameTracer) {
	c.tracer = tracer
}

// Serve 阻塞运行读循环，直到连接关闭或读取失败。应当在独立的
// goroutine 中调用。
func (c *Client) Serve() error {
	buf := make([]byte, 4096)
	for {
		n, err := c.reader.Read(buf)
		if n > 0 {
			c.framer.Feed(buf[:n])
			for {
				body, ok, ferr := c.framer.Next()
				if ferr != nil {
					return ferr
				}
				if !ok {
					break
				}
				c.dispatchInbound(body)
			}
		}
		if err != nil {
			c.tracker.Shutdown()
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (c *Client) dispatchInbound(body []byte) {
	if c.tracer != nil {
		c.tracer.TraceFrame("in", body)
	}

	msg, err := dap.DecodeProtocolMessage(body)
	if err != nil {
		if c.logger != nil {
			c.logger.WithError(err).Warn("dapwire: failed to decode inbound DAP message")
		}
		return
	}

	switch m := msg.(type) {
	case dap.ResponseMessage:
		resp := m.GetResponse()
		if resp.Success {
			c.tracker.Resolve(resp.RequestSeq, msg)
		} else {
			c.tracker.Reject(resp.RequestSeq, &RequestFailedError{
				Command: resp.Command,
				Message: extractDAPErrorMessage(resp.Message, body),
			})
		}
	case dap.EventMessage:
		if c.onEvent != nil {
			c.onEvent(m)
		}
	case dap.RequestMessage:
		if c.onReverse != nil {
			c.onReverse(m)
		}
	default:
		if c.logger != nil {
			c.logger.WithField("type", fmt.Sprintf("%T", msg)).Warn("dapwire: unrecognized inbound DAP message")
		}
	}
}

// writeMessage 序列化并写出任意 DAP 消息，带写互斥。
func (c *Client) writeMessage(msg dap.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.tracer != nil {
		if b, err := marshalForTrace(msg); err == nil {
			c.tracer.TraceFrame("out", b)
		}
	}
	return dap.WriteProtocolMessage(c.rwc, msg)
}

// SendRequest 发送一条请求并阻塞等待匹配 request_seq 的响应，直到
// 超时、连接关闭或响应到达。请求的 Seq 字段由 Tracker 分配并写回
// 调用方传入的 req。
func (c *Client) SendRequest(req dap.RequestMessage, timeout time.Duration) (dap.Message, error) {
	base := req.GetRequest()
	seq := c.tracker.NextSeq()
	base.Seq = seq

	ch, err := c.tracker.Track(seq, base.Command, timeout)
	if err != nil {
		return nil, err
	}

	if err := c.writeMessage(req); err != nil {
		return nil, err
	}

	result := <-ch
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Message, nil
}

// Respond 把一条响应（通常针对反向请求）写回适配器。
func (c *Client) Respond(resp dap.Message) error {
	return c.writeMessage(resp)
}

// NextSeq 分配下一个协议序号，供上层构造反向请求响应等由本端发起的消息
// 使用，保持与 SendRequest 同一个序号空间。
func (c *Client) NextSeq() int {
	return c.tracker.NextSeq()
}

// OnLateResponse 见 Tracker.OnLateResponse。
func (c *Client) OnLateResponse(fn func(seq int)) {
	c.tracker.OnLateResponse(fn)
}

// PendingRequestCount 返回仍在等待响应的请求数，用于测试与内省。
func (c *Client) PendingRequestCount() int {
	return c.tracker.PendingCount()
}

// Close 关闭底层连接并拒绝所有挂起请求。多次调用是安全的。
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected = false
		c.tracker.Shutdown()
		err = c.rwc.Close()
	})
	return err
}

// IsConnected 报告连接是否仍然建立。
func (c *Client) IsConnected() bool {
	return c.connected
}

func marshalForTrace(msg dap.Message) ([]byte, error) {
	return json.Marshal(msg)
}
