package dapwire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// headerTerminator 是 DAP 头部与消息体之间的分隔符。
var headerTerminator = []byte("\r\n\r\n")

// Framer 对一段只追加的字节缓冲区做 DAP 帧切分。头部大小写不敏感地
// 匹配 Content-Length；长度非法时丢弃该头部并继续扫描，而不是让整个
// 连接失败。
//
// Framer 本身不关心消息体的 JSON 结构，只负责把字节流切成一条条完整帧。
type Framer struct {
	buf    bytes.Buffer
	logger *logrus.Logger
}

// NewFramer 创建一个空的帧切分器。logger 可以为 nil。
func NewFramer(logger *logrus.Logger) *Framer {
	return &Framer{logger: logger}
}

// Feed 追加新读到的字节。
func (f *Framer) Feed(p []byte) {
	f.buf.Write(p)
}

// Next 尝试从缓冲区中取出一条完整的帧体（不含 Content-Length 头）。
// 返回 ok=false 表示缓冲区里还没有一条完整的帧，调用方应当继续 Feed。
// 非法的 Content-Length 头会被丢弃，并从紧随其后的字节继续扫描缓冲区
// 中剩余的数据，而不会返回错误终止读循环。只丢弃头部块本身：跟在它
// 后面的消息体字节不会被跳过，会计入下一次头部扫描。
func (f *Framer) Next() (body []byte, ok bool, err error) {
	for {
		raw := f.buf.Bytes()
		idx := bytes.Index(raw, headerTerminator)
		if idx < 0 {
			return nil, false, nil
		}

		headerBlock := raw[:idx]
		length, valid := parseContentLength(headerBlock, f.logger)
		bodyStart := idx + len(headerTerminator)

		if !valid {
			// 丢弃这段头部，从紧随其后的位置继续扫描，寄希望于后续字节里
			// 还能找到一个合法的帧边界。
			f.buf.Next(bodyStart)
			continue
		}

		if len(raw) < bodyStart+length {
			// 头部已确认，但消息体还没读全，等待更多数据。
			return nil, false, nil
		}

		body = append([]byte(nil), raw[bodyStart:bodyStart+length]...)
		f.buf.Next(bodyStart + length)
		return body, true, nil
	}
}

// parseContentLength 在一个头部块（可能含多行 Header: value）里查找
// Content-Length，大小写不敏感。非数字或非正数视为非法。
func parseContentLength(headerBlock []byte, logger *logrus.Logger) (int, bool) {
	lines := strings.Split(string(headerBlock), "\r\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(parts[0]), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || n <= 0 {
			if logger != nil {
				logger.WithField("value", parts[1]).Warn("dapwire: invalid Content-Length header, discarding frame")
			}
			return 0, false
		}
		return n, true
	}
	if logger != nil {
		logger.Warn("dapwire: missing Content-Length header, discarding frame")
	}
	return 0, false
}

// EncodeFrame 把一条 JSON 消息体包装成完整的 DAP 线路帧：
// Content-Length: N\r\n\r\n<json>。
func EncodeFrame(body []byte) []byte {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	out = append(out, body...)
	return out
}
