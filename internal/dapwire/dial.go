package dapwire

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialTCPWithRetry 反复尝试连接 addr，直到成功或 ctx 被取消。大多数
// 适配器（debugpy、js-debug、CodeLLDB）在子进程刚启动的一小段时间内
// 还没有开始监听，这里以固定间隔重试把这段启动延迟隐藏起来。
func DialTCPWithRetry(ctx context.Context, addr string, interval time.Duration) (net.Conn, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	var lastErr error
	var dialer net.Dialer
	for {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("timed out connecting to %s: %w (last error: %v)", addr, ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("timed out connecting to %s: %w", addr, ctx.Err())
		default:
		}

		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("timed out connecting to %s: %w (last error: %v)", addr, ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
}
