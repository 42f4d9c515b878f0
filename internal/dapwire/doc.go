// Package dapwire 实现 DAP (Debug Adapter Protocol) 的线路层。
// 它负责长度前缀帧的编解码、请求-响应的序号关联，以及对单条 DAP
// 连接（TCP 或 stdio）的读写封装，供上层的代理 worker 使用。
package dapwire
