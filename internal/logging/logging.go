// Package logging 提供整个调试桥接服务共用的结构化日志构造方式：
// 一个通过构造函数注入的 *logrus.Logger，调用方用 logrus.Fields
// 附加上下文字段。
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New 构造一个标准配置的 logrus.Logger：文本格式、按 level 过滤、
// 默认写到 output（nil 时落到 os.Stderr）。
func New(level string, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stderr
	}
	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(strings.TrimSpace(strings.ToLower(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
