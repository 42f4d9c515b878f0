// Package main 是调试桥接服务的入口点，即核心之外的外层 RPC 工具
// 分发面：把 internal/sessionmanager.Manager 的每个操作包装成一个
// mcp.Tool，让 AI 代理通过标准化的 MCP 协议驱动任意语言的单步调试
// 会话，一个操作一对 newToolX/handleX。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/oriys/dapbridge/internal/logging"
	"github.com/oriys/dapbridge/internal/policy"
	"github.com/oriys/dapbridge/internal/sessionmanager"
	"github.com/oriys/dapbridge/internal/sessionstore"
)

// 服务器常量
const (
	serverName    = "dapbridge-mcp"
	serverVersion = "0.1.0"
)

// main 解析核心识别的三个环境变量（帧追踪路径、容器预加载模式、
// 禁用语言列表），构造 Session Manager，并把它的每个操作注册为一个
// MCP 工具，通过 stdio 提供服务。CLI/argv 解析与配置加载只在这个
// cmd 包里出现，核心各包不读取环境。
func main() {
	logLevel := flag.String("log-level", getenv("DAPBRIDGE_LOG_LEVEL", "info"), "日志级别")
	logRootDir := flag.String("log-dir", getenv("DAPBRIDGE_LOG_DIR", os.TempDir()), "每会话日志目录的根路径")
	pythonExe := flag.String("python", getenv("DAPBRIDGE_PYTHON", "python3"), "debugpy 解释器")
	nodeExe := flag.String("node", getenv("DAPBRIDGE_NODE", "node"), "js-debug 运行所需的 node 可执行文件")
	lldbExe := flag.String("lldb-dap", getenv("DAPBRIDGE_LLDB_DAP", "lldb-dap"), "lldb-dap 可执行文件")
	codelldbExe := flag.String("codelldb", getenv("DAPBRIDGE_CODELLDB", "codelldb"), "codelldb 可执行文件")
	vendorJSDebug := flag.String("vs-debug-server", getenv("DAPBRIDGE_VS_DEBUG_SERVER", ""), "vendored vsDebugServer.js 路径")
	flag.Parse()

	stderrLogger := log.New(os.Stderr, "dapbridge-mcp: ", log.LstdFlags)
	logger := logging.New(*logLevel, os.Stderr)

	// DAPBRIDGE_TRACE_FRAMES：启用每会话 NDJSON DAP 帧追踪的目标路径。
	traceFramesToPath := strings.TrimSpace(os.Getenv("DAPBRIDGE_TRACE_FRAMES"))

	// DAPBRIDGE_CONTAINER_MODE：容器模式下预加载内置适配器，而不是
	// 依赖宿主 PATH。核心本身只读取这个开关并记录日志；
	// 真正的适配器发现/安装由部署层负责。
	if containerMode := strings.TrimSpace(os.Getenv("DAPBRIDGE_CONTAINER_MODE")); containerMode != "" {
		logger.WithField("container_mode", containerMode).Info("dapbridge: running with preloaded bundled adapters")
	}

	// DAPBRIDGE_DISABLED_LANGUAGES：逗号分隔的语言标签列表，CreateSession
	// 对其中任何一个都会以 unsupported-language 失败。
	disabled := parseDisabledLanguages(os.Getenv("DAPBRIDGE_DISABLED_LANGUAGES"))

	store := sessionstore.New()
	registry := policy.NewRegistry()
	manager := sessionmanager.New(store, registry, logger, nil, sessionmanager.Config{
		LogRootDir:        *logRootDir,
		TraceFramesToPath: traceFramesToPath,
		DisabledLanguages: disabled,
		PythonExe:         *pythonExe,
		NodeExe:           *nodeExe,
		LLDBExe:           *lldbExe,
		CodeLLDBExe:       *codelldbExe,
		VendorJSDebug:     *vendorJSDebug,
	})

	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithInstructions(
			"通过 DAP 对任意受支持语言（debugpy/js-debug/CodeLLDB/lldb-dap/mock）"+
				"进行单步调试：创建会话、设置断点、启动、单步/继续/暂停、"+
				"查看调用栈/作用域/变量、求值表达式。",
		),
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	registerTools(s, manager)

	if err := server.ServeStdio(s, server.WithErrorLogger(stderrLogger)); err != nil {
		stderrLogger.Fatal(err)
	}
}

// getenv 读取环境变量，不存在或为空时返回默认值。
func getenv(key, defaultValue string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	return v
}

// parseDisabledLanguages 把逗号分隔的语言标签列表解析成一个查找集合。
func parseDisabledLanguages(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		lang := strings.ToLower(strings.TrimSpace(part))
		if lang != "" {
			out[lang] = true
		}
	}
	return out
}

// registerTools 为 Session Manager 的每个公开操作注册一个
// MCP 工具。
func registerTools(s *server.MCPServer, m *sessionmanager.Manager) {
	s.AddTool(newToolCreateSession(), handleCreateSession(m))
	s.AddTool(newToolCloseSession(), handleCloseSession(m))
	s.AddTool(newToolCloseAllSessions(), handleCloseAllSessions(m))
	s.AddTool(newToolSetBreakpoint(), handleSetBreakpoint(m))
	s.AddTool(newToolStartDebugging(), handleStartDebugging(m))
	s.AddTool(newToolStepOver(), handleStepOver(m))
	s.AddTool(newToolStepInto(), handleStepInto(m))
	s.AddTool(newToolStepOut(), handleStepOut(m))
	s.AddTool(newToolContinue(), handleContinue(m))
	s.AddTool(newToolPause(), handlePause(m))
	s.AddTool(newToolGetStackTrace(), handleGetStackTrace(m))
	s.AddTool(newToolGetScopes(), handleGetScopes(m))
	s.AddTool(newToolGetVariables(), handleGetVariables(m))
	s.AddTool(newToolGetLocalVariables(), handleGetLocalVariables(m))
	s.AddTool(newToolEvaluateExpression(), handleEvaluateExpression(m))
}

// ============================================================================
// 会话生命周期
// ============================================================================

func newToolCreateSession() mcp.Tool {
	return mcp.NewTool(
		"create_session",
		mcp.WithDescription("创建一个新的调试会话（尚未启动适配器）"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("language", mcp.Description("语言标签，如 python/javascript/cpp/lldb-dap/mock"), mcp.Required()),
		mcp.WithString("name", mcp.Description("会话的可读名称（可选）")),
		mcp.WithString("executable_hint", mcp.Description("可执行文件提示（可选）")),
	)
}

func handleCreateSession(m *sessionmanager.Manager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		language, err := request.RequireString("language")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing language", err), nil
		}
		name := request.GetString("name", "")
		executableHint := request.GetString("executable_hint", "")

		sess, err := m.CreateSession(language, name, executableHint)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("create_session failed", err), nil
		}
		return mcp.NewToolResultJSON(map[string]interface{}{
			"success":    true,
			"session_id": sess.ID(),
			"language":   sess.Language(),
			"state":      string(sess.Lifecycle()),
		})
	}
}

func newToolCloseSession() mcp.Tool {
	return mcp.NewTool(
		"close_session",
		mcp.WithDescription("关闭一个调试会话（幂等）"),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()),
	)
}

func handleCloseSession(m *sessionmanager.Manager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing session_id", err), nil
		}
		existed := m.CloseSession(id)
		return mcp.NewToolResultJSON(map[string]interface{}{"success": true, "existed": existed})
	}
}

func newToolCloseAllSessions() mcp.Tool {
	return mcp.NewTool(
		"close_all_sessions",
		mcp.WithDescription("依次关闭所有存活的调试会话"),
		mcp.WithDestructiveHintAnnotation(true),
	)
}

func handleCloseAllSessions(m *sessionmanager.Manager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		m.CloseAllSessions()
		return mcp.NewToolResultJSON(map[string]interface{}{"success": true})
	}
}

// ============================================================================
// 断点
// ============================================================================

func newToolSetBreakpoint() mcp.Tool {
	return mcp.NewTool(
		"set_breakpoint",
		mcp.WithDescription("在给定文件/行号设置（或更新）一个断点，可带条件表达式"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()),
		mcp.WithString("file", mcp.Description("绝对文件路径，按原样转发，不做路径规范化"), mcp.Required()),
		mcp.WithNumber("line", mcp.Description("行号（从 1 开始）"), mcp.Required(), mcp.Min(1), mcp.MultipleOf(1)),
		mcp.WithString("condition", mcp.Description("条件表达式（可选）")),
	)
}

func handleSetBreakpoint(m *sessionmanager.Manager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing session_id", err), nil
		}
		file, err := request.RequireString("file")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing file", err), nil
		}
		line := request.GetInt("line", 0)
		condition := request.GetString("condition", "")

		bp, err := m.SetBreakpoint(id, file, line, condition)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("set_breakpoint failed", err), nil
		}
		return mcp.NewToolResultJSON(map[string]interface{}{
			"success":            true,
			"id":                 bp.ID,
			"file":               bp.File,
			"line":               bp.Line,
			"verified":           bp.Verified,
			"message":            bp.Message,
			"condition_verified": triStateString(bp.ConditionVerified),
			"condition_error":    bp.ConditionError,
		})
	}
}

func triStateString(t sessionstore.TriState) string {
	switch t {
	case sessionstore.TriTrue:
		return "true"
	case sessionstore.TriFalse:
		return "false"
	default:
		return "unset"
	}
}

// ============================================================================
// 启动调试
// ============================================================================

func newToolStartDebugging() mcp.Tool {
	return mcp.NewTool(
		"start_debugging",
		mcp.WithDescription("启动（或重启）一次调试运行：生成适配器进程、完成 DAP 握手，阻塞直到会话就绪或失败"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()),
		mcp.WithString("script_path", mcp.Description("按原样转发的脚本/程序路径"), mcp.Required()),
		mcp.WithArray("args", mcp.Description("传给被调试程序的参数（可选）")),
		mcp.WithObject("dap_launch_args", mcp.Description("合并进 launch 配置的额外 DAP 参数（可选）")),
		mcp.WithObject("adapter_launch_override", mcp.Description("覆盖 launch 配置的适配器特定字段（可选）")),
		mcp.WithBoolean("dry_run", mcp.Description("只报告将要执行的生成命令，不真正连接适配器"), mcp.DefaultBool(false)),
	)
}

func handleStartDebugging(m *sessionmanager.Manager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing session_id", err), nil
		}
		scriptPath, err := request.RequireString("script_path")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing script_path", err), nil
		}

		args, err := parseStringArgs(request.GetArguments()["args"])
		if err != nil {
			return mcp.NewToolResultErrorFromErr("invalid args", err), nil
		}
		dryRun := request.GetBool("dry_run", false)

		dapLaunchArgs, err := asObjectMap(request.GetArguments()["dap_launch_args"])
		if err != nil {
			return mcp.NewToolResultErrorFromErr("invalid dap_launch_args", err), nil
		}
		override, err := asObjectMap(request.GetArguments()["adapter_launch_override"])
		if err != nil {
			return mcp.NewToolResultErrorFromErr("invalid adapter_launch_override", err), nil
		}

		result, err := m.StartDebugging(id, scriptPath, args, dapLaunchArgs, dryRun, override)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("start_debugging failed", err), nil
		}
		return mcp.NewToolResultJSON(startResultPayload(result))
	}
}

func startResultPayload(r *sessionmanager.StartResult) map[string]interface{} {
	out := map[string]interface{}{
		"success": r.Success,
		"state":   r.State,
		"reason":  r.Reason,
	}
	if r.Data != nil {
		out["data"] = r.Data
	}
	if !r.Success {
		out["error"] = r.Error
		out["error_type"] = r.ErrorType
		out["can_continue"] = r.CanContinue
		if r.Toolchain != nil {
			out["toolchain"] = map[string]interface{}{
				"compatible": r.Toolchain.Compatible,
				"behavior":   r.Toolchain.Behavior,
				"message":    r.Toolchain.Message,
			}
		}
	}
	return out
}

// parseStringArgs decodes the "args" tool parameter, accepting either a
// JSON array of strings or its absence (nil, meaning no extra args).
func parseStringArgs(v interface{}) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("args must be an array of strings")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("args must be an array of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func asObjectMap(v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected an object")
	}
	return m, nil
}

// ============================================================================
// 单步/继续/暂停
// ============================================================================

func newToolStepOver() mcp.Tool {
	return mcp.NewTool("step_over", mcp.WithDescription("越过当前行（next）"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()))
}

func handleStepOver(m *sessionmanager.Manager) server.ToolHandlerFunc { return stepHandler(m.StepOver) }

func newToolStepInto() mcp.Tool {
	return mcp.NewTool("step_into", mcp.WithDescription("单步进入（stepIn）"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()))
}

func handleStepInto(m *sessionmanager.Manager) server.ToolHandlerFunc { return stepHandler(m.StepInto) }

func newToolStepOut() mcp.Tool {
	return mcp.NewTool("step_out", mcp.WithDescription("单步跳出（stepOut）"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()))
}

func handleStepOut(m *sessionmanager.Manager) server.ToolHandlerFunc { return stepHandler(m.StepOut) }

func newToolContinue() mcp.Tool {
	return mcp.NewTool("continue_execution", mcp.WithDescription("继续执行（continue）"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()))
}

func handleContinue(m *sessionmanager.Manager) server.ToolHandlerFunc { return stepHandler(m.Continue) }

func newToolPause() mcp.Tool {
	return mcp.NewTool("pause_execution", mcp.WithDescription("暂停执行（pause）"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()))
}

func handlePause(m *sessionmanager.Manager) server.ToolHandlerFunc { return stepHandler(m.Pause) }

// stepHandler 是 step/continue/pause 五个工具共用的处理函数外壳：它们
// 的签名都是 func(string) (*sessionmanager.StepResult, error)。
func stepHandler(op func(string) (*sessionmanager.StepResult, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing session_id", err), nil
		}
		result, err := op(id)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("operation failed", err), nil
		}
		out := map[string]interface{}{"success": result.Success}
		if result.Error != "" {
			out["error"] = result.Error
		}
		if result.Location != nil {
			out["location"] = map[string]interface{}{
				"file":   result.Location.File,
				"line":   result.Location.Line,
				"column": result.Location.Column,
			}
		}
		return mcp.NewToolResultJSON(out)
	}
}

// ============================================================================
// 检视：调用栈/作用域/变量
// ============================================================================

func newToolGetStackTrace() mcp.Tool {
	return mcp.NewTool(
		"get_stack_trace",
		mcp.WithDescription("获取当前线程的调用栈；会话未暂停时返回空列表而非报错"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()),
		mcp.WithBoolean("include_internals", mcp.Description("是否包含运行时/适配器内部栈帧"), mcp.DefaultBool(false)),
	)
}

func handleGetStackTrace(m *sessionmanager.Manager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing session_id", err), nil
		}
		includeInternals := request.GetBool("include_internals", false)
		frames, err := m.GetStackTrace(id, includeInternals)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("get_stack_trace failed", err), nil
		}
		items := make([]map[string]interface{}, 0, len(frames))
		for _, f := range frames {
			items = append(items, map[string]interface{}{
				"id": f.ID, "name": f.Name, "file": f.File, "line": f.Line, "column": f.Column,
			})
		}
		return mcp.NewToolResultJSON(map[string]interface{}{"success": true, "frames": items})
	}
}

func newToolGetScopes() mcp.Tool {
	return mcp.NewTool(
		"get_scopes",
		mcp.WithDescription("获取某个栈帧的作用域列表"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()),
		mcp.WithNumber("frame_id", mcp.Description("栈帧 ID（来自 get_stack_trace）"), mcp.Required(), mcp.MultipleOf(1)),
	)
}

func handleGetScopes(m *sessionmanager.Manager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing session_id", err), nil
		}
		frameID := request.GetInt("frame_id", 0)
		scopes, err := m.GetScopes(id, frameID)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("get_scopes failed", err), nil
		}
		items := make([]map[string]interface{}, 0, len(scopes))
		for _, s := range scopes {
			items = append(items, map[string]interface{}{
				"name": s.Name, "variables_reference": s.VariablesReference, "expensive": s.Expensive,
			})
		}
		return mcp.NewToolResultJSON(map[string]interface{}{"success": true, "scopes": items})
	}
}

func newToolGetVariables() mcp.Tool {
	return mcp.NewTool(
		"get_variables",
		mcp.WithDescription("按 variables_reference 获取变量列表"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()),
		mcp.WithNumber("variables_reference", mcp.Description("来自 get_scopes 或上一次 get_variables 的引用"), mcp.Required(), mcp.MultipleOf(1)),
	)
}

func handleGetVariables(m *sessionmanager.Manager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing session_id", err), nil
		}
		ref := request.GetInt("variables_reference", 0)
		vars, err := m.GetVariables(id, ref)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("get_variables failed", err), nil
		}
		return mcp.NewToolResultJSON(map[string]interface{}{"success": true, "variables": variablesPayload(vars)})
	}
}

func newToolGetLocalVariables() mcp.Tool {
	return mcp.NewTool(
		"get_local_variables",
		mcp.WithDescription("便捷获取当前线程顶层栈帧的局部变量，自动解析栈帧/作用域"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()),
		mcp.WithBoolean("include_special", mcp.Description("是否包含下划线/dunder 特殊变量"), mcp.DefaultBool(false)),
	)
}

func handleGetLocalVariables(m *sessionmanager.Manager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing session_id", err), nil
		}
		includeSpecial := request.GetBool("include_special", false)
		vars, err := m.GetLocalVariables(id, includeSpecial)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("get_local_variables failed", err), nil
		}
		return mcp.NewToolResultJSON(map[string]interface{}{"success": true, "variables": variablesPayload(vars)})
	}
}

func variablesPayload(vars []sessionmanager.Variable) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(vars))
	for _, v := range vars {
		items = append(items, map[string]interface{}{
			"name": v.Name, "value": v.Value, "type": v.Type, "variables_reference": v.VariablesReference,
		})
	}
	return items
}

// ============================================================================
// 表达式求值
// ============================================================================

func newToolEvaluateExpression() mcp.Tool {
	return mcp.NewTool(
		"evaluate_expression",
		mcp.WithDescription("在当前暂停的栈帧上下文中求值一个表达式（最大 10KiB）"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithString("session_id", mcp.Description("会话 ID"), mcp.Required()),
		mcp.WithString("expression", mcp.Description("要求值的表达式"), mcp.Required(), mcp.MinLength(1)),
		mcp.WithNumber("frame_id", mcp.Description("栈帧 ID（可选，默认取当前线程顶层栈帧）"), mcp.MultipleOf(1)),
		mcp.WithString("context", mcp.Description("DAP evaluate 的 context（可选，默认 variables）"), mcp.Enum("watch", "repl", "hover", "clipboard", "variables")),
	)
}

func handleEvaluateExpression(m *sessionmanager.Manager) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing session_id", err), nil
		}
		expression, err := request.RequireString("expression")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing expression", err), nil
		}
		frameID := request.GetInt("frame_id", 0)
		evalContext := request.GetString("context", "")

		result, err := m.EvaluateExpression(id, expression, frameID, evalContext)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("evaluate_expression failed", err), nil
		}

		out := map[string]interface{}{
			"success": result.Success,
			"result":  result.Result,
			"type":    result.Type,
			"preview": result.Preview,
		}
		if !result.Success {
			out["error"] = result.Error
			if result.ErrorInfo != nil {
				out["error_info"] = map[string]interface{}{
					"category":       result.ErrorInfo.Category,
					"message":        result.ErrorInfo.Message,
					"suggestion":     result.ErrorInfo.Suggestion,
					"original_error": result.ErrorInfo.OriginalError,
				}
			}
		}
		return mcp.NewToolResultJSON(out)
	}
}
