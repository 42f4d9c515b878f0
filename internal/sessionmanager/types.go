package sessionmanager

import "github.com/oriys/dapbridge/internal/sessionstore"

// Location identifies a single source position, returned by stepping
// operations when the adapter reports a stop within their ceiling.
type Location struct {
	File   string
	Line   int
	Column int
}

// StartResult is startDebugging's result: either a snapshot
// of a dry run, a readiness report with the derived stop reason, or a
// structured failure (incompatible toolchain, missing executable, timeout).
type StartResult struct {
	Success     bool
	State       string
	Reason      string
	Data        map[string]interface{}
	Error       string
	ErrorType   string
	Toolchain   *sessionstore.ToolchainValidation
	CanContinue bool
}

// StepResult is the result of stepOver/stepInto/stepOut/continue/pause.
type StepResult struct {
	Success  bool
	Error    string
	Location *Location
}

// StackFrame mirrors a single DAP stack frame, trimmed to what callers need.
type StackFrame struct {
	ID     int
	Name   string
	File   string
	Line   int
	Column int
}

// Scope mirrors a single DAP scope.
type Scope struct {
	Name               string
	VariablesReference int
	Expensive          bool
}

// Variable mirrors a single DAP variable.
type Variable struct {
	Name               string
	Value              string
	Type               string
	VariablesReference int
}

// ErrorInfo classifies an evaluate failure into a fixed category taxonomy.
type ErrorInfo struct {
	Category      string
	Message       string
	Suggestion    string
	OriginalError string
}

// EvaluateResult is evaluateExpression's result.
type EvaluateResult struct {
	Success            bool
	Result             string
	Type               string
	VariablesReference int
	Preview            string
	Error              string
	ErrorInfo          *ErrorInfo
}
