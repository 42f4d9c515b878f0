package sessionmanager

import (
	"fmt"
	"strconv"
	"strings"

	dap "github.com/google/go-dap"

	"github.com/oriys/dapbridge/internal/sessionstore"
)

const (
	maxExpressionBytes = 10 * 1024
	maxPreviewValueLen = 200
	maxPreviewTotalLen = 4096
	maxPreviewProps    = 5
	maxPreviewItems    = 3
)

// EvaluateExpression sends an `evaluate` request for the session's current
// thread/frame. frameID of 0 means
// "resolve from the top of the current stack trace".
func (m *Manager) EvaluateExpression(id, expression string, frameID int, evalContext string) (*EvaluateResult, error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, fmtSessionNotFound(id)
	}
	if strings.TrimSpace(expression) == "" {
		return &EvaluateResult{Success: false, Error: "expression must not be empty"}, nil
	}
	if len(expression) > maxExpressionBytes {
		return &EvaluateResult{Success: false, Error: "expression exceeds 10KiB limit"}, nil
	}
	if sess.Execution() != sessionstore.ExecPaused {
		return &EvaluateResult{Success: false, Error: "session is not paused"}, nil
	}
	entry, ok := m.getEntry(id)
	if !ok {
		return &EvaluateResult{Success: false, Error: "proxy-not-running"}, nil
	}

	if frameID == 0 {
		frames, _ := m.GetStackTrace(id, false)
		if len(frames) > 0 {
			frameID = frames[0].ID
		}
	}
	if evalContext == "" {
		evalContext = "variables"
	}

	resp, err := m.sendDAP(entry, &dap.EvaluateRequest{
		Request: dap.Request{Command: "evaluate"},
		Arguments: dap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    evalContext,
		},
	}, 0)
	if err != nil {
		category, suggestion := classifyEvalError(expression, err.Error())
		return &EvaluateResult{
			Success: false,
			Error:   err.Error(),
			ErrorInfo: &ErrorInfo{
				Category:      category,
				Message:       err.Error(),
				Suggestion:    suggestion,
				OriginalError: err.Error(),
			},
		}, nil
	}

	ev, ok := resp.(*dap.EvaluateResponse)
	if !ok {
		return &EvaluateResult{Success: false, Error: "unexpected evaluate response"}, nil
	}

	result := &EvaluateResult{
		Success:            true,
		Result:             ev.Body.Result,
		Type:               ev.Body.Type,
		VariablesReference: ev.Body.VariablesReference,
	}
	if ev.Body.VariablesReference > 0 {
		result.Preview = m.buildPreview(entry, ev.Body.VariablesReference, ev.Body.Type)
	}
	return result, nil
}

// buildPreview renders a short, size-bounded summary of a structured
// evaluate result by fetching its immediate children: at most 5 object properties or 3 array items, each
// value capped at 200 characters, the whole preview capped at 4096.
func (m *Manager) buildPreview(entry *workerEntry, variablesReference int, typeHint string) string {
	vars, err := m.fetchVariables(entry, variablesReference)
	if err != nil || len(vars) == 0 {
		return ""
	}
	vars = filterInternalPreviewMembers(vars)
	if len(vars) == 0 {
		return ""
	}

	limit := maxPreviewProps
	opener, closer := "{", "}"
	if looksLikeArray(typeHint, vars) {
		limit = maxPreviewItems
		opener, closer = "[", "]"
	}

	var b strings.Builder
	b.WriteString(opener)
	shown := 0
	for i, v := range vars {
		if i >= limit {
			break
		}
		if shown > 0 {
			b.WriteString(", ")
		}
		entryStr := truncateValue(v.Value)
		if opener == "{" {
			fmt.Fprintf(&b, "%s: %s", v.Name, entryStr)
		} else {
			b.WriteString(entryStr)
		}
		shown++
	}
	if len(vars) > limit {
		b.WriteString(", ...")
	}
	b.WriteString(closer)

	out := b.String()
	if len(out) > maxPreviewTotalLen {
		out = out[:maxPreviewTotalLen-3] + "..."
	}
	return out
}

func truncateValue(v string) string {
	if len(v) > maxPreviewValueLen {
		return v[:maxPreviewValueLen-3] + "..."
	}
	return v
}

// filterInternalPreviewMembers drops underscore-prefixed and well-known
// dunder/prototype plumbing members from a preview's children.
func filterInternalPreviewMembers(vars []Variable) []Variable {
	out := make([]Variable, 0, len(vars))
	for _, v := range vars {
		switch v.Name {
		case "__proto__", "constructor", "__name__":
			continue
		}
		if strings.HasPrefix(v.Name, "_") {
			continue
		}
		out = append(out, v)
	}
	return out
}

// looksLikeArray decides whether a structured value previews as an array
// (positional, no keys) or an object (named properties): either the
// adapter's reported type hint says so, or every child name is a plain
// numeric index.
func looksLikeArray(typeHint string, vars []Variable) bool {
	lowered := strings.ToLower(typeHint)
	for _, marker := range []string{"list", "array", "tuple", "[]"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	for _, v := range vars {
		if _, err := strconv.Atoi(v.Name); err != nil {
			return false
		}
	}
	return true
}

// classifyEvalError maps an adapter's raw evaluate failure message onto a
// fixed category taxonomy, with a short actionable suggestion for each.
// Unmatched messages classify as Unknown rather than guessing.
func classifyEvalError(expression, message string) (category, suggestion string) {
	lowered := strings.ToLower(message)

	switch {
	case strings.Contains(message, "SyntaxError"):
		open := strings.Count(expression, "(")
		closed := strings.Count(expression, ")")
		if open != closed {
			return "SyntaxError", fmt.Sprintf("the expression has %d opening and %d closing parentheses; balance them", open, closed)
		}
		return "SyntaxError", "check the expression for valid syntax"
	case strings.Contains(message, "NameError"):
		return "NameError", "the name is not defined in the current scope; list the variables in scope to check the spelling"
	case strings.Contains(message, "TypeError"):
		return "TypeError", "check that operand types support this operation"
	case strings.Contains(message, "AttributeError"):
		return "AttributeError", "the object has no such attribute or method"
	case strings.Contains(message, "IndexError"):
		return "IndexError", "the index is out of range for this sequence"
	case strings.Contains(message, "KeyError"):
		return "KeyError", "the key does not exist in this mapping"
	case strings.Contains(message, "ValueError"):
		return "ValueError", "the value is not appropriate for this operation"
	case strings.Contains(message, "ReferenceError"):
		return "ReferenceError", "the identifier is not declared in this scope"
	case strings.Contains(message, "RangeError"):
		return "RangeError", "a numeric argument is outside its valid range"
	case strings.Contains(lowered, "is not defined") || strings.Contains(lowered, "undeclared"):
		return "UndeclaredIdentifier", "declare the variable or check for a typo"
	case strings.Contains(lowered, "has no member") || strings.Contains(lowered, "no member named"):
		return "NoMember", "the expression references a member that does not exist on this type"
	case strings.Contains(lowered, "parse error") || strings.Contains(lowered, "unable to parse") || strings.Contains(lowered, "unexpected token"):
		return "ExpressionParseError", "the expression could not be parsed by the adapter"
	case strings.Contains(lowered, "lldb") || strings.Contains(lowered, "couldn't evaluate"):
		return "LLDBError", "the native debugger could not evaluate this expression"
	case strings.Contains(lowered, "runtimeerror"):
		return "RuntimeError", "the expression raised an error while executing"
	default:
		return "Unknown", "the adapter rejected the expression; inspect the original error for detail"
	}
}
