package sessionmanager

import (
	"strings"

	dap "github.com/google/go-dap"

	"github.com/oriys/dapbridge/internal/sessionstore"
)

// internalFrameMarkers flags stack frames belonging to the language runtime
// or adapter scaffolding rather than user code, filtered out unless the
// caller asks for includeInternals.
var internalFrameMarkers = []string{"site-packages", "<frozen", "internal/", "node_modules", "<string>"}

// GetStackTrace forwards a stackTrace request for the session's current
// thread. It never errors for a missing worker or a session that is not
// Paused — both return an empty slice; absence of a usable state just
// yields no data.
func (m *Manager) GetStackTrace(id string, includeInternals bool) ([]StackFrame, error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, fmtSessionNotFound(id)
	}
	entry, ok := m.getEntry(id)
	if !ok || sess.Execution() != sessionstore.ExecPaused {
		return []StackFrame{}, nil
	}
	threadID, hasThread := sess.CurrentThreadID()
	if !hasThread {
		return []StackFrame{}, nil
	}

	resp, err := m.sendDAP(entry, &dap.StackTraceRequest{
		Request:   dap.Request{Command: "stackTrace"},
		Arguments: dap.StackTraceArguments{ThreadId: threadID},
	}, 0)
	if err != nil {
		return []StackFrame{}, nil
	}
	st, ok := resp.(*dap.StackTraceResponse)
	if !ok {
		return []StackFrame{}, nil
	}

	out := make([]StackFrame, 0, len(st.Body.StackFrames))
	for _, f := range st.Body.StackFrames {
		path := ""
		if f.Source != nil {
			path = f.Source.Path
		}
		if !includeInternals && isInternalFramePath(path) {
			continue
		}
		out = append(out, StackFrame{ID: f.Id, Name: f.Name, File: path, Line: f.Line, Column: f.Column})
	}
	return out, nil
}

func isInternalFramePath(path string) bool {
	for _, marker := range internalFrameMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// GetScopes forwards a scopes request for the given frame id.
func (m *Manager) GetScopes(id string, frameID int) ([]Scope, error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, fmtSessionNotFound(id)
	}
	entry, ok := m.getEntry(id)
	if !ok || sess.Execution() != sessionstore.ExecPaused {
		return []Scope{}, nil
	}

	resp, err := m.sendDAP(entry, &dap.ScopesRequest{
		Request:   dap.Request{Command: "scopes"},
		Arguments: dap.ScopesArguments{FrameId: frameID},
	}, 0)
	if err != nil {
		return []Scope{}, nil
	}
	sc, ok := resp.(*dap.ScopesResponse)
	if !ok {
		return []Scope{}, nil
	}

	out := make([]Scope, 0, len(sc.Body.Scopes))
	for _, s := range sc.Body.Scopes {
		out = append(out, Scope{Name: s.Name, VariablesReference: s.VariablesReference, Expensive: s.Expensive})
	}
	return out, nil
}

// GetVariables forwards a variables request for the given variables
// reference (as returned by GetScopes or a prior GetVariables call for a
// structured value).
func (m *Manager) GetVariables(id string, variablesReference int) ([]Variable, error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, fmtSessionNotFound(id)
	}
	entry, ok := m.getEntry(id)
	if !ok || sess.Execution() != sessionstore.ExecPaused {
		return []Variable{}, nil
	}
	return m.fetchVariables(entry, variablesReference)
}

func (m *Manager) fetchVariables(entry *workerEntry, variablesReference int) ([]Variable, error) {
	resp, err := m.sendDAP(entry, &dap.VariablesRequest{
		Request:   dap.Request{Command: "variables"},
		Arguments: dap.VariablesArguments{VariablesReference: variablesReference},
	}, 0)
	if err != nil {
		return []Variable{}, nil
	}
	vr, ok := resp.(*dap.VariablesResponse)
	if !ok {
		return []Variable{}, nil
	}

	out := make([]Variable, 0, len(vr.Body.Variables))
	for _, v := range vr.Body.Variables {
		out = append(out, Variable{Name: v.Name, Value: v.Value, Type: v.Type, VariablesReference: v.VariablesReference})
	}
	return out, nil
}

// GetLocalVariables is a convenience wrapper over GetStackTrace/GetScopes/
// GetVariables that resolves the top frame of the session's current thread,
// finds its first non-expensive scope (adapters name it "Locals" but this
// does not assume the exact label), and returns its variables. Dunder/
// special names (see filterSpecialVariables) are dropped unless
// includeSpecial is set.
func (m *Manager) GetLocalVariables(id string, includeSpecial bool) ([]Variable, error) {
	frames, err := m.GetStackTrace(id, false)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return []Variable{}, nil
	}

	scopes, err := m.GetScopes(id, frames[0].ID)
	if err != nil {
		return nil, err
	}
	var targetRef int
	found := false
	for _, sc := range scopes {
		if !sc.Expensive {
			targetRef = sc.VariablesReference
			found = true
			break
		}
	}
	if !found {
		return []Variable{}, nil
	}

	entry, ok := m.getEntry(id)
	if !ok {
		return []Variable{}, nil
	}
	vars, err := m.fetchVariables(entry, targetRef)
	if err != nil {
		return nil, err
	}
	if includeSpecial {
		return vars, nil
	}
	return filterSpecialVariables(vars), nil
}

func filterSpecialVariables(vars []Variable) []Variable {
	out := make([]Variable, 0, len(vars))
	for _, v := range vars {
		if strings.HasPrefix(v.Name, "__") && strings.HasSuffix(v.Name, "__") {
			continue
		}
		if strings.HasPrefix(v.Name, "_") {
			continue
		}
		out = append(out, v)
	}
	return out
}
