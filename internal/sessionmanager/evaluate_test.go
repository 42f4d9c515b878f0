package sessionmanager

import (
	"strings"
	"testing"
)

func TestLooksLikeArray(t *testing.T) {
	cases := []struct {
		name     string
		typeHint string
		vars     []Variable
		want     bool
	}{
		{"python list hint", "list", []Variable{{Name: "a"}}, true},
		{"go slice hint", "[]int", []Variable{{Name: "a"}}, true},
		{"tuple hint", "tuple", nil, true},
		{"numeric child names", "", []Variable{{Name: "0"}, {Name: "1"}, {Name: "2"}}, true},
		{"named children", "dict", []Variable{{Name: "x"}, {Name: "y"}}, false},
		{"mixed names", "", []Variable{{Name: "0"}, {Name: "length"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := looksLikeArray(tc.typeHint, tc.vars); got != tc.want {
				t.Fatalf("looksLikeArray(%q, %v) = %v, want %v", tc.typeHint, tc.vars, got, tc.want)
			}
		})
	}
}

func TestTruncateValueCapsAt200(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := truncateValue(long)
	if len(got) > maxPreviewValueLen {
		t.Fatalf("truncated value still %d chars", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", got[len(got)-10:])
	}
	if short := truncateValue("short"); short != "short" {
		t.Fatalf("short values must pass through, got %q", short)
	}
}

func TestFilterInternalPreviewMembers(t *testing.T) {
	vars := []Variable{
		{Name: "visible", Value: "1"},
		{Name: "_private", Value: "2"},
		{Name: "__proto__", Value: "3"},
		{Name: "constructor", Value: "4"},
		{Name: "__name__", Value: "5"},
		{Name: "other", Value: "6"},
	}
	got := filterInternalPreviewMembers(vars)
	if len(got) != 2 || got[0].Name != "visible" || got[1].Name != "other" {
		t.Fatalf("unexpected survivors: %+v", got)
	}
}

func TestFilterSpecialVariables(t *testing.T) {
	vars := []Variable{
		{Name: "i"},
		{Name: "__builtins__"},
		{Name: "_hidden"},
		{Name: "result"},
	}
	got := filterSpecialVariables(vars)
	if len(got) != 2 || got[0].Name != "i" || got[1].Name != "result" {
		t.Fatalf("unexpected survivors: %+v", got)
	}
}

func TestIsInternalFramePath(t *testing.T) {
	internal := []string{
		"/usr/lib/python3.11/site-packages/flask/app.py",
		"<frozen importlib._bootstrap>",
		"/w/app/node_modules/express/lib/router.js",
	}
	for _, p := range internal {
		if !isInternalFramePath(p) {
			t.Errorf("expected %q to be internal", p)
		}
	}
	if isInternalFramePath("/w/app/main.py") {
		t.Error("expected user code to not be internal")
	}
}

func TestPolicyNameForLanguage(t *testing.T) {
	cases := map[string]string{
		"python":     "debugpy",
		"Python":     "debugpy",
		"typescript": "js-debug",
		"rust":       "codelldb",
		"lldb-dap":   "lldb-dap",
		"mock":       "mock",
	}
	for lang, want := range cases {
		got, err := policyNameForLanguage(lang)
		if err != nil {
			t.Errorf("policyNameForLanguage(%q): %v", lang, err)
			continue
		}
		if got != want {
			t.Errorf("policyNameForLanguage(%q) = %q, want %q", lang, got, want)
		}
	}
	if _, err := policyNameForLanguage("fortran"); err == nil {
		t.Error("expected an error for an unmapped language")
	}
}

func TestEvaluateExpressionRejectsOversize(t *testing.T) {
	m := newTestManager(t)
	id := startMockSession(t, m)

	res, err := m.EvaluateExpression(id, strings.Repeat("a", maxExpressionBytes+1), 0, "")
	if err != nil {
		t.Fatalf("EvaluateExpression: %v", err)
	}
	if res.Success {
		t.Fatal("expected an oversize expression to fail")
	}
}
