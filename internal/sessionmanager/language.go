package sessionmanager

import (
	"fmt"
	"strings"
)

// normalizeLanguage lowercases and trims a caller-supplied language tag so
// lookups (policy selection, disabled-language checks) are case-insensitive.
func normalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}

// policyNameForLanguage maps a session's requested language tag to the
// stable policy Name() that will back its debug runs.
// CodeLLDB is the default adapter for
// compiled/native languages since it is cross-platform and TCP-based like
// debugpy and js-debug; callers that specifically want lldb-dap's stdio
// adapter ask for it by name.
func policyNameForLanguage(language string) (string, error) {
	switch normalizeLanguage(language) {
	case "python", "python3", "py":
		return "debugpy", nil
	case "javascript", "typescript", "js", "ts", "node", "nodejs":
		return "js-debug", nil
	case "cpp", "c++", "c", "rust", "swift", "codelldb":
		return "codelldb", nil
	case "lldb-dap", "lldb", "lldb-vscode":
		return "lldb-dap", nil
	case "mock":
		return "mock", nil
	default:
		return "", fmt.Errorf("unsupported-language: %s", language)
	}
}
