package dapwire

import "encoding/json"

// dapErrorBody mirrors the `body` shape of a failed DAP response message
// loosely enough to cover every adapter-specific variant seen in the wild:
// a structured `error` object (the ErrorMessage shape from the DAP spec), a
// bare string `error`, or a plain `description`/`message` field.
type dapErrorBody struct {
	Error       json.RawMessage `json:"error"`
	Description string          `json:"description"`
	Message     string          `json:"message"`
}

type dapErrorEnvelope struct {
	Body dapErrorBody `json:"body"`
}

// extractDAPErrorMessage picks the most useful human-readable message out
// of a failed (success=false) response, in preference order: the top-level
// `message` field; then `body.error.format`; then `body.error.message`;
// then `body.error` itself if it is a bare string; then `body.description`;
// then `body.message`; else a fixed fallback string. topLevelMessage is the
// response's own `message` field, already decoded by go-dap; raw is the
// undecoded wire body, re-parsed here to reach the adapter-specific `body`
// shape go-dap's typed response structs don't expose generically.
func extractDAPErrorMessage(topLevelMessage string, raw []byte) string {
	if topLevelMessage != "" {
		return topLevelMessage
	}

	var env dapErrorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "Request failed"
	}

	if len(env.Body.Error) > 0 {
		var obj struct {
			Format  string `json:"format"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(env.Body.Error, &obj); err == nil {
			if obj.Format != "" {
				return obj.Format
			}
			if obj.Message != "" {
				return obj.Message
			}
		}
		var asString string
		if err := json.Unmarshal(env.Body.Error, &asString); err == nil && asString != "" {
			return asString
		}
	}

	if env.Body.Description != "" {
		return env.Body.Description
	}
	if env.Body.Message != "" {
		return env.Body.Message
	}
	return "Request failed"
}
