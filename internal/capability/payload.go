package capability

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// wireError is the failure shape of the invocation wire contract:
// {"error_kind": "...", "diagnostic": "..."}.
type wireError struct {
	ErrorKind  string `json:"error_kind"`
	Diagnostic string `json:"diagnostic"`
}

// DecodeResult parses a result document produced by a capability backend.
// Model-produced JSON is frequently slightly malformed (trailing commas,
// unquoted keys, fenced code blocks), so a strict parse failure falls back
// to jsonrepair before giving up.
//
// A document carrying an error_kind field decodes to a *Failure instead of
// a Result.
func DecodeResult(capabilityName, raw string) (*Result, error) {
	doc := strings.TrimSpace(stripFence(raw))
	if doc == "" {
		return &Result{}, nil
	}

	data := []byte(doc)
	if !json.Valid(data) {
		repaired, err := jsonrepair.JSONRepair(doc)
		if err != nil {
			return nil, fmt.Errorf("capability %s returned unparseable result: %w", capabilityName, err)
		}
		data = []byte(repaired)
	}

	var we wireError
	if err := json.Unmarshal(data, &we); err == nil && we.ErrorKind != "" {
		return nil, NewFailure(capabilityName, parseKind(we.ErrorKind), we.Diagnostic)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("capability %s returned malformed result: %w", capabilityName, err)
	}
	return &result, nil
}

// parseKind maps a wire error_kind string onto a known Kind.
func parseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSyntax:
		return KindSyntax
	case KindRuntime:
		return KindRuntime
	case KindValidation:
		return KindValidation
	case KindToolUnavailable:
		return KindToolUnavailable
	case KindPersistence:
		return KindPersistence
	default:
		return KindUnknown
	}
}

// stripFence removes a surrounding markdown code fence, which model
// backends commonly wrap JSON documents in.
func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "python", ...).
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
