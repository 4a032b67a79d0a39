// Package capability defines the uniform contract every specialist and
// external tool is invoked through. A capability accepts a structured
// request referencing prior artifacts by ID and returns either a result
// carrying new artifact drafts or a failure carrying a raw diagnostic.
// Interpretation of failures is the caller's job: capabilities stay simple
// and swappable.
package capability

import (
	"context"
	"fmt"
)

// Kind identifies the category of a capability failure. Kinds are part of
// the invocation wire contract; the classifier maps them to routes.
type Kind string

const (
	// KindSyntax indicates a generated script failed to parse or compile
	// in the execution engine.
	KindSyntax Kind = "syntax_error"

	// KindRuntime indicates a script parsed but the engine reported a
	// runtime fault while executing it.
	KindRuntime Kind = "runtime_error"

	// KindValidation indicates a quality-assurance judgment failure,
	// content-level rather than execution-level.
	KindValidation Kind = "validation_error"

	// KindToolUnavailable indicates the engine, a model backend, or a tool
	// was unreachable or timed out.
	KindToolUnavailable Kind = "tool_unavailable"

	// KindPersistence indicates a session store write failed. Never
	// retried: state integrity cannot be assumed afterwards.
	KindPersistence Kind = "persistence_error"

	// KindUnknown is used for diagnostics that match no known category.
	KindUnknown Kind = "unknown"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Request is the payload of one capability invocation. Artifacts are
// referenced by ID, never duplicated across tasks as raw blobs.
type Request struct {
	Capability  string         `json:"capability"`
	SessionID   string         `json:"session_id"`
	Stage       string         `json:"stage"`
	Instruction string         `json:"instruction"`
	ArtifactIDs []string       `json:"artifact_ids,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// Draft is an artifact produced by a capability before it is assigned an ID
// and persisted. Either Ref points at an existing payload (a file the tool
// wrote, an image URI) or Content carries the payload inline for the
// coordinator to store.
type Draft struct {
	Kind    string `json:"kind"`
	Ref     string `json:"ref,omitempty"`
	Content string `json:"content,omitempty"`
}

// Result is the successful outcome of an invocation: zero or more artifact
// drafts plus an optional advisory note for the coordinator.
type Result struct {
	Artifacts []Draft `json:"artifacts,omitempty"`
	Note      string  `json:"note,omitempty"`
}

// Failure is the error returned by a failed invocation. It carries the raw
// diagnostic and no interpretation.
type Failure struct {
	Capability string `json:"capability"`
	Kind       Kind   `json:"error_kind"`
	Diagnostic string `json:"diagnostic"`
}

// NewFailure creates a Failure for the given capability.
func NewFailure(capability string, kind Kind, diagnostic string) *Failure {
	return &Failure{Capability: capability, Kind: kind, Diagnostic: diagnostic}
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("capability %s failed (%s): %s", f.Capability, f.Kind, f.Diagnostic)
}

// AsFailure extracts a *Failure from an error chain, if present.
func AsFailure(err error) (*Failure, bool) {
	if err == nil {
		return nil, false
	}
	f, ok := err.(*Failure)
	return f, ok
}

// Capability is a named, swappable unit of work. Invoke is synchronous from
// the caller's perspective; a capability may call nested tools but must
// surface the outcome as a single Result or Failure.
type Capability interface {
	// Name returns the capability's registry name.
	Name() string

	// Invoke performs the work described by the request. On failure the
	// returned error should be (or wrap) a *Failure so the classifier can
	// route it.
	Invoke(ctx context.Context, req *Request) (*Result, error)
}

// Func adapts a plain function into a Capability. Used for test doubles and
// thin tool wrappers.
type Func struct {
	name string
	fn   func(ctx context.Context, req *Request) (*Result, error)
}

// NewFunc creates a function-backed capability.
func NewFunc(name string, fn func(ctx context.Context, req *Request) (*Result, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name returns the capability name.
func (f *Func) Name() string {
	return f.name
}

// Invoke calls the wrapped function.
func (f *Func) Invoke(ctx context.Context, req *Request) (*Result, error) {
	return f.fn(ctx, req)
}
