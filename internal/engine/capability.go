package engine

import (
	"context"
	"fmt"

	apperrors "maquette/internal/errors"

	"maquette/internal/capability"
	"maquette/internal/classify"
	"maquette/internal/session"
)

// ExecCapabilityName is the registry name of the engine-backed execution
// capability.
const ExecCapabilityName = "modeling"

// ArtifactReader is the slice of the session store the execution capability
// needs: resolving artifact records and their payloads.
type ArtifactReader interface {
	Artifact(ctx context.Context, sessionID, artifactID string) (*session.Artifact, error)
	ReadArtifactData(ctx context.Context, sessionID, ref string) (string, error)
}

// ExecCapability executes the session's generated script in the engine. It
// is the Execution stage's capability: it resolves the script artifact
// referenced by the request, ships it to the engine, and surfaces the
// outcome as a single result or failure.
type ExecCapability struct {
	engine Engine
	store  ArtifactReader
}

// NewExecCapability creates the engine-backed execution capability.
func NewExecCapability(eng Engine, store ArtifactReader) *ExecCapability {
	return &ExecCapability{engine: eng, store: store}
}

// Name returns the capability name.
func (e *ExecCapability) Name() string {
	return ExecCapabilityName
}

// Invoke resolves the newest script artifact among the request's references
// and executes it. Engine unreachability is a tool-unavailable failure;
// script-level diagnostics keep their raw text and are kinded by marker.
func (e *ExecCapability) Invoke(ctx context.Context, req *capability.Request) (*capability.Result, error) {
	script, err := e.resolveScript(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := e.engine.Execute(ctx, script)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrEngineUnavailable) || ctx.Err() != nil {
			return nil, capability.NewFailure(e.Name(), capability.KindToolUnavailable, err.Error())
		}
		return nil, capability.NewFailure(e.Name(), capability.KindUnknown, err.Error())
	}

	if !result.Success {
		kind := classify.KindOf(result.Error)
		if kind == capability.KindUnknown {
			kind = capability.KindRuntime
		}
		return nil, capability.NewFailure(e.Name(), kind, result.Error)
	}

	return &capability.Result{
		Artifacts: []capability.Draft{{
			Kind:    string(session.ArtifactSceneReport),
			Content: result.Output,
		}},
		Note: "script executed in engine",
	}, nil
}

// resolveScript finds the script payload to execute: the last
// script-kinded artifact among the request's references.
func (e *ExecCapability) resolveScript(ctx context.Context, req *capability.Request) (string, error) {
	var scriptArtifact *session.Artifact
	for _, id := range req.ArtifactIDs {
		a, err := e.store.Artifact(ctx, req.SessionID, id)
		if err != nil {
			return "", fmt.Errorf("resolving artifact %s: %w", id, err)
		}
		if a.Kind == session.ArtifactScript {
			scriptArtifact = a
		}
	}
	if scriptArtifact == nil {
		return "", capability.NewFailure(e.Name(), capability.KindUnknown,
			"no script artifact attached to execution request")
	}

	script, err := e.store.ReadArtifactData(ctx, req.SessionID, scriptArtifact.Ref)
	if err != nil {
		return "", fmt.Errorf("reading script payload %s: %w", scriptArtifact.ID, err)
	}
	return script, nil
}
