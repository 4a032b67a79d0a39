package engine

import (
	"context"
	"errors"
	"testing"

	"maquette/internal/capability"
	apperrors "maquette/internal/errors"
	"maquette/internal/session"
)

// seedScript stores a script artifact and returns its ID.
func seedScript(t *testing.T, store *session.Store, sessionID, script string) string {
	t.Helper()
	ctx := context.Background()

	const id = "script-artifact"
	ref, err := store.WriteArtifactData(ctx, sessionID, id, script)
	if err != nil {
		t.Fatalf("WriteArtifactData() error = %v", err)
	}
	if err := store.RecordArtifact(ctx, &session.Artifact{
		ID:        id,
		SessionID: sessionID,
		TaskID:    "task-exec",
		Stage:     session.StageCodeSynthesis,
		Kind:      session.ArtifactScript,
		Ref:       ref,
	}); err != nil {
		t.Fatalf("RecordArtifact() error = %v", err)
	}
	return id
}

func newExecFixture(t *testing.T) (*Stub, *session.Store, string) {
	t.Helper()

	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	sess, err := store.Create(context.Background(), "a fox")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return NewStub(), store, sess.ID
}

func TestExecCapabilitySuccess(t *testing.T) {
	stub, store, sessionID := newExecFixture(t)
	scriptID := seedScript(t, store, sessionID, "import bpy\nbpy.ops.mesh.primitive_cube_add()\n")

	stub.QueueExec(&ExecResult{Success: true, Output: "created Cube"}, nil)

	exec := NewExecCapability(stub, store)
	result, err := exec.Invoke(context.Background(), &capability.Request{
		Capability:  exec.Name(),
		SessionID:   sessionID,
		Stage:       session.StageExecution.String(),
		ArtifactIDs: []string{scriptID},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(result.Artifacts) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(result.Artifacts))
	}
	if result.Artifacts[0].Kind != session.ArtifactSceneReport.String() {
		t.Errorf("artifact kind = %q, want scene_report", result.Artifacts[0].Kind)
	}
	if len(stub.Scripts) != 1 || stub.Scripts[0] != "import bpy\nbpy.ops.mesh.primitive_cube_add()\n" {
		t.Errorf("engine received scripts = %q", stub.Scripts)
	}
}

func TestExecCapabilityScriptFailureKinds(t *testing.T) {
	tests := []struct {
		name       string
		diagnostic string
		wantKind   capability.Kind
	}{
		{"syntax", "SyntaxError: invalid syntax (line 3)", capability.KindSyntax},
		{"runtime", "NameError: name 'cube' is not defined", capability.KindRuntime},
		{"unmatched defaults to runtime", "the scene exploded in an unexpected way", capability.KindRuntime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub, store, sessionID := newExecFixture(t)
			scriptID := seedScript(t, store, sessionID, "import bpy")
			stub.QueueExec(&ExecResult{Success: false, Error: tt.diagnostic}, nil)

			exec := NewExecCapability(stub, store)
			_, err := exec.Invoke(context.Background(), &capability.Request{
				SessionID:   sessionID,
				ArtifactIDs: []string{scriptID},
			})

			f, ok := capability.AsFailure(err)
			if !ok {
				t.Fatalf("error is %T, want *Failure", err)
			}
			if f.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", f.Kind, tt.wantKind)
			}
			if f.Diagnostic != tt.diagnostic {
				t.Errorf("diagnostic = %q, want raw %q", f.Diagnostic, tt.diagnostic)
			}
		})
	}
}

func TestExecCapabilityEngineDown(t *testing.T) {
	stub, store, sessionID := newExecFixture(t)
	scriptID := seedScript(t, store, sessionID, "import bpy")
	stub.QueueExec(nil, apperrors.Wrap(apperrors.ErrEngineUnavailable, "dial tcp: connection refused"))

	exec := NewExecCapability(stub, store)
	_, err := exec.Invoke(context.Background(), &capability.Request{
		SessionID:   sessionID,
		ArtifactIDs: []string{scriptID},
	})

	f, ok := capability.AsFailure(err)
	if !ok {
		t.Fatalf("error is %T, want *Failure", err)
	}
	if f.Kind != capability.KindToolUnavailable {
		t.Errorf("kind = %s, want %s", f.Kind, capability.KindToolUnavailable)
	}
}

func TestExecCapabilityNoScript(t *testing.T) {
	stub, store, sessionID := newExecFixture(t)

	exec := NewExecCapability(stub, store)
	_, err := exec.Invoke(context.Background(), &capability.Request{
		SessionID:   sessionID,
		ArtifactIDs: nil,
	})
	if err == nil {
		t.Fatal("expected an error with no script artifact")
	}
	var f *capability.Failure
	if !errors.As(err, &f) {
		t.Fatalf("error is %T, want *Failure", err)
	}
	if len(stub.Scripts) != 0 {
		t.Error("engine should not have been called")
	}
}
