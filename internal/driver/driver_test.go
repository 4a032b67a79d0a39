package driver

import (
	"context"
	"strings"
	"testing"

	"maquette/internal/capability"
	"maquette/internal/engine"
	apperrors "maquette/internal/errors"
	"maquette/internal/event"
	"maquette/internal/pipeline"
	"maquette/internal/session"
)

// stageCapabilities is every capability the pipeline can dispatch to.
var stageCapabilities = []string{
	"producer", "director", "creative_spec", "code_synthesis", "modeling",
	"texturing", "rigging", "scene_assembly", "lighting", "camera",
	"animation", "qa", "rendering", "technical_director",
}

func newTestDriver(t *testing.T, eng engine.Engine) (*Driver, *session.Store, *event.Bus) {
	t.Helper()

	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	registry := capability.NewRegistry()
	for _, name := range stageCapabilities {
		name := name
		err := registry.Register(capability.NewFunc(name, func(ctx context.Context, req *capability.Request) (*capability.Result, error) {
			return &capability.Result{
				Artifacts: []capability.Draft{{Content: name + " output"}},
			}, nil
		}))
		if err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	bus := event.NewBus()
	machine, err := pipeline.New(pipeline.Config{Store: store, Registry: registry, Bus: bus})
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}

	drv, err := New(Config{Store: store, Machine: machine, Bus: bus, Engine: eng})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return drv, store, bus
}

func TestStartRunsToCompletion(t *testing.T) {
	drv, store, bus := newTestDriver(t, nil)

	var completed []string
	bus.Subscribe(event.TypeRunCompleted, func(e event.Event) {
		rc := e.(event.RunCompletedEvent)
		completed = append(completed, rc.Status)
	})

	sess, status, err := drv.Start(context.Background(), "a low-poly fox on a rock")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if status != session.StatusCompleted {
		t.Fatalf("status = %s, want completed", status)
	}

	if len(completed) != 1 || completed[0] != "completed" {
		t.Errorf("run completed events = %v", completed)
	}

	// The lock is released when the run ends.
	if _, locked := session.IsLocked(store.SessionDir(sess.ID)); locked {
		t.Error("session still locked after run")
	}
}

func TestResumeRejectsTerminalSession(t *testing.T) {
	drv, _, _ := newTestDriver(t, nil)

	sess, _, err := drv.Start(context.Background(), "a scene")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := drv.Resume(context.Background(), sess.ID); !apperrors.Is(err, apperrors.ErrSessionTerminal) {
		t.Errorf("Resume() error = %v, want ErrSessionTerminal", err)
	}
}

func TestResumeUnknownSession(t *testing.T) {
	drv, _, _ := newTestDriver(t, nil)

	if _, err := drv.Resume(context.Background(), "missing"); !apperrors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("Resume() error = %v, want ErrSessionNotFound", err)
	}
}

func TestRunRefusedWhileLocked(t *testing.T) {
	drv, store, _ := newTestDriver(t, nil)

	sess, err := store.Create(context.Background(), "a scene")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Another live process (this one) holds the lock.
	handle, err := session.AcquireLock(store.SessionDir(sess.ID), sess.ID)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	defer handle.Release()

	if _, err := drv.Resume(context.Background(), sess.ID); !apperrors.Is(err, apperrors.ErrSessionLocked) {
		t.Errorf("Resume() error = %v, want ErrSessionLocked", err)
	}
}

func TestSceneSnapshotRecorded(t *testing.T) {
	stub := engine.NewStub()
	stub.SetScene(&engine.SceneInfo{ObjectCount: 2, ObjectNames: []string{"Cube", "Camera"}})

	drv, store, _ := newTestDriver(t, stub)

	sess, _, err := drv.Start(context.Background(), "a scene")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	messages, err := store.Messages(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}

	found := false
	for _, m := range messages {
		if m.Role == "system" && strings.Contains(m.Content, "scene snapshot") {
			found = true
		}
	}
	if !found {
		t.Error("no scene snapshot message recorded")
	}
}

func TestSnapshotFailureDoesNotBlockRun(t *testing.T) {
	drv, _, _ := newTestDriver(t, &downEngine{})

	_, status, err := drv.Start(context.Background(), "a scene")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if status != session.StatusCompleted {
		t.Errorf("status = %s, want completed", status)
	}
}

// downEngine fails every call.
type downEngine struct{}

func (d *downEngine) Execute(ctx context.Context, script string) (*engine.ExecResult, error) {
	return nil, apperrors.ErrEngineUnavailable
}

func (d *downEngine) SceneInfo(ctx context.Context) (*engine.SceneInfo, error) {
	return nil, apperrors.ErrEngineUnavailable
}

func (d *downEngine) Ping(ctx context.Context) error {
	return apperrors.ErrEngineUnavailable
}
