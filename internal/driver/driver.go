// Package driver ties a session to one owning process and runs the pipeline
// over it: acquire the session lock, snapshot the engine scene, drive the
// machine to a terminal or suspended state, release the lock.
package driver

import (
	"context"
	"fmt"

	"maquette/internal/engine"
	apperrors "maquette/internal/errors"
	"maquette/internal/event"
	"maquette/internal/logging"
	"maquette/internal/pipeline"
	"maquette/internal/session"
)

// Config assembles a Driver's collaborators.
type Config struct {
	Store   *session.Store
	Machine *pipeline.Machine
	Bus     *event.Bus
	Logger  *logging.Logger

	// Engine, when set, is probed before each run and its scene summary is
	// appended to the session log so specialists see the world they start
	// from. The run proceeds without a snapshot if the engine is down; the
	// execution stage will surface unavailability on its own terms.
	Engine engine.Engine
}

// Driver runs sessions end to end.
type Driver struct {
	store   *session.Store
	machine *pipeline.Machine
	bus     *event.Bus
	log     *logging.Logger
	engine  engine.Engine
}

// New creates a Driver. Store and Machine are required.
func New(cfg Config) (*Driver, error) {
	if cfg.Store == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "driver requires a session store")
	}
	if cfg.Machine == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "driver requires a pipeline machine")
	}
	if cfg.Bus == nil {
		cfg.Bus = event.NewBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	return &Driver{
		store:   cfg.Store,
		machine: cfg.Machine,
		bus:     cfg.Bus,
		log:     cfg.Logger,
		engine:  cfg.Engine,
	}, nil
}

// Start creates a session for the request and drives it. The returned
// session is the created header; the status is where the run ended.
func (d *Driver) Start(ctx context.Context, request string) (*session.Session, session.Status, error) {
	sess, err := d.store.Create(ctx, request)
	if err != nil {
		return nil, "", err
	}
	d.log.WithSession(sess.ID).Info("session created", "request", request)

	status, err := d.run(ctx, sess.ID)
	return sess, status, err
}

// Resume picks up an existing session at its persisted stage. Terminal
// sessions are rejected with ErrSessionTerminal.
func (d *Driver) Resume(ctx context.Context, sessionID string) (session.Status, error) {
	sess, err := d.store.Load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.Status.IsTerminal() {
		return sess.Status, fmt.Errorf("%w: session %s is %s", apperrors.ErrSessionTerminal, sessionID, sess.Status)
	}
	return d.run(ctx, sessionID)
}

// run executes the pipeline under the session's process lock.
func (d *Driver) run(ctx context.Context, sessionID string) (session.Status, error) {
	handle, err := session.AcquireLock(d.store.SessionDir(sessionID), sessionID)
	if err != nil {
		return "", err
	}
	defer func() {
		if rerr := handle.Release(); rerr != nil {
			d.log.WithSession(sessionID).Warn("failed to release session lock", "error", rerr.Error())
		}
	}()

	d.snapshotScene(ctx, sessionID)

	status, runErr := d.machine.Run(ctx, sessionID)
	if status != "" {
		d.bus.Publish(event.NewRunCompletedEvent(sessionID, status.String()))
	}
	return status, runErr
}

// snapshotScene appends the engine's current scene summary as a system
// message. Best effort.
func (d *Driver) snapshotScene(ctx context.Context, sessionID string) {
	if d.engine == nil {
		return
	}
	info, err := d.engine.SceneInfo(ctx)
	if err != nil {
		d.log.WithSession(sessionID).Warn("scene snapshot unavailable", "error", err.Error())
		return
	}
	if _, err := d.store.AppendMessage(ctx, sessionID, "system", "scene snapshot: "+info.Summary()); err != nil {
		d.log.WithSession(sessionID).Warn("failed to record scene snapshot", "error", err.Error())
	}
}
