package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"maquette/internal/capability"
	"maquette/internal/classify"
	apperrors "maquette/internal/errors"
	"maquette/internal/event"
	"maquette/internal/imagegen"
	"maquette/internal/logging"
	"maquette/internal/session"
)

// defaultInvokeTimeout bounds one capability invocation attempt.
const defaultInvokeTimeout = 2 * time.Minute

// defaultProgressionWorkers bounds how many progression sub-stages run
// concurrently.
const defaultProgressionWorkers = 3

// errRevised signals that quality assurance sent the pipeline back to an
// earlier stage. The run loop re-reads the persisted stage and continues.
var errRevised = errors.New("pipeline: stage sent back for revision")

// Config assembles a Machine's collaborators.
type Config struct {
	Store      *session.Store
	Registry   *capability.Registry
	Classifier *classify.Classifier
	Bus        *event.Bus
	Logger     *logging.Logger

	// Images, when set, generates a concept image after the creative
	// specification stage completes. Generation is advisory: a failure is
	// logged and recorded but never fails the run.
	Images imagegen.Generator

	// InvokeTimeout bounds one capability invocation attempt. An attempt
	// that outlives it is treated as a tool-unavailable failure.
	InvokeTimeout time.Duration

	// ProgressionWorkers bounds concurrency across the progression
	// sub-stages. Defaults to 3.
	ProgressionWorkers int
}

// Machine drives sessions through the production sequence. It owns no
// in-memory session state: every decision is re-derivable from the store, so
// a machine can pick up any session at its persisted stage.
type Machine struct {
	store      *session.Store
	registry   *capability.Registry
	classifier *classify.Classifier
	bus        *event.Bus
	log        *logging.Logger
	images     imagegen.Generator

	invokeTimeout time.Duration
	workers       int

	// sleep waits out a backoff delay. Replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Machine. Store and Registry are required; everything else
// gets a usable default.
func New(cfg Config) (*Machine, error) {
	if cfg.Store == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "pipeline requires a session store")
	}
	if cfg.Registry == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "pipeline requires a capability registry")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New(classify.Config{})
	}
	if cfg.Bus == nil {
		cfg.Bus = event.NewBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = defaultInvokeTimeout
	}
	if cfg.ProgressionWorkers <= 0 {
		cfg.ProgressionWorkers = defaultProgressionWorkers
	}

	return &Machine{
		store:         cfg.Store,
		registry:      cfg.Registry,
		classifier:    cfg.Classifier,
		bus:           cfg.Bus,
		log:           cfg.Logger,
		images:        cfg.Images,
		invokeTimeout: cfg.InvokeTimeout,
		workers:       cfg.ProgressionWorkers,
		sleep:         sleepCtx,
	}, nil
}

// Run drives the session from its persisted stage until it completes, fails,
// or the context is canceled. Cancellation suspends the session at the
// current boundary; a later Run resumes it from there. The returned status
// is the session's final status for this run.
func (m *Machine) Run(ctx context.Context, sessionID string) (session.Status, error) {
	sess, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.Status.IsTerminal() {
		return sess.Status, fmt.Errorf("%w: session %s is %s", apperrors.ErrSessionTerminal, sessionID, sess.Status)
	}

	log := m.log.WithSession(sessionID)

	if sess.Status != session.StatusActive {
		if err := m.store.SetStatus(ctx, sessionID, session.StatusActive); err != nil {
			return "", err
		}
		log.Info("session resumed", "stage", sess.Stage.String())
	}

	for {
		if ctx.Err() != nil {
			return m.suspend(sessionID, log)
		}

		sess, err = m.store.Load(ctx, sessionID)
		if err != nil {
			return "", err
		}
		stage := sess.Stage

		switch {
		case stage == session.StageCompleted:
			if err := m.store.SetStatus(ctx, sessionID, session.StatusCompleted); err != nil {
				return "", err
			}
			log.Info("run completed")
			return session.StatusCompleted, nil

		case stage == session.StageErrorTriage:
			// A crash mid-triage leaves the header here; the ledger still
			// holds the execution task's attempts, so re-entering execution
			// re-drives triage correctly.
			if err := m.setStage(ctx, sessionID, stage, session.StageExecution); err != nil {
				return "", err
			}
			continue

		case stage == session.StageRevision:
			// Same reasoning for a crash mid-revision. The default revision
			// target is code synthesis; the reset ledger re-runs everything
			// downstream of it.
			if err := m.setStage(ctx, sessionID, stage, session.StageCodeSynthesis); err != nil {
				return "", err
			}
			continue

		case stage.IsProgression():
			err = m.runProgression(ctx, sessionID)

		default:
			err = m.runStage(ctx, sessionID, stage)
		}

		switch {
		case err == nil:
		case errors.Is(err, errRevised):
			continue
		case ctx.Err() != nil:
			return m.suspend(sessionID, log)
		default:
			// Abort: preserve everything, mark the session failed.
			if serr := m.store.SetStatus(ctx, sessionID, session.StatusFailed); serr != nil {
				log.Error("failed to mark session failed", "error", serr.Error())
			}
			log.Error("run failed", "stage", stage.String(), "error", err.Error())
			return session.StatusFailed, err
		}

		if stage == session.StageCreativeSpec && m.images != nil {
			m.generateConcept(ctx, sessionID, log)
		}

		if next := NextStage(stage); next != stage {
			if err := m.setStage(ctx, sessionID, stage, next); err != nil {
				return "", err
			}
		}
	}
}

// suspend parks the session so a later run can resume it.
func (m *Machine) suspend(sessionID string, log *logging.Logger) (session.Status, error) {
	// The run context is canceled; use a fresh one for the final writes.
	ctx := context.Background()
	if err := m.store.SetStatus(ctx, sessionID, session.StatusSuspended); err != nil {
		return "", err
	}
	stage := session.StageIntake
	if sess, err := m.store.Load(ctx, sessionID); err == nil {
		stage = sess.Stage
	}
	if _, err := m.store.RecordDecision(ctx, sessionID, stage, "run suspended, resumable"); err != nil {
		log.Warn("failed to record suspension", "error", err.Error())
	}
	log.Info("session suspended")
	return session.StatusSuspended, nil
}

// runStage drives one stage's task to done, failure, or revision. The task
// is persisted before and after every attempt, so the ledger always reflects
// the furthest committed point.
func (m *Machine) runStage(ctx context.Context, sessionID string, stage session.Stage) error {
	capName := CapabilityFor(stage)
	if capName == "" {
		return nil
	}

	log := m.log.WithSession(sessionID).WithStage(stage.String())
	budget := m.classifier.Budget()

	var task session.Task
	if _, err := m.store.MutateTasks(ctx, sessionID, func(l *session.Ledger) error {
		t := l.Task(stage)
		if t == nil {
			t = &session.Task{
				ID:         uuid.NewString(),
				Stage:      stage,
				Capability: capName,
				Status:     session.TaskPending,
				MaxAttempt: budget,
			}
			l.Put(t)
		}
		if t.Status == session.TaskInFlight {
			// Crash recovery: the attempt never committed an outcome, so it
			// is re-driven under the same attempt number.
			t.Status = session.TaskPending
			if t.Attempt > 0 {
				t.Attempt--
			}
			log.Warn("recovered in-flight task", "task_id", t.ID)
		}
		task = *t
		return nil
	}); err != nil {
		return err
	}

	if task.Status == session.TaskDone {
		return nil
	}
	if task.Status == session.TaskFailed {
		return apperrors.NewPipelineError("stage previously failed", apperrors.ErrBudgetExhausted).
			WithStage(stage.String()).WithTaskID(task.ID)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt := task.Attempt + 1
		now := time.Now().UTC()
		if err := m.mutateTask(ctx, sessionID, stage, func(t *session.Task) {
			t.Attempt = attempt
			t.Status = session.TaskInFlight
			t.StartedAt = &now
		}); err != nil {
			return err
		}
		m.bus.Publish(event.NewTaskStartedEvent(sessionID, task.ID, stage.String(), task.Capability, attempt))
		log.Info("dispatching task", "capability", task.Capability, "attempt", attempt)

		req, err := m.buildRequest(ctx, sessionID, stage, task.Capability, &task, attempt)
		if err != nil {
			return err
		}

		result, invokeErr := m.invoke(ctx, task.Capability, req)
		if invokeErr == nil {
			return m.completeTask(ctx, sessionID, stage, &task, result, attempt)
		}

		if ctx.Err() != nil {
			// Clean suspension: roll the attempt back so resume re-drives it
			// from pending rather than through crash recovery.
			_ = m.mutateTask(context.Background(), sessionID, stage, func(t *session.Task) {
				t.Status = session.TaskPending
				t.Attempt = attempt - 1
			})
			return ctx.Err()
		}

		failure := asFailure(task.Capability, invokeErr)
		log.Warn("task attempt failed", "attempt", attempt, "error_kind", failure.Kind.String(), "diagnostic", failure.Diagnostic)

		if err := m.mutateTask(ctx, sessionID, stage, func(t *session.Task) {
			t.LastDiagnostic = failure.Diagnostic
		}); err != nil {
			return err
		}
		task.LastDiagnostic = failure.Diagnostic

		if stage == session.StageQA && failure.Kind == capability.KindValidation {
			return m.revise(ctx, sessionID, failure, &task)
		}

		// Execution failures are triaged in their own stage so the session
		// header shows where the run is while the classifier deliberates.
		triageStage := stage
		if stage == session.StageExecution {
			if err := m.setStage(ctx, sessionID, stage, session.StageErrorTriage); err != nil {
				return err
			}
			triageStage = session.StageErrorTriage
		}

		route := m.classifier.Classify(failure, attempt)
		m.decide(ctx, sessionID, triageStage, fmt.Sprintf("%s (attempt %d/%d, %s): %s",
			route.Kind, attempt, budget, failure.Kind, route.Reason))

		if route.Kind == classify.Abort {
			if err := m.failTask(ctx, sessionID, stage, &task, attempt); err != nil {
				return err
			}
			return apperrors.NewPipelineError(route.Reason, errors.Join(apperrors.ErrBudgetExhausted, failure)).
				WithStage(stage.String()).WithTaskID(task.ID).WithAttempt(attempt)
		}

		if route.Kind == classify.Reroute || route.Kind == classify.Escalate {
			m.interpose(ctx, sessionID, route.Capability, failure, &task, log)
		}

		if triageStage == session.StageErrorTriage {
			if err := m.setStage(ctx, sessionID, session.StageErrorTriage, session.StageExecution); err != nil {
				return err
			}
		}

		if route.Wait > 0 {
			log.Debug("backing off", "wait", route.Wait.String())
			if err := m.sleep(ctx, route.Wait); err != nil {
				return err
			}
		}

		task.Attempt = attempt
	}
}

// completeTask persists a successful attempt's artifacts and closes the task.
func (m *Machine) completeTask(ctx context.Context, sessionID string, stage session.Stage, task *session.Task, result *capability.Result, attempt int) error {
	produced, err := m.persistDrafts(ctx, sessionID, stage, task.ID, result.Artifacts, defaultArtifactKind(stage))
	if err != nil {
		if ferr := m.failTask(ctx, sessionID, stage, task, attempt); ferr != nil {
			return ferr
		}
		return err
	}

	now := time.Now().UTC()
	if err := m.mutateTask(ctx, sessionID, stage, func(t *session.Task) {
		t.Status = session.TaskDone
		t.CompletedAt = &now
		t.ProducedIDs = append(t.ProducedIDs, produced...)
	}); err != nil {
		return err
	}

	note := result.Note
	if note == "" {
		note = fmt.Sprintf("%s completed", stage)
	}
	if _, err := m.store.AppendMessage(ctx, sessionID, task.Capability, note); err != nil {
		return err
	}

	m.bus.Publish(event.NewTaskCompletedEvent(sessionID, task.ID, stage.String(), session.TaskDone.String(), attempt))
	m.log.WithSession(sessionID).WithStage(stage.String()).Info("task completed", "attempts", attempt, "artifacts", len(produced))
	return nil
}

// failTask closes the task as failed.
func (m *Machine) failTask(ctx context.Context, sessionID string, stage session.Stage, task *session.Task, attempt int) error {
	now := time.Now().UTC()
	if err := m.mutateTask(ctx, sessionID, stage, func(t *session.Task) {
		t.Status = session.TaskFailed
		t.CompletedAt = &now
	}); err != nil {
		return err
	}
	m.bus.Publish(event.NewTaskCompletedEvent(sessionID, task.ID, stage.String(), session.TaskFailed.String(), attempt))
	return nil
}

// revise handles a quality-assurance rejection: the producing stage and
// everything downstream of it are reset to pending and the pipeline moves
// back. Revision rounds are budgeted like retries so a QA loop cannot spin
// forever.
func (m *Machine) revise(ctx context.Context, sessionID string, failure *capability.Failure, qaTask *session.Task) error {
	target := revisionTargetFor(failure.Diagnostic)
	budget := m.classifier.Budget()

	var round int
	if _, err := m.store.MutateTasks(ctx, sessionID, func(l *session.Ledger) error {
		for _, s := range stagesBetween(target, session.StageQA) {
			t := l.Task(s)
			if t == nil {
				continue
			}
			t.Status = session.TaskPending
			t.Attempt = 0
			t.StartedAt = nil
			t.CompletedAt = nil
			if s == target {
				t.RevisionRound++
				t.LastDiagnostic = failure.Diagnostic
				round = t.RevisionRound
			}
		}
		if round == 0 {
			round = 1
		}
		return nil
	}); err != nil {
		return err
	}

	if round > budget {
		m.decide(ctx, sessionID, session.StageQA,
			fmt.Sprintf("abort (revision round %d exceeds budget %d): %s", round, budget, failure.Diagnostic))
		if err := m.failTask(ctx, sessionID, session.StageQA, qaTask, qaTask.Attempt); err != nil {
			return err
		}
		return apperrors.NewPipelineError("revision budget exhausted", errors.Join(apperrors.ErrBudgetExhausted, failure)).
			WithStage(session.StageQA.String()).WithTaskID(qaTask.ID)
	}

	m.decide(ctx, sessionID, session.StageRevision,
		fmt.Sprintf("revision round %d: sending back to %s: %s", round, target, failure.Diagnostic))

	if err := m.setStage(ctx, sessionID, session.StageQA, session.StageRevision); err != nil {
		return err
	}
	if err := m.setStage(ctx, sessionID, session.StageRevision, target); err != nil {
		return err
	}
	return errRevised
}

// revisionTargetFor picks the producing stage a QA rejection goes back to.
// A diagnostic naming a progression sub-stage targets that sub-stage;
// everything else goes back to code synthesis, the stage that shapes the
// scene itself.
func revisionTargetFor(diagnostic string) session.Stage {
	for _, s := range session.ProgressionStages() {
		if containsFold(diagnostic, s.String()) {
			return s
		}
	}
	return session.StageCodeSynthesis
}

// interpose runs a corrective or diagnostic capability between attempts.
// Its artifacts are persisted under the failing task so the next attempt
// picks them up as inputs. Interposition failures are recorded and ignored;
// the attempt budget still bounds the overall loop.
func (m *Machine) interpose(ctx context.Context, sessionID, target string, failure *capability.Failure, task *session.Task, log *logging.Logger) {
	inputs, err := m.artifactIDs(ctx, sessionID)
	if err != nil {
		log.Warn("interposition skipped", "error", err.Error())
		return
	}

	req := &capability.Request{
		Capability:  target,
		SessionID:   sessionID,
		Stage:       task.Stage.String(),
		Instruction: fmt.Sprintf("remediate %s failure in %s", failure.Kind, failure.Capability),
		ArtifactIDs: inputs,
		Params: map[string]any{
			"diagnostic":        failure.Diagnostic,
			"failed_capability": failure.Capability,
		},
	}

	result, err := m.invoke(ctx, target, req)
	if err != nil {
		m.decide(ctx, sessionID, task.Stage, fmt.Sprintf("remediation by %s failed: %v", target, err))
		return
	}

	produced, err := m.persistDrafts(ctx, sessionID, task.Stage, task.ID, result.Artifacts, session.ArtifactScript)
	if err != nil {
		log.Warn("failed to persist remediation artifacts", "error", err.Error())
		return
	}
	if result.Note != "" {
		if _, err := m.store.AppendMessage(ctx, sessionID, target, result.Note); err != nil {
			log.Warn("failed to append remediation note", "error", err.Error())
		}
	}
	log.Info("remediation applied", "capability", target, "artifacts", len(produced))
}

// invoke performs one bounded capability invocation. Errors are normalized
// to *capability.Failure so the classifier always has a kind and diagnostic
// to work with.
func (m *Machine) invoke(ctx context.Context, name string, req *capability.Request) (*capability.Result, error) {
	target, err := m.registry.Get(name)
	if err != nil {
		return nil, err
	}

	ictx, cancel := context.WithTimeout(ctx, m.invokeTimeout)
	defer cancel()

	result, err := target.Invoke(ictx, req)
	if err != nil {
		if f, ok := capability.AsFailure(err); ok {
			return nil, f
		}
		if errors.Is(ictx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, capability.NewFailure(name, capability.KindToolUnavailable,
				fmt.Sprintf("invocation timed out after %s", m.invokeTimeout))
		}
		return nil, capability.NewFailure(name, classify.KindOf(err.Error()), err.Error())
	}
	if result == nil {
		result = &capability.Result{}
	}
	return result, nil
}

// buildRequest assembles the invocation payload for a stage attempt. All
// artifacts recorded so far are attached by ID; the capability selects what
// it needs.
func (m *Machine) buildRequest(ctx context.Context, sessionID string, stage session.Stage, capName string, task *session.Task, attempt int) (*capability.Request, error) {
	sess, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	inputs, err := m.artifactIDs(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	params := map[string]any{"attempt": attempt}
	if task.RevisionRound > 0 {
		params["revision_round"] = task.RevisionRound
	}
	if attempt > 1 && task.LastDiagnostic != "" {
		params["last_diagnostic"] = task.LastDiagnostic
	}

	return &capability.Request{
		Capability:  capName,
		SessionID:   sessionID,
		Stage:       stage.String(),
		Instruction: sess.Request,
		ArtifactIDs: inputs,
		Params:      params,
	}, nil
}

// artifactIDs returns all recorded artifact IDs in deterministic order.
func (m *Machine) artifactIDs(ctx context.Context, sessionID string) ([]string, error) {
	artifacts, err := m.store.Artifacts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// persistDrafts records a result's artifact drafts. Inline content is stored
// as a payload file; drafts carrying an external ref keep it as-is. Returns
// the new artifact IDs in draft order.
func (m *Machine) persistDrafts(ctx context.Context, sessionID string, stage session.Stage, taskID string, drafts []capability.Draft, fallbackKind session.ArtifactKind) ([]string, error) {
	ids := make([]string, 0, len(drafts))
	for _, d := range drafts {
		id := uuid.NewString()

		ref := d.Ref
		if ref == "" {
			var err error
			ref, err = m.store.WriteArtifactData(ctx, sessionID, id, d.Content)
			if err != nil {
				return nil, err
			}
		}

		kind := session.ArtifactKind(d.Kind)
		if kind == "" {
			kind = fallbackKind
		}

		a := &session.Artifact{
			ID:        id,
			SessionID: sessionID,
			TaskID:    taskID,
			Stage:     stage,
			Kind:      kind,
			Ref:       ref,
			Created:   time.Now().UTC(),
		}
		if err := m.store.RecordArtifact(ctx, a); err != nil {
			return nil, err
		}
		m.bus.Publish(event.NewArtifactRecordedEvent(sessionID, id, stage.String(), kind.String()))
		ids = append(ids, id)
	}
	return ids, nil
}

// generateConcept produces a concept image for the session request. Best
// effort: a generation failure is recorded as a decision, never a run error.
func (m *Machine) generateConcept(ctx context.Context, sessionID string, log *logging.Logger) {
	sess, err := m.store.Load(ctx, sessionID)
	if err != nil {
		log.Warn("concept image skipped", "error", err.Error())
		return
	}

	ref, err := m.images.Generate(ctx, sess.Request)
	if err != nil {
		m.decide(ctx, sessionID, session.StageCreativeSpec, fmt.Sprintf("concept image generation failed: %v", err))
		return
	}

	ledger, err := m.store.Tasks(ctx, sessionID)
	if err != nil {
		log.Warn("concept image skipped", "error", err.Error())
		return
	}
	taskID := ""
	if t := ledger.Task(session.StageCreativeSpec); t != nil {
		taskID = t.ID
	}

	a := &session.Artifact{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		TaskID:    taskID,
		Stage:     session.StageCreativeSpec,
		Kind:      session.ArtifactImage,
		Ref:       ref,
		Note:      "concept image",
		Created:   time.Now().UTC(),
	}
	if err := m.store.RecordArtifact(ctx, a); err != nil {
		log.Warn("failed to record concept image", "error", err.Error())
		return
	}
	m.bus.Publish(event.NewArtifactRecordedEvent(sessionID, a.ID, a.Stage.String(), a.Kind.String()))
	log.Info("concept image recorded", "artifact_id", a.ID)
}

// mutateTask applies fn to one stage's task under the ledger write lock.
func (m *Machine) mutateTask(ctx context.Context, sessionID string, stage session.Stage, fn func(*session.Task)) error {
	_, err := m.store.MutateTasks(ctx, sessionID, func(l *session.Ledger) error {
		t := l.Task(stage)
		if t == nil {
			return fmt.Errorf("%w: no task for stage %s", apperrors.ErrTaskNotFound, stage)
		}
		fn(t)
		return nil
	})
	return err
}

// setStage moves the session header between stages and publishes the change.
func (m *Machine) setStage(ctx context.Context, sessionID string, from, to session.Stage) error {
	if err := m.store.UpdateStage(ctx, sessionID, to); err != nil {
		return err
	}
	m.bus.Publish(event.NewStageChangedEvent(sessionID, from.String(), to.String()))
	m.log.WithSession(sessionID).Debug("stage changed", "from", from.String(), "to", to.String())
	return nil
}

// decide records a coordinator decision and publishes it.
func (m *Machine) decide(ctx context.Context, sessionID string, stage session.Stage, text string) {
	if _, err := m.store.RecordDecision(ctx, sessionID, stage, text); err != nil {
		m.log.WithSession(sessionID).Warn("failed to record decision", "error", err.Error())
		return
	}
	m.bus.Publish(event.NewDecisionRecordedEvent(sessionID, stage.String(), text))
}

// asFailure normalizes any invocation error to a Failure.
func asFailure(capName string, err error) *capability.Failure {
	if f, ok := capability.AsFailure(err); ok {
		return f
	}
	return capability.NewFailure(capName, capability.KindUnknown, err.Error())
}

// containsFold reports whether s contains substr, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// sleepCtx waits for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
