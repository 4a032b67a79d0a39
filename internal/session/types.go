// Package session provides the durable record of a production run: the
// session header, its append-only message and decision logs, immutable
// artifacts, and the per-stage task ledger. The store is file-backed with
// atomic writes so a crash between steps always leaves the session in the
// last fully-committed state.
package session

import "time"

// Status represents the lifecycle state of a session.
type Status string

const (
	// StatusActive indicates the session is being driven by a live process.
	StatusActive Status = "active"

	// StatusSuspended indicates the run was interrupted at a stage boundary
	// and can be resumed.
	StatusSuspended Status = "suspended"

	// StatusCompleted indicates the run finished the full stage sequence.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the run aborted after exhausting its retry
	// budget. Artifacts and decisions are preserved for inspection.
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage is a named step in the fixed production sequence. The stage is part
// of the persisted session state: resume re-derives what to do next purely
// from stored stage plus task status.
type Stage string

const (
	StageIntake        Stage = "intake"
	StagePlanning      Stage = "planning"
	StageCreativeSpec  Stage = "creative_specification"
	StageCodeSynthesis Stage = "code_synthesis"
	StageExecution     Stage = "execution"
	StageErrorTriage   Stage = "error_triage"
	StageTexturing     Stage = "texturing"
	StageRigging       Stage = "rigging"
	StageSceneAssembly Stage = "scene_assembly"
	StageLighting      Stage = "lighting"
	StageCamera        Stage = "camera"
	StageAnimation     Stage = "animation"
	StageQA            Stage = "quality_assurance"
	StageRevision      Stage = "revision"
	StageRendering     Stage = "rendering"
	StageCompleted     Stage = "completed"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// IsProgression returns true for the independent sub-stages that dress the
// executed scene (texturing, rigging, assembly, lighting, camera, animation).
func (s Stage) IsProgression() bool {
	switch s {
	case StageTexturing, StageRigging, StageSceneAssembly,
		StageLighting, StageCamera, StageAnimation:
		return true
	}
	return false
}

// ProgressionStages returns the progression sub-stages in canonical order.
func ProgressionStages() []Stage {
	return []Stage{
		StageTexturing,
		StageRigging,
		StageSceneAssembly,
		StageLighting,
		StageCamera,
		StageAnimation,
	}
}

// Session is the durable header of a production run. The ordered message
// and decision logs, artifacts, and task ledger are stored alongside it,
// not embedded, so the header stays cheap to rewrite atomically.
type Session struct {
	ID      string    `json:"id"`
	Request string    `json:"request"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	Stage   Stage     `json:"stage"`
	Status  Status    `json:"status"`
}

// Message is one entry in a session's ordered message log.
type Message struct {
	Seq     int       `json:"seq"`
	Role    string    `json:"role"` // "user", "system", or a capability name
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Decision is a durable note of a coordinator routing choice, appended to
// the session log for audit and for informing later specialists without
// replaying full history.
type Decision struct {
	Seq   int       `json:"seq"`
	Stage Stage     `json:"stage"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// ArtifactKind identifies what a produced artifact is.
type ArtifactKind string

const (
	ArtifactSpecification ArtifactKind = "specification"
	ArtifactScript        ArtifactKind = "script"
	ArtifactImage         ArtifactKind = "image"
	ArtifactSceneReport   ArtifactKind = "scene_report"
	ArtifactQAReport      ArtifactKind = "qa_report"
	ArtifactRender        ArtifactKind = "render"
)

// String returns the string representation of the artifact kind.
func (k ArtifactKind) String() string {
	return string(k)
}

// Artifact is a produced output. Artifacts are immutable once created:
// retries supersede prior artifacts with new records, never overwrite them.
type Artifact struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	TaskID    string       `json:"task_id"`
	Stage     Stage        `json:"stage"`
	Kind      ArtifactKind `json:"kind"`
	Ref       string       `json:"ref"` // path or URI of the artifact payload
	Note      string       `json:"note,omitempty"`
	Created   time.Time    `json:"created"`
}

// TaskStatus represents the current state of a delegated task.
type TaskStatus string

const (
	// TaskPending indicates the task has been created but not yet dispatched.
	TaskPending TaskStatus = "pending"

	// TaskInFlight indicates a capability invocation is in progress.
	TaskInFlight TaskStatus = "in_flight"

	// TaskDone indicates the task finished successfully.
	TaskDone TaskStatus = "done"

	// TaskFailed indicates the task failed and exhausted its retry budget.
	TaskFailed TaskStatus = "failed"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskDone || s == TaskFailed
}

// Task is one delegated unit of work tied to a pipeline stage. Exactly one
// task exists per (session, stage); invocation attempts mutate it in place
// and produced artifacts reference it by ID.
type Task struct {
	ID         string     `json:"id"`
	Stage      Stage      `json:"stage"`
	Capability string     `json:"capability"`
	Status     TaskStatus `json:"status"`
	Attempt    int        `json:"attempt"`
	MaxAttempt int        `json:"max_attempt"`

	// InputIDs are artifact IDs attached to the next invocation.
	InputIDs []string `json:"input_ids,omitempty"`

	// ProducedIDs are artifact IDs produced by successful invocations.
	ProducedIDs []string `json:"produced_ids,omitempty"`

	// LastDiagnostic is the raw diagnostic from the most recent failure.
	LastDiagnostic string `json:"last_diagnostic,omitempty"`

	// RevisionRound counts how many times QA sent this stage back for
	// revision. Revision resets Attempt but not RevisionRound.
	RevisionRound int `json:"revision_round,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Ledger is the per-session record of all stage tasks. It is persisted as a
// whole with an atomic rewrite on every mutation.
type Ledger struct {
	Tasks map[Stage]*Task `json:"tasks"`
}

// NewLedger creates an empty task ledger.
func NewLedger() *Ledger {
	return &Ledger{Tasks: make(map[Stage]*Task)}
}

// Task returns the task for the given stage, or nil if none exists.
func (l *Ledger) Task(stage Stage) *Task {
	if l == nil || l.Tasks == nil {
		return nil
	}
	return l.Tasks[stage]
}

// Put stores a task under its stage.
func (l *Ledger) Put(task *Task) {
	if l.Tasks == nil {
		l.Tasks = make(map[Stage]*Task)
	}
	l.Tasks[task.Stage] = task
}

// InFlight returns the stages whose task is currently marked in-flight.
// After a clean shutdown this is empty; after a crash it identifies the
// invocation that must be re-driven on resume.
func (l *Ledger) InFlight() []Stage {
	var stages []Stage
	for stage, task := range l.Tasks {
		if task.Status == TaskInFlight {
			stages = append(stages, stage)
		}
	}
	return stages
}
