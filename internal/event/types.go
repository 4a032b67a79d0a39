// Package event provides a synchronous pub-sub bus and the event types
// published during a production run. Events are observational: nothing in
// the pipeline depends on a subscriber being present.
package event

import "time"

// Event type name constants, used for subscriptions.
const (
	TypeStageChanged     = "pipeline.stage_changed"
	TypeTaskStarted      = "pipeline.task_started"
	TypeTaskCompleted    = "pipeline.task_completed"
	TypeDecisionRecorded = "session.decision_recorded"
	TypeArtifactRecorded = "session.artifact_recorded"
	TypeRunCompleted     = "run.completed"
)

// Event is the interface implemented by all bus events.
type Event interface {
	// EventType returns the type name used for subscription matching.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent holds fields common to all events.
type baseEvent struct {
	Time time.Time `json:"time"`
}

func (e baseEvent) Timestamp() time.Time { return e.Time }

// StageChangedEvent is published whenever a session moves between pipeline
// stages, forward or backward.
type StageChangedEvent struct {
	baseEvent
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// NewStageChangedEvent creates a StageChangedEvent.
func NewStageChangedEvent(sessionID, from, to string) StageChangedEvent {
	return StageChangedEvent{
		baseEvent: baseEvent{Time: time.Now()},
		SessionID: sessionID,
		From:      from,
		To:        to,
	}
}

// EventType returns the event type name.
func (e StageChangedEvent) EventType() string { return TypeStageChanged }

// TaskStartedEvent is published when a stage task begins an invocation
// attempt against a capability.
type TaskStartedEvent struct {
	baseEvent
	SessionID  string `json:"session_id"`
	TaskID     string `json:"task_id"`
	Stage      string `json:"stage"`
	Capability string `json:"capability"`
	Attempt    int    `json:"attempt"`
}

// NewTaskStartedEvent creates a TaskStartedEvent.
func NewTaskStartedEvent(sessionID, taskID, stage, capability string, attempt int) TaskStartedEvent {
	return TaskStartedEvent{
		baseEvent:  baseEvent{Time: time.Now()},
		SessionID:  sessionID,
		TaskID:     taskID,
		Stage:      stage,
		Capability: capability,
		Attempt:    attempt,
	}
}

// EventType returns the event type name.
func (e TaskStartedEvent) EventType() string { return TypeTaskStarted }

// TaskCompletedEvent is published when a stage task reaches a terminal
// status (done or failed).
type TaskCompletedEvent struct {
	baseEvent
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id"`
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(sessionID, taskID, stage, status string, attempts int) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent: baseEvent{Time: time.Now()},
		SessionID: sessionID,
		TaskID:    taskID,
		Stage:     stage,
		Status:    status,
		Attempts:  attempts,
	}
}

// EventType returns the event type name.
func (e TaskCompletedEvent) EventType() string { return TypeTaskCompleted }

// DecisionRecordedEvent is published for every coordinator routing decision
// appended to the session log.
type DecisionRecordedEvent struct {
	baseEvent
	SessionID string `json:"session_id"`
	Stage     string `json:"stage"`
	Text      string `json:"text"`
}

// NewDecisionRecordedEvent creates a DecisionRecordedEvent.
func NewDecisionRecordedEvent(sessionID, stage, text string) DecisionRecordedEvent {
	return DecisionRecordedEvent{
		baseEvent: baseEvent{Time: time.Now()},
		SessionID: sessionID,
		Stage:     stage,
		Text:      text,
	}
}

// EventType returns the event type name.
func (e DecisionRecordedEvent) EventType() string { return TypeDecisionRecorded }

// ArtifactRecordedEvent is published when a new artifact is persisted.
type ArtifactRecordedEvent struct {
	baseEvent
	SessionID  string `json:"session_id"`
	ArtifactID string `json:"artifact_id"`
	Stage      string `json:"stage"`
	Kind       string `json:"kind"`
}

// NewArtifactRecordedEvent creates an ArtifactRecordedEvent.
func NewArtifactRecordedEvent(sessionID, artifactID, stage, kind string) ArtifactRecordedEvent {
	return ArtifactRecordedEvent{
		baseEvent:  baseEvent{Time: time.Now()},
		SessionID:  sessionID,
		ArtifactID: artifactID,
		Stage:      stage,
		Kind:       kind,
	}
}

// EventType returns the event type name.
func (e ArtifactRecordedEvent) EventType() string { return TypeArtifactRecorded }

// RunCompletedEvent is published when the driver finishes a run, whether it
// completed, failed, or was suspended.
type RunCompletedEvent struct {
	baseEvent
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// NewRunCompletedEvent creates a RunCompletedEvent.
func NewRunCompletedEvent(sessionID, status string) RunCompletedEvent {
	return RunCompletedEvent{
		baseEvent: baseEvent{Time: time.Now()},
		SessionID: sessionID,
		Status:    status,
	}
}

// EventType returns the event type name.
func (e RunCompletedEvent) EventType() string { return TypeRunCompleted }
