// Package pipeline drives a session through the fixed production sequence,
// delegating each stage to a registered capability, routing failures through
// the classifier, and persisting every state change so an interrupted run
// resumes from the last committed stage.
package pipeline

import (
	"maquette/internal/session"
)

// stageCapabilities maps each pipeline stage to the capability that serves
// it. The progression sub-stages use capabilities of the same name.
var stageCapabilities = map[session.Stage]string{
	session.StageIntake:        "producer",
	session.StagePlanning:      "director",
	session.StageCreativeSpec:  "creative_spec",
	session.StageCodeSynthesis: "code_synthesis",
	session.StageExecution:     "modeling",
	session.StageTexturing:     "texturing",
	session.StageRigging:       "rigging",
	session.StageSceneAssembly: "scene_assembly",
	session.StageLighting:      "lighting",
	session.StageCamera:        "camera",
	session.StageAnimation:     "animation",
	session.StageQA:            "qa",
	session.StageRendering:     "rendering",
}

// CapabilityFor returns the capability name serving a stage, or "" for
// stages that have no capability of their own (triage, revision, completed).
func CapabilityFor(stage session.Stage) string {
	return stageCapabilities[stage]
}

// mainSequence is the forward path through the pipeline. The progression
// block is entered at its first sub-stage; the block runs as a unit and
// every sub-stage advances to quality assurance.
var mainSequence = []session.Stage{
	session.StageIntake,
	session.StagePlanning,
	session.StageCreativeSpec,
	session.StageCodeSynthesis,
	session.StageExecution,
	session.StageTexturing,
	session.StageRigging,
	session.StageSceneAssembly,
	session.StageLighting,
	session.StageCamera,
	session.StageAnimation,
	session.StageQA,
	session.StageRendering,
	session.StageCompleted,
}

// NextStage returns the stage that follows the given one on the forward
// path. Any progression sub-stage advances to quality assurance, since the
// block completes as a unit. Triage and revision are detours, not forward
// steps, and map back to the execution and quality gates that own them.
func NextStage(stage session.Stage) session.Stage {
	if stage.IsProgression() {
		return session.StageQA
	}
	switch stage {
	case session.StageErrorTriage:
		return session.StageExecution
	case session.StageRevision:
		return session.StageQA
	case session.StageCompleted:
		return session.StageCompleted
	}
	for i, s := range mainSequence {
		if s == stage && i+1 < len(mainSequence) {
			return mainSequence[i+1]
		}
	}
	return session.StageCompleted
}

// stagesBetween returns the forward-path stages from 'from' through 'to'
// inclusive, expanding the progression block. Used by revision to determine
// which tasks to reset when quality assurance sends work back.
func stagesBetween(from, to session.Stage) []session.Stage {
	started := false
	var out []session.Stage
	for _, s := range mainSequence {
		if s == from {
			started = true
		}
		if started {
			out = append(out, s)
		}
		if started && s == to {
			break
		}
	}
	return out
}

// defaultArtifactKind is the artifact kind assumed for drafts a capability
// returns without an explicit kind.
func defaultArtifactKind(stage session.Stage) session.ArtifactKind {
	switch stage {
	case session.StageIntake, session.StagePlanning, session.StageCreativeSpec:
		return session.ArtifactSpecification
	case session.StageCodeSynthesis:
		return session.ArtifactScript
	case session.StageExecution:
		return session.ArtifactSceneReport
	case session.StageQA:
		return session.ArtifactQAReport
	case session.StageRendering:
		return session.ArtifactRender
	default:
		return session.ArtifactSceneReport
	}
}
