// Package engine talks to the external content-creation engine: a
// line-delimited JSON service that executes generated scripts inside the
// running scene and reports scene state. The engine's rendering and
// modeling semantics are entirely its own; this package only carries
// scripts over and outcomes back.
package engine

import "context"

// ExecResult is the outcome of executing a script in the engine.
type ExecResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SceneInfo is a summary of the engine's current scene state.
type SceneInfo struct {
	ObjectCount int      `json:"object_count"`
	ObjectNames []string `json:"object_names,omitempty"`
}

// Summary renders a short human-readable description of the scene, suitable
// for seeding a session's message log.
func (s *SceneInfo) Summary() string {
	if s == nil {
		return "scene state unavailable"
	}
	out := "scene: "
	switch s.ObjectCount {
	case 0:
		return out + "empty"
	case 1:
		out += "1 object"
	default:
		out += itoa(s.ObjectCount) + " objects"
	}
	for i, name := range s.ObjectNames {
		if i >= 3 {
			out += ", ..."
			break
		}
		if i == 0 {
			out += " ("
		} else {
			out += ", "
		}
		out += name
	}
	if len(s.ObjectNames) > 0 {
		out += ")"
	}
	return out
}

// itoa avoids importing strconv for one call site.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Engine is the execution environment interface. Implementations: Client
// (live TCP peer) and Stub (tests, offline runs).
type Engine interface {
	// Execute runs a script in the engine and returns its outcome. A
	// non-success result with a syntax diagnostic is the canonical trigger
	// for rerouting to the code-synthesis specialist.
	Execute(ctx context.Context, script string) (*ExecResult, error)

	// SceneInfo returns a summary of the engine's current scene.
	SceneInfo(ctx context.Context) (*SceneInfo, error)

	// Ping checks whether the engine is reachable.
	Ping(ctx context.Context) error
}
