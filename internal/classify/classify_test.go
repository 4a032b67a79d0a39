package classify

import (
	"testing"
	"time"

	"maquette/internal/capability"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name       string
		diagnostic string
		want       capability.Kind
	}{
		{"python syntax error", "SyntaxError: invalid syntax (line 4)", capability.KindSyntax},
		{"indentation error", "IndentationError: unexpected indent", capability.KindSyntax},
		{"traceback", "Traceback (most recent call last): ...", capability.KindRuntime},
		{"name error", "NameError: name 'bpy' is not defined", capability.KindRuntime},
		{"attribute error", "AttributeError: 'NoneType' object has no attribute 'location'", capability.KindRuntime},
		{"rate limit status", "backend rate limited (429): try later", capability.KindToolUnavailable},
		{"resource exhausted", "RESOURCE_EXHAUSTED: quota exceeded", capability.KindToolUnavailable},
		{"connection refused", "dial tcp 127.0.0.1:9876: connection refused", capability.KindToolUnavailable},
		{"timeout", "invocation timed out after 2m0s", capability.KindToolUnavailable},
		{"qa rejection", "qa rejected: proportions do not match reference", capability.KindValidation},
		{"unmatched", "something completely different", capability.KindUnknown},
		{"syntax beats runtime", "Traceback ... SyntaxError: invalid syntax", capability.KindSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.diagnostic); got != tt.want {
				t.Errorf("KindOf(%q) = %s, want %s", tt.diagnostic, got, tt.want)
			}
		})
	}
}

func TestClassifySyntaxReroutes(t *testing.T) {
	c := New(Config{})

	f := capability.NewFailure("modeling", capability.KindSyntax, "SyntaxError: invalid syntax")
	route := c.Classify(f, 1)

	if route.Kind != Reroute {
		t.Fatalf("route = %s, want %s", route.Kind, Reroute)
	}
	if route.Capability != DefaultRerouteTarget {
		t.Errorf("target = %q, want %q", route.Capability, DefaultRerouteTarget)
	}
}

func TestClassifyTransientRetriesUntilBudget(t *testing.T) {
	c := New(Config{Budget: 3, RetryDelay: 2 * time.Second})

	f := capability.NewFailure("director", capability.KindToolUnavailable, "429 rate limited")

	// Attempts 1 and 2 retry with growing backoff; attempt 3 exhausts the
	// budget.
	r1 := c.Classify(f, 1)
	if r1.Kind != RetrySame {
		t.Fatalf("attempt 1 route = %s, want %s", r1.Kind, RetrySame)
	}
	if r1.Wait != 2*time.Second {
		t.Errorf("attempt 1 wait = %s, want 2s", r1.Wait)
	}

	r2 := c.Classify(f, 2)
	if r2.Kind != RetrySame {
		t.Fatalf("attempt 2 route = %s, want %s", r2.Kind, RetrySame)
	}
	if r2.Wait <= r1.Wait {
		t.Errorf("attempt 2 wait = %s, want more than %s", r2.Wait, r1.Wait)
	}

	r3 := c.Classify(f, 3)
	if r3.Kind != Abort {
		t.Fatalf("attempt 3 route = %s, want %s", r3.Kind, Abort)
	}
}

func TestClassifyRuntimeEscalatesAfterOneRetry(t *testing.T) {
	c := New(Config{})

	f := capability.NewFailure("modeling", capability.KindRuntime, "NameError: name 'obj' is not defined")

	if route := c.Classify(f, 1); route.Kind != RetrySame {
		t.Fatalf("attempt 1 route = %s, want %s", route.Kind, RetrySame)
	}
	route := c.Classify(f, 2)
	if route.Kind != Escalate {
		t.Fatalf("attempt 2 route = %s, want %s", route.Kind, Escalate)
	}
	if route.Capability != DefaultEscalateTarget {
		t.Errorf("target = %q, want %q", route.Capability, DefaultEscalateTarget)
	}
}

func TestClassifyPersistenceAbortsImmediately(t *testing.T) {
	c := New(Config{Budget: 5})

	f := capability.NewFailure("qa", capability.KindPersistence, "failed to write artifact")
	if route := c.Classify(f, 1); route.Kind != Abort {
		t.Fatalf("route = %s, want %s on first attempt", route.Kind, Abort)
	}
}

func TestClassifyInfersKindFromDiagnostic(t *testing.T) {
	c := New(Config{})

	// Kind unknown on the failure, but the diagnostic carries a syntax marker.
	f := capability.NewFailure("modeling", capability.KindUnknown, "SyntaxError: unexpected EOF while parsing")
	route := c.Classify(f, 1)
	if route.Kind != Reroute {
		t.Fatalf("route = %s, want %s", route.Kind, Reroute)
	}
}

func TestClassifyDeterministicBackoff(t *testing.T) {
	c := New(Config{Budget: 5, RetryDelay: time.Second})

	f := capability.NewFailure("director", capability.KindToolUnavailable, "timeout")
	a := c.Classify(f, 2)
	b := c.Classify(f, 2)
	if a.Wait != b.Wait {
		t.Errorf("same attempt produced different waits: %s vs %s", a.Wait, b.Wait)
	}
}

func TestConfigDefaults(t *testing.T) {
	c := New(Config{})
	if c.Budget() != 3 {
		t.Errorf("Budget() = %d, want 3", c.Budget())
	}
}
