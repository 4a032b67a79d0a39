// Package classify maps failed capability invocations to remediation
// routes. Classification is rule-based on error kind and attempt count, so
// every routing decision is data: testable without invoking real
// capabilities.
package classify

import (
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"maquette/internal/capability"
)

// RouteKind identifies what the coordinator should do with a failure.
type RouteKind string

const (
	// RetrySame re-invokes the same capability with the same payload.
	RetrySame RouteKind = "retry_same"

	// Reroute dispatches to a designated corrective specialist with the
	// failing artifact attached.
	Reroute RouteKind = "reroute"

	// Escalate dispatches to a diagnostic specialist instead of the
	// original producer.
	Escalate RouteKind = "escalate"

	// Abort ends the task: the session moves to failed, preserving all
	// artifacts and decisions for inspection.
	Abort RouteKind = "abort"
)

// String returns the string representation of the route kind.
func (k RouteKind) String() string {
	return string(k)
}

// Route is the classifier's verdict for one failure.
type Route struct {
	Kind RouteKind

	// Capability is the reroute/escalation target, empty otherwise.
	Capability string

	// Wait is the backoff to observe before the next attempt. Only set for
	// transient failures.
	Wait time.Duration

	// Reason is a short human-readable explanation, recorded as part of
	// the routing decision.
	Reason string
}

// Default routing targets. Syntax failures go back to the specialist that
// writes scripts; everything that has stopped responding to retries goes to
// the technical director for diagnosis.
const (
	DefaultRerouteTarget  = "code_synthesis"
	DefaultEscalateTarget = "technical_director"
)

// Config tunes the classifier.
type Config struct {
	// Budget is the maximum number of attempts per task. Must be at least
	// 1; the default is 3.
	Budget int

	// RetryDelay seeds the exponential backoff for transient failures.
	RetryDelay time.Duration

	// RerouteTarget receives syntax failures. Defaults to code_synthesis.
	RerouteTarget string

	// EscalateTarget receives repeated or unclassifiable failures.
	// Defaults to technical_director.
	EscalateTarget string
}

// defaults fills unset fields.
func (c Config) defaults() Config {
	if c.Budget < 1 {
		c.Budget = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.RerouteTarget == "" {
		c.RerouteTarget = DefaultRerouteTarget
	}
	if c.EscalateTarget == "" {
		c.EscalateTarget = DefaultEscalateTarget
	}
	return c
}

// Classifier applies the routing rules.
type Classifier struct {
	cfg Config
}

// New creates a Classifier.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg.defaults()}
}

// Budget returns the configured attempt ceiling.
func (c *Classifier) Budget() int {
	return c.cfg.Budget
}

// Classify picks the remediation route for a failure. attempt is the
// 1-based number of the attempt that just failed.
//
// The ladder: persistence failures abort immediately; an exhausted budget
// aborts; syntax failures reroute to the corrective specialist; transient
// failures retry with backoff; anything else retries once, then escalates,
// then aborts with the budget.
func (c *Classifier) Classify(f *capability.Failure, attempt int) Route {
	kind := f.Kind
	if kind == "" || kind == capability.KindUnknown {
		kind = KindOf(f.Diagnostic)
	}

	if kind == capability.KindPersistence {
		return Route{Kind: Abort, Reason: "persistence failure, session state cannot be trusted"}
	}

	if attempt >= c.cfg.Budget {
		return Route{Kind: Abort, Reason: "retry budget exhausted"}
	}

	switch kind {
	case capability.KindSyntax:
		return Route{
			Kind:       Reroute,
			Capability: c.cfg.RerouteTarget,
			Reason:     "syntax failure in generated script",
		}
	case capability.KindToolUnavailable:
		return Route{
			Kind:   RetrySame,
			Wait:   c.backoffDelay(attempt),
			Reason: "tool unavailable, retrying with backoff",
		}
	case capability.KindRuntime:
		if attempt == 1 {
			return Route{Kind: RetrySame, Reason: "runtime fault, retrying once"}
		}
		return Route{
			Kind:       Escalate,
			Capability: c.cfg.EscalateTarget,
			Reason:     "repeated runtime fault",
		}
	default:
		if attempt == 1 {
			return Route{Kind: RetrySame, Reason: "unclassified failure, retrying once"}
		}
		return Route{
			Kind:       Escalate,
			Capability: c.cfg.EscalateTarget,
			Reason:     "repeated unclassified failure",
		}
	}
}

// backoffDelay computes the wait before the next attempt after the given
// 1-based failed attempt. Randomization is disabled so resumed runs make
// the same scheduling decisions as live ones.
func (c *Classifier) backoffDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// Diagnostic substrings mapped to kinds. The syntax marker is the engine's
// canonical parse-failure prefix; the rate-limit markers are what model
// backends emit when throttling.
var (
	syntaxMarkers = []string{
		"syntaxerror",
		"indentationerror",
		"invalid syntax",
	}
	runtimeMarkers = []string{
		"traceback",
		"runtimeerror",
		"nameerror",
		"attributeerror",
		"typeerror",
		"keyerror",
		"indexerror",
		"valueerror",
	}
	unavailableMarkers = []string{
		"429",
		"resource_exhausted",
		"rate limit",
		"connection refused",
		"connection reset",
		"timed out",
		"timeout",
		"deadline exceeded",
		"unreachable",
		"no such host",
	}
	validationMarkers = []string{
		"validation failed",
		"qa rejected",
		"does not match reference",
	}
)

// KindOf maps a raw diagnostic to an error kind by substring rules.
// Deterministic: syntax markers win over runtime markers, which win over
// availability markers.
func KindOf(diagnostic string) capability.Kind {
	d := strings.ToLower(diagnostic)

	for _, marker := range syntaxMarkers {
		if strings.Contains(d, marker) {
			return capability.KindSyntax
		}
	}
	for _, marker := range runtimeMarkers {
		if strings.Contains(d, marker) {
			return capability.KindRuntime
		}
	}
	for _, marker := range unavailableMarkers {
		if strings.Contains(d, marker) {
			return capability.KindToolUnavailable
		}
	}
	for _, marker := range validationMarkers {
		if strings.Contains(d, marker) {
			return capability.KindValidation
		}
	}
	return capability.KindUnknown
}
