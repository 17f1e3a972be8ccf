// Package herrors defines the error taxonomy shared across HELIX's
// components. Every subprocess- or filesystem-facing package translates
// low-level failures into one of these kinds before returning, so callers
// can branch on errors.Is/errors.As instead of string matching.
package herrors

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Wrap these with fmt.Errorf("...: %w", KindX) to
// attach detail while keeping errors.Is(err, KindX) working.
var (
	// ErrMalformedSpec indicates phases.yaml or an ADR could not be parsed
	// or failed validation. Fatal for the run that discovered it.
	ErrMalformedSpec = errors.New("malformed spec")

	// ErrAgentExecution indicates the agent subprocess could not be
	// started, crashed, or exited non-zero. Recoverable via retry, model
	// switch, or escalation.
	ErrAgentExecution = errors.New("agent execution error")

	// ErrTimeout indicates a subprocess or health check exceeded its
	// deadline.
	ErrTimeout = errors.New("timeout")

	// ErrGateFailure indicates a deterministic quality gate failed.
	ErrGateFailure = errors.New("quality gate failure")

	// ErrVerification indicates a phase's declared outputs were missing
	// or invalid after the agent ran.
	ErrVerification = errors.New("verification failure")

	// ErrExternalTool indicates a VCS or control-script invocation
	// failed. Fatal for the current pipeline step.
	ErrExternalTool = errors.New("external tool error")

	// ErrHumanReviewRequested indicates stage-2 escalation is blocking on
	// a human decision. Not recoverable without external input.
	ErrHumanReviewRequested = errors.New("human review requested")

	// ErrCancelled indicates an explicit stop request terminated the job.
	ErrCancelled = errors.New("cancelled")
)

// Wrap attaches a message to a sentinel kind while preserving errors.Is.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}
