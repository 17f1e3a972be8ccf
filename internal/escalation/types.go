// Package escalation implements the Escalation Engine (C8): the
// two-stage state machine that decides what happens after a phase's
// quality gate or verifier fails.
package escalation

// Stage is a position in the escalation state machine (spec §4.8).
type Stage string

const (
	StageNone    Stage = "none"
	Stage1       Stage = "stage1"
	Stage2       Stage = "stage2"
	StageAborted Stage = "aborted"
)

// level orders stages for the monotonicity invariant (spec §8 property
// #7: "level is non-decreasing").
var level = map[Stage]int{StageNone: 0, Stage1: 1, Stage2: 2, StageAborted: 3}

// Level returns s's ordinal position, for comparing two stages.
func (s Stage) Level() int { return level[s] }

// ActionKind names the action emitted by a transition.
type ActionKind string

const (
	ActionRetry        ActionKind = "retry"
	ActionModelSwitch  ActionKind = "model_switch"
	ActionProvideHints ActionKind = "provide_hints"
	ActionHumanReview  ActionKind = "human_review"
	ActionAbort        ActionKind = "abort"
)

// Action is what the caller (the Phase Executor) should do next.
type Action struct {
	Kind  ActionKind
	Model string   // set for model_switch
	Hints []string // set for provide_hints

	// ReviewRequestPath is set for human_review: the caller polls this
	// phase directory for a human-response.json answering it.
	ReviewRequestPath string
}

// FailureRecord is one entry of a phase's failure history, accumulated
// across attempts and used both for hint synthesis and the stage-2
// review request (spec §4.8).
type FailureRecord struct {
	AttemptNumber int      `json:"attempt_number"`
	Reason        string   `json:"reason"`
	MissingFiles  []string `json:"missing_files,omitempty"`
	SyntaxErrors  []string `json:"syntax_errors,omitempty"`
}

// State is the persisted escalation state for one phase (spec §4.8:
// "written to escalation/state.json ... loadable on resume").
type State struct {
	Stage          Stage           `json:"stage"`
	AttemptCount   int             `json:"attempt_count"`
	TotalAttempts  int             `json:"total_attempts"`
	ModelIndex     int             `json:"model_index"`
	FailureHistory []FailureRecord `json:"failure_history"`
}
