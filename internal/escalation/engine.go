package escalation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/helix-run/helix/internal/config"
)

// Engine runs the escalation state machine for one phase directory at a
// time; it is stateless itself, reading and writing State on disk.
type Engine struct {
	cfg config.EscalationConfig
}

func New(cfg config.EscalationConfig) *Engine {
	return &Engine{cfg: cfg}
}

// RecordFailure advances st by one gate/verification failure and
// returns the Action the Phase Executor should take. st is mutated and
// the caller is expected to persist it via Save (Orchestrator callers
// do this immediately after).
func (e *Engine) RecordFailure(phaseDir string, st *State, failure FailureRecord) (Action, error) {
	st.TotalAttempts++
	st.FailureHistory = append(st.FailureHistory, failure)

	if st.Stage == StageNone {
		st.Stage = Stage1
		st.AttemptCount = 0
	}

	for {
		switch st.Stage {
		case Stage1:
			st.AttemptCount++
			ceiling := e.cfg.Stage1Ceiling
			if ceiling <= 0 {
				ceiling = 3
			}
			if st.AttemptCount <= ceiling {
				return e.stage1Action(st), nil
			}
			st.Stage = Stage2
			st.AttemptCount = 0
			continue

		case Stage2:
			st.AttemptCount++
			ceiling := e.cfg.Stage2Ceiling
			if ceiling <= 0 {
				ceiling = 2
			}
			if st.AttemptCount <= ceiling {
				path, err := writeReviewRequest(phaseDir, st)
				if err != nil {
					return Action{}, err
				}
				return Action{Kind: ActionHumanReview, ReviewRequestPath: path}, nil
			}
			st.Stage = StageAborted
			continue

		case StageAborted:
			return Action{Kind: ActionAbort}, nil

		default:
			return Action{}, fmt.Errorf("unknown escalation stage %q", st.Stage)
		}
	}
}

// stage1Action deterministically selects among retry / model_switch /
// provide_hints by attempt count (spec §4.8), repeating that cycle when
// the stage-1 ceiling allows more than three attempts.
func (e *Engine) stage1Action(st *State) Action {
	switch (st.AttemptCount-1)%3 + 1 {
	case 1:
		return Action{Kind: ActionRetry}
	case 2:
		model := e.nextModel(st)
		return Action{Kind: ActionModelSwitch, Model: model}
	default:
		return Action{Kind: ActionProvideHints, Hints: synthesizeHints(st.FailureHistory)}
	}
}

// nextModel advances st.ModelIndex to the next entry in the configured
// model chain, sticking on the last entry once reached.
func (e *Engine) nextModel(st *State) string {
	chain := e.cfg.ModelChain
	if len(chain) == 0 {
		return ""
	}
	if st.ModelIndex < len(chain)-1 {
		st.ModelIndex++
	}
	return chain[st.ModelIndex]
}

// synthesizeHints builds concrete, concise hints from the most recent
// failure's missing files and syntax errors (spec §4.8); earlier
// failure records are not consulted.
func synthesizeHints(history []FailureRecord) []string {
	if len(history) == 0 {
		return []string{"No failure details are available; re-read the phase instructions carefully."}
	}
	latest := history[len(history)-1]

	var hints []string
	for _, f := range latest.MissingFiles {
		hints = append(hints, fmt.Sprintf("Create the missing file: %s", f))
	}
	for i, s := range latest.SyntaxErrors {
		if i >= 3 {
			hints = append(hints, fmt.Sprintf("...and %d more syntax error(s)", len(latest.SyntaxErrors)-3))
			break
		}
		hints = append(hints, fmt.Sprintf("Fix syntax error: %s", s))
	}
	if len(hints) == 0 {
		hints = append(hints, "Re-read the acceptance criteria; the previous attempt did not satisfy the quality gate: "+latest.Reason)
	}
	return hints
}

// reviewRequest is the JSON written for a stage-2 human-review action
// (spec §4.8), including a schema describing the expected response so a
// human reviewer's tool can validate its own output.
type reviewRequest struct {
	Summary        string          `json:"summary"`
	FailureHistory []FailureRecord `json:"failure_history"`
	ResponseSchema json.RawMessage `json:"expected_response_schema"`
}

const responseSchema = `{
  "type": "object",
  "required": ["decision"],
  "properties": {
    "decision": {"type": "string", "enum": ["retry", "skip", "abort", "manual_fix"]},
    "comment": {"type": "string"}
  }
}`

func writeReviewRequest(phaseDir string, st *State) (string, error) {
	latest := st.FailureHistory[len(st.FailureHistory)-1]
	req := reviewRequest{
		Summary:        fmt.Sprintf("Phase repeatedly failed: %s", latest.Reason),
		FailureHistory: st.FailureHistory,
		ResponseSchema: json.RawMessage(responseSchema),
	}

	dir := filepath.Join(phaseDir, "escalation")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create escalation dir: %w", err)
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal review request: %w", err)
	}
	path := filepath.Join(dir, "review-request.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write review request: %w", err)
	}
	return path, nil
}

// HumanResponse is the decision a human reviewer writes in response to
// a stage-2 review-request.json.
type HumanResponse struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment,omitempty"`
}

// PollHumanResponse reads human-response.json from phaseDir/escalation,
// returning (nil, nil) if it has not been written yet.
func PollHumanResponse(phaseDir string) (*HumanResponse, error) {
	data, err := os.ReadFile(filepath.Join(phaseDir, "escalation", "human-response.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read human response: %w", err)
	}
	var resp HumanResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse human response: %w", err)
	}
	return &resp, nil
}
