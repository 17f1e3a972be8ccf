package escalation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const stateFileName = "state.json"

func statePath(phaseDir string) string {
	return filepath.Join(phaseDir, "escalation", stateFileName)
}

// Load reads escalation/state.json, returning a fresh none-stage State
// if it doesn't exist yet.
func Load(phaseDir string) (*State, error) {
	data, err := os.ReadFile(statePath(phaseDir))
	if os.IsNotExist(err) {
		return &State{Stage: StageNone}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read escalation state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse escalation state: %w", err)
	}
	return &st, nil
}

// Save persists st under phaseDir/escalation/state.json.
func Save(phaseDir string, st *State) error {
	dir := filepath.Join(phaseDir, "escalation")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create escalation dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal escalation state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stateFileName), data, 0o644); err != nil {
		return fmt.Errorf("write escalation state: %w", err)
	}
	return nil
}
