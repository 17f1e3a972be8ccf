package orchestrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/helix-run/helix/internal/phase"
)

// planEntry is one phase.yaml-shaped entry inside a plan.yaml (spec
// §4.10: "id, type, description, optional depends-on list, optional
// gate").
type planEntry struct {
	ID          string             `yaml:"id"`
	Type        phase.Type         `yaml:"type"`
	Description string             `yaml:"description"`
	DependsOn   []string           `yaml:"depends_on,omitempty"`
	QualityGate *phase.QualityGate `yaml:"quality_gate,omitempty"`
}

type planFile struct {
	Phases []planEntry `yaml:"phases"`
}

// loadPlan reads and parses a plan.yaml produced by a decompose phase.
func loadPlan(path string) ([]planEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return pf.Phases, nil
}

// expandPlan validates a plan's depends_on references against
// completedIDs (phases already completed in this run) and the plan's
// own earlier entries, then converts it to an ordered PhaseConfig list
// ready to prepend to the deque (spec §4.10: "cycles or forward
// references that cannot be resolved cause mark_failed").
func expandPlan(entries []planEntry, completedIDs map[string]bool) ([]phase.PhaseConfig, error) {
	seen := make(map[string]bool, len(entries))
	configs := make([]phase.PhaseConfig, 0, len(entries))

	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("plan entry missing id")
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("plan declares duplicate id %q", e.ID)
		}
		for _, dep := range e.DependsOn {
			if !seen[dep] && !completedIDs[dep] {
				return nil, fmt.Errorf("plan entry %q depends on unresolved or forward-referenced id %q", e.ID, dep)
			}
		}
		seen[e.ID] = true

		configs = append(configs, phase.PhaseConfig{
			ID:          e.ID,
			Name:        e.Description,
			Type:        e.Type,
			QualityGate: e.QualityGate,
		})
	}
	return configs, nil
}
