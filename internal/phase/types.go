// Package phase defines the PhaseConfig data model and the Phase
// Definition Loader (C1): parsing phases.yaml, validating it, and
// merging project-type templates.
package phase

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Type enumerates the allowed phase types (spec §3).
type Type string

const (
	TypeMeeting       Type = "meeting"
	TypeConsultant    Type = "consultant"
	TypeDevelopment   Type = "development"
	TypeReview        Type = "review"
	TypeDocumentation Type = "documentation"
	TypeTest          Type = "test"
)

var validTypes = map[Type]bool{
	TypeMeeting: true, TypeConsultant: true, TypeDevelopment: true,
	TypeReview: true, TypeDocumentation: true, TypeTest: true,
}

// GateType enumerates the quality_gate variants (spec §4.6).
type GateType string

const (
	GateFilesExist     GateType = "files_exist"
	GateSyntaxCheck    GateType = "syntax_check"
	GateTestsPass      GateType = "tests_pass"
	GateReviewApproved GateType = "review_approved"
)

// QualityGate is a tagged variant. Exactly one of the variant-specific
// fields is populated, selected by Type.
type QualityGate struct {
	Type GateType `yaml:"type" validate:"required,oneof=files_exist syntax_check tests_pass review_approved"`

	// files_exist
	Files []string `yaml:"files,omitempty"`

	// syntax_check
	Language string `yaml:"language,omitempty"`

	// tests_pass
	Command string `yaml:"command,omitempty"`

	// review_approved
	File string `yaml:"file,omitempty"`
}

// InputRef is one entry of input_from: either a bare phase id, or a
// phase id scoped to a list of glob patterns.
type InputRef struct {
	PhaseID  string
	Patterns []string // nil means "copy the whole output/ directory"
}

// UnmarshalYAML implements the string-or-map union described in spec
// §3/§6.
func (r *InputRef) UnmarshalYAML(node *yaml.Node) error {
	var asString string
	if err := node.Decode(&asString); err == nil {
		r.PhaseID = asString
		r.Patterns = nil
		return nil
	}

	var asMap map[string][]string
	if err := node.Decode(&asMap); err != nil {
		return fmt.Errorf("input_from entry must be a string or a single-key map: %w", err)
	}
	if len(asMap) != 1 {
		return fmt.Errorf("input_from map entry must have exactly one key, got %d", len(asMap))
	}
	for id, patterns := range asMap {
		r.PhaseID = id
		r.Patterns = patterns
	}
	return nil
}

// MarshalYAML round-trips InputRef back to its compact form.
func (r InputRef) MarshalYAML() (any, error) {
	if r.Patterns == nil {
		return r.PhaseID, nil
	}
	return map[string][]string{r.PhaseID: r.Patterns}, nil
}

// Config is the phase's open, string-keyed configuration map. Unknown
// keys are preserved verbatim (spec §9) so new template options don't
// require core changes.
type Config map[string]any

// Model returns config["model"] as a string, or "" if unset.
func (c Config) Model() string {
	v, _ := c["model"].(string)
	return v
}

// Template returns config["template"] as a string, or "" if unset.
func (c Config) Template() string {
	v, _ := c["template"].(string)
	return v
}

// Decompose returns config["decompose"] as a bool, or false if unset.
func (c Config) Decompose() bool {
	v, _ := c["decompose"].(bool)
	return v
}

// PhaseConfig is one phase of a project's ordered phase list (spec §3).
type PhaseConfig struct {
	ID          string       `yaml:"id" validate:"required"`
	Name        string       `yaml:"name"`
	Type        Type         `yaml:"type" validate:"required"`
	Config      Config       `yaml:"config,omitempty"`
	InputFrom   []InputRef   `yaml:"input_from,omitempty"`
	Output      []string     `yaml:"output,omitempty"`
	QualityGate *QualityGate `yaml:"quality_gate,omitempty"`
}
