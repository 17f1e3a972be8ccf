package phase

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/helix-run/helix/internal/herrors"
)

const phasesFileName = "phases.yaml"

// fileSpec is the on-disk shape of phases.yaml (spec §6).
type fileSpec struct {
	ProjectType string        `yaml:"project_type,omitempty"`
	Phases      []PhaseConfig `yaml:"phases"`
}

var validate = validator.New()

// Loader loads and validates a project's phase list, optionally merging
// in a project-type template.
type Loader struct {
	// TemplateDir holds project-type template files
	// (TemplateDir/<project_type>.yaml), each itself a fileSpec whose
	// phase entries provide field-by-field defaults keyed by id.
	TemplateDir string
}

// NewLoader returns a Loader using templateDir for project-type
// templates. templateDir may be empty, in which case templates are
// never merged.
func NewLoader(templateDir string) *Loader {
	return &Loader{TemplateDir: templateDir}
}

// Load reads and validates projectDir/phases.yaml, merging a
// project-type template if one applies.
func (l *Loader) Load(projectDir string) ([]PhaseConfig, error) {
	data, err := os.ReadFile(filepath.Join(projectDir, phasesFileName))
	if err != nil {
		return nil, herrors.Wrap(herrors.ErrMalformedSpec, "read %s: %v", phasesFileName, err)
	}

	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, herrors.Wrap(herrors.ErrMalformedSpec, "parse %s: %v", phasesFileName, err)
	}

	phases := spec.Phases
	if spec.ProjectType != "" && l.TemplateDir != "" {
		phases, err = l.mergeTemplate(spec.ProjectType, phases)
		if err != nil {
			return nil, err
		}
	}

	if err := validatePhases(phases); err != nil {
		return nil, err
	}

	return phases, nil
}

// mergeTemplate overlays project entries onto template defaults,
// keyed by id, field-by-field shallow merge (spec §4.1). Project phases
// not present in the template are kept as-is; template phases not
// referenced by the project are ignored (the project's declared order
// is authoritative).
func (l *Loader) mergeTemplate(projectType string, project []PhaseConfig) ([]PhaseConfig, error) {
	templatePath := filepath.Join(l.TemplateDir, projectType+".yaml")
	data, err := os.ReadFile(templatePath)
	if os.IsNotExist(err) {
		return project, nil
	}
	if err != nil {
		return nil, herrors.Wrap(herrors.ErrMalformedSpec, "read template %s: %v", templatePath, err)
	}

	var tmpl fileSpec
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, herrors.Wrap(herrors.ErrMalformedSpec, "parse template %s: %v", templatePath, err)
	}

	defaults := make(map[string]PhaseConfig, len(tmpl.Phases))
	for _, p := range tmpl.Phases {
		defaults[p.ID] = p
	}

	merged := make([]PhaseConfig, len(project))
	for i, p := range project {
		if base, ok := defaults[p.ID]; ok {
			merged[i] = overlay(base, p)
		} else {
			merged[i] = p
		}
	}
	return merged, nil
}

// overlay applies project field-by-field on top of base: a zero-value
// project field falls back to base's value.
func overlay(base, project PhaseConfig) PhaseConfig {
	out := base
	if project.Name != "" {
		out.Name = project.Name
	}
	if project.Type != "" {
		out.Type = project.Type
	}
	if project.Config != nil {
		if out.Config == nil {
			out.Config = Config{}
		}
		for k, v := range project.Config {
			out.Config[k] = v
		}
	}
	if project.InputFrom != nil {
		out.InputFrom = project.InputFrom
	}
	if project.Output != nil {
		out.Output = project.Output
	}
	if project.QualityGate != nil {
		out.QualityGate = project.QualityGate
	}
	out.ID = project.ID
	return out
}

// validatePhases enforces the invariants of spec §3/§4.1: required
// fields, allowed types, and forward-reference-free input_from.
func validatePhases(phases []PhaseConfig) error {
	seen := make(map[string]bool, len(phases))

	for i, p := range phases {
		if err := validate.Struct(p); err != nil {
			return herrors.Wrap(herrors.ErrMalformedSpec, "phase[%d] (%s): %v", i, p.ID, err)
		}
		if !validTypes[p.Type] {
			return herrors.Wrap(herrors.ErrMalformedSpec, "phase %q: invalid type %q", p.ID, p.Type)
		}
		if seen[p.ID] {
			return herrors.Wrap(herrors.ErrMalformedSpec, "duplicate phase id %q", p.ID)
		}

		for _, ref := range p.InputFrom {
			if !seen[ref.PhaseID] {
				return herrors.Wrap(herrors.ErrMalformedSpec,
					"phase %q: input_from references %q which has not appeared earlier", p.ID, ref.PhaseID)
			}
		}

		if p.QualityGate != nil {
			if err := validateGate(p.ID, p.QualityGate); err != nil {
				return err
			}
		}

		seen[p.ID] = true
	}
	return nil
}

func validateGate(phaseID string, g *QualityGate) error {
	switch g.Type {
	case GateFilesExist:
		if len(g.Files) == 0 {
			return herrors.Wrap(herrors.ErrMalformedSpec, "phase %q: files_exist gate requires files", phaseID)
		}
	case GateSyntaxCheck:
		if g.Language == "" {
			return herrors.Wrap(herrors.ErrMalformedSpec, "phase %q: syntax_check gate requires language", phaseID)
		}
	case GateTestsPass:
		if g.Command == "" {
			return herrors.Wrap(herrors.ErrMalformedSpec, "phase %q: tests_pass gate requires command", phaseID)
		}
	case GateReviewApproved:
		if g.File == "" {
			return herrors.Wrap(herrors.ErrMalformedSpec, "phase %q: review_approved gate requires file", phaseID)
		}
	default:
		return herrors.Wrap(herrors.ErrMalformedSpec, "phase %q: unknown gate type %q", phaseID, g.Type)
	}
	return nil
}

// EnsureUniqueID returns a disambiguated phase id by appending a
// numeric suffix if base is already present in existing. Used when a
// decomposed plan proposes an id collision.
func EnsureUniqueID(base string, existing map[string]bool) string {
	if !existing[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !existing[candidate] {
			return candidate
		}
	}
}
