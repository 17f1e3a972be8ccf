// Package template implements the Template Renderer (C4): turning a
// phase plus its ADR context into the instruction file an agent run
// reads as its prompt.
package template

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/helix-run/helix/internal/adr"
	"github.com/helix-run/helix/internal/phase"
)

//go:embed all:templates
var defaultTemplates embed.FS

const templatesRoot = "templates"

// Context is the flat, declarative input to the renderer (spec §4.4):
// project identity, phase metadata, and the ADR facts relevant to it.
type Context struct {
	ProjectID       string
	ProjectName     string
	ProjectDomain   string
	ProjectLanguage string

	PhaseID          string
	PhaseName        string
	PhaseType        phase.Type
	PhaseDescription string

	Output                []string
	AcceptanceCriteria    []adr.AcceptanceCriterion
	FilesToCreateOrModify []string
}

// NewContext assembles a Context from an ADR document and one phase,
// per spec §4.4 ("the renderer's sole input is a flat map").
func NewContext(projectID, projectName string, doc *adr.Document, p phase.PhaseConfig) Context {
	ctx := Context{
		ProjectID:       projectID,
		ProjectName:     projectName,
		PhaseID:         p.ID,
		PhaseName:       p.Name,
		PhaseType:       p.Type,
		Output:          p.Output,
	}
	if doc != nil {
		ctx.ProjectDomain = doc.Domain
		ctx.ProjectLanguage = doc.Language
		ctx.AcceptanceCriteria = doc.AcceptanceCriteria
		ctx.FilesToCreateOrModify = doc.FilesToCreateOrModify()
	}
	return ctx
}

// Renderer renders a named template against a Context. TemplateDir, if
// set, is checked before the embedded defaults -- the same override
// pattern the Phase Definition Loader uses for project-type templates.
type Renderer struct {
	TemplateDir string
}

func New(templateDir string) *Renderer {
	return &Renderer{TemplateDir: templateDir}
}

// SelectTemplate picks a template name for phaseType + language, falling
// back from a language-specific variant to the type's base template to
// the generic template, per spec §4.4.
func (r *Renderer) SelectTemplate(phaseType phase.Type, language string) string {
	candidates := []string{}
	if language != "" {
		candidates = append(candidates, fmt.Sprintf("%s_%s.tmpl", phaseType, strings.ToLower(language)))
	}
	candidates = append(candidates, fmt.Sprintf("%s.tmpl", phaseType), "generic.tmpl")

	for _, name := range candidates {
		if r.exists(name) {
			return name
		}
	}
	return "generic.tmpl"
}

func (r *Renderer) exists(name string) bool {
	if r.TemplateDir != "" {
		if _, err := os.Stat(filepath.Join(r.TemplateDir, name)); err == nil {
			return true
		}
	}
	if _, err := fs.Stat(defaultTemplates, filepath.ToSlash(filepath.Join(templatesRoot, name))); err == nil {
		return true
	}
	return false
}

func (r *Renderer) read(name string) (string, error) {
	if r.TemplateDir != "" {
		data, err := os.ReadFile(filepath.Join(r.TemplateDir, name))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read override template %s: %w", name, err)
		}
	}
	data, err := defaultTemplates.ReadFile(filepath.ToSlash(filepath.Join(templatesRoot, name)))
	if err != nil {
		return "", fmt.Errorf("template %q not found: %w", name, err)
	}
	return string(data), nil
}

// Render executes templateName against ctx, exposing indent, bullets,
// and numbered helpers (spec §4.4).
func (r *Renderer) Render(templateName string, ctx Context) (string, error) {
	text, err := r.read(templateName)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(templateName).Funcs(funcMap).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", templateName, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("execute template %s: %w", templateName, err)
	}
	return buf.String(), nil
}

// RenderPhase selects a template for p by type and ADR language, renders
// it, and writes the result to phases/<id>/CLAUDE.md.
func (r *Renderer) RenderPhase(projectDir, projectID, projectName string, doc *adr.Document, p phase.PhaseConfig) (string, error) {
	language := ""
	if doc != nil {
		language = doc.Language
	}
	if t := p.Config.Template(); t != "" {
		return r.renderAndWrite(projectDir, t, NewContext(projectID, projectName, doc, p))
	}
	name := r.SelectTemplate(p.Type, language)
	return r.renderAndWrite(projectDir, name, NewContext(projectID, projectName, doc, p))
}

func (r *Renderer) renderAndWrite(projectDir, templateName string, ctx Context) (string, error) {
	rendered, err := r.Render(templateName, ctx)
	if err != nil {
		return "", err
	}

	phaseDir := filepath.Join(projectDir, "phases", ctx.PhaseID)
	if err := os.MkdirAll(phaseDir, 0o755); err != nil {
		return "", fmt.Errorf("create phase dir: %w", err)
	}
	instructionsPath := filepath.Join(phaseDir, "CLAUDE.md")
	if err := os.WriteFile(instructionsPath, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("write instructions file: %w", err)
	}
	return instructionsPath, nil
}

var funcMap = template.FuncMap{
	"indent":   indentLines,
	"bullets":  bulletList,
	"numbered": numberedList,
}

// indentLines indents every line of s by n spaces.
func indentLines(n int, s string) string {
	prefix := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line == "" {
			continue
		}
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// bulletList renders items as a "- " markdown list. Accepts either a
// []string or a []adr.AcceptanceCriterion (rendering only the text).
func bulletList(items any) string {
	var sb strings.Builder
	switch v := items.(type) {
	case []string:
		if len(v) == 0 {
			return "(none)"
		}
		for _, item := range v {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
	case []adr.AcceptanceCriterion:
		if len(v) == 0 {
			return "(none)"
		}
		for _, item := range v {
			fmt.Fprintf(&sb, "- %s\n", item.Text)
		}
	default:
		return "(none)"
	}
	return strings.TrimRight(sb.String(), "\n")
}

// numberedList renders items as a "1. " markdown list. Accepts either a
// []string or a []adr.AcceptanceCriterion, marking completed criteria.
func numberedList(items any) string {
	var sb strings.Builder
	switch v := items.(type) {
	case []string:
		if len(v) == 0 {
			return "(none)"
		}
		for i, item := range v {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, item)
		}
	case []adr.AcceptanceCriterion:
		if len(v) == 0 {
			return "(none)"
		}
		for i, item := range v {
			mark := " "
			if item.Done {
				mark = "x"
			}
			fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, mark, item.Text)
		}
	default:
		return "(none)"
	}
	return strings.TrimRight(sb.String(), "\n")
}
