// Package adr parses the Architectural Decision Record that drives one
// HELIX project: YAML frontmatter plus a small set of markdown sections
// the core cares about (acceptance criteria).
package adr

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Status is the ADR lifecycle state declared in frontmatter.
type Status string

const (
	StatusProposed    Status = "Proposed"
	StatusAccepted    Status = "Accepted"
	StatusImplemented Status = "Implemented"
	StatusSuperseded  Status = "Superseded"
	StatusRejected    Status = "Rejected"
)

var validStatuses = map[Status]bool{
	StatusProposed: true, StatusAccepted: true, StatusImplemented: true,
	StatusSuperseded: true, StatusRejected: true,
}

// Files groups the paths an ADR declares for creation, modification, or
// documentation.
type Files struct {
	Create []string `yaml:"create"`
	Modify []string `yaml:"modify"`
	Docs   []string `yaml:"docs"`
}

// Frontmatter is the subset of ADR YAML frontmatter the core consumes
// (spec §6).
type Frontmatter struct {
	ADRID          string   `yaml:"adr_id"`
	Title          string   `yaml:"title"`
	Status         Status   `yaml:"status"`
	ProjectType    string   `yaml:"project_type,omitempty"`
	ComponentType  string   `yaml:"component_type,omitempty"`
	Classification string   `yaml:"classification,omitempty"`
	ChangeScope    string   `yaml:"change_scope,omitempty"`
	Language       string   `yaml:"language,omitempty"`
	Domain         string   `yaml:"domain,omitempty"`
	Files          Files    `yaml:"files,omitempty"`
	DependsOn      []string `yaml:"depends_on,omitempty"`
}

// rawFrontmatter lets adr_id be decoded whether it is a YAML string or
// number, since the original producers are inconsistent.
type rawFrontmatter struct {
	ADRID          yaml.Node `yaml:"adr_id"`
	Title          string    `yaml:"title"`
	Status         Status    `yaml:"status"`
	ProjectType    string    `yaml:"project_type,omitempty"`
	ComponentType  string    `yaml:"component_type,omitempty"`
	Classification string    `yaml:"classification,omitempty"`
	ChangeScope    string    `yaml:"change_scope,omitempty"`
	Language       string    `yaml:"language,omitempty"`
	Domain         string    `yaml:"domain,omitempty"`
	Files          Files     `yaml:"files,omitempty"`
	DependsOn      []string  `yaml:"depends_on,omitempty"`
}

// AcceptanceCriterion is one bullet under the Akzeptanzkriterien
// section.
type AcceptanceCriterion struct {
	Done bool
	Text string
}

// Document is a fully-parsed ADR: frontmatter plus acceptance criteria.
type Document struct {
	Frontmatter
	AcceptanceCriteria []AcceptanceCriterion
	Path               string
}

const frontmatterDelim = "---"

// Load reads and parses the first `ADR-*.md` file found directly under
// dir.
func Load(dir string) (*Document, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "ADR-*.md"))
	if err != nil {
		return nil, fmt.Errorf("glob ADR files: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no ADR-*.md file found under %s", dir)
	}
	return Parse(matches[0])
}

// Parse reads a single ADR file.
func Parse(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ADR %s: %w", path, err)
	}

	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse ADR %s: %w", path, err)
	}

	var raw rawFrontmatter
	if err := yaml.Unmarshal([]byte(fm), &raw); err != nil {
		return nil, fmt.Errorf("parse ADR frontmatter %s: %w", path, err)
	}

	adrID, err := coerceID(raw.ADRID)
	if err != nil {
		return nil, fmt.Errorf("parse ADR %s adr_id: %w", path, err)
	}

	if raw.Status != "" && !validStatuses[raw.Status] {
		return nil, fmt.Errorf("ADR %s: invalid status %q", path, raw.Status)
	}

	doc := &Document{
		Frontmatter: Frontmatter{
			ADRID:          adrID,
			Title:          raw.Title,
			Status:         raw.Status,
			ProjectType:    raw.ProjectType,
			ComponentType:  raw.ComponentType,
			Classification: raw.Classification,
			ChangeScope:    raw.ChangeScope,
			Language:       raw.Language,
			Domain:         raw.Domain,
			Files:          raw.Files,
			DependsOn:      raw.DependsOn,
		},
		Path: path,
	}

	doc.AcceptanceCriteria = parseAcceptanceCriteria(body)
	return doc, nil
}

func coerceID(node yaml.Node) (string, error) {
	if node.Kind == 0 {
		return "", nil
	}
	switch node.Tag {
	case "!!int", "!!float":
		return node.Value, nil
	default:
		return node.Value, nil
	}
}

func splitFrontmatter(content string) (frontmatter, body string, err error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelim {
		return "", "", fmt.Errorf("missing frontmatter delimiter")
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelim {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), nil
		}
	}
	return "", "", fmt.Errorf("unterminated frontmatter")
}

var acceptanceHeadings = []string{"## Akzeptanzkriterien", "## Acceptance Criteria"}

func parseAcceptanceCriteria(body string) []AcceptanceCriterion {
	scanner := bufio.NewScanner(strings.NewReader(body))
	var criteria []AcceptanceCriterion
	inSection := false

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "## ") {
			inSection = isAcceptanceHeading(trimmed)
			continue
		}
		if !inSection {
			continue
		}

		if done, text, ok := parseChecklistItem(trimmed); ok {
			criteria = append(criteria, AcceptanceCriterion{Done: done, Text: text})
		}
	}
	return criteria
}

func isAcceptanceHeading(heading string) bool {
	for _, h := range acceptanceHeadings {
		if strings.EqualFold(heading, h) {
			return true
		}
	}
	return false
}

func parseChecklistItem(line string) (done bool, text string, ok bool) {
	for _, prefix := range []string{"- [ ]", "- [x]", "- [X]"} {
		if strings.HasPrefix(line, prefix) {
			return prefix != "- [ ]", strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return false, "", false
}

// FilesToCreateOrModify flattens Files.Create and Files.Modify, used by
// the Template Renderer's context.
func (d *Document) FilesToCreateOrModify() []string {
	out := make([]string, 0, len(d.Files.Create)+len(d.Files.Modify))
	out = append(out, d.Files.Create...)
	out = append(out, d.Files.Modify...)
	return out
}

// NumericID parses ADRID as an integer, returning 0 if it isn't
// numeric. Used only for display/sorting, never for control flow.
func (d *Document) NumericID() int {
	n, err := strconv.Atoi(strings.TrimPrefix(d.ADRID, "ADR-"))
	if err != nil {
		return 0
	}
	return n
}
