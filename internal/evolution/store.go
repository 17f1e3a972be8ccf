package evolution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/helix-run/helix/internal/herrors"
)

const (
	projectStatusFileName = "status.json"
	baselineFileName      = "baseline.json"
)

// LoadProject reads status.json, defaulting to a pending project named
// after the directory if the file doesn't exist yet.
func LoadProject(dir string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(dir, projectStatusFileName))
	if os.IsNotExist(err) {
		return &Project{Dir: dir, Name: filepath.Base(dir), Status: StatusPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read evolution status: %w", err)
	}
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, herrors.Wrap(herrors.ErrMalformedSpec, "parse evolution status: %v", err)
	}
	p.Dir = dir
	return &p, nil
}

// SaveProject atomically persists p's status.json (same write-temp +
// fsync + rename discipline as the Status Store, spec §4.2/§9).
func SaveProject(p *Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal evolution status: %w", err)
	}
	return atomicWrite(p.Dir, projectStatusFileName, data)
}

func atomicWrite(dir, name string, data []byte) error {
	final := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

// LoadBaseline reads baseline.json, returning (nil, nil) if absent --
// the Validator treats a missing baseline as "no known pre-existing
// failures" (spec §4.12).
func LoadBaseline(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, herrors.Wrap(herrors.ErrMalformedSpec, "parse baseline: %v", err)
	}
	return &b, nil
}

// SaveBaseline writes baseline.json with its failed-test list sorted
// for determinism (spec §6: "failed list is sorted on write").
func SaveBaseline(dir string, b *Baseline) error {
	sorted := append([]string(nil), b.FailedTests...)
	sort.Strings(sorted)
	out := *b
	out.FailedTests = sorted
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	return atomicWrite(dir, baselineFileName, data)
}
