package adr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleADR = `---
adr_id: 42
title: Improve retry backoff
status: Accepted
language: python
domain: orchestration
files:
  create:
    - src/foo.py
  modify:
    - src/bar.py
depends_on:
  - ADR-40
---

# ADR-42: Improve retry backoff

## Akzeptanzkriterien

- [x] Backoff is exponential
- [ ] Jitter is applied
- not a checklist line
`

func writeADR(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "ADR-042-retry.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse_FrontmatterAndCriteria(t *testing.T) {
	dir := t.TempDir()
	writeADR(t, dir, sampleADR)

	doc, err := Load(dir)
	require.NoError(t, err)

	require.Equal(t, "42", doc.ADRID)
	require.Equal(t, StatusAccepted, doc.Status)
	require.Equal(t, []string{"src/foo.py"}, doc.Files.Create)
	require.Equal(t, []string{"ADR-40"}, doc.DependsOn)

	require.Len(t, doc.AcceptanceCriteria, 2)
	require.True(t, doc.AcceptanceCriteria[0].Done)
	require.Equal(t, "Backoff is exponential", doc.AcceptanceCriteria[0].Text)
	require.False(t, doc.AcceptanceCriteria[1].Done)

	require.Equal(t, []string{"src/foo.py", "src/bar.py"}, doc.FilesToCreateOrModify())
}

func TestLoad_NoADRFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)
}

func TestParse_InvalidStatusRejected(t *testing.T) {
	dir := t.TempDir()
	content := `---
adr_id: 1
title: Bad status
status: NotARealStatus
---
body
`
	path := writeADR(t, dir, content)
	_, err := Parse(path)
	require.Error(t, err)
}

func TestParse_StringAdrID(t *testing.T) {
	dir := t.TempDir()
	content := `---
adr_id: "ADR-007"
title: String id
status: Proposed
---
## Akzeptanzkriterien
- [ ] Something
`
	path := writeADR(t, dir, content)
	doc, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, "ADR-007", doc.ADRID)
}
