package agentrunner

import (
	"os"
	"path/filepath"
)

const instructionsFileName = "CLAUDE.md"

const fallbackPrompt = "Please complete the work required in this directory, then exit."

// resolvePrompt implements spec §4.5's prompt precedence: an explicit
// prompt, else a short directive pointing at the rendered instructions
// file, else a generic fallback.
func resolvePrompt(phaseDir, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(filepath.Join(phaseDir, instructionsFileName)); err == nil {
		return "Please read " + instructionsFileName + " in this directory and carry out its instructions."
	}
	return fallbackPrompt
}
