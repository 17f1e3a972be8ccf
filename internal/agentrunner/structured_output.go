package agentrunner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// structuredOutputFileName is the well-known file an agent may write
// under output/ to report machine-readable results (spec §4.5).
const structuredOutputFileName = "agent_result.json"

var fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// parseStructuredOutput tries, in order: the well-known output file,
// the last fenced ```json``` block in stdout, the last line that is a
// standalone JSON object. The first successful parse wins; if none
// parse, it returns nil -- failure to find structured output is
// never itself an error (spec §4.5).
func parseStructuredOutput(phaseDir, stdout string) map[string]any {
	if data, err := os.ReadFile(filepath.Join(phaseDir, "output", structuredOutputFileName)); err == nil {
		if obj, ok := decodeJSONObject(data); ok {
			return obj
		}
	}

	if matches := fencedJSONBlock.FindAllStringSubmatch(stdout, -1); len(matches) > 0 {
		last := matches[len(matches)-1][1]
		if obj, ok := decodeJSONObject([]byte(last)); ok {
			return obj
		}
	}

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}") {
			if obj, ok := decodeJSONObject([]byte(line)); ok {
				return obj
			}
		}
		break // only the very last non-blank line counts as "trailing"
	}

	return nil
}

func decodeJSONObject(data []byte) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// extractAccounting pulls the optional cost/token accounting fields out
// of a structured output map (original_source supplement, spec §6).
func extractAccounting(obj map[string]any) (tokens *int, costUSD *float64) {
	if obj == nil {
		return nil, nil
	}
	if v, ok := obj["tokens_used"].(float64); ok {
		n := int(v)
		tokens = &n
	}
	if v, ok := obj["estimated_cost_usd"].(float64); ok {
		costUSD = &v
	}
	return tokens, costUSD
}
