package escalation

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WaitForHumanResponse blocks until human-response.json appears under
// phaseDir/escalation or timeout elapses, returning (nil, nil) on
// timeout. It watches the directory with fsnotify instead of polling,
// falling back to a plain read first in case the response was already
// written before the watch started.
func WaitForHumanResponse(phaseDir string, timeout time.Duration) (*HumanResponse, error) {
	if resp, err := PollHumanResponse(phaseDir); err != nil || resp != nil {
		return resp, err
	}

	dir := filepath.Join(phaseDir, "escalation")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create escalation dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	// The file may have landed between the initial read and Add.
	if resp, err := PollHumanResponse(phaseDir); err != nil || resp != nil {
		return resp, err
	}

	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil, nil
			}
			if filepath.Base(event.Name) != "human-response.json" {
				continue
			}
			if !(event.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				continue
			}
			resp, err := PollHumanResponse(phaseDir)
			if err != nil {
				return nil, err
			}
			if resp != nil {
				return resp, nil
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil, nil
			}
			return nil, fmt.Errorf("watch %s: %w", dir, watchErr)
		case <-deadline:
			return nil, nil
		}
	}
}
