package main

import (
	"os"

	"github.com/charmbracelet/log"
)

// diag is the CLI's diagnostic logger: config loads, HTTP calls to a
// --server, orchestrator construction. It is deliberately separate from
// the lipgloss-rendered job/phase event output in output.go — diag is
// off by default and only worth turning on with --verbose.
var diag = log.NewWithOptions(os.Stderr, log.Options{Prefix: "helix", Level: log.WarnLevel})

func setupDiagLogging(verbose, quiet bool) {
	switch {
	case quiet:
		diag.SetLevel(log.ErrorLevel)
	case verbose:
		diag.SetLevel(log.DebugLevel)
	default:
		diag.SetLevel(log.WarnLevel)
	}
}
