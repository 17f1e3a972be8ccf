package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"

	"github.com/helix-run/helix/internal/jobbus"
	"github.com/helix-run/helix/internal/status"
)

var (
	isTTY = isatty.IsTerminal(os.Stdout.Fd())

	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleHeading = lipgloss.NewStyle().Bold(true)
)

// statusGlyph renders a colored one-word status when attached to a TTY,
// and a plain string otherwise so piped output stays greppable.
func statusGlyph(s string) string {
	if !isTTY {
		return s
	}
	switch s {
	case string(jobbus.StatusCompleted), string(status.StateCompleted):
		return styleOK.Render(s)
	case string(jobbus.StatusFailed), string(status.StateFailed):
		return styleError.Render(s)
	case string(jobbus.StatusRunning), string(status.StateRunning):
		return styleWarn.Render(s)
	default:
		return styleMuted.Render(s)
	}
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	if isTTY {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
		tw.Style().Options.DrawBorder = false
		tw.Style().Options.SeparateColumns = false
	}
	return tw
}

func renderJobsTable(jobs []jobbus.Job) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "STATUS", "PROJECT", "PHASE", "CREATED"})
	for _, j := range jobs {
		tw.AppendRow(table.Row{j.ID, statusGlyph(string(j.Status)), j.ProjectPath, j.CurrentPhase, j.CreatedAt.Format(time.RFC3339)})
	}
	tw.Render()
}

func renderProjectStatus(st *status.ProjectStatus) {
	fmt.Println(styleHeading.Render(st.ProjectID))
	fmt.Printf("status: %s  (%d/%d phases)\n", statusGlyph(string(st.Status)), st.CompletedPhases, st.TotalPhases)
	if st.Error != "" {
		fmt.Println(styleError.Render("error: " + st.Error))
	}

	tw := newTable()
	tw.AppendHeader(table.Row{"PHASE", "STATUS", "RETRIES", "ERROR"})
	for id, p := range st.Phases {
		tw.AppendRow(table.Row{id, statusGlyph(string(p.Status)), p.Retries, p.Error})
	}
	tw.Render()
}
