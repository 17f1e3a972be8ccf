package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helix-run/helix/internal/adr"
	"github.com/helix-run/helix/internal/jobbus"
	"github.com/helix-run/helix/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status <project-path>",
	Short: "Show a project's persisted phase status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	projectPath := args[0]

	if serverURL != "" {
		client := newAPIClient(serverURL)
		jobs, err := client.ListJobs(cmd.Context(), 0)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			if j.ProjectPath == projectPath {
				renderJobsTable([]jobbus.Job{j})
				return nil
			}
		}
		return fmt.Errorf("no job found for project %s on %s", projectPath, serverURL)
	}

	st, err := status.NewStore().Load(projectPath)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("no status recorded for %s", projectPath)
	}
	renderProjectStatus(st)
	printADRDependencies(projectPath)
	return nil
}

// printADRDependencies shows a project's declared ADR dependencies as
// context only; HELIX schedules a single ADR per run and never walks
// this graph itself.
func printADRDependencies(projectPath string) {
	doc, err := adr.Load(projectPath)
	if err != nil || len(doc.DependsOn) == 0 {
		return
	}
	fmt.Println(styleMuted.Render("depends on: " + strings.Join(doc.DependsOn, ", ")))
}
