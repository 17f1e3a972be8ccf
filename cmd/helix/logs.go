package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logsFollow bool

var logsCmd = &cobra.Command{
	Use:   "logs <job-id>",
	Short: "Show a job's event log (requires --server; local runs print inline)",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().BoolVar(&logsFollow, "follow", false, "stream events as they arrive")
}

func runLogs(cmd *cobra.Command, args []string) error {
	if serverURL == "" {
		return fmt.Errorf("logs requires --server: a local `helix run` already prints its events inline")
	}
	client := newAPIClient(serverURL)
	jobID := args[0]

	job, err := client.GetJob(cmd.Context(), jobID)
	if err != nil {
		return err
	}
	for _, p := range job.Phases {
		fmt.Printf("%s %s\n", p.PhaseID, statusGlyph(string(p.Status)))
	}

	if !logsFollow {
		return nil
	}
	return client.Stream(cmd.Context(), jobID, printEvent)
}
