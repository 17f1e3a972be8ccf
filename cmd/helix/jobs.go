package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs known to a helixd instance (requires --server)",
	Args:  cobra.NoArgs,
	RunE:  runJobs,
}

func init() {
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 0, "maximum number of jobs to list (0 for server default)")
}

func runJobs(cmd *cobra.Command, args []string) error {
	if serverURL == "" {
		return fmt.Errorf("jobs requires --server: local runs don't persist a job list after they exit")
	}
	client := newAPIClient(serverURL)
	jobs, err := client.ListJobs(cmd.Context(), jobsLimit)
	if err != nil {
		return err
	}
	renderJobsTable(jobs)
	return nil
}
