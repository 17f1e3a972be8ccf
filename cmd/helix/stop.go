package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <job-id>",
	Short: "Cancel a running job (requires --server)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	if serverURL == "" {
		return fmt.Errorf("stop requires --server: there is no daemon-managed job to cancel locally")
	}
	client := newAPIClient(serverURL)
	jobID := args[0]
	if err := client.CancelJob(cmd.Context(), jobID); err != nil {
		return err
	}
	fmt.Println(styleOK.Render(fmt.Sprintf("job %s cancelled", jobID)))
	return nil
}
