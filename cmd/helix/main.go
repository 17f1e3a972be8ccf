// Command helix is the operator CLI for HELIX: run/status/logs/stop/jobs
// against either an in-process Orchestrator or a running helixd over
// HTTP (--server).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	verbose   bool
	quiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "helix",
	Short: "Drive HELIX's declarative multi-phase agent workflows",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupDiagLogging(verbose, quiet)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "helixd base URL (e.g. http://localhost:8080); omit to run in-process")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "show diagnostic logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress diagnostic logging below errors")
	rootCmd.AddCommand(runCmd, statusCmd, logsCmd, stopCmd, jobsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render(err.Error()))
		if interruptErr(err) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func interruptErr(err error) bool {
	return err != nil && err.Error() == "interrupted"
}
