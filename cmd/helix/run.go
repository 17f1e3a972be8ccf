package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helix-run/helix/internal/jobbus"
	"github.com/helix-run/helix/internal/orchestrator"
)

var (
	runResume bool
	runDryRun bool
	runPhase  string
	runModel  string
)

var runCmd = &cobra.Command{
	Use:   "run <project-path>",
	Short: "Run a project's phases to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runResume, "resume", false, "resume a previously interrupted run")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "simulate phase execution without invoking the agent")
	runCmd.Flags().StringVar(&runPhase, "phase", "", "run exactly this phase id")
	runCmd.Flags().StringVar(&runModel, "model", "", "override the model for every phase")
}

func runRun(cmd *cobra.Command, args []string) error {
	projectPath := args[0]

	if serverURL != "" {
		return runRemote(cmd.Context(), projectPath)
	}
	return runLocal(cmd.Context(), projectPath)
}

func runRemote(ctx context.Context, projectPath string) error {
	client := newAPIClient(serverURL)
	job, err := client.Execute(ctx, projectPath, runPhase)
	if err != nil {
		return err
	}
	fmt.Printf("job %s started\n", job.ID)

	failed := false
	err = client.Stream(ctx, job.ID, func(event jobbus.PhaseEvent) {
		printEvent(event)
		if event.Type == jobbus.EventJobFailed {
			failed = true
		}
	})
	if err != nil {
		return err
	}
	if failed {
		return fmt.Errorf("job %s failed", job.ID)
	}
	return nil
}

func runLocal(parentCtx context.Context, projectPath string) error {
	orch, bus, err := buildLocalOrchestrator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := bus.CreateJob(projectPath)
	events, unsubscribe := bus.Subscribe(ctx, job.ID)
	defer unsubscribe()

	type runResult struct {
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		_, err := orch.Run(ctx, orchestrator.RunOptions{
			ProjectDir:    projectPath,
			ProjectID:     job.ID,
			ProjectName:   projectPath,
			JobID:         job.ID,
			Resume:        runResume,
			DryRun:        runDryRun,
			PhaseFilter:   runPhase,
			ModelOverride: runModel,
		})
		done <- runResult{err: err}
	}()

	for {
		select {
		case event, open := <-events:
			if !open {
				return (<-done).err
			}
			printEvent(event)
		case <-ctx.Done():
			if ctx.Err() == context.Canceled {
				return fmt.Errorf("interrupted")
			}
		}
	}
}

func printEvent(event jobbus.PhaseEvent) {
	label := string(event.Type)
	if event.PhaseID != "" {
		label += " " + event.PhaseID
	}
	switch event.Type {
	case jobbus.EventJobFailed, jobbus.EventVerificationFailed, jobbus.EventStepFailed, jobbus.EventPipelineFailed:
		fmt.Println(styleError.Render(label))
	case jobbus.EventJobCompleted, jobbus.EventPhaseEnd, jobbus.EventPipelineCompleted:
		fmt.Println(styleOK.Render(label))
	case jobbus.EventKeepalive:
		// not worth a line
	default:
		fmt.Println(label)
	}
}
