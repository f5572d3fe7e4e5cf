package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"queuectl/internal/service"
)

func newEnqueueCmd(app *App) *cobra.Command {
	var (
		command     string
		id          string
		maxRetries  int
		backoffBase float64
		runAt       string
		delay       int
	)

	cmd := &cobra.Command{
		Use:   "enqueue [job-json]",
		Short: "Add a job to the queue",
		Long: `Add a job to the queue, either as a JSON payload or via flags.

JSON form: '{"command": "echo hi", "id": "j1", "max_retries": 2, "delay_seconds": 30}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req *service.SubmitRequest

			if len(args) == 1 {
				parsed, err := service.ParseSubmitRequest(args[0])
				if err != nil {
					return err
				}
				req = parsed
			} else {
				if command == "" {
					return errors.New("provide a JSON payload or --cmd")
				}
				req = &service.SubmitRequest{Command: command, ID: id, RunAt: runAt}
				if cmd.Flags().Changed("max-retries") {
					req.MaxRetries = &maxRetries
				}
				if cmd.Flags().Changed("backoff-base") {
					req.BackoffBase = &backoffBase
				}
				if cmd.Flags().Changed("delay") {
					req.DelaySeconds = &delay
				}
			}

			job, err := app.jobs.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Printf("Enqueued job %s\n", job.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&command, "cmd", "", "shell command to run")
	cmd.Flags().StringVar(&id, "id", "", "job id (generated when omitted)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retry budget for this job")
	cmd.Flags().Float64Var(&backoffBase, "backoff-base", 0, "exponential backoff base for this job")
	cmd.Flags().StringVar(&runAt, "run-at", "", "timestamp when the job becomes eligible (RFC 3339)")
	cmd.Flags().IntVar(&delay, "delay", 0, "seconds before the job becomes eligible")

	return cmd
}
