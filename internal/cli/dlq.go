package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDLQCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and retry dead letter queue jobs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs whose retries are exhausted",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := app.jobs.DLQList(cmd.Context())
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("Dead letter queue is empty.")
				return nil
			}
			return renderJobTable(jobs)
		},
	}

	retry := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Move a dead job back to pending with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := app.jobs.DLQRetry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Moved job %s back to pending.\n", job.ID)
			return nil
		},
	}

	cmd.AddCommand(list, retry)
	return cmd
}
