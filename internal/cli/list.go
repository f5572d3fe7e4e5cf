package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"queuectl/internal/models"
)

func newListCmd(app *App) *cobra.Command {
	var stateFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var state *models.State
			if stateFlag != "" {
				parsed, err := models.ParseState(stateFlag)
				if err != nil {
					return err
				}
				state = &parsed
			}

			jobs, err := app.jobs.List(cmd.Context(), state)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}

			return renderJobTable(jobs)
		},
	}

	cmd.Flags().StringVar(&stateFlag, "state", "", "filter by state (pending|running|completed|failed|dead)")
	return cmd
}
