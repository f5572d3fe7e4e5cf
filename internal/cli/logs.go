package cli

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newLogsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Print the captured output of a job's last attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := app.jobs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job.LogPath == "" {
				return errors.Newf("job %q has not produced any output yet", job.ID)
			}

			data, err := os.ReadFile(job.LogPath)
			if err != nil {
				return errors.Wrap(err, "failed to read log file")
			}
			fmt.Print(string(data))
			return nil
		},
	}
}
