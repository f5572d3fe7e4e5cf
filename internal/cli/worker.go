package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"queuectl/internal/worker"
)

const stopWait = 30 * time.Second

func newWorkerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage worker processes",
	}

	var count int
	start := &cobra.Command{
		Use:   "start",
		Short: "Start workers and process jobs until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			// A leftover flag from an earlier `worker stop` would shut this
			// pool down immediately.
			if err := worker.ClearStopFlag(app.cfg.DataDir); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			pool := worker.NewPool(app.cfg, app.repo, app.log, count)
			return pool.Run(ctx)
		},
	}
	start.Flags().IntVar(&count, "count", 1, "number of workers to start")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Signal all running workers to shut down gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopped, err := worker.Stop(app.cfg.DataDir, stopWait)
			if err != nil {
				return err
			}
			if stopped {
				fmt.Println("All workers stopped.")
			} else {
				fmt.Println("Workers are still shutting down; they will exit after their current job.")
			}
			return nil
		},
	}

	cmd.AddCommand(start, stop)
	return cmd
}
