package cli

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"queuectl/internal/metrics"
	"queuectl/internal/models"
	"queuectl/internal/worker"
)

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts, active workers and host load",
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := app.repo.CountsByState(cmd.Context())
			if err != nil {
				return err
			}

			data := pterm.TableData{{"STATE", "JOBS"}}
			for _, state := range models.States() {
				data = append(data, []string{string(state), fmt.Sprintf("%d", counts[state])})
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
				return err
			}

			pools, err := worker.ActivePools(app.cfg.DataDir)
			if err != nil {
				return err
			}
			total := 0
			for _, p := range pools {
				total += p.Workers
			}
			if len(pools) == 0 {
				fmt.Println("Workers: 0 (stopped)")
			} else {
				fmt.Printf("Workers: %d across %d pool(s)\n", total, len(pools))
				for _, p := range pools {
					fmt.Printf("  pid %d: %d worker(s), started %s\n", p.PID, p.Workers, p.StartedAt.Local().Format("15:04:05"))
				}
			}

			// Host snapshot is best-effort; status must not fail because a
			// platform stat is unavailable.
			if snap, err := metrics.Host(); err == nil {
				fmt.Printf("Host: load %.2f, memory %.1f/%.1f GB (%.0f%%)\n",
					snap.Load1, snap.MemoryUsedGB, snap.MemoryTotalGB, snap.MemoryPercent)
			}

			return nil
		},
	}
}
