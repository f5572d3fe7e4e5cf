package cli

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"queuectl/internal/metrics"
	"queuectl/internal/models"
)

func newMetricsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show aggregated execution metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := metrics.Summarize(cmd.Context(), app.repo)
			if err != nil {
				return err
			}

			data := pterm.TableData{{"METRIC", "VALUE"}}
			data = append(data, []string{"total_jobs", fmt.Sprintf("%d", summary.TotalJobs)})
			for _, state := range models.States() {
				data = append(data, []string{"jobs_" + string(state), fmt.Sprintf("%d", summary.ByState[state])})
			}
			data = append(data,
				[]string{"success_rate", fmt.Sprintf("%.2f", summary.SuccessRate)},
				[]string{"avg_attempts", fmt.Sprintf("%.2f", summary.AvgAttempts)},
				[]string{"avg_duration_seconds", fmt.Sprintf("%.2f", summary.AvgDuration)},
			)

			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
}
