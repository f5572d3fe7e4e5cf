package cli

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"queuectl/internal/models"
)

// renderJobTable prints jobs as a table. Shared by list and dlq list.
func renderJobTable(jobs []*models.Job) error {
	data := pterm.TableData{
		{"ID", "STATE", "COMMAND", "ATTEMPTS", "NEXT RUN", "ERROR"},
	}
	for _, job := range jobs {
		data = append(data, []string{
			job.ID,
			string(job.State),
			truncate(job.Command, 40),
			fmt.Sprintf("%d/%d", job.Attempts, job.MaxRetries+1),
			renderNextRun(job),
			truncate(job.Error, 40),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderNextRun(job *models.Job) string {
	if job.Terminal() || job.State == models.StateRunning {
		return "-"
	}
	return job.NextRunAt.Local().Format(time.RFC3339)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
