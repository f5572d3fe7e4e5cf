package metrics

import (
	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSnapshot is shown by `status` next to the queue counts, so an operator
// sizing a worker pool can see whether the host has headroom.
type HostSnapshot struct {
	Load1         float64 `json:"load1"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Host samples load average and memory usage
func Host() (*HostSnapshot, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get memory stats")
	}

	snap := &HostSnapshot{
		MemoryUsedGB:  float64(v.Total-v.Available) / 1024 / 1024 / 1024,
		MemoryTotalGB: float64(v.Total) / 1024 / 1024 / 1024,
		MemoryPercent: v.UsedPercent,
	}

	if avg, err := load.Avg(); err == nil {
		snap.Load1 = avg.Load1
	}

	return snap, nil
}
