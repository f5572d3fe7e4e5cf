package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// Worker pools in other processes are coordinated through two kinds of files
// in the data directory: a stop flag that asks every pool to wind down, and
// one pid file per pool recording how many workers it runs.

const stopFlagName = "worker.stop"

// PoolInfo is the pid file payload, consumed by `status` and `worker stop`
type PoolInfo struct {
	PID       int       `json:"pid"`
	Workers   int       `json:"workers"`
	StartedAt time.Time `json:"started_at"`
}

func stopFlagPath(dataDir string) string {
	return filepath.Join(dataDir, stopFlagName)
}

// StopRequested reports whether a graceful stop has been asked for
func StopRequested(dataDir string) bool {
	_, err := os.Stat(stopFlagPath(dataDir))
	return err == nil
}

// RequestStop creates the stop flag
func RequestStop(dataDir string) error {
	return errors.Wrap(os.WriteFile(stopFlagPath(dataDir), []byte("stop"), 0o644), "failed to create stop flag")
}

// ClearStopFlag removes the stop flag; missing is fine
func ClearStopFlag(dataDir string) error {
	err := os.Remove(stopFlagPath(dataDir))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to clear stop flag")
	}
	return nil
}

func registerPool(dataDir string, workers int) (string, error) {
	info := PoolInfo{PID: os.Getpid(), Workers: workers, StartedAt: time.Now().UTC()}
	data, err := json.Marshal(info)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal pool info")
	}

	path := filepath.Join(dataDir, fmt.Sprintf("worker-%d.pid", info.PID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write pid file")
	}
	return path, nil
}

func unregisterPool(path string) {
	_ = os.Remove(path)
}

// ActivePools lists pools whose process is still alive. Pid files left
// behind by a crashed pool are skipped (and cleaned up) rather than counted.
func ActivePools(dataDir string) ([]PoolInfo, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, "worker-*.pid"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pid files")
	}

	var pools []PoolInfo
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var info PoolInfo
		if err := json.Unmarshal(data, &info); err != nil {
			continue
		}
		alive, err := process.PidExists(int32(info.PID))
		if err == nil && !alive {
			_ = os.Remove(path)
			continue
		}
		pools = append(pools, info)
	}
	return pools, nil
}

// Stop asks all running pools to shut down gracefully and waits up to wait
// for their pid files to disappear. The flag is cleared afterwards so the
// next `worker start` is not immediately stopped.
func Stop(dataDir string, wait time.Duration) (stopped bool, err error) {
	pools, err := ActivePools(dataDir)
	if err != nil {
		return false, err
	}
	if len(pools) == 0 {
		return true, nil
	}

	if err := RequestStop(dataDir); err != nil {
		return false, err
	}
	defer func() {
		if clearErr := ClearStopFlag(dataDir); err == nil {
			err = clearErr
		}
	}()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		time.Sleep(time.Second)
		remaining, err := ActivePools(dataDir)
		if err != nil {
			return false, err
		}
		if len(remaining) == 0 {
			return true, nil
		}
	}
	return false, nil
}
