// Package config manages the global defaults consumed by submission and
// execution: max_retries, backoff_base, job_timeout, poll_interval. Values
// live in a JSON file inside the data directory and are written back on set,
// so separate CLI invocations and worker processes see the same defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const fileName = "config.json"

// Keys that `config set` accepts
const (
	KeyMaxRetries   = "max_retries"
	KeyBackoffBase  = "backoff_base"
	KeyJobTimeout   = "job_timeout"   // seconds
	KeyPollInterval = "poll_interval" // seconds
)

// Config is an immutable snapshot of the stored defaults plus the resolved
// data directory. Operations take the snapshot they were created with; a
// `config set` only affects subsequent invocations.
type Config struct {
	DataDir string

	v *viper.Viper
}

// Load reads the config file under dataDir, creating it with defaults on
// first run. The data and logs directories are created as a side effect.
func Load(dataDir string) (*Config, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "logs"), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dataDir, fileName))
	v.SetConfigType("json")
	v.SetDefault(KeyMaxRetries, 3)
	v.SetDefault(KeyBackoffBase, 2.0)
	v.SetDefault(KeyJobTimeout, 60)
	v.SetDefault(KeyPollInterval, 1)

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(err, "failed to read config")
		}
		// First run: persist the defaults so `config get` shows them
		if err := v.WriteConfigAs(filepath.Join(dataDir, fileName)); err != nil {
			return nil, errors.Wrap(err, "failed to write default config")
		}
	}

	return &Config{DataDir: dataDir, v: v}, nil
}

func (c *Config) MaxRetries() int      { return c.v.GetInt(KeyMaxRetries) }
func (c *Config) BackoffBase() float64 { return c.v.GetFloat64(KeyBackoffBase) }

func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.v.GetInt(KeyJobTimeout)) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.v.GetInt(KeyPollInterval)) * time.Second
}

// DBPath is the job store location inside the data directory
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "queue.db") }

// LogsDir holds one log file per job execution
func (c *Config) LogsDir() string { return filepath.Join(c.DataDir, "logs") }

// Get returns the stored value for a known key
func (c *Config) Get(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return c.v.GetString(key), nil
}

// Set validates, stores and persists a config value
func (c *Config) Set(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	switch key {
	case KeyBackoffBase:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 1 {
			return errors.Newf("%s must be a number >= 1, got %q", key, value)
		}
		c.v.Set(key, f)
	default:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return errors.Newf("%s must be a non-negative integer, got %q", key, value)
		}
		c.v.Set(key, n)
	}

	return errors.Wrap(c.v.WriteConfig(), "failed to write config")
}

func validateKey(key string) error {
	switch key {
	case KeyMaxRetries, KeyBackoffBase, KeyJobTimeout, KeyPollInterval:
		return nil
	default:
		return errors.Newf("unknown config key %q", key)
	}
}
