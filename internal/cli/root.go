// Package cli wires the cobra command tree over the queue engine.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"queuectl/internal/config"
	"queuectl/internal/repository"
	"queuectl/internal/service"
)

// App carries the shared dependencies behind every subcommand. They are
// opened once flags are parsed and closed when the command finishes.
type App struct {
	dataDir string
	verbose bool

	cfg  *config.Config
	repo *repository.SQLiteRepository
	jobs *service.JobService
	log  *zap.SugaredLogger
}

// NewRootCmd builds the queuectl command tree
func NewRootCmd() *cobra.Command {
	app := &App{}

	root := &cobra.Command{
		Use:           "queuectl",
		Short:         "Persistent background job queue for shell commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	root.PersistentFlags().StringVar(&app.dataDir, "data-dir", defaultDataDir(), "directory for the job store, logs and config")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newEnqueueCmd(app),
		newListCmd(app),
		newStatusCmd(app),
		newWorkerCmd(app),
		newDLQCmd(app),
		newConfigCmd(app),
		newMetricsCmd(app),
		newLogsCmd(app),
	)

	return root
}

// Execute runs the CLI; the caller maps a returned error to the exit code
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *App) init() error {
	cfg, err := config.Load(a.dataDir)
	if err != nil {
		return err
	}

	repo, err := repository.NewSQLiteRepository(cfg.DBPath())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.repo = repo
	a.log = newLogger(a.verbose)
	a.jobs = service.NewJobService(repo, cfg, a.log)
	return nil
}

func (a *App) close() {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.repo != nil {
		_ = a.repo.Close()
	}
}

func newLogger(verbose bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

func defaultDataDir() string {
	if dir := os.Getenv("QUEUECTL_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".queuectl"
	}
	return filepath.Join(home, ".queuectl")
}
