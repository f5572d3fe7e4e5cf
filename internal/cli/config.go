package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write global defaults",
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Show a config value (max_retries, backoff_base, job_timeout, poll_interval)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := app.cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", args[0], value)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}
