package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localrivet/dialoguesum/internal/config"
)

const redacted = "********"

// NewConfigCommand creates the config command group.
func NewConfigCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init [PATH]",
			Short: "Write a configuration file with default values",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := opts.ConfigPath
				if len(args) == 1 {
					path = args[0]
				}
				if err := config.NewConfig().SaveToFile(path); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Wrote", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.LoadConfigWithPath(opts.ConfigPath)
				if err != nil {
					return err
				}
				if cfg.Model.APIKey != "" {
					cfg.Model.APIKey = redacted
				}
				if cfg.Store.RedisPassword != "" {
					cfg.Store.RedisPassword = redacted
				}
				if path := cfg.GetConfigPath(); path != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), "Loaded", path)
				} else {
					fmt.Fprintln(cmd.ErrOrStderr(), "No configuration file found; showing defaults and environment")
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			},
		},
	)

	return cmd
}
