// Package app implements the dialoguesum command line.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/localrivet/dialoguesum"
	"github.com/localrivet/dialoguesum/internal/config"
	"github.com/localrivet/dialoguesum/internal/logger"
	"github.com/localrivet/dialoguesum/internal/summarizer"
	"github.com/localrivet/dialoguesum/internal/telemetry"
)

const (
	cliName        = "dialoguesum"
	cliDescription = "dialoguesum - dialogue summarization with a fine-tuned T5 model"
)

// GlobalOptions holds options that are common to all commands
type GlobalOptions struct {
	// ConfigPath is the configuration file to load
	ConfigPath string

	// LogLevel overrides logging.level when set
	LogLevel string

	// LogFormat overrides logging.format when set
	LogFormat string
}

// NewDialogueSumCommand creates the root command with all subcommands.
func NewDialogueSumCommand() *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   cliName,
		Short: cliDescription,
		Long: `dialoguesum serves a pretrained T5 checkpoint fine-tuned for dialogue
summarization. The same pipeline is reachable through a JSON API, an
interactive web form, an MCP tool over stdio, or directly from the shell.

Configuration is read from .dialoguesumconfig (searched upward from the
working directory) and DIALOGUESUM_* environment variables.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultConfigFilename,
		"configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "",
		"log format (text, json)")

	cmd.AddCommand(
		NewAPICommand(opts),
		NewUICommand(opts),
		NewServeCommand(opts),
		NewMCPCommand(opts),
		NewSummarizeCommand(opts),
		NewConfigCommand(opts),
		NewVersionCommand(),
	)

	return cmd
}

// runtimeEnv is everything a command needs once configuration is loaded.
type runtimeEnv struct {
	server   *dialoguesum.Server
	log      *slog.Logger
	shutdown telemetry.ShutdownFunc
}

// close releases the service and flushes spans.
func (e *runtimeEnv) close() {
	if err := e.server.Close(); err != nil {
		e.log.Error("Failed to close service", "error", err)
	}
	if err := e.shutdown(context.Background()); err != nil {
		e.log.Error("Failed to flush traces", "error", err)
	}
}

// setup loads configuration, installs the logger, starts tracing and builds
// the service. Logs always go to stderr so stdout stays free for the MCP
// transport and for summaries.
func setup(ctx context.Context, opts *GlobalOptions) (*runtimeEnv, error) {
	cfg, err := config.LoadConfigWithPath(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}

	log := logger.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	shutdown, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: summarizer.Version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	srv, err := dialoguesum.NewServer(dialoguesum.ServerOptions{Config: cfg, Logger: log})
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	return &runtimeEnv{server: srv, log: log, shutdown: shutdown}, nil
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), cliName, summarizer.Version)
		},
	}
}
