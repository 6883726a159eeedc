// Package dialoguesum wires the dialogue summarization service together:
// checkpoint metadata, model runtime, summary cache and the front ends.
package dialoguesum

import (
	"context"
	"errors"
	"log/slog"

	"github.com/localrivet/dialoguesum/internal/config"
	"github.com/localrivet/dialoguesum/internal/errortypes"
	"github.com/localrivet/dialoguesum/internal/logger"
	"github.com/localrivet/dialoguesum/internal/model"
	"github.com/localrivet/dialoguesum/internal/scheduler"
	"github.com/localrivet/dialoguesum/internal/server"
	"github.com/localrivet/dialoguesum/internal/summarizer"
	"github.com/localrivet/dialoguesum/internal/summarizer/providers"
	"github.com/localrivet/dialoguesum/internal/summarystore"
	"github.com/localrivet/dialoguesum/internal/telemetry"
)

// Config represents the configuration for the summarization service.
type Config = config.Config

// Components holds the parts of the service built from a Config.
type Components struct {
	Artifacts  *model.Artifacts
	Runtime    providers.Runtime
	Store      summarystore.Store
	Summarizer *summarizer.ModelSummarizer
	Metrics    *telemetry.MetricsCollector
}

// Server represents the summarization service.
type Server struct {
	config     *config.Config
	components *Components
	pruner     *scheduler.Scheduler
	logger     *slog.Logger
}

// ServerOptions defines the options for creating a new Server.
type ServerOptions struct {
	Config     *Config      // Pre-filled config. If nil, ConfigPath is used.
	ConfigPath string       // Path to config file. Used if Config is nil. If both are empty, DefaultConfig() is used.
	Logger     *slog.Logger // External logger. If nil, slog.Default() is used.
}

// NewServer creates a Server with the given options. The model runtime is not
// contacted until Initialize or the first summary.
func NewServer(opts ServerOptions) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var cfg *Config
	var err error

	switch {
	case opts.Config != nil:
		cfg = opts.Config
	case opts.ConfigPath != "":
		log.Info("Loading configuration", "path", opts.ConfigPath)
		cfg, err = config.LoadConfigWithPath(opts.ConfigPath)
		if err != nil {
			return nil, errortypes.ConfigError(err, "failed to load configuration from path: "+opts.ConfigPath)
		}
	default:
		log.Warn("No Config object or ConfigPath provided, using default configuration")
		cfg = DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, errortypes.ConfigError(err, "invalid configuration")
	}

	components, err := CreateComponents(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	pruner := scheduler.New(context.Background(), components.Store, cfg.StoreTTL(), cfg.Store.PruneSpec,
		components.Metrics, logger.WithComponent(log, "scheduler"))

	log.Info("Summarization service created",
		"runtime", components.Runtime.Name(),
		"model", components.Summarizer.ModelName(),
		"store", cfg.Store.Backend,
		"workers", components.Summarizer.Workers())

	return &Server{
		config:     cfg,
		components: components,
		pruner:     pruner,
		logger:     log,
	}, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return config.NewConfig()
}

// CreateComponents builds the checkpoint metadata, runtime, store and
// summarizer described by cfg without creating a Server.
func CreateComponents(ctx context.Context, cfg *Config, log *slog.Logger) (*Components, error) {
	if log == nil {
		log = slog.Default()
	}

	runtimeName := cfg.Model.Runtime
	if runtimeName == "" {
		runtimeName = providers.RuntimeSeq2Seq
	}

	artifacts, err := model.LoadArtifacts(cfg.Model.Dir)
	if err != nil {
		// The extractive runtime needs no checkpoint.
		if runtimeName != providers.RuntimeExtractive {
			return nil, err
		}
		log.Warn("Model directory unavailable, continuing without it", "dir", cfg.Model.Dir, "error", err)
		artifacts = nil
	}

	runtimeConfig := providers.Config{
		BaseURL: cfg.Model.RuntimeURL,
		APIKey:  cfg.Model.APIKey,
		ModelID: cfg.Model.ModelID,
	}
	factory := providers.NewProviderFactory(map[string]providers.Config{
		providers.RuntimeSeq2Seq: runtimeConfig,
		providers.RuntimeOpenAI:  runtimeConfig,
	})
	runtime, err := factory.GetRuntime(runtimeName)
	if err != nil {
		return nil, errortypes.ConfigError(err, "failed to create model runtime").
			WithField("runtime", runtimeName)
	}

	store, err := summarystore.Open(ctx, summarystore.Options{
		Backend:       cfg.Store.Backend,
		SQLitePath:    cfg.Store.SQLitePath,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
		TTL:           cfg.StoreTTL(),
	})
	if err != nil {
		return nil, errortypes.DatabaseError(err, "failed to open summary store").
			WithField("backend", cfg.Store.Backend)
	}

	metrics := telemetry.NewMetricsCollector()
	sum, err := summarizer.NewModelSummarizer(summarizer.Options{
		Runtime:   runtime,
		Artifacts: artifacts,
		Store:     store,
		Workers:   cfg.Summarizer.Workers,
		Timeout:   cfg.ModelTimeout(),
		Metrics:   metrics,
		Logger:    logger.WithComponent(log, "summarizer"),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Components{
		Artifacts:  artifacts,
		Runtime:    runtime,
		Store:      store,
		Summarizer: sum,
		Metrics:    metrics,
	}, nil
}

// Initialize binds the model runtime and starts cache pruning. Front ends
// call it before accepting traffic so a broken runtime fails at startup.
func (s *Server) Initialize(ctx context.Context) error {
	if err := s.components.Summarizer.Initialize(ctx); err != nil {
		return err
	}
	if err := s.pruner.Start(); err != nil {
		return errortypes.ConfigError(err, "failed to schedule cache pruning").
			WithField("spec", s.config.Store.PruneSpec)
	}
	return nil
}

// Summarize returns the summary of dialogue.
func (s *Server) Summarize(ctx context.Context, dialogue string) (string, error) {
	return s.components.Summarizer.Summarize(ctx, dialogue)
}

// Health reports runtime and cache health.
func (s *Server) Health(ctx context.Context) (*summarizer.HealthReport, error) {
	return summarizer.CreateHealthReport(ctx, s.components.Summarizer)
}

// APIServer creates the JSON API front end.
func (s *Server) APIServer() (*server.APIServer, error) {
	return server.NewAPIServer(server.APIOptions{
		Addr:         s.config.Server.APIAddr,
		Summarizer:   s.components.Summarizer,
		Health:       s.Health,
		Metrics:      s.components.Metrics,
		TemplatesDir: s.config.Server.TemplatesDir,
		Runtime:      s.components.Summarizer.RuntimeName(),
		Model:        s.components.Summarizer.ModelName(),
		Logger:       s.logger,
	})
}

// UIServer creates the interactive form front end.
func (s *Server) UIServer() (*server.UIServer, error) {
	return server.NewUIServer(server.UIOptions{
		Addr:         s.config.Server.UIAddr,
		Summarizer:   s.components.Summarizer,
		MaxChars:     s.config.Summarizer.MaxUIChars,
		TemplatesDir: s.config.Server.TemplatesDir,
		Metrics:      s.components.Metrics,
		Logger:       s.logger,
	})
}

// MCPServer creates and initializes the MCP tool front end.
func (s *Server) MCPServer() (*server.MCPToolServer, error) {
	srv := server.NewMCPToolServer(s.components.Summarizer, s.components.Metrics,
		logger.WithComponent(s.logger, "mcp")).
		WithCallTimeout(s.config.ModelTimeout())
	if err := srv.Initialize(); err != nil {
		return nil, err
	}
	return srv, nil
}

// Config returns the configuration the server was built from.
func (s *Server) Config() *Config {
	return s.config
}

// GetSummarizer returns the summarizer used by the server.
func (s *Server) GetSummarizer() *summarizer.ModelSummarizer {
	return s.components.Summarizer
}

// GetStore returns the summary store used by the server.
func (s *Server) GetStore() summarystore.Store {
	return s.components.Store
}

// GetMetrics returns the metrics collector shared by all front ends.
func (s *Server) GetMetrics() *telemetry.MetricsCollector {
	return s.components.Metrics
}

// Close stops cache pruning and closes the store.
func (s *Server) Close() error {
	s.logger.Info("Stopping summarization service")
	s.pruner.Stop()

	if err := s.components.Store.Close(); err != nil && !errors.Is(err, summarystore.ErrClosed) {
		s.logger.Error("Failed to close store", "error", err)
		return err
	}
	return nil
}
