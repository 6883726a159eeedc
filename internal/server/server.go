// Package server provides the front ends of the summarization service: the
// JSON API, the interactive form and the MCP tool server.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/localrivet/gomcp/server"

	"github.com/localrivet/dialoguesum/internal/errortypes"
	"github.com/localrivet/dialoguesum/internal/summarizer"
	"github.com/localrivet/dialoguesum/internal/telemetry"
	"github.com/localrivet/dialoguesum/internal/textclean"
	"github.com/localrivet/dialoguesum/internal/tools"
)

// Common server error types
var (
	ErrServerNotInitialized = errors.New("server not initialized")
	ErrMissingDependencies  = errors.New("one or more required dependencies are nil")
	ErrEmptyDialogue        = errors.New("dialogue is empty")
)

// MCPToolServer exposes the summarizer as the summarize_dialogue MCP tool.
type MCPToolServer struct {
	summarizer summarizer.Summarizer
	metrics    *telemetry.MetricsCollector
	log        *slog.Logger
	mcpServer  server.Server

	// callTimeout bounds one tool call. Zero means no limit.
	callTimeout time.Duration
}

// NewMCPToolServer creates a new MCPToolServer instance.
func NewMCPToolServer(s summarizer.Summarizer, metrics *telemetry.MetricsCollector, log *slog.Logger) *MCPToolServer {
	if log == nil {
		log = slog.Default()
	}
	return &MCPToolServer{
		summarizer: s,
		metrics:    metrics,
		log:        log,
	}
}

// WithCallTimeout sets the per-call deadline and returns the server.
func (s *MCPToolServer) WithCallTimeout(d time.Duration) *MCPToolServer {
	s.callTimeout = d
	return s
}

// Initialize registers the tools.
func (s *MCPToolServer) Initialize() error {
	s.log.Info("Initializing MCP tool server")

	if s.summarizer == nil {
		return errortypes.ConfigError(ErrMissingDependencies, "server initialization failed")
	}

	srv := server.NewServer("dialoguesum")
	srv = srv.Tool(tools.ToolSummarizeDialogue,
		"Summarize a dialogue with the fine-tuned T5 model",
		s.handleSummarizeDialogue)

	s.mcpServer = srv
	s.log.Info("MCP tool server initialized", "tool", tools.ToolSummarizeDialogue)
	return nil
}

// Start serves MCP over stdio. It returns when stdin is closed.
func (s *MCPToolServer) Start() error {
	if s.mcpServer == nil {
		return errortypes.ConfigError(ErrServerNotInitialized, "cannot start server")
	}

	s.log.Info("Starting MCP tool server")
	return s.mcpServer.AsStdio().Run()
}

// Stop gracefully shuts down the MCP server.
func (s *MCPToolServer) Stop() error {
	s.log.Info("Stopping MCP tool server")
	// The stdio transport exits when stdin is closed
	return nil
}

// handleSummarizeDialogue handles the summarize_dialogue MCP tool call.
// Failures are reported in the response status, not as a protocol error.
func (s *MCPToolServer) handleSummarizeDialogue(c *server.Context, req tools.SummarizeDialogueRequest) (tools.SummarizeDialogueResponse, error) {
	var done doneSource
	if c != nil {
		done = c
	}
	return s.summarizeDialogue(done, req)
}

// doneSource is the cancellation half of a context. *server.Context
// implements it but cannot be unwrapped into a context.Context.
type doneSource interface {
	Done() <-chan struct{}
}

// callContext returns a context that is canceled when src is done, when the
// call timeout expires or when cancel is called.
func (s *MCPToolServer) callContext(src doneSource) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	if src != nil {
		if done := src.Done(); done != nil {
			go func() {
				select {
				case <-done:
					cancel()
				case <-ctx.Done():
				}
			}()
		}
	}

	if s.callTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.callTimeout)
		return ctx, func() {
			cancelTimeout()
			cancel()
		}
	}
	return ctx, cancel
}

func (s *MCPToolServer) summarizeDialogue(src doneSource, req tools.SummarizeDialogueRequest) (tools.SummarizeDialogueResponse, error) {
	s.log.Info("Processing summarize_dialogue request", "dialogue_length", len(req.Dialogue))
	if s.metrics != nil {
		s.metrics.IncrementCounter(telemetry.MetricMCPRequests, 1)
	}

	response := tools.SummarizeDialogueResponse{Status: tools.StatusSuccess}

	if textclean.IsBlank(req.Dialogue) {
		err := errortypes.ValidationError(ErrEmptyDialogue, "invalid summarize_dialogue request")
		errortypes.LogError(s.log, err)
		response.Status = tools.StatusError
		response.Error = err.Error()
		return response, nil
	}

	ctx, cancel := s.callContext(src)
	defer cancel()

	summary, err := s.summarizer.Summarize(ctx, req.Dialogue)
	if err != nil {
		errortypes.LogError(s.log, err)
		response.Status = tools.StatusError
		response.Error = err.Error()
		return response, nil
	}

	response.Summary = summary
	s.log.Info("Successfully summarized dialogue", "summary_length", len(summary))
	return response, nil
}
