package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/localrivet/dialoguesum/internal/errortypes"
	"github.com/localrivet/dialoguesum/internal/logger"
	"github.com/localrivet/dialoguesum/internal/summarizer"
	"github.com/localrivet/dialoguesum/internal/telemetry"
	"github.com/localrivet/dialoguesum/internal/tools"
)

// maxRequestBody bounds the size of a summarize request body.
const maxRequestBody = 1 << 20

// HealthFunc produces the health report served on /api/health.
type HealthFunc func(ctx context.Context) (*summarizer.HealthReport, error)

// APIOptions configures an APIServer.
type APIOptions struct {
	Addr       string
	Summarizer summarizer.Summarizer

	// Health is optional. Without it /api/health answers 404.
	Health HealthFunc

	Metrics      *telemetry.MetricsCollector
	TemplatesDir string

	// Runtime and Model are shown on the landing page.
	Runtime string
	Model   string

	Logger *slog.Logger
}

// APIServer is the JSON API front end.
type APIServer struct {
	opts       APIOptions
	templates  *template.Template
	log        *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// NewAPIServer creates an APIServer and registers its routes.
func NewAPIServer(opts APIOptions) (*APIServer, error) {
	if opts.Summarizer == nil {
		return nil, errortypes.ConfigError(errors.New("summarizer is nil"), "cannot create API server")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetricsCollector()
	}

	tmpl, err := loadTemplates(opts.TemplatesDir)
	if err != nil {
		return nil, errortypes.ConfigError(err, "cannot load API templates")
	}

	s := &APIServer{
		opts:      opts,
		templates: tmpl,
		log:       logger.WithComponent(opts.Logger, "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/summarize", s.handleSummarize)
	mux.HandleFunc("/summarize/", s.handleSummarize)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	s.handler = instrument(mux, s.log, opts.Metrics, telemetry.MetricAPIRequests)
	s.httpServer = newHTTPServer(opts.Addr, s.handler)

	return s, nil
}

// Handler returns the instrumented route table.
func (s *APIServer) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until the server is
// shut down. It returns http.ErrServerClosed after Stop.
func (s *APIServer) Start() error {
	s.log.Info("Starting API server", "addr", s.opts.Addr)
	return serve(s.httpServer)
}

// Stop gracefully shuts down the server, waiting for in-flight requests
// until ctx ends. A later Start returns http.ErrServerClosed.
func (s *APIServer) Stop(ctx context.Context) error {
	s.log.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// serve listens on srv.Addr and serves until srv is shut down. It returns
// http.ErrServerClosed without serving when srv was shut down first.
func serve(srv *http.Server) error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errortypes.NetworkError(err, "cannot listen").WithField("addr", addr)
	}
	return srv.Serve(ln)
}

func (s *APIServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		HandleNotFound(w, fmt.Sprintf("No route for %s", r.URL.Path), nil)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		HandleMethodNotAllowed(w, "GET, HEAD")
		return
	}

	data := struct {
		Title   string
		Runtime string
		Model   string
	}{
		Title:   "Dialogue Summarization API",
		Runtime: s.opts.Runtime,
		Model:   s.opts.Model,
	}
	render(w, s.templates, indexTemplate, http.StatusOK, data)
}

func (s *APIServer) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		HandleMethodNotAllowed(w, http.MethodPost)
		return
	}

	var req tools.SummarizeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		HandleUnprocessable(w, `Request body must be a JSON object with a string field "dialogue"`, err)
		return
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		HandleUnprocessable(w, "Request body must contain a single JSON object", errors.New("trailing data after request object"))
		return
	}
	if req.Dialogue == nil {
		HandleUnprocessable(w, `Field "dialogue" is required`, errors.New("missing dialogue"))
		return
	}

	summary, err := s.opts.Summarizer.Summarize(r.Context(), *req.Dialogue)
	if err != nil {
		HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tools.SummarizeResponse{Summary: summary})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		HandleMethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.opts.Health == nil {
		HandleNotFound(w, "Health reporting is not configured", nil)
		return
	}

	report, err := s.opts.Health(r.Context())
	if err != nil {
		HandleInternalError(w, "Failed to build health report", err)
		return
	}

	status := http.StatusOK
	if report.Status == summarizer.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *APIServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		HandleMethodNotAllowed(w, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.opts.Metrics.GetReport()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// render executes a template into a buffer first so a template error still
// yields a clean 500.
func render(w http.ResponseWriter, tmpl *template.Template, name string, status int, data any) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		errortypes.LogError(nil, errortypes.InternalError(err, "failed to render template").
			WithField("template", name))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
