package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/localrivet/dialoguesum/internal/errortypes"
	"github.com/localrivet/dialoguesum/internal/logger"
	"github.com/localrivet/dialoguesum/internal/summarizer"
	"github.com/localrivet/dialoguesum/internal/telemetry"
	"github.com/localrivet/dialoguesum/internal/textclean"
)

// DefaultMaxUIChars bounds the dialogue accepted by the form.
const DefaultMaxUIChars = 2000

// Messages shown by the interactive page.
const (
	MsgEmptyDialogue    = "Please enter a dialogue to summarize!"
	MsgSummaryGenerated = "Summary Generated!"
)

// UIOptions configures a UIServer.
type UIOptions struct {
	Addr         string
	Summarizer   summarizer.Summarizer
	MaxChars     int
	TemplatesDir string
	Metrics      *telemetry.MetricsCollector
	Logger       *slog.Logger
}

// UIServer serves the single-page summarization form.
type UIServer struct {
	opts       UIOptions
	templates  *template.Template
	log        *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

type uiPage struct {
	MaxChars int
	Dialogue string
	Summary  string
	Error    string
	Success  bool
}

// NewUIServer creates a UIServer.
func NewUIServer(opts UIOptions) (*UIServer, error) {
	if opts.Summarizer == nil {
		return nil, errortypes.ConfigError(errors.New("summarizer is nil"), "cannot create UI server")
	}
	if opts.MaxChars < 1 {
		opts.MaxChars = DefaultMaxUIChars
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	tmpl, err := loadTemplates(opts.TemplatesDir)
	if err != nil {
		return nil, errortypes.ConfigError(err, "cannot load UI templates")
	}

	s := &UIServer{
		opts:      opts,
		templates: tmpl,
		log:       logger.WithComponent(opts.Logger, "ui"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handlePage)
	s.handler = instrument(mux, s.log, opts.Metrics, telemetry.MetricUIRequests)
	s.httpServer = newHTTPServer(opts.Addr, s.handler)
	return s, nil
}

// Handler returns the instrumented route table.
func (s *UIServer) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until shutdown.
func (s *UIServer) Start() error {
	s.log.Info("Starting UI server", "addr", s.opts.Addr)
	return serve(s.httpServer)
}

// Stop gracefully shuts down the server. A later Start returns
// http.ErrServerClosed.
func (s *UIServer) Stop(ctx context.Context) error {
	s.log.Info("Shutting down UI server")
	return s.httpServer.Shutdown(ctx)
}

func (s *UIServer) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	page := uiPage{MaxChars: s.opts.MaxChars}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		render(w, s.templates, uiTemplate, http.StatusOK, page)
	case http.MethodPost:
		status := s.submit(w, r, &page)
		render(w, s.templates, uiTemplate, status, page)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

// submit fills page from the posted form and returns the response status.
// Blank or oversized input never reaches the summarizer.
func (s *UIServer) submit(w http.ResponseWriter, r *http.Request, page *uiPage) int {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := r.ParseForm(); err != nil {
		page.Error = "Could not read the submitted form."
		return http.StatusBadRequest
	}

	dialogue := r.PostFormValue("dialogue")
	page.Dialogue = dialogue

	if textclean.IsBlank(dialogue) {
		page.Error = MsgEmptyDialogue
		return http.StatusOK
	}
	if n := utf8.RuneCountInString(dialogue); n > s.opts.MaxChars {
		page.Error = fmt.Sprintf("Dialogue is %d characters long; the limit is %d.", n, s.opts.MaxChars)
		return http.StatusOK
	}

	summary, err := s.opts.Summarizer.Summarize(r.Context(), dialogue)
	if err != nil {
		errortypes.LogError(s.log, err)
		page.Error = "Could not generate a summary. Please try again."
		return uiErrorStatus(err)
	}

	page.Summary = summary
	page.Success = true
	return http.StatusOK
}

func uiErrorStatus(err error) int {
	switch {
	case errortypes.TypeOf(err) == errortypes.ErrorTypeCanceled:
		return http.StatusGatewayTimeout
	case errortypes.IsNetworkError(err), errortypes.IsExternalError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
