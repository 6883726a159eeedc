package summarizer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/localrivet/dialoguesum/internal/errortypes"
	"github.com/localrivet/dialoguesum/internal/model"
	"github.com/localrivet/dialoguesum/internal/summarizer/providers"
	"github.com/localrivet/dialoguesum/internal/summarystore"
	"github.com/localrivet/dialoguesum/internal/telemetry"
	"github.com/localrivet/dialoguesum/internal/textclean"
	"github.com/localrivet/dialoguesum/internal/util"
)

// DefaultWorkers is the number of generations that may run at once.
const DefaultWorkers = 1

// ErrNoRuntime is returned when a ModelSummarizer is built without a runtime.
var ErrNoRuntime = errors.New("no model runtime configured")

// Options configures a ModelSummarizer.
type Options struct {
	Runtime   providers.Runtime
	Artifacts *model.Artifacts

	// Store caches summaries. Nil disables caching.
	Store summarystore.Store

	// Workers bounds concurrent generations. Values below 1 use DefaultWorkers.
	Workers int

	// Timeout bounds a single generation. Zero means no limit.
	Timeout time.Duration

	Metrics *telemetry.MetricsCollector
	Logger  *slog.Logger
}

// ModelSummarizer implements Summarizer on top of a model runtime. Every
// generation holds one slot of a bounded pool, so with the default single
// worker concurrent requests queue for the loaded model in arrival order of
// their slot requests.
type ModelSummarizer struct {
	runtime   providers.Runtime
	artifacts *model.Artifacts
	store     summarystore.Store
	slots     *semaphore.Weighted
	workers   int
	timeout   time.Duration
	tokens    []string
	scope     []string
	metrics   *telemetry.MetricsCollector
	log       *slog.Logger

	mu          sync.Mutex
	initialized bool
}

// NewModelSummarizer creates a ModelSummarizer from opts.
func NewModelSummarizer(opts Options) (*ModelSummarizer, error) {
	if opts.Runtime == nil {
		return nil, errortypes.ConfigError(ErrNoRuntime, "cannot create summarizer")
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetricsCollector()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &ModelSummarizer{
		runtime:   opts.Runtime,
		artifacts: opts.Artifacts,
		store:     opts.Store,
		slots:     semaphore.NewWeighted(int64(opts.Workers)),
		workers:   opts.Workers,
		timeout:   opts.Timeout,
		tokens:    opts.Artifacts.SpecialTokens(),
		scope:     cacheScope(opts.Runtime, opts.Artifacts),
		metrics:   opts.Metrics,
		log:       opts.Logger.With("component", "summarizer"),
	}, nil
}

// Initialize loads the checkpoint into the runtime. It is safe to call more
// than once; only the first successful call does any work.
func (s *ModelSummarizer) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	s.log.Info("Loading model runtime", "runtime", s.runtime.Name(), "model", s.artifacts.Name())
	if err := s.runtime.Load(ctx, s.artifacts); err != nil {
		s.metrics.SetGauge(telemetry.MetricRuntimeHealthy, 0)
		return errortypes.ExternalError(err, "failed to load model runtime").
			WithField("runtime", s.runtime.Name())
	}

	s.metrics.SetGauge(telemetry.MetricRuntimeHealthy, 1)
	s.initialized = true
	return nil
}

// Summarize runs the full pipeline for one dialogue. Empty input is not an
// error here; callers that reject blank dialogue must do so before calling.
func (s *ModelSummarizer) Summarize(ctx context.Context, dialogue string) (summary string, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "summarizer.Summarize")
	defer func() { telemetry.End(span, err) }()

	s.metrics.IncrementCounter(telemetry.MetricSummarizeRequests, 1)
	defer func() {
		switch {
		case err == nil:
			s.metrics.IncrementCounter(telemetry.MetricSummarizeSuccess, 1)
			s.metrics.RecordTimestamp(telemetry.MetricLastSuccess)
		case errortypes.TypeOf(err) == errortypes.ErrorTypeCanceled:
			s.metrics.IncrementCounter(telemetry.MetricSummarizeCanceled, 1)
		default:
			s.metrics.IncrementCounter(telemetry.MetricSummarizeFailure, 1)
		}
	}()

	if err := s.Initialize(ctx); err != nil {
		return "", err
	}

	cleaned := textclean.Clean(dialogue)
	key := s.cacheKey(cleaned)
	span.SetAttributes(
		attribute.Int("dialogue.length", len(dialogue)),
		attribute.Int("dialogue.normalized_length", len(cleaned)),
		attribute.String("cache.key", util.ShortKey(key)),
	)

	if cached, ok := s.lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	raw, err := s.generate(ctx, cleaned)
	if err != nil {
		return "", err
	}

	summary = Decode(raw, s.tokens)
	s.save(ctx, key, summary)

	s.log.Debug("Summary generated",
		"key", util.ShortKey(key),
		"input_length", len(cleaned),
		"summary_length", len(summary))
	return summary, nil
}

// cacheScope lists what a summary depends on besides the dialogue: the
// runtime, its identity and the checkpoint fingerprint. Entries written under
// another scope are never served.
func cacheScope(rt providers.Runtime, artifacts *model.Artifacts) []string {
	identity := ""
	if id, ok := rt.(providers.Identified); ok {
		identity = id.Identity()
	}
	return []string{rt.Name(), identity, artifacts.Fingerprint()}
}

func (s *ModelSummarizer) cacheKey(cleaned string) string {
	parts := make([]string, 0, len(s.scope)+1)
	parts = append(parts, s.scope...)
	return util.CacheKey(append(parts, cleaned)...)
}

// generate waits for an inference slot and runs the runtime.
func (s *ModelSummarizer) generate(ctx context.Context, cleaned string) (string, error) {
	waitStart := time.Now()
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return "", errortypes.CanceledError(err, "gave up waiting for an inference slot")
	}
	defer s.slots.Release(1)
	s.metrics.RecordTimer(telemetry.MetricSlotWaitTime, time.Since(waitStart))

	s.metrics.AddGauge(telemetry.MetricInflight, 1)
	defer s.metrics.AddGauge(telemetry.MetricInflight, -1)

	genCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := s.runtime.Generate(genCtx, providers.NewGenerationRequest(cleaned))
	s.metrics.RecordTimer(telemetry.MetricGenerationTime, time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return "", errortypes.CanceledError(err, "summarization canceled")
		}
		if isUnreachable(err) {
			return "", errortypes.NetworkError(err, "model runtime is unreachable").
				WithField("runtime", s.runtime.Name())
		}
		return "", errortypes.ExternalError(err, "model runtime failed to generate a summary").
			WithField("runtime", s.runtime.Name())
	}
	return raw, nil
}

// isUnreachable reports whether err is a dial or name resolution failure.
// Deadlines are not matched; they count as runtime failures.
func isUnreachable(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	return errors.As(err, &opErr) || errors.As(err, &dnsErr)
}

func (s *ModelSummarizer) lookup(ctx context.Context, key string) (string, bool) {
	if s.store == nil {
		return "", false
	}

	entry, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.metrics.IncrementCounter(telemetry.MetricCacheErrors, 1)
		s.log.Warn("Summary cache lookup failed", "key", util.ShortKey(key), "error", err)
		return "", false
	}
	if !ok {
		s.metrics.IncrementCounter(telemetry.MetricCacheMisses, 1)
		return "", false
	}

	s.metrics.IncrementCounter(telemetry.MetricCacheHits, 1)
	return entry.Summary, true
}

func (s *ModelSummarizer) save(ctx context.Context, key, summary string) {
	if s.store == nil {
		return
	}

	err := s.store.Put(ctx, summarystore.Entry{
		Key:       key,
		Summary:   summary,
		Runtime:   s.runtime.Name(),
		Model:     s.artifacts.Name(),
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.metrics.IncrementCounter(telemetry.MetricCacheErrors, 1)
		s.log.Warn("Failed to cache summary", "key", util.ShortKey(key), "error", err)
	}
}

// Ping checks that the runtime still answers.
func (s *ModelSummarizer) Ping(ctx context.Context) error {
	err := s.runtime.Load(ctx, s.artifacts)
	if err != nil {
		s.metrics.SetGauge(telemetry.MetricRuntimeHealthy, 0)
		return err
	}
	s.metrics.SetGauge(telemetry.MetricRuntimeHealthy, 1)
	return nil
}

// RuntimeName returns the name of the model runtime.
func (s *ModelSummarizer) RuntimeName() string {
	return s.runtime.Name()
}

// ModelName returns the checkpoint name.
func (s *ModelSummarizer) ModelName() string {
	return s.artifacts.Name()
}

// Workers returns the size of the inference slot pool.
func (s *ModelSummarizer) Workers() int {
	return s.workers
}

// CacheEnabled reports whether summaries are cached.
func (s *ModelSummarizer) CacheEnabled() bool {
	if s.store == nil {
		return false
	}
	_, nop := s.store.(summarystore.NopStore)
	return !nop
}

// GetMetrics returns the metrics collector.
func (s *ModelSummarizer) GetMetrics() *telemetry.MetricsCollector {
	return s.metrics
}
