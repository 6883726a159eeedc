package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/localrivet/dialoguesum/internal/model"
)

// MockResponseConfig holds configuration for mock runtime responses
type MockResponseConfig struct {
	StatusCode   int
	ResponseBody interface{}
	Headers      map[string]string

	// HealthStatus is returned from GET /health. Zero means 200.
	HealthStatus int
}

// MockServer creates a test server that answers every request except
// GET /health with the configured response.
func MockServer(t *testing.T, config MockResponseConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/health" {
			status := config.HealthStatus
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			return
		}

		for k, v := range config.Headers {
			w.Header().Set(k, v)
		}
		if _, exists := config.Headers["Content-Type"]; !exists {
			w.Header().Set("Content-Type", "application/json")
		}

		w.WriteHeader(config.StatusCode)

		if config.ResponseBody == nil {
			return
		}

		var respBytes []byte
		switch body := config.ResponseBody.(type) {
		case string:
			respBytes = []byte(body)
		case []byte:
			respBytes = body
		default:
			var err error
			respBytes, err = json.Marshal(body)
			if err != nil {
				t.Errorf("Failed to marshal mock response: %v", err)
				return
			}
		}

		if _, err := w.Write(respBytes); err != nil {
			t.Errorf("Failed to write response body: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestRuntime is a Runtime that returns a fixed result and records every
// request it receives. It is safe for concurrent use.
type TestRuntime struct {
	name    string
	output  string
	err     error
	loadErr error

	mu       sync.Mutex
	requests []GenerationRequest
	loaded   *model.Artifacts
}

// NewTestRuntime creates a TestRuntime that returns output and err.
func NewTestRuntime(name, output string, err error) *TestRuntime {
	return &TestRuntime{name: name, output: output, err: err}
}

// WithLoadError makes Load fail with err.
func (r *TestRuntime) WithLoadError(err error) *TestRuntime {
	r.loadErr = err
	return r
}

// Name returns the runtime name
func (r *TestRuntime) Name() string {
	return r.name
}

// Load records the artifacts it was given.
func (r *TestRuntime) Load(_ context.Context, artifacts *model.Artifacts) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = artifacts
	return r.loadErr
}

// Generate records req and returns the configured result.
func (r *TestRuntime) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.output, r.err
}

// Requests returns a copy of the requests seen so far.
func (r *TestRuntime) Requests() []GenerationRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]GenerationRequest, len(r.requests))
	copy(out, r.requests)
	return out
}

// Loaded returns the artifacts passed to Load.
func (r *TestRuntime) Loaded() *model.Artifacts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}
