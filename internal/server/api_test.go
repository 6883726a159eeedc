package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/localrivet/dialoguesum/internal/errortypes"
	"github.com/localrivet/dialoguesum/internal/summarizer"
	"github.com/localrivet/dialoguesum/internal/telemetry"
	"github.com/localrivet/dialoguesum/internal/tools"
)

func newTestAPI(t *testing.T, s summarizer.Summarizer, health HealthFunc) (*httptest.Server, *telemetry.MetricsCollector) {
	t.Helper()
	metrics := telemetry.NewMetricsCollector()
	api, err := NewAPIServer(APIOptions{
		Summarizer: s,
		Health:     health,
		Metrics:    metrics,
		Runtime:    "seq2seq",
		Model:      "t5-small",
	})
	if err != nil {
		t.Fatalf("NewAPIServer() error = %v", err)
	}
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(ts.Close)
	return ts, metrics
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPISummarize(t *testing.T) {
	mock := &MockSummarizer{Summaries: map[string]string{
		"Hannah: Hey, do you have Betty's number?": "Hannah is looking for Betty's number.",
	}}
	ts, metrics := newTestAPI(t, mock, nil)

	for _, path := range []string{"/summarize/", "/summarize"} {
		resp := postJSON(t, ts.URL+path, `{"dialogue": "Hannah: Hey, do you have Betty's number?"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Errorf("%s: Content-Type = %q", path, ct)
		}

		var raw map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		summary, ok := raw["summary"].(string)
		if !ok {
			t.Fatalf("%s: summary is %T, want string", path, raw["summary"])
		}
		if summary != "Hannah is looking for Betty's number." {
			t.Errorf("%s: summary = %q", path, summary)
		}
	}

	if got := metrics.GetCounter(telemetry.MetricAPIRequests); got != 2 {
		t.Errorf("api request counter = %d, want 2", got)
	}
}

func TestAPISummarizeEmptyDialogue(t *testing.T) {
	mock := &MockSummarizer{}
	ts, _ := newTestAPI(t, mock, nil)

	resp := postJSON(t, ts.URL+"/summarize/", `{"dialogue": ""}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out tools.SummarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if calls := mock.Calls(); len(calls) != 1 || calls[0] != "" {
		t.Errorf("summarizer calls = %q, want one empty dialogue", calls)
	}
}

func TestAPISummarizeInvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `dialogue=hello`},
		{"missing field", `{"text": "hello"}`},
		{"wrong type", `{"dialogue": 42}`},
		{"null field", `{"dialogue": null}`},
		{"array", `["hello"]`},
		{"trailing garbage", `{"dialogue": "A: hi"} junk`},
		{"two objects", `{"dialogue": "A: hi"}{"dialogue": "B: bye"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockSummarizer{}
			ts, _ := newTestAPI(t, mock, nil)

			resp := postJSON(t, ts.URL+"/summarize/", tt.body)
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", resp.StatusCode)
			}

			var errResp ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if errResp.Code != ErrorCodeInvalidRequest {
				t.Errorf("code = %q", errResp.Code)
			}
			if len(mock.Calls()) != 0 {
				t.Error("summarizer should not be called for an invalid body")
			}
		})
	}
}

func TestAPISummarizeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"runtime failure", errortypes.ExternalError(errors.New("boom"), "generation failed"), http.StatusBadGateway},
		{"canceled", errortypes.CanceledError(context.DeadlineExceeded, "gave up"), http.StatusGatewayTimeout},
		{"runtime unreachable", errortypes.NetworkError(errors.New("connection refused"), "model server unreachable"), http.StatusBadGateway},
		{"untyped", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestAPI(t, &MockSummarizer{Err: tt.err}, nil)
			resp := postJSON(t, ts.URL+"/summarize/", `{"dialogue": "A: hi"}`)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestAPISummarizeAllowsTrailingWhitespace(t *testing.T) {
	ts, _ := newTestAPI(t, &MockSummarizer{}, nil)

	resp := postJSON(t, ts.URL+"/summarize/", "{\"dialogue\": \"A: hi\"}\n\t ")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAPIServerStopBeforeStart(t *testing.T) {
	api, err := NewAPIServer(APIOptions{Addr: "127.0.0.1:0", Summarizer: &MockSummarizer{}})
	if err != nil {
		t.Fatalf("NewAPIServer() error = %v", err)
	}

	if err := api.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- api.Start() }()

	select {
	case err := <-done:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Start() error = %v, want http.ErrServerClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() kept serving after Stop")
	}
}

func TestAPIServerStartStop(t *testing.T) {
	api, err := NewAPIServer(APIOptions{Addr: "127.0.0.1:0", Summarizer: &MockSummarizer{}})
	if err != nil {
		t.Fatalf("NewAPIServer() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- api.Start() }()

	// Stop may race with Start; either order must end Start.
	time.Sleep(50 * time.Millisecond)
	if err := api.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Start() error = %v, want http.ErrServerClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop")
	}
}

func TestAPISummarizeMethodNotAllowed(t *testing.T) {
	ts, _ := newTestAPI(t, &MockSummarizer{}, nil)

	resp, err := http.Get(ts.URL + "/summarize/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
	if resp.Header.Get("Allow") != http.MethodPost {
		t.Errorf("Allow = %q", resp.Header.Get("Allow"))
	}
}

func TestAPIIndex(t *testing.T) {
	ts, _ := newTestAPI(t, &MockSummarizer{}, nil)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatalf("parse HTML: %v", err)
	}
	if !strings.Contains(doc.Find("#welcome").Text(), "t5-small") {
		t.Errorf("welcome text = %q", doc.Find("#welcome").Text())
	}
	if n := doc.Find("#endpoints li").Length(); n != 3 {
		t.Errorf("endpoint count = %d, want 3", n)
	}
}

func TestAPIUnknownRoute(t *testing.T) {
	ts, _ := newTestAPI(t, &MockSummarizer{}, nil)

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIHealth(t *testing.T) {
	status := summarizer.StatusHealthy
	health := func(ctx context.Context) (*summarizer.HealthReport, error) {
		return &summarizer.HealthReport{Status: status, Runtime: "seq2seq"}, nil
	}
	ts, _ := newTestAPI(t, &MockSummarizer{}, health)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var report summarizer.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || report.Status != summarizer.StatusHealthy {
		t.Errorf("status = %d report = %q", resp.StatusCode, report.Status)
	}

	status = summarizer.StatusUnhealthy
	resp, err = http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestAPIHealthNotConfigured(t *testing.T) {
	ts, _ := newTestAPI(t, &MockSummarizer{}, nil)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIMetrics(t *testing.T) {
	ts, metrics := newTestAPI(t, &MockSummarizer{}, nil)
	metrics.IncrementCounter("custom_counter", 7)

	resp, err := http.Get(ts.URL + "/api/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var buf strings.Builder
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(buf.String(), "custom_counter") {
		t.Errorf("metrics report missing counter: %s", buf.String())
	}
}

func TestNewAPIServerRequiresSummarizer(t *testing.T) {
	if _, err := NewAPIServer(APIOptions{}); !errortypes.IsConfigError(err) {
		t.Errorf("expected config error, got %v", err)
	}
}
