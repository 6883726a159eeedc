package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newOpenAITestServer(t *testing.T, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/models/t5-samsum"):
			_, _ = w.Write([]byte(`{"id":"t5-samsum","object":"model","created":0,"owned_by":"local"}`))
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			if captured != nil {
				if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
					t.Errorf("failed to decode request: %v", err)
				}
			}
			resp := map[string]any{
				"id":      "cmpl-1",
				"object":  "chat.completion",
				"created": 0,
				"model":   "t5-samsum",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				}},
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"not found","type":"invalid_request_error"}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIRuntime_Generate(t *testing.T) {
	var body map[string]any
	srv := newOpenAITestServer(t, "hannah asks betty for larry's number.", &body)

	rt := NewOpenAIRuntime(Config{BaseURL: srv.URL + "/v1/", APIKey: "test", ModelID: "t5-samsum"})
	got, err := rt.Generate(context.Background(), NewGenerationRequest("hannah: hey, do you have betty's number?"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "hannah asks betty for larry's number." {
		t.Errorf("Generate() = %q", got)
	}

	checks := map[string]any{
		"model":                  "t5-samsum",
		"max_tokens":             float64(150),
		"use_beam_search":        true,
		"best_of":                float64(4),
		"early_stopping":         true,
		"truncate_prompt_tokens": float64(512),
		"skip_special_tokens":    true,
	}
	for key, want := range checks {
		if body[key] != want {
			t.Errorf("request %s = %v, want %v", key, body[key], want)
		}
	}
}

func TestOpenAIRuntime_Load(t *testing.T) {
	srv := newOpenAITestServer(t, "", nil)

	rt := NewOpenAIRuntime(Config{BaseURL: srv.URL + "/v1/", APIKey: "test", ModelID: "t5-samsum"})
	if err := rt.Load(context.Background(), nil); err != nil {
		t.Errorf("Load() error = %v", err)
	}

	missing := NewOpenAIRuntime(Config{BaseURL: srv.URL + "/v1/", APIKey: "test", ModelID: "other"})
	if err := missing.Load(context.Background(), nil); err == nil {
		t.Error("expected error for unknown model")
	}

	if err := NewOpenAIRuntime(Config{BaseURL: srv.URL + "/v1/"}).Load(context.Background(), nil); err == nil {
		t.Error("expected error without a model id")
	}
}

func TestOpenAIRuntime_ServerError(t *testing.T) {
	srv := MockServer(t, MockResponseConfig{
		StatusCode:   http.StatusBadRequest,
		ResponseBody: `{"error":{"message":"prompt too long","type":"invalid_request_error"}}`,
	})

	rt := NewOpenAIRuntime(Config{BaseURL: srv.URL + "/v1/", APIKey: "test", ModelID: "t5-samsum"})
	if _, err := rt.Generate(context.Background(), NewGenerationRequest("x")); err == nil {
		t.Error("expected error from failing server")
	}
}
