package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/localrivet/dialoguesum/internal/model"
)

// DefaultSeq2SeqURL is where the local inference runtime listens by default.
const DefaultSeq2SeqURL = "http://127.0.0.1:8080"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// ErrEmptyGeneration is returned when the runtime answers without any text.
var ErrEmptyGeneration = errors.New("runtime returned no generated text")

// Seq2SeqRuntime talks to a local text2text-generation runtime over HTTP.
type Seq2SeqRuntime struct {
	Config
	httpClient *http.Client

	mu       sync.RWMutex
	modelDir string
}

type seq2seqParameters struct {
	MaxLength     int  `json:"max_length"`
	NumBeams      int  `json:"num_beams"`
	EarlyStopping bool `json:"early_stopping"`
}

type tokenizerOptions struct {
	Truncation bool   `json:"truncation"`
	Padding    string `json:"padding"`
	MaxLength  int    `json:"max_length"`
}

type seq2seqRequest struct {
	Inputs            string            `json:"inputs"`
	Parameters        seq2seqParameters `json:"parameters"`
	Tokenizer         tokenizerOptions  `json:"tokenizer"`
	SkipSpecialTokens bool              `json:"skip_special_tokens"`
	ModelDir          string            `json:"model_dir,omitempty"`
}

type seq2seqOutput struct {
	SummaryText   string `json:"summary_text"`
	GeneratedText string `json:"generated_text"`
	Error         string `json:"error"`
}

func (o seq2seqOutput) text() string {
	if o.SummaryText != "" {
		return o.SummaryText
	}
	return o.GeneratedText
}

// NewSeq2SeqRuntime creates a runtime client for the given base URL.
func NewSeq2SeqRuntime(config Config) *Seq2SeqRuntime {
	if config.BaseURL == "" {
		config.BaseURL = DefaultSeq2SeqURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Seq2SeqRuntime{
		Config:     config,
		httpClient: config.httpClient(),
	}
}

// Name returns the runtime name
func (r *Seq2SeqRuntime) Name() string {
	return RuntimeSeq2Seq
}

// Load records the checkpoint directory and checks that the runtime answers
// its health endpoint.
func (r *Seq2SeqRuntime) Load(ctx context.Context, artifacts *model.Artifacts) error {
	if artifacts != nil {
		r.mu.Lock()
		r.modelDir = artifacts.Dir
		r.mu.Unlock()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("error creating health request: %w", err)
	}
	r.authorize(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model runtime at %s is unreachable: %w", r.BaseURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model runtime health check returned %s", resp.Status)
	}
	return nil
}

// Generate posts the dialogue with the fixed generation settings and returns
// the generated text.
func (r *Seq2SeqRuntime) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	r.mu.RLock()
	modelDir := r.modelDir
	r.mu.RUnlock()

	body, err := json.Marshal(seq2seqRequest{
		Inputs: req.Text,
		Parameters: seq2seqParameters{
			MaxLength:     req.MaxOutputTokens,
			NumBeams:      req.NumBeams,
			EarlyStopping: req.EarlyStopping,
		},
		Tokenizer: tokenizerOptions{
			Truncation: req.Truncation,
			Padding:    req.Padding,
			MaxLength:  req.MaxInputTokens,
		},
		SkipSpecialTokens: req.SkipSpecialTokens,
		ModelDir:          modelDir,
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	r.authorize(httpReq)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("error sending request to model runtime: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model runtime returned %s: %s", resp.Status, errorSnippet(respBody))
	}

	return parseSeq2SeqResponse(respBody)
}

// Identity returns the runtime base URL.
func (r *Seq2SeqRuntime) Identity() string {
	return r.BaseURL
}

func (r *Seq2SeqRuntime) authorize(req *http.Request) {
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}
}

// parseSeq2SeqResponse accepts either a list of outputs or a single object.
func parseSeq2SeqResponse(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", ErrEmptyGeneration
	}

	var out seq2seqOutput
	if trimmed[0] == '[' {
		var outputs []seq2seqOutput
		if err := json.Unmarshal(trimmed, &outputs); err != nil {
			return "", fmt.Errorf("error unmarshaling response: %w", err)
		}
		if len(outputs) == 0 {
			return "", ErrEmptyGeneration
		}
		out = outputs[0]
	} else if err := json.Unmarshal(trimmed, &out); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	if out.Error != "" {
		return "", fmt.Errorf("model runtime error: %s", out.Error)
	}
	// An empty string is a valid generation; only a missing field is not.
	if out.SummaryText == "" && out.GeneratedText == "" && !hasTextField(trimmed) {
		return "", ErrEmptyGeneration
	}
	return out.text(), nil
}

func hasTextField(body []byte) bool {
	return bytes.Contains(body, []byte(`"summary_text"`)) || bytes.Contains(body, []byte(`"generated_text"`))
}

func errorSnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
