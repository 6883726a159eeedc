// Package providers contains the model runtimes that run generation for the
// pretrained summarization checkpoint.
package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/localrivet/dialoguesum/internal/model"
)

const (
	// Runtime names
	RuntimeSeq2Seq    = "seq2seq"
	RuntimeOpenAI     = "openai"
	RuntimeExtractive = "extractive"

	// Generation settings. These are fixed for the checkpoint and are not
	// configurable.
	MaxInputTokens    = 512
	PaddingStrategy   = "max_length"
	Truncation        = true
	NumBeams          = 4
	EarlyStopping     = true
	MaxOutputTokens   = 150
	SkipSpecialTokens = true
)

// GenerationRequest is one summarization call against a runtime.
type GenerationRequest struct {
	// Text is the normalized dialogue.
	Text string

	MaxInputTokens    int
	Padding           string
	Truncation        bool
	NumBeams          int
	EarlyStopping     bool
	MaxOutputTokens   int
	SkipSpecialTokens bool
}

// NewGenerationRequest builds a request for text with the fixed generation
// settings.
func NewGenerationRequest(text string) GenerationRequest {
	return GenerationRequest{
		Text:              text,
		MaxInputTokens:    MaxInputTokens,
		Padding:           PaddingStrategy,
		Truncation:        Truncation,
		NumBeams:          NumBeams,
		EarlyStopping:     EarlyStopping,
		MaxOutputTokens:   MaxOutputTokens,
		SkipSpecialTokens: SkipSpecialTokens,
	}
}

// Runtime is an external runtime serving the pretrained checkpoint.
type Runtime interface {
	// Generate runs beam search for req and returns the decoded text.
	Generate(ctx context.Context, req GenerationRequest) (string, error)

	// Load binds the runtime to a checkpoint and checks it is reachable.
	Load(ctx context.Context, artifacts *model.Artifacts) error

	// Name returns the runtime name
	Name() string
}

// Identified is implemented by runtimes whose output depends on settings
// beyond the checkpoint, such as the server they call or the served model id.
// The summary cache is scoped by Identity.
type Identified interface {
	Identity() string
}

// Config holds common configuration for runtimes
type Config struct {
	BaseURL string
	APIKey  string
	ModelID string

	// Timeout bounds each HTTP call. Zero means no limit beyond the
	// request context.
	Timeout time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}
