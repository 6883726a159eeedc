package providers

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/localrivet/dialoguesum/internal/model"
)

// OpenAIRuntime sends generation to an OpenAI-compatible server that hosts
// the same checkpoint, such as vLLM. Beam search settings travel as extra
// body fields understood by those servers.
type OpenAIRuntime struct {
	Config
	client openai.Client
}

// NewOpenAIRuntime creates a new OpenAI-compatible runtime client.
func NewOpenAIRuntime(config Config) *OpenAIRuntime {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(config.httpClient()),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAIRuntime{
		Config: config,
		client: openai.NewClient(opts...),
	}
}

// Name returns the runtime name
func (r *OpenAIRuntime) Name() string {
	return RuntimeOpenAI
}

// Identity returns the base URL and served model id.
func (r *OpenAIRuntime) Identity() string {
	return r.BaseURL + "#" + r.ModelID
}

// Load checks that the configured model is served.
func (r *OpenAIRuntime) Load(ctx context.Context, artifacts *model.Artifacts) error {
	if r.ModelID == "" {
		return fmt.Errorf("openai runtime requires a model id")
	}
	if _, err := r.client.Models.Get(ctx, r.ModelID); err != nil {
		return fmt.Errorf("model %s is not available on %s: %w", r.ModelID, r.BaseURL, err)
	}
	return nil
}

// Generate runs one completion with the fixed generation settings.
func (r *OpenAIRuntime) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.ModelID),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Text),
		},
		MaxTokens:   openai.Int(int64(req.MaxOutputTokens)),
		Temperature: openai.Float(0),
	}

	completion, err := r.client.Chat.Completions.New(ctx, params,
		option.WithJSONSet("use_beam_search", req.NumBeams > 1),
		option.WithJSONSet("best_of", req.NumBeams),
		option.WithJSONSet("early_stopping", req.EarlyStopping),
		option.WithJSONSet("truncate_prompt_tokens", req.MaxInputTokens),
		option.WithJSONSet("skip_special_tokens", req.SkipSpecialTokens),
	)
	if err != nil {
		return "", fmt.Errorf("error calling OpenAI-compatible runtime: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", ErrEmptyGeneration
	}
	return completion.Choices[0].Message.Content, nil
}
