// Package summarizer runs the dialogue summarization pipeline: normalize,
// generate through a model runtime, decode.
package summarizer

import "context"

// Summarizer defines the interface for summarizing dialogues.
type Summarizer interface {
	// Summarize normalizes dialogue and returns the model's summary.
	Summarize(ctx context.Context, dialogue string) (string, error)

	// Initialize binds the model runtime. It is called once at startup.
	Initialize(ctx context.Context) error
}
