package providers

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/localrivet/dialoguesum/internal/model"
)

// charsPerToken approximates SentencePiece token length for English text.
const charsPerToken = 4

// ExtractiveRuntime needs no model server. It returns the leading sentences
// of the dialogue that fit in the output budget, which is enough to run the
// front ends offline.
type ExtractiveRuntime struct {
	maxChars int
}

// NewExtractiveRuntime creates an ExtractiveRuntime. A non-positive maxChars
// uses the output token budget.
func NewExtractiveRuntime(maxChars int) *ExtractiveRuntime {
	if maxChars <= 0 {
		maxChars = MaxOutputTokens * charsPerToken
	}
	return &ExtractiveRuntime{maxChars: maxChars}
}

// Name returns the runtime name
func (r *ExtractiveRuntime) Name() string {
	return RuntimeExtractive
}

// Identity returns the output budget, which determines the result.
func (r *ExtractiveRuntime) Identity() string {
	return fmt.Sprintf("max_chars=%d", r.maxChars)
}

// Load does nothing; there is no checkpoint to bind.
func (r *ExtractiveRuntime) Load(context.Context, *model.Artifacts) error {
	return nil
}

// Generate truncates the text at a sentence boundary, or failing that at a
// word boundary followed by an ellipsis.
func (r *ExtractiveRuntime) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	limit := r.maxChars
	if req.MaxOutputTokens > 0 && req.MaxOutputTokens*charsPerToken < limit {
		limit = req.MaxOutputTokens * charsPerToken
	}
	return truncateAtBoundary(req.Text, limit), nil
}

func truncateAtBoundary(text string, limit int) string {
	if len(text) <= limit {
		return text
	}

	const ellipsis = "..."
	truncated := text[:runeStart(text, limit)]

	boundary := max(strings.LastIndex(truncated, "."),
		strings.LastIndex(truncated, "?"),
		strings.LastIndex(truncated, "!"))
	if boundary > 0 {
		return text[:boundary+1]
	}

	truncated = text[:runeStart(text, max(limit-len(ellipsis), 0))]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		return text[:lastSpace] + ellipsis
	}
	return truncated + ellipsis
}

// runeStart moves i back to the first byte of the rune containing it, so
// text[:i] never ends in a partial UTF-8 sequence.
func runeStart(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
