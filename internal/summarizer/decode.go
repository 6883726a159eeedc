package summarizer

import "strings"

// Decode removes special tokens the runtime left in the generated text.
// Runs of spaces within a line collapse to one and the result is trimmed;
// line breaks the model produced are kept. tokens must be ordered longest
// first.
func Decode(generated string, tokens []string) string {
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		generated = strings.ReplaceAll(generated, tok, "")
	}

	lines := strings.Split(generated, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
