// Package textclean normalizes raw dialogue text before it is handed to the
// model runtime.
package textclean

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	crlfPattern = regexp.MustCompile(`\r\n`)

	// whitespacePattern matches the same characters Python's str.isspace does,
	// which is wider than Go's ASCII-only \s class.
	whitespacePattern = regexp.MustCompile(`[\t\n\v\f\r \x{1c}-\x{1f}\x{85}\p{Z}]+`)

	tagPattern = regexp.MustCompile(`<.*?>`)
)

// Clean normalizes dialogue text. It replaces CRLF pairs with a space,
// collapses whitespace runs, strips angle-bracket tags, trims the result and
// lowercases it.
//
// Clean is idempotent: Clean(Clean(s)) == Clean(s) for every s.
func Clean(text string) string {
	text = crlfPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = tagPattern.ReplaceAllString(text, "")

	// Removing a tag can leave two spaces next to each other.
	text = whitespacePattern.ReplaceAllString(text, " ")

	text = strings.TrimFunc(text, isSpace)
	return strings.ToLower(text)
}

// IsBlank reports whether text contains nothing but whitespace.
func IsBlank(text string) bool {
	return strings.TrimFunc(text, isSpace) == ""
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
