package util

import (
	"net/http"
	"strings"
	"unicode"

	"rainbow-buyers/pkg/apierror"
)

const maxDisplayNameRunes = 80

// SanitizeDisplayName strips control and invisible characters, collapses runs
// of whitespace and truncates the result by runes.
func SanitizeDisplayName(name string) (string, error) {
	builder := strings.Builder{}
	builder.Grow(len(name))

	for _, char := range name {
		if unicode.IsSpace(char) {
			builder.WriteRune(' ')
			continue
		}
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}
		builder.WriteRune(char)
	}

	cleaned := strings.Join(strings.Fields(builder.String()), " ")
	if cleaned == "" {
		return "", apierror.New("INVALID_NAME", "name cannot be empty", "name", http.StatusBadRequest)
	}

	runes := []rune(cleaned)
	if len(runes) > maxDisplayNameRunes {
		cleaned = strings.TrimSpace(string(runes[:maxDisplayNameRunes]))
	}

	return cleaned, nil
}

// NormalizeEmail is the canonical form used for lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
