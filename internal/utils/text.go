package utils

import (
	"strings"
	"unicode"
)

const (
	LangDarja  = "darja"
	LangFrench = "french"
	LangArabic = "arabic"
)

// NormalizeQuery lowercases and trims a search query so equivalent queries
// produce the same cache key.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// EstimateTokens approximates the token cost of a text block at 4 characters
// per token, rounding up. Deliberately cheap, not exact.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

var frenchMarkers = []string{
	" le ", " la ", " les ", " des ", " est ", " je ", " pour ",
	"quel", "bonjour", "merci", "comment",
}

// DetectLanguage tags a message with a best-effort language label.
// Arabic script wins outright; Latin text is french only when it carries a
// common French marker, otherwise it is assumed to be transliterated Darja.
func DetectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Arabic, r) {
			return LangArabic
		}
	}

	padded := " " + strings.ToLower(text) + " "
	for _, m := range frenchMarkers {
		if strings.Contains(padded, m) {
			return LangFrench
		}
	}
	return LangDarja
}
