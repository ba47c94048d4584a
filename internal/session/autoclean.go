package session

import (
	"strings"
	"unicode"

	"github.com/openflow/dictation/internal/settings"
)

// Autoclean applies the configured cleanup to a raw transcript. Fast mode
// trims, collapses whitespace runs, capitalizes the first letter, and adds
// terminal punctuation when the text ends on a word.
func Autoclean(text string, mode settings.AutocleanMode) string {
	if mode == settings.AutocleanOff {
		return text
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}

	runes := []rune(text)
	runes[0] = unicode.ToUpper(runes[0])

	last := runes[len(runes)-1]
	if unicode.IsLetter(last) || unicode.IsDigit(last) {
		runes = append(runes, '.')
	}
	return string(runes)
}
