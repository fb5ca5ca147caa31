// Package prompt assembles the single text prompt sent to the model.
package prompt

import (
	"strings"
)

// StyleDirective asks the model for plain text with numbered keypoints.
const StyleDirective = "DONT USE SPECIAL-CASE CHARACTERS LIKE ASTERISKS AND UNDERSCORES FOR TEXT-STYLING! " +
	"USE PLAIN CLEAN TEXT ONLY! USE NUMBERS (1.,2.,3.,...) AND ROMAN NUMBERS (IF NEEDED) FOR KEYPOINTS AND NUMBERING!"

// NoTranslation is the language value that disables translation.
const NoTranslation = "none"

// HasTranslation reports whether target asks for a translated answer. Blank
// and "none" in any case do not.
func HasTranslation(target string) bool {
	t := strings.TrimSpace(target)
	return t != "" && !strings.EqualFold(t, NoTranslation)
}

// Compose builds the prompt from the user's question, the page text, the
// detected page language and the requested translation target. The page text
// is included whole.
func Compose(userPrompt, pageText, detectedLanguage, translationTarget string) string {
	var b strings.Builder
	b.Grow(len(userPrompt) + len(StyleDirective) + len(pageText) + 128)

	b.WriteString(userPrompt)
	b.WriteString("\n\n")
	b.WriteString(StyleDirective)
	b.WriteString("\n\n")

	if HasTranslation(translationTarget) {
		b.WriteString("\nAdditionally, translate the final response into ")
		b.WriteString(strings.TrimSpace(translationTarget))
		b.WriteString(".\n")
	}

	b.WriteString("\n---\nWebsite Content (detected language: ")
	b.WriteString(detectedLanguage)
	b.WriteString("):\n")
	b.WriteString(pageText)
	return b.String()
}
