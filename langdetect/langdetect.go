// Package langdetect guesses the language of page text.
package langdetect

import (
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/vinayprograms/pagechat/errors"
)

// Unknown is the tag used when detection has no answer.
const Unknown = "unknown"

// Detector identifies the language of a text.
type Detector interface {
	// Detect returns an ISO 639-1 code (ISO 639-3 when the language has no
	// two-letter code) or a LANG_DETECT_FAILED error.
	Detect(text string) (string, error)
}

// Func adapts a function to Detector.
type Func func(text string) (string, error)

// Detect calls f.
func (f Func) Detect(text string) (string, error) { return f(text) }

// Whatlang detects languages with trigram statistics.
type Whatlang struct {
	// RequireReliable rejects guesses whatlanggo marks unreliable.
	RequireReliable bool

	// SampleChars limits how much text is examined. Zero means all of it.
	SampleChars int
}

// New returns the default detector.
func New() *Whatlang {
	return &Whatlang{SampleChars: 4000}
}

// Detect implements Detector.
func (w *Whatlang) Detect(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New(errors.ErrCodeLangDetectFailed, "no text to detect")
	}
	if w.SampleChars > 0 {
		if r := []rune(text); len(r) > w.SampleChars {
			text = string(r[:w.SampleChars])
		}
	}

	info := whatlanggo.Detect(text)
	if w.RequireReliable && !info.IsReliable() {
		return "", errors.New(errors.ErrCodeLangDetectFailed, "language guess unreliable",
			errors.WithMetadata("guess", info.Lang.String()))
	}

	code := info.Lang.Iso6391()
	if code == "" {
		code = info.Lang.Iso6393()
	}
	if code == "" {
		return "", errors.New(errors.ErrCodeLangDetectFailed, "language not recognized")
	}
	return code, nil
}

// OrUnknown runs d and maps any failure to Unknown.
func OrUnknown(d Detector, text string) string {
	if d == nil {
		return Unknown
	}
	code, err := d.Detect(text)
	if err != nil || code == "" {
		return Unknown
	}
	return code
}
