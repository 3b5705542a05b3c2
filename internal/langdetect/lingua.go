// Package langdetect provides the local, best-effort language hint used to
// skip provider calls for text that is already in the requested language,
// plus helpers for canonicalising language tags.
//
// The hint is never authoritative. It only needs to be right often enough to
// save provider calls; a wrong guess is cached for one window like any other
// result.
package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// minLetters is the shortest sample (in letters) worth classifying.
const minLetters = 6

// Hinter guesses the ISO 639-1 code of a text. An empty result means
// "no opinion".
type Hinter interface {
	Detect(text string) string
}

// Lingua is a Hinter backed by lingua-go. The detector is built lazily and
// shared by all goroutines.
type Lingua struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

// NewLingua returns a lazily initialised lingua-go hinter.
func NewLingua() *Lingua { return &Lingua{} }

// Detect returns a lowercase two-letter code, or "" when the sample is too
// short or the detector is unsure.
func (l *Lingua) Detect(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}
	letters := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < minLetters {
		return ""
	}

	lang, ok := l.get().DetectLanguageOf(sample)
	if !ok {
		return ""
	}
	code := strings.ToLower(lang.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

func (l *Lingua) get() lingua.LanguageDetector {
	l.once.Do(func() {
		l.detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithLowAccuracyMode().
			Build()
	})
	return l.detector
}

// Noop never has an opinion. It is used when the hint is disabled.
type Noop struct{}

// Detect implements Hinter.
func (Noop) Detect(string) string { return "" }
