package langdetect

import (
	"errors"
	"strings"

	"golang.org/x/text/language"
)

// ErrInvalidTag is returned when a language code is empty or not a
// well-formed, known BCP 47 tag.
var ErrInvalidTag = errors.New("invalid language tag")

// NormalizeTag trims raw, accepts '_' as a subtag separator, validates it as
// BCP 47 and returns the canonical form in lowercase ("pt_BR" -> "pt-br").
func NormalizeTag(raw string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), "_", "-")
	if s == "" {
		return "", ErrInvalidTag
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", ErrInvalidTag
	}
	return strings.ToLower(tag.String()), nil
}

// NormalizeCode is the lenient variant used for provider-reported source
// languages: invalid input yields "" instead of an error.
func NormalizeCode(raw string) string {
	out, err := NormalizeTag(raw)
	if err != nil {
		return ""
	}
	return out
}

// SameLanguage reports whether a hint (two-letter code) identifies target
// exactly. Region or script qualified targets never match a bare hint, since
// the hint cannot tell pt-PT from pt-BR.
func SameLanguage(hint, target string) bool {
	return hint != "" && hint == target
}
