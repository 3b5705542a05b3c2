// Package textutil holds the pure text helpers used before a translation is
// requested: whitespace normalization and content hashing.
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize collapses every run of Unicode whitespace (spaces, tabs, newlines,
// NBSP and friends) into a single ASCII space and trims both ends.
//
//	Normalize("  Great \n\n service\t!  ") == "Great service !"
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.Join(strings.Fields(raw), " ")
}

// Hash returns the lowercase hex sha256 digest of text. Callers pass the
// normalized form so that whitespace-only edits hash identically.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
