package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as a base-10 int, ignoring surrounding whitespace.
// Empty or unparsable input yields def.
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// LimitParam reads a page-size query value. Missing or malformed values
// give def; anything else is clamped to [1, max].
func LimitParam(raw string, def, max int) int {
	return Clamp(AtoiDefault(raw, def), 1, max)
}
