package utils

import "strings"

// FirstNonEmpty returns the first value that is not blank after trimming.
// The returned value is trimmed. If all values are blank, it returns "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}
