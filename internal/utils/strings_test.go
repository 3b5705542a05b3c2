package utils

import "testing"

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("FirstNonEmpty() = %q; want \"\"", got)
	}
	if got := FirstNonEmpty(" ", "\t", "\n"); got != "" {
		t.Fatalf("FirstNonEmpty(empties) = %q; want \"\"", got)
	}
	if got := FirstNonEmpty("   ", "  idem-1  ", "req-2"); got != "idem-1" {
		t.Fatalf("FirstNonEmpty(...) = %q; want %q", got, "idem-1")
	}
}
