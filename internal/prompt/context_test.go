package prompt

import (
	"strings"
	"testing"
)

func TestBuildContextJoinsWithSeparator(t *testing.T) {
	got := BuildContext([]string{"primeiro trecho", "segundo trecho"}, 1000)
	want := "primeiro trecho" + ContextSeparator + "segundo trecho"
	if got != want {
		t.Fatalf("BuildContext() = %q, want %q", got, want)
	}
}

func TestBuildContextEmpty(t *testing.T) {
	if got := BuildContext(nil, 1000); got != "" {
		t.Fatalf("BuildContext(nil) = %q, want empty", got)
	}
	if got := BuildContext([]string{}, 1000); got != "" {
		t.Fatalf("BuildContext(empty) = %q, want empty", got)
	}
}

func TestBuildContextWithinBudgetUnchanged(t *testing.T) {
	excerpts := []string{"abc", "def"}
	got := BuildContext(excerpts, 100)
	if strings.Contains(got, TruncationMarker) {
		t.Fatalf("context under budget must not carry the truncation marker: %q", got)
	}
}

func TestBuildContextTruncationRespectsBudget(t *testing.T) {
	excerpts := []string{strings.Repeat("a", 500), strings.Repeat("b", 500)}

	for _, maxChars := range []int{50, 120, 999} {
		got := BuildContext(excerpts, maxChars)
		if len(got) > maxChars {
			t.Errorf("maxChars=%d: context length %d exceeds budget", maxChars, len(got))
		}
		if !strings.HasSuffix(got, TruncationMarker) {
			t.Errorf("maxChars=%d: truncated context missing marker suffix: %q", maxChars, got)
		}
	}
}

func TestBuildContextBudgetSmallerThanMarker(t *testing.T) {
	excerpts := []string{strings.Repeat("a", 500)}

	// The budget holds even when the marker itself does not fit.
	for _, maxChars := range []int{1, 5, 10, 17, len(TruncationMarker)} {
		got := BuildContext(excerpts, maxChars)
		if len(got) > maxChars {
			t.Errorf("maxChars=%d: context length %d exceeds budget", maxChars, len(got))
		}
	}
}

func TestBuildContextTruncationIsRuneSafe(t *testing.T) {
	// Multi-byte content must never be cut mid-rune.
	excerpts := []string{strings.Repeat("ção", 200)}
	got := BuildContext(excerpts, 101)
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatalf("expected truncation marker, got %q", got)
	}
	body := strings.TrimSuffix(got, TruncationMarker)
	for i, r := range body {
		if r == '�' {
			t.Fatalf("invalid UTF-8 at byte %d in truncated context", i)
		}
	}
}
