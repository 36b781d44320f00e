package pdf

import "testing"

func TestNormalizePageTextCollapsesWhitespace(t *testing.T) {
	in := "Neonatal   sepsis\r\n\r\n  treatment\t guide  \n"
	want := "Neonatal sepsis\ntreatment guide"
	if got := normalizePageText(in); got != want {
		t.Fatalf("normalizePageText() = %q, want %q", got, want)
	}
}

func TestNormalizePageTextEmpty(t *testing.T) {
	if got := normalizePageText("  \n\t \r\n"); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
