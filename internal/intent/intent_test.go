package intent

import "testing"

func TestClassifyVerse(t *testing.T) {
	got := Classify("2:255")
	if got.Kind != Verse || got.Chapter != 2 || got.VerseStart != 255 {
		t.Fatalf("unexpected intent: %+v", got)
	}
}

func TestClassifyVerseRange(t *testing.T) {
	got := Classify("2:255-257")
	if got.Kind != VerseRange || got.Chapter != 2 || got.VerseStart != 255 || got.VerseEnd != 257 {
		t.Fatalf("unexpected intent: %+v", got)
	}
}

func TestClassifyChapter(t *testing.T) {
	got := Classify("114")
	if got.Kind != Chapter || got.Chapter != 114 {
		t.Fatalf("unexpected intent: %+v", got)
	}
}

func TestClassifyFreeText(t *testing.T) {
	got := Classify("mercy")
	if got.Kind != FreeText || got.Query != "mercy" {
		t.Fatalf("unexpected intent: %+v", got)
	}
}

func TestClassifyTrimsWhitespace(t *testing.T) {
	got := Classify("  36  ")
	if got.Kind != Chapter || got.Chapter != 36 {
		t.Fatalf("unexpected intent: %+v", got)
	}
}

func TestClassifyStructuralBeforeSearch(t *testing.T) {
	// Reference-looking strings must never fall through to free text.
	for _, raw := range []string{"1:1", "114:6", "2:1-5"} {
		if got := Classify(raw); !got.Structural() {
			t.Fatalf("expected structural intent for %q, got %+v", raw, got)
		}
	}
	// Malformed references do fall through.
	for _, raw := range []string{"2:", ":5", "2:255-", "3:4-5-6", "2.255"} {
		if got := Classify(raw); got.Structural() {
			t.Fatalf("expected free text for %q, got %+v", raw, got)
		}
	}
}

func TestLocation(t *testing.T) {
	if got := Classify("2:255-257").Location(); got != "2:255-257" {
		t.Fatalf("unexpected location: %s", got)
	}
	if got := Classify("114").Location(); got != "114" {
		t.Fatalf("unexpected location: %s", got)
	}
}
