package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind discriminates the parsed query intents.
type Kind int

const (
	// FreeText is the fallback intent for anything non-structural.
	FreeText Kind = iota
	// Verse targets a single chapter:verse location.
	Verse
	// VerseRange targets chapter:start-end.
	VerseRange
	// Chapter targets a whole chapter by number.
	Chapter
)

// Intent is a classified query. Numeric fields are only meaningful for the
// structural kinds; Query carries the raw text for FreeText.
type Intent struct {
	Kind       Kind
	Chapter    int
	VerseStart int
	VerseEnd   int
	Query      string
}

var (
	versePattern = regexp.MustCompile(`^(\d+):(\d+)$`)
	rangePattern = regexp.MustCompile(`^(\d+):(\d+)-(\d+)$`)
	chapterOnly  = regexp.MustCompile(`^\d+$`)
)

// Classify parses raw input into an intent. Reference-looking input resolves
// to structural navigation before free-text search: "2:255" is a verse, not
// a query, and a bare number is a chapter.
func Classify(raw string) Intent {
	trimmed := strings.TrimSpace(raw)

	if m := versePattern.FindStringSubmatch(trimmed); m != nil {
		return Intent{
			Kind:       Verse,
			Chapter:    mustAtoi(m[1]),
			VerseStart: mustAtoi(m[2]),
			VerseEnd:   mustAtoi(m[2]),
		}
	}
	if m := rangePattern.FindStringSubmatch(trimmed); m != nil {
		return Intent{
			Kind:       VerseRange,
			Chapter:    mustAtoi(m[1]),
			VerseStart: mustAtoi(m[2]),
			VerseEnd:   mustAtoi(m[3]),
		}
	}
	if chapterOnly.MatchString(trimmed) {
		return Intent{Kind: Chapter, Chapter: mustAtoi(trimmed)}
	}
	return Intent{Kind: FreeText, Query: trimmed}
}

// Structural reports whether the intent navigates to a scripture location.
func (i Intent) Structural() bool {
	return i.Kind != FreeText
}

// Location renders the canonical chapter:verse reference.
func (i Intent) Location() string {
	switch i.Kind {
	case Verse:
		return fmt.Sprintf("%d:%d", i.Chapter, i.VerseStart)
	case VerseRange:
		return fmt.Sprintf("%d:%d-%d", i.Chapter, i.VerseStart, i.VerseEnd)
	case Chapter:
		return strconv.Itoa(i.Chapter)
	default:
		return i.Query
	}
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
