package scripture

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Word is a single token of a verse with its lexical root.
type Word struct {
	Text string `json:"text"`
	Root string `json:"root,omitempty"`
}

// Verse is one verse with optional section subtitle and word tokens.
type Verse struct {
	Number   int    `json:"number"`
	Text     string `json:"text"`
	Subtitle string `json:"subtitle,omitempty"`
	Words    []Word `json:"words,omitempty"`
}

// Footnote annotates a verse within a chapter.
type Footnote struct {
	Verse int    `json:"verse"`
	Text  string `json:"text"`
}

// Chapter holds a chapter's verses and footnotes.
type Chapter struct {
	Number    int        `json:"number"`
	Name      string     `json:"name"`
	Verses    []Verse    `json:"verses"`
	Footnotes []Footnote `json:"footnotes,omitempty"`
}

// Corpus is an immutable, in-memory scripture text indexed by chapter.
type Corpus struct {
	chapters map[int]Chapter
	numbers  []int
}

// ChapterCount is the canonical number of chapters in a complete corpus.
const ChapterCount = 114

// New builds a corpus from chapters. Duplicate chapter numbers are rejected.
func New(chapters []Chapter) (*Corpus, error) {
	byNumber := make(map[int]Chapter, len(chapters))
	numbers := make([]int, 0, len(chapters))
	for _, ch := range chapters {
		if ch.Number <= 0 {
			return nil, fmt.Errorf("invalid chapter number %d", ch.Number)
		}
		if _, ok := byNumber[ch.Number]; ok {
			return nil, fmt.Errorf("duplicate chapter %d", ch.Number)
		}
		byNumber[ch.Number] = ch
		numbers = append(numbers, ch.Number)
	}
	sort.Ints(numbers)
	return &Corpus{chapters: byNumber, numbers: numbers}, nil
}

// Load reads a corpus from a JSON file of chapters.
func Load(path string) (*Corpus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chapters []Chapter
	if err := json.Unmarshal(raw, &chapters); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	if len(chapters) == 0 {
		return nil, errors.New("corpus is empty")
	}
	return New(chapters)
}

// Chapters lists chapter numbers in ascending order.
func (c *Corpus) Chapters() []int {
	out := make([]int, len(c.numbers))
	copy(out, c.numbers)
	return out
}

// Chapter returns a chapter by number.
func (c *Corpus) Chapter(number int) (Chapter, bool) {
	ch, ok := c.chapters[number]
	return ch, ok
}

// Verse returns a single verse.
func (c *Corpus) Verse(chapter int, verse int) (Verse, bool) {
	ch, ok := c.chapters[chapter]
	if !ok {
		return Verse{}, false
	}
	for _, v := range ch.Verses {
		if v.Number == verse {
			return v, true
		}
	}
	return Verse{}, false
}

// Range returns verses start..end inclusive. Missing endpoints fail the
// whole range; a valid reference either resolves fully or not at all.
func (c *Corpus) Range(chapter int, start int, end int) ([]Verse, bool) {
	if end < start {
		return nil, false
	}
	ch, ok := c.chapters[chapter]
	if !ok {
		return nil, false
	}
	out := make([]Verse, 0, end-start+1)
	for _, v := range ch.Verses {
		if v.Number >= start && v.Number <= end {
			out = append(out, v)
		}
	}
	if len(out) != end-start+1 {
		return nil, false
	}
	return out, true
}

// VerseKey renders the canonical chapter:verse identity of a verse.
func VerseKey(chapter int, verse int) string {
	return fmt.Sprintf("%d:%d", chapter, verse)
}

// AudioURL builds the recitation URL for a verse from a reciter base URL.
// The URL is a pure function of (base, chapter, verse): changing reciter
// always yields a different URL.
func AudioURL(reciterBase string, chapter int, verse int) string {
	return fmt.Sprintf("%s/%03d%03d.mp3", reciterBase, chapter, verse)
}
