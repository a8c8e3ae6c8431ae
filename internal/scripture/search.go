package scripture

import (
	"sort"
	"strings"

	"github.com/ayaproj/aya/pkg/aya"
)

// Search scans verse text, subtitles, footnotes, and chapter names for a
// case-insensitive substring match and returns hits tagged by subtype.
// Word-by-word matches are deliberately excluded; see WordSearch.
func (c *Corpus) Search(query string) []aya.ScriptureHit {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}

	hits := make([]aya.ScriptureHit, 0)
	for _, number := range c.numbers {
		ch := c.chapters[number]
		if strings.Contains(strings.ToLower(ch.Name), needle) {
			hits = append(hits, aya.ScriptureHit{
				Subtype: aya.SubtypeChapter,
				Chapter: ch.Number,
				Text:    ch.Name,
			})
		}
		for _, v := range ch.Verses {
			if strings.Contains(strings.ToLower(v.Text), needle) {
				hits = append(hits, aya.ScriptureHit{
					Subtype: aya.SubtypeText,
					Chapter: ch.Number,
					Verse:   v.Number,
					Text:    v.Text,
				})
			}
			if v.Subtitle != "" && strings.Contains(strings.ToLower(v.Subtitle), needle) {
				hits = append(hits, aya.ScriptureHit{
					Subtype: aya.SubtypeSubtitle,
					Chapter: ch.Number,
					Verse:   v.Number,
					Text:    v.Subtitle,
				})
			}
		}
		for _, fn := range ch.Footnotes {
			if strings.Contains(strings.ToLower(fn.Text), needle) {
				hits = append(hits, aya.ScriptureHit{
					Subtype: aya.SubtypeFootnote,
					Chapter: ch.Number,
					Verse:   fn.Verse,
					Text:    fn.Text,
				})
			}
		}
	}
	return hits
}

// WordSearch matches individual word tokens and groups occurrences by the
// shared root key for deduplicated display. Occurrence payloads are capped
// at limit (total counts are exact); Capped reports truncation.
func (c *Corpus) WordSearch(query string, limit int64) aya.WordByWordReply {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return aya.WordByWordReply{}
	}
	if limit <= 0 {
		limit = DefaultWordLimit
	}

	groups := map[string]*aya.WordGroup{}
	var total int64
	var kept int64
	capped := false

	for _, number := range c.numbers {
		ch := c.chapters[number]
		for _, v := range ch.Verses {
			for _, w := range v.Words {
				if !strings.Contains(strings.ToLower(w.Text), needle) {
					continue
				}
				total++
				root := w.Root
				if root == "" {
					root = strings.ToLower(w.Text)
				}
				group, ok := groups[root]
				if !ok {
					group = &aya.WordGroup{Root: root, Word: w.Text}
					groups[root] = group
				}
				group.Count++
				if kept >= limit {
					capped = true
					continue
				}
				group.Occurrences = append(group.Occurrences, aya.ScriptureVerse{
					Chapter: ch.Number,
					Verse:   v.Number,
					Text:    v.Text,
				})
				kept++
			}
		}
	}

	out := make([]aya.WordGroup, 0, len(groups))
	for _, group := range groups {
		out = append(out, *group)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Root < out[j].Root
	})
	return aya.WordByWordReply{Groups: out, Total: total, Capped: capped}
}

// DefaultWordLimit caps the word-by-word occurrence payload. Above the cap
// the UI shows "3000+" instead of an exact list.
const DefaultWordLimit = 3000
