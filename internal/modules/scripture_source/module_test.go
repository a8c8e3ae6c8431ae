package scripturesource

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/ayaproj/aya/pkg/aya"
)

func writeCorpus(t *testing.T) string {
	t.Helper()
	data := `[
		{"number": 1, "name": "The Opening", "verses": [
			{"number": 1, "text": "In the name of God", "words": [
				{"text": "name", "root": "smw"},
				{"text": "God", "root": "alh"}
			]},
			{"number": 2, "text": "Praise be to God", "subtitle": "Praise"}
		], "footnotes": [{"verse": 2, "text": "A note about praise"}]},
		{"number": 2, "name": "The Cow", "verses": [
			{"number": 1, "text": "Alif Lam Mim"},
			{"number": 2, "text": "This is the book"},
			{"number": 3, "text": "Who believe in the unseen"}
		]}
	]`
	path := filepath.Join(t.TempDir(), "corpus.json")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	return path
}

func newTestModule(t *testing.T) *Module {
	t.Helper()
	mod, err := NewModule(zap.NewNop(), nil, Config{
		NodeID:     "aya:source:scripture",
		CorpusPath: writeCorpus(t),
		ReciterURL: "http://r",
	})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	return mod
}

func lookupReply(t *testing.T, mod *Module, body aya.ScriptureLookupBody) aya.ScriptureLookupReply {
	t.Helper()
	payload, _ := json.Marshal(body)
	reply := mod.dispatch(aya.CommandEnvelope{ID: "c1", Type: "scripture.lookup", Body: payload})
	if !reply.OK {
		t.Fatalf("lookup failed: %+v", reply.Err)
	}
	var out aya.ScriptureLookupReply
	if err := json.Unmarshal(reply.Body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestLookupVerse(t *testing.T) {
	mod := newTestModule(t)
	out := lookupReply(t, mod, aya.ScriptureLookupBody{Chapter: 1, VerseStart: 2})
	if out.Type != aya.LookupVerse || len(out.Verses) != 1 || out.Verses[0].Text != "Praise be to God" {
		t.Fatalf("unexpected verse lookup: %+v", out)
	}
}

func TestLookupRange(t *testing.T) {
	mod := newTestModule(t)
	out := lookupReply(t, mod, aya.ScriptureLookupBody{Chapter: 2, VerseStart: 1, VerseEnd: 3})
	if out.Type != aya.LookupVerses || len(out.Verses) != 3 {
		t.Fatalf("unexpected range lookup: %+v", out)
	}
}

func TestLookupChapterWithAudio(t *testing.T) {
	mod := newTestModule(t)
	out := lookupReply(t, mod, aya.ScriptureLookupBody{Chapter: 1, Audio: true})
	if out.Type != aya.LookupChapter || out.ChapterName != "The Opening" {
		t.Fatalf("unexpected chapter lookup: %+v", out)
	}
	if out.Verses[0].AudioURL != "http://r/001001.mp3" {
		t.Fatalf("unexpected audio url: %q", out.Verses[0].AudioURL)
	}
}

func TestLookupNotFoundIsResult(t *testing.T) {
	mod := newTestModule(t)
	out := lookupReply(t, mod, aya.ScriptureLookupBody{Chapter: 99})
	if out.Type != aya.LookupNotFound {
		t.Fatalf("expected not_found, got %+v", out)
	}
	out = lookupReply(t, mod, aya.ScriptureLookupBody{Chapter: 2, VerseStart: 1, VerseEnd: 9})
	if out.Type != aya.LookupNotFound {
		t.Fatalf("expected not_found for partial range, got %+v", out)
	}
	out = lookupReply(t, mod, aya.ScriptureLookupBody{Chapter: 2, VerseStart: 3, VerseEnd: 1})
	if out.Type != aya.LookupNotFound {
		t.Fatalf("expected not_found for descending range, got %+v", out)
	}
}

func TestSearchTagsSubtypes(t *testing.T) {
	mod := newTestModule(t)
	payload, _ := json.Marshal(aya.SearchBody{Query: "praise"})
	reply := mod.dispatch(aya.CommandEnvelope{ID: "s1", Type: "scripture.search", Body: payload})
	var out aya.ScriptureSearchReply
	if err := json.Unmarshal(reply.Body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	subtypes := map[string]int{}
	for _, hit := range out.Hits {
		subtypes[hit.Subtype]++
	}
	if subtypes[aya.SubtypeText] != 1 || subtypes[aya.SubtypeSubtitle] != 1 || subtypes[aya.SubtypeFootnote] != 1 {
		t.Fatalf("unexpected subtype spread: %v", subtypes)
	}
}

func TestWordByWord(t *testing.T) {
	mod := newTestModule(t)
	payload, _ := json.Marshal(aya.WordByWordBody{Query: "god"})
	reply := mod.dispatch(aya.CommandEnvelope{ID: "w1", Type: "scripture.wordByWord", Body: payload})
	var out aya.WordByWordReply
	if err := json.Unmarshal(reply.Body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Groups) != 1 || out.Groups[0].Root != "alh" || out.Total != 1 {
		t.Fatalf("unexpected word groups: %+v", out)
	}
}

func TestChapters(t *testing.T) {
	mod := newTestModule(t)
	payload, _ := json.Marshal(aya.EmptyBody{})
	reply := mod.dispatch(aya.CommandEnvelope{ID: "ch1", Type: "scripture.chapters", Body: payload})
	var out aya.ChaptersReply
	if err := json.Unmarshal(reply.Body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Chapters) != 2 || out.Chapters[0].Name != "The Opening" || out.Chapters[1].Verses != 3 {
		t.Fatalf("unexpected chapters: %+v", out.Chapters)
	}
}

func TestDispatchUnsupported(t *testing.T) {
	mod := newTestModule(t)
	payload, _ := json.Marshal(aya.EmptyBody{})
	reply := mod.dispatch(aya.CommandEnvelope{ID: "x1", Type: "scripture.nope", Body: payload})
	if reply.OK || reply.Err == nil || reply.Err.Code != aya.CodeInvalid {
		t.Fatalf("expected INVALID, got %+v", reply)
	}
}
