package mediasource

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/ayaproj/aya/pkg/aya"
)

func writeIndex(t *testing.T) string {
	t.Helper()
	entries := []transcriptEntry{
		{
			ItemID:     "media:1",
			Title:      "Patience in Hardship",
			Category:   "lectures",
			URL:        "http://m/1.mp4",
			Transcript: "Today we will speak about patience and what it asks of us in difficult times.",
		},
		{
			ItemID:     "media:2",
			Title:      "Gratitude",
			Category:   "reminders",
			URL:        "http://m/2.mp4",
			Transcript: "Gratitude is the companion of patience.",
		},
		{
			ItemID:     "media:3",
			Title:      "History of the Early Community",
			Category:   "lectures",
			URL:        "http://m/3.mp4",
			Transcript: "A chronological overview.",
		},
	}
	data, _ := json.Marshal(entries)
	path := filepath.Join(t.TempDir(), "index.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
	return path
}

func newTestModule(t *testing.T) *Module {
	t.Helper()
	mod, err := NewModule(zap.NewNop(), nil, Config{
		NodeID:    "aya:source:media",
		IndexPath: writeIndex(t),
	})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	return mod
}

func searchHits(t *testing.T, mod *Module, query string) []aya.MediaHit {
	t.Helper()
	payload, _ := json.Marshal(aya.SearchBody{Query: query})
	reply := mod.dispatch(aya.CommandEnvelope{ID: "s1", Type: "media.search", Body: payload})
	if !reply.OK {
		t.Fatalf("search failed: %+v", reply.Err)
	}
	var out aya.MediaSearchReply
	if err := json.Unmarshal(reply.Body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out.Hits
}

func TestSearchTitleBeforeTranscript(t *testing.T) {
	mod := newTestModule(t)
	hits := searchHits(t, mod, "patience")
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %+v", hits)
	}
	if hits[0].ItemID != "media:1" {
		t.Fatalf("expected title match first, got %+v", hits[0])
	}
	if hits[1].ItemID != "media:2" || hits[1].Snippet == "" {
		t.Fatalf("expected transcript hit with snippet, got %+v", hits[1])
	}
}

func TestSearchSnippetContext(t *testing.T) {
	mod := newTestModule(t)
	hits := searchHits(t, mod, "difficult times")
	if len(hits) != 1 || hits[0].ItemID != "media:1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if hits[0].Snippet == "" || hits[0].Snippet[0:3] != "..." {
		t.Fatalf("expected elided snippet, got %q", hits[0].Snippet)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	mod := newTestModule(t)
	if hits := searchHits(t, mod, "  "); len(hits) != 0 {
		t.Fatalf("expected no hits, got %+v", hits)
	}
}

func TestSearchCategoryTag(t *testing.T) {
	mod := newTestModule(t)
	hits := searchHits(t, mod, "history")
	if len(hits) != 1 || hits[0].Category != "lectures" {
		t.Fatalf("expected lectures category, got %+v", hits)
	}
}

func TestDispatchUnsupported(t *testing.T) {
	mod := newTestModule(t)
	payload, _ := json.Marshal(aya.EmptyBody{})
	reply := mod.dispatch(aya.CommandEnvelope{ID: "x1", Type: "media.nope", Body: payload})
	if reply.OK || reply.Err == nil || reply.Err.Code != aya.CodeInvalid {
		t.Fatalf("expected INVALID, got %+v", reply)
	}
}
