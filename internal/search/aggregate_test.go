package search

import (
	"context"
	"errors"
	"testing"

	"github.com/ayaproj/aya/internal/prefs"
	"github.com/ayaproj/aya/pkg/aya"
)

func testSources(mediaErr error) Sources {
	return Sources{
		Scripture: func(ctx context.Context, query string) ([]aya.ScriptureHit, error) {
			return []aya.ScriptureHit{
				{Subtype: aya.SubtypeText, Chapter: 2, Verse: 255},
				{Subtype: aya.SubtypeText, Chapter: 3, Verse: 8},
				{Subtype: aya.SubtypeFootnote, Chapter: 2, Verse: 255},
			}, nil
		},
		Media: func(ctx context.Context, query string) ([]aya.MediaHit, error) {
			if mediaErr != nil {
				return nil, mediaErr
			}
			return []aya.MediaHit{
				{ItemID: "m1", Category: "lectures"},
				{ItemID: "m2", Category: "recitations"},
				{ItemID: "m3", Category: "lectures"},
			}, nil
		},
		Newsletters: func(ctx context.Context, query string) ([]aya.NewsletterHit, error) {
			return []aya.NewsletterHit{{IssueID: "n1", Title: "Issue 1"}}, nil
		},
	}
}

func TestAggregateMergesAllSources(t *testing.T) {
	set := Aggregate(context.Background(), "mercy", testSources(nil))

	if len(set.Scripture.Hits) != 3 || len(set.Media.Hits) != 3 || len(set.Newsletters.Hits) != 1 {
		t.Fatalf("unexpected panel sizes %d/%d/%d",
			len(set.Scripture.Hits), len(set.Media.Hits), len(set.Newsletters.Hits))
	}
	if set.SubtypeCounts[aya.SubtypeText] != 2 || set.SubtypeCounts[aya.SubtypeFootnote] != 1 {
		t.Fatalf("unexpected subtype counts %v", set.SubtypeCounts)
	}
	if set.CategoryCounts["lectures"] != 2 || set.CategoryCounts["recitations"] != 1 {
		t.Fatalf("unexpected category counts %v", set.CategoryCounts)
	}
}

func TestAggregateIsolatesSourceFailure(t *testing.T) {
	boom := errors.New("media index offline")
	set := Aggregate(context.Background(), "mercy", testSources(boom))

	if !set.Media.Failed() || !errors.Is(set.Media.Err, boom) {
		t.Fatalf("expected media panel error, got %v", set.Media.Err)
	}
	if set.Scripture.Failed() || set.Newsletters.Failed() {
		t.Fatalf("sibling panels must not fail")
	}
	if len(set.Scripture.Hits) == 0 || len(set.Newsletters.Hits) == 0 {
		t.Fatalf("sibling panels must still carry results")
	}
}

func TestAggregateSkipsNilSources(t *testing.T) {
	set := Aggregate(context.Background(), "mercy", Sources{
		Newsletters: func(ctx context.Context, query string) ([]aya.NewsletterHit, error) {
			return nil, nil
		},
	})
	if set.Scripture.Failed() || len(set.Scripture.Hits) != 0 {
		t.Fatalf("nil source must leave an empty healthy panel")
	}
}

func TestFiltersHideWithoutChangingCounts(t *testing.T) {
	store, err := prefs.Open(t.TempDir(), "ui")
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	filters := NewFilters(store)

	set := Aggregate(context.Background(), "mercy", testSources(nil))

	if visible, err := filters.ToggleSubtype(aya.SubtypeFootnote); err != nil || visible {
		t.Fatalf("expected footnotes hidden, got %v %v", visible, err)
	}
	if visible, err := filters.ToggleCategory("lectures"); err != nil || visible {
		t.Fatalf("expected lectures hidden, got %v %v", visible, err)
	}

	filtered := filters.Apply(set)
	if len(filtered.Scripture.Hits) != 2 {
		t.Fatalf("expected footnote hits hidden, got %d", len(filtered.Scripture.Hits))
	}
	for _, hit := range filtered.Scripture.Hits {
		if hit.Subtype == aya.SubtypeFootnote {
			t.Fatalf("footnote hit leaked through filter")
		}
	}
	if len(filtered.Media.Hits) != 1 || filtered.Media.Hits[0].Category != "recitations" {
		t.Fatalf("expected only recitations visible, got %v", filtered.Media.Hits)
	}

	// Counts always describe the unfiltered set.
	if filtered.SubtypeCounts[aya.SubtypeFootnote] != 1 || filtered.CategoryCounts["lectures"] != 2 {
		t.Fatalf("filtering must not recompute counts: %v %v",
			filtered.SubtypeCounts, filtered.CategoryCounts)
	}
	if len(set.Scripture.Hits) != 3 {
		t.Fatalf("apply must not mutate the source set")
	}
}

func TestFiltersPersistAcrossReload(t *testing.T) {
	root := t.TempDir()
	store, err := prefs.Open(root, "ui")
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	if _, err := NewFilters(store).ToggleSubtype(aya.SubtypeWord); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	reloaded, err := prefs.Open(root, "ui")
	if err != nil {
		t.Fatalf("prefs reopen: %v", err)
	}
	if NewFilters(reloaded).SubtypeVisible(aya.SubtypeWord) {
		t.Fatalf("hidden subtype must survive a reload")
	}
	if !NewFilters(reloaded).SubtypeVisible(aya.SubtypeText) {
		t.Fatalf("untouched subtype must default to visible")
	}
}
