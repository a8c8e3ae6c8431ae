// Package search merges free-text results from the scripture, media and
// newsletter sources into one filterable result set. Each source loads and
// fails independently; an error in one panel never aborts the siblings.
package search

import (
	"context"
	"sync"

	"github.com/ayaproj/aya/internal/prefs"
	"github.com/ayaproj/aya/pkg/aya"
)

// Panel holds one source's slice of the aggregated result set. Err is set
// when that source failed; the hits of the other panels remain valid.
type Panel[T any] struct {
	Hits []T
	Err  error
}

// Failed reports whether this panel's query errored.
func (p Panel[T]) Failed() bool { return p.Err != nil }

// ResultSet is the merged outcome of a free-text query across all sources.
// SubtypeCounts and CategoryCounts are computed before any display filter
// is applied, so toggling a filter never requires a refetch.
type ResultSet struct {
	Query       string
	Scripture   Panel[aya.ScriptureHit]
	Media       Panel[aya.MediaHit]
	Newsletters Panel[aya.NewsletterHit]

	SubtypeCounts  map[string]int
	CategoryCounts map[string]int
}

// Sources are the per-source query functions the aggregator fans out to.
// A nil function skips that source entirely and leaves its panel empty.
type Sources struct {
	Scripture   func(ctx context.Context, query string) ([]aya.ScriptureHit, error)
	Media       func(ctx context.Context, query string) ([]aya.MediaHit, error)
	Newsletters func(ctx context.Context, query string) ([]aya.NewsletterHit, error)
}

// Aggregate runs the configured sources in parallel and merges their
// results. It always returns a non-nil set; per-source failures are
// recorded on the corresponding panel.
func Aggregate(ctx context.Context, query string, sources Sources) *ResultSet {
	set := &ResultSet{
		Query:          query,
		SubtypeCounts:  map[string]int{},
		CategoryCounts: map[string]int{},
	}

	var wg sync.WaitGroup
	if sources.Scripture != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set.Scripture.Hits, set.Scripture.Err = sources.Scripture(ctx, query)
		}()
	}
	if sources.Media != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set.Media.Hits, set.Media.Err = sources.Media(ctx, query)
		}()
	}
	if sources.Newsletters != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set.Newsletters.Hits, set.Newsletters.Err = sources.Newsletters(ctx, query)
		}()
	}
	wg.Wait()

	for _, hit := range set.Scripture.Hits {
		set.SubtypeCounts[hit.Subtype]++
	}
	for _, hit := range set.Media.Hits {
		set.CategoryCounts[hit.Category]++
	}
	return set
}

// Filter keys within the prefs scope. Both sets record the HIDDEN members
// so that an unknown subtype or a fresh category defaults to visible.
const (
	prefHiddenSubtypes   = "hiddenSubtypes"
	prefHiddenCategories = "hiddenCategories"
)

// Filters is the persisted display-filter state. It only controls what is
// shown; the aggregated counts always cover the unfiltered set.
type Filters struct {
	store *prefs.Store
}

// NewFilters wraps store as filter state. A nil store means everything is
// visible and toggles report an error.
func NewFilters(store *prefs.Store) *Filters {
	return &Filters{store: store}
}

// SubtypeVisible reports whether scripture hits of subtype are displayed.
func (f *Filters) SubtypeVisible(subtype string) bool {
	if f.store == nil {
		return true
	}
	return !f.store.Contains(prefHiddenSubtypes, subtype)
}

// CategoryVisible reports whether media hits of category are displayed.
func (f *Filters) CategoryVisible(category string) bool {
	if f.store == nil {
		return true
	}
	return !f.store.Contains(prefHiddenCategories, category)
}

// ToggleSubtype flips visibility of a scripture hit subtype and reports
// the new visibility.
func (f *Filters) ToggleSubtype(subtype string) (bool, error) {
	if f.store == nil {
		return true, errNoFilterStore
	}
	hidden, err := f.store.Toggle(prefHiddenSubtypes, subtype)
	return !hidden, err
}

// ToggleCategory flips visibility of a media category and reports the new
// visibility.
func (f *Filters) ToggleCategory(category string) (bool, error) {
	if f.store == nil {
		return true, errNoFilterStore
	}
	hidden, err := f.store.Toggle(prefHiddenCategories, category)
	return !hidden, err
}

// Apply returns a copy of set with hidden subtypes and categories removed
// from the panels. Counts and panel errors are carried over untouched.
func (f *Filters) Apply(set *ResultSet) *ResultSet {
	out := *set

	out.Scripture.Hits = nil
	for _, hit := range set.Scripture.Hits {
		if f.SubtypeVisible(hit.Subtype) {
			out.Scripture.Hits = append(out.Scripture.Hits, hit)
		}
	}
	out.Media.Hits = nil
	for _, hit := range set.Media.Hits {
		if f.CategoryVisible(hit.Category) {
			out.Media.Hits = append(out.Media.Hits, hit)
		}
	}
	return &out
}

var errNoFilterStore = filterError("no preference store configured")

type filterError string

func (e filterError) Error() string { return string(e) }
