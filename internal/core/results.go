package core

import (
	"github.com/ayaproj/aya/internal/intent"
	"github.com/ayaproj/aya/internal/search"
	"github.com/ayaproj/aya/pkg/aya"
)

// NodesResult holds a list of presence records.
type NodesResult struct {
	Nodes []aya.Presence
}

// StatusResult holds player presence and state.
type StatusResult struct {
	Player aya.Presence
	State  aya.PlayerState
}

// QueueResult holds a queue listing.
type QueueResult struct {
	PlayerID string
	Queue    aya.QueueGetReply
}

// LoopResult reports the loop mode after a cycle.
type LoopResult struct {
	PlayerID string
	Mode     string
}

// FavoriteResult reports a favorites toggle outcome.
type FavoriteResult struct {
	PlayerID string
	ItemKey  string
	Favorite bool
	Total    int64
}

// LookupResult holds a structural scripture lookup.
type LookupResult struct {
	Intent intent.Intent
	Reply  aya.ScriptureLookupReply
}

// SearchResult is the outcome of a raw query. A structural query resolves
// to Lookup and leaves Results nil; free text fills Results instead.
// Hidden subtypes are a display filter only; the counts inside Results are
// computed on the unfiltered set.
type SearchResult struct {
	Intent  intent.Intent
	Lookup  *aya.ScriptureLookupReply
	Results *search.ResultSet
	Hidden  map[string]bool
}

// WordResult holds a word-by-word search reply.
type WordResult struct {
	Query string
	Reply aya.WordByWordReply
}

// ChaptersResult lists the chapter index.
type ChaptersResult struct {
	Chapters []aya.ChapterInfo
}

// TracksResult holds a music catalog listing.
type TracksResult struct {
	LibraryID string
	Reply     aya.TracksListReply
}

// NewsletterListResult lists recent newsletter issues.
type NewsletterListResult struct {
	Issues []aya.NewsletterHit
}

// RawResult holds arbitrary JSON data for output.
type RawResult struct {
	Data any
}
