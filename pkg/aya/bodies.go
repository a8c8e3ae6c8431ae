package aya

// Loop modes carried in player state and commands.
const (
	LoopOff   = "off"
	LoopQueue = "queue"
	LoopOne   = "one"
)

// Play context scopes for queue construction.
const (
	ScopeAll       = "all"
	ScopeCategory  = "category"
	ScopeFavorites = "favorites"
	ScopeExplicit  = "explicit"
	ScopeChapter   = "chapter"
)

// PlayContext declares the scope a queue is built from when playback starts.
type PlayContext struct {
	Scope    string   `json:"scope"`
	Category string   `json:"category,omitempty"`
	Chapter  int      `json:"chapter,omitempty"`
	Verse    int      `json:"verse,omitempty"`
	ItemIDs  []string `json:"itemIds,omitempty"`
}

// PlayItemBody is the payload for player.playItem.
type PlayItemBody struct {
	ItemID  string       `json:"itemId"`
	Context *PlayContext `json:"context,omitempty"`
}

// SeekBody is the payload for player.seek. Fraction is in [0,1].
type SeekBody struct {
	Fraction float64 `json:"fraction"`
}

// SetVolumeBody is the payload for player.setVolume.
type SetVolumeBody struct {
	Volume float64 `json:"volume"`
}

// SetLoopBody is the payload for player.setLoop.
type SetLoopBody struct {
	Mode string `json:"mode"`
}

// FavoriteBody toggles membership of an item key in the favorites set.
type FavoriteBody struct {
	ItemKey string `json:"itemKey"`
}

// EmptyBody is used by commands that carry no parameters.
type EmptyBody struct{}

// QueueGetBody fetches queue entries.
type QueueGetBody struct {
	From  int64 `json:"from"`
	Count int64 `json:"count"`
}

// QueueGetReply is the reply body for queue.get.
type QueueGetReply struct {
	Index   int64       `json:"index"`
	Length  int64       `json:"length"`
	Entries []QueueItem `json:"entries"`
}

// QueueItem is an entry returned by queue.get.
type QueueItem struct {
	ItemID string `json:"itemId"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
}

// LoopReply reports the loop mode after player.cycleLoop.
type LoopReply struct {
	Mode string `json:"mode"`
}

// FavoriteReply reports the favorites set after player.favorite.
type FavoriteReply struct {
	ItemKey  string `json:"itemKey"`
	Favorite bool   `json:"favorite"`
	Total    int64  `json:"total"`
}

// ScriptureLookupBody is the payload for scripture.lookup. VerseEnd covers
// ranges; a zero VerseStart looks up the whole chapter.
type ScriptureLookupBody struct {
	Chapter    int  `json:"chapter"`
	VerseStart int  `json:"verseStart,omitempty"`
	VerseEnd   int  `json:"verseEnd,omitempty"`
	Audio      bool `json:"audio,omitempty"`
}

// Scripture lookup result types.
const (
	LookupVerse    = "verse"
	LookupVerses   = "multiple_verses"
	LookupChapter  = "chapter"
	LookupNotFound = "not_found"
)

// ScriptureLookupReply is the reply body for scripture.lookup.
type ScriptureLookupReply struct {
	Type        string           `json:"type"`
	Chapter     int              `json:"chapter"`
	ChapterName string           `json:"chapterName,omitempty"`
	Verses      []ScriptureVerse `json:"verses"`
}

// ScriptureVerse is a single verse payload.
type ScriptureVerse struct {
	Chapter  int    `json:"chapter"`
	Verse    int    `json:"verse"`
	Text     string `json:"text"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// SearchBody is the shared payload for free-text source queries.
type SearchBody struct {
	Query     string `json:"query"`
	Highlight bool   `json:"highlight,omitempty"`
	Limit     int64  `json:"limit,omitempty"`
}

// Scripture hit subtypes tag which field matched a free-text search.
const (
	SubtypeText     = "text"
	SubtypeSubtitle = "subtitle"
	SubtypeFootnote = "footnote"
	SubtypeChapter  = "chapter"
	SubtypeWord     = "word"
)

// ScriptureHit is a tagged scripture search result.
type ScriptureHit struct {
	Subtype string `json:"subtype"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse,omitempty"`
	Text    string `json:"text"`
}

// ScriptureSearchReply is the reply body for scripture.search.
type ScriptureSearchReply struct {
	Hits []ScriptureHit `json:"hits"`
}

// WordByWordBody is the payload for scripture.wordByWord.
type WordByWordBody struct {
	Query string `json:"query"`
	Limit int64  `json:"limit,omitempty"`
}

// WordGroup groups word-by-word occurrences under a shared root key.
type WordGroup struct {
	Root        string           `json:"root"`
	Word        string           `json:"word"`
	Count       int64            `json:"count"`
	Occurrences []ScriptureVerse `json:"occurrences,omitempty"`
}

// WordByWordReply is the reply body for scripture.wordByWord. Capped is set
// when the occurrence payload was truncated at the server-side limit.
type WordByWordReply struct {
	Groups []WordGroup `json:"groups"`
	Total  int64       `json:"total"`
	Capped bool        `json:"capped,omitempty"`
}

// ChaptersReply lists chapter numbers, names, and verse counts.
type ChaptersReply struct {
	Chapters []ChapterInfo `json:"chapters"`
}

// ChapterInfo summarizes one chapter.
type ChapterInfo struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Verses int    `json:"verses"`
}

// MediaHit is a media transcript search result tagged by category.
type MediaHit struct {
	ItemID   string `json:"itemId"`
	Title    string `json:"title"`
	Category string `json:"category"`
	URL      string `json:"url,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}

// MediaSearchReply is the reply body for media.search.
type MediaSearchReply struct {
	Hits []MediaHit `json:"hits"`
}

// NewsletterHit is a newsletter search result.
type NewsletterHit struct {
	IssueID   string `json:"issueId"`
	Title     string `json:"title"`
	Link      string `json:"link,omitempty"`
	Published int64  `json:"published,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
}

// NewsletterSearchReply is the reply body for newsletter.search.
type NewsletterSearchReply struct {
	Hits []NewsletterHit `json:"hits"`
}

// NewsletterListBody is the payload for newsletter.list.
type NewsletterListBody struct {
	Limit int64 `json:"limit,omitempty"`
}

// NewsletterListReply lists recent issues.
type NewsletterListReply struct {
	Issues []NewsletterHit `json:"issues"`
}

// TracksListBody is the payload for tracks.list.
type TracksListBody struct {
	Category string `json:"category,omitempty"`
}

// Track describes a music catalog entry.
type Track struct {
	ItemID   string `json:"itemId"`
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	Category string `json:"category,omitempty"`
	URL      string `json:"url"`
}

// TracksListReply is the reply body for tracks.list.
type TracksListReply struct {
	Tracks []Track `json:"tracks"`
	Total  int64   `json:"total"`
}

// TrackResolveBody is the payload for tracks.resolve.
type TrackResolveBody struct {
	ItemID string `json:"itemId"`
}

// TrackResolveReply is the reply body for tracks.resolve.
type TrackResolveReply struct {
	Track Track `json:"track"`
}
