package core

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ayaproj/aya/internal/intent"
	"github.com/ayaproj/aya/internal/ports"
	"github.com/ayaproj/aya/internal/search"
	"github.com/ayaproj/aya/pkg/aya"
)

// Service orchestrates aya CLI use cases.
type Service struct {
	Broker   ports.Broker
	Resolver Resolver
	Clock    ports.Clock
	IDGen    ports.IDGen
	Config   Config
}

// ListNodes returns presence entries with optional filters.
func (s Service) ListNodes(ctx context.Context, kind string, onlineOnly bool) (NodesResult, error) {
	nodes, err := s.Broker.ListPresence(ctx)
	if err != nil {
		return NodesResult{}, WrapError(ExitRuntime, "list nodes", err)
	}
	if kind != "" {
		filtered := nodes[:0]
		for _, node := range nodes {
			if node.Kind == kind {
				filtered = append(filtered, node)
			}
		}
		nodes = filtered
	}
	// Online filtering relies on presence; with retained presence this is best-effort.
	if onlineOnly {
		filtered := nodes[:0]
		for _, node := range nodes {
			if node.TS > 0 {
				filtered = append(filtered, node)
			}
		}
		nodes = filtered
	}
	return NodesResult{Nodes: nodes}, nil
}

// Status returns player state.
func (s Service) Status(ctx context.Context, selector string) (StatusResult, error) {
	player, err := s.Resolver.ResolvePlayer(ctx, selector, "")
	if err != nil {
		return StatusResult{}, err
	}
	state, err := s.Broker.GetPlayerState(ctx, player.NodeID)
	if err != nil {
		return StatusResult{}, WrapError(ExitRuntime, "get player state", err)
	}
	return StatusResult{Player: player, State: state}, nil
}

// WatchStatus streams state and events for a player.
func (s Service) WatchStatus(ctx context.Context, selector string) (<-chan aya.PlayerState, <-chan aya.Event, <-chan error, error) {
	player, err := s.Resolver.ResolvePlayer(ctx, selector, "")
	if err != nil {
		return nil, nil, nil, err
	}
	states, events, errs := s.Broker.WatchPlayer(ctx, player.NodeID)
	return states, events, errs, nil
}

// PlayItem sends player.playItem with an optional play context.
func (s Service) PlayItem(ctx context.Context, selector string, itemID string, playCtx *aya.PlayContext) error {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return &CLIError{Code: ExitUsage, Msg: "item id required"}
	}
	return s.playerCommand(ctx, selector, "player.playItem", aya.PlayItemBody{ItemID: itemID, Context: playCtx})
}

// Toggle sends player.toggle.
func (s Service) Toggle(ctx context.Context, selector string) error {
	return s.playerCommand(ctx, selector, "player.toggle", aya.EmptyBody{})
}

// Next sends player.next.
func (s Service) Next(ctx context.Context, selector string) error {
	return s.playerCommand(ctx, selector, "player.next", aya.EmptyBody{})
}

// Prev sends player.prev.
func (s Service) Prev(ctx context.Context, selector string) error {
	return s.playerCommand(ctx, selector, "player.prev", aya.EmptyBody{})
}

// Seek sends player.seek with a stream fraction parsed from arg.
func (s Service) Seek(ctx context.Context, selector string, arg string) error {
	fraction, err := parseFraction(arg)
	if err != nil {
		return err
	}
	return s.playerCommand(ctx, selector, "player.seek", aya.SeekBody{Fraction: fraction})
}

// SetVolume sets or adjusts volume on a 0-100 user scale.
func (s Service) SetVolume(ctx context.Context, selector string, arg string) error {
	player, err := s.Resolver.ResolvePlayer(ctx, selector, "")
	if err != nil {
		return err
	}
	volume, err := s.resolveVolume(ctx, player.NodeID, arg)
	if err != nil {
		return err
	}
	cmd, err := aya.NewCommand("player.setVolume", aya.SetVolumeBody{Volume: volume})
	if err != nil {
		return WrapError(ExitRuntime, "build command", err)
	}
	return s.publishSimple(ctx, player.NodeID, s.decorateCommand(cmd))
}

// SetLoop sends player.setLoop.
func (s Service) SetLoop(ctx context.Context, selector string, mode string) error {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case aya.LoopOff, aya.LoopQueue, aya.LoopOne:
	default:
		return &CLIError{Code: ExitUsage, Msg: "loop mode must be off, queue, or one"}
	}
	return s.playerCommand(ctx, selector, "player.setLoop", aya.SetLoopBody{Mode: mode})
}

// CycleLoop sends player.cycleLoop and reports the new mode.
func (s Service) CycleLoop(ctx context.Context, selector string) (LoopResult, error) {
	player, err := s.Resolver.ResolvePlayer(ctx, selector, "")
	if err != nil {
		return LoopResult{}, err
	}
	var body aya.LoopReply
	if err := s.request(ctx, player.NodeID, "player.cycleLoop", aya.EmptyBody{}, &body); err != nil {
		return LoopResult{}, err
	}
	return LoopResult{PlayerID: player.NodeID, Mode: body.Mode}, nil
}

// Favorite toggles an item key in the player's favorites set.
func (s Service) Favorite(ctx context.Context, selector string, itemKey string) (FavoriteResult, error) {
	itemKey = strings.TrimSpace(itemKey)
	if itemKey == "" {
		return FavoriteResult{}, &CLIError{Code: ExitUsage, Msg: "item key required"}
	}
	player, err := s.Resolver.ResolvePlayer(ctx, selector, "")
	if err != nil {
		return FavoriteResult{}, err
	}
	var body aya.FavoriteReply
	if err := s.request(ctx, player.NodeID, "player.favorite", aya.FavoriteBody{ItemKey: itemKey}, &body); err != nil {
		return FavoriteResult{}, err
	}
	return FavoriteResult{PlayerID: player.NodeID, ItemKey: body.ItemKey, Favorite: body.Favorite, Total: body.Total}, nil
}

// QueueList returns a page of queue entries.
func (s Service) QueueList(ctx context.Context, selector string, from, count int64) (QueueResult, error) {
	player, err := s.Resolver.ResolvePlayer(ctx, selector, "")
	if err != nil {
		return QueueResult{}, err
	}
	var body aya.QueueGetReply
	if err := s.request(ctx, player.NodeID, "queue.get", aya.QueueGetBody{From: from, Count: count}, &body); err != nil {
		return QueueResult{}, err
	}
	return QueueResult{PlayerID: player.NodeID, Queue: body}, nil
}

// Query classifies raw input and dispatches it. Reference-shaped input
// resolves structurally against the scripture source; anything else fans
// out as free text across all sources, each failing independently.
func (s Service) Query(ctx context.Context, raw string, highlight bool) (SearchResult, error) {
	it := intent.Classify(raw)
	if it.Structural() {
		lookup, err := s.Lookup(ctx, it, false)
		if err != nil {
			return SearchResult{}, err
		}
		return SearchResult{Intent: it, Lookup: &lookup.Reply}, nil
	}
	if it.Query == "" {
		return SearchResult{}, &CLIError{Code: ExitUsage, Msg: "query required"}
	}
	set := search.Aggregate(ctx, it.Query, s.searchSources(ctx, highlight))
	return SearchResult{Intent: it, Results: set}, nil
}

// Lookup resolves a structural intent against the scripture source.
func (s Service) Lookup(ctx context.Context, it intent.Intent, audio bool) (LookupResult, error) {
	if !it.Structural() {
		return LookupResult{}, &CLIError{Code: ExitUsage, Msg: "not a scripture reference"}
	}
	// Verse numbers start at 1. "2:0" is a miss, not the whole chapter;
	// on the wire a zero verse would read as a chapter lookup.
	if it.Kind != intent.Chapter && it.VerseStart < 1 {
		return LookupResult{}, &CLIError{Code: ExitNotFound, Msg: "reference not found"}
	}
	scripture, err := s.Resolver.ResolveScripture(ctx, "")
	if err != nil {
		return LookupResult{}, err
	}

	body := aya.ScriptureLookupBody{Chapter: it.Chapter, Audio: audio}
	if it.Kind != intent.Chapter {
		body.VerseStart = it.VerseStart
		body.VerseEnd = it.VerseEnd
	}
	var reply aya.ScriptureLookupReply
	if err := s.request(ctx, scripture.NodeID, "scripture.lookup", body, &reply); err != nil {
		return LookupResult{}, err
	}
	if reply.Type == aya.LookupNotFound {
		return LookupResult{}, &CLIError{Code: ExitNotFound, Msg: "reference not found"}
	}
	return LookupResult{Intent: it, Reply: reply}, nil
}

// WordByWord runs the deferred root-grouped word search.
func (s Service) WordByWord(ctx context.Context, query string, limit int64) (WordResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return WordResult{}, &CLIError{Code: ExitUsage, Msg: "query required"}
	}
	scripture, err := s.Resolver.ResolveScripture(ctx, "")
	if err != nil {
		return WordResult{}, err
	}
	var reply aya.WordByWordReply
	if err := s.request(ctx, scripture.NodeID, "scripture.wordByWord", aya.WordByWordBody{Query: query, Limit: limit}, &reply); err != nil {
		return WordResult{}, err
	}
	return WordResult{Query: query, Reply: reply}, nil
}

// Chapters lists the chapter index from the scripture source.
func (s Service) Chapters(ctx context.Context) (ChaptersResult, error) {
	scripture, err := s.Resolver.ResolveScripture(ctx, "")
	if err != nil {
		return ChaptersResult{}, err
	}
	var reply aya.ChaptersReply
	if err := s.request(ctx, scripture.NodeID, "scripture.chapters", aya.EmptyBody{}, &reply); err != nil {
		return ChaptersResult{}, err
	}
	return ChaptersResult{Chapters: reply.Chapters}, nil
}

// TracksList lists the music catalog, optionally narrowed to a category.
func (s Service) TracksList(ctx context.Context, selector string, category string) (TracksResult, error) {
	library, err := s.Resolver.ResolveLibrary(ctx, selector)
	if err != nil {
		return TracksResult{}, err
	}
	var reply aya.TracksListReply
	if err := s.request(ctx, library.NodeID, "tracks.list", aya.TracksListBody{Category: category}, &reply); err != nil {
		return TracksResult{}, err
	}
	return TracksResult{LibraryID: library.NodeID, Reply: reply}, nil
}

// NewsletterList lists recent newsletter issues.
func (s Service) NewsletterList(ctx context.Context, limit int64) (NewsletterListResult, error) {
	newsletter, err := s.Resolver.ResolveNewsletter(ctx, "")
	if err != nil {
		return NewsletterListResult{}, err
	}
	var reply aya.NewsletterListReply
	if err := s.request(ctx, newsletter.NodeID, "newsletter.list", aya.NewsletterListBody{Limit: limit}, &reply); err != nil {
		return NewsletterListResult{}, err
	}
	return NewsletterListResult{Issues: reply.Issues}, nil
}

// searchSources maps each content source to a query function. A source
// that cannot be resolved still gets a function so its panel carries the
// resolution error instead of silently vanishing.
func (s Service) searchSources(ctx context.Context, highlight bool) search.Sources {
	sources := search.Sources{}

	if scripture, err := s.Resolver.ResolveScripture(ctx, ""); err == nil {
		sources.Scripture = func(ctx context.Context, query string) ([]aya.ScriptureHit, error) {
			var reply aya.ScriptureSearchReply
			if err := s.request(ctx, scripture.NodeID, "scripture.search", aya.SearchBody{Query: query, Highlight: highlight}, &reply); err != nil {
				return nil, err
			}
			return reply.Hits, nil
		}
	} else {
		sources.Scripture = failingSource[aya.ScriptureHit](err)
	}

	if media, err := s.Resolver.ResolveMedia(ctx, ""); err == nil {
		sources.Media = func(ctx context.Context, query string) ([]aya.MediaHit, error) {
			var reply aya.MediaSearchReply
			if err := s.request(ctx, media.NodeID, "media.search", aya.SearchBody{Query: query, Highlight: highlight}, &reply); err != nil {
				return nil, err
			}
			return reply.Hits, nil
		}
	} else {
		sources.Media = failingSource[aya.MediaHit](err)
	}

	if newsletter, err := s.Resolver.ResolveNewsletter(ctx, ""); err == nil {
		sources.Newsletters = func(ctx context.Context, query string) ([]aya.NewsletterHit, error) {
			var reply aya.NewsletterSearchReply
			if err := s.request(ctx, newsletter.NodeID, "newsletter.search", aya.SearchBody{Query: query, Highlight: highlight}, &reply); err != nil {
				return nil, err
			}
			return reply.Hits, nil
		}
	} else {
		sources.Newsletters = failingSource[aya.NewsletterHit](err)
	}

	return sources
}

func failingSource[T any](err error) func(context.Context, string) ([]T, error) {
	return func(context.Context, string) ([]T, error) { return nil, err }
}

func (s Service) playerCommand(ctx context.Context, selector string, cmdType string, body any) error {
	player, err := s.Resolver.ResolvePlayer(ctx, selector, "")
	if err != nil {
		return err
	}
	cmd, err := aya.NewCommand(cmdType, body)
	if err != nil {
		return WrapError(ExitRuntime, "build command", err)
	}
	return s.publishSimple(ctx, player.NodeID, s.decorateCommand(cmd))
}

// request publishes a command and decodes the reply body into out.
func (s Service) request(ctx context.Context, nodeID string, cmdType string, body any, out any) error {
	cmd, err := aya.NewCommand(cmdType, body)
	if err != nil {
		return WrapError(ExitRuntime, "build command", err)
	}
	reply, err := s.Broker.PublishCommand(ctx, nodeID, s.decorateCommand(cmd))
	if err != nil {
		return WrapError(ExitRuntime, "publish command", err)
	}
	if reply.Err != nil {
		return ErrorForReplyCode(reply.Err.Code, reply.Err.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(reply.Body, out); err != nil {
		return WrapError(ExitRuntime, "decode reply", err)
	}
	return nil
}

func (s Service) publishSimple(ctx context.Context, nodeID string, cmd aya.CommandEnvelope) error {
	reply, err := s.Broker.PublishCommand(ctx, nodeID, cmd)
	if err != nil {
		return WrapError(ExitRuntime, "publish command", err)
	}
	if reply.Err != nil {
		return ErrorForReplyCode(reply.Err.Code, reply.Err.Message)
	}
	return nil
}

func (s Service) decorateCommand(cmd aya.CommandEnvelope) aya.CommandEnvelope {
	cmd.ID = s.IDGen.NewID()
	cmd.TS = s.Clock.NowUnix()
	cmd.From = s.Config.Identity
	cmd.ReplyTo = s.Broker.ReplyTopic()
	return cmd
}

func (s Service) resolveVolume(ctx context.Context, playerID string, arg string) (float64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &CLIError{Code: ExitUsage, Msg: "volume argument required"}
	}

	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		delta, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return 0, &CLIError{Code: ExitUsage, Msg: "invalid volume delta"}
		}
		state, err := s.Broker.GetPlayerState(ctx, playerID)
		if err != nil {
			return 0, WrapError(ExitRuntime, "get player state", err)
		}
		if state.Playback == nil {
			return 0, &CLIError{Code: ExitRuntime, Msg: "no playback state"}
		}
		current := state.Playback.Volume * 100
		return clampUnit((current + delta) / 100), nil
	}

	value, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, &CLIError{Code: ExitUsage, Msg: "invalid volume"}
	}
	return clampUnit(value / 100), nil
}

// parseFraction accepts "50%" or a bare fraction like "0.5". Bare values
// above 1 read as percentages.
func parseFraction(arg string) (float64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &CLIError{Code: ExitUsage, Msg: "seek position required"}
	}
	if strings.HasSuffix(arg, "%") {
		value, err := strconv.ParseFloat(strings.TrimSuffix(arg, "%"), 64)
		if err != nil {
			return 0, &CLIError{Code: ExitUsage, Msg: "invalid seek position"}
		}
		return clampUnit(value / 100), nil
	}
	value, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, &CLIError{Code: ExitUsage, Msg: "invalid seek position"}
	}
	if value > 1 {
		value = value / 100
	}
	return clampUnit(value), nil
}

func clampUnit(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
