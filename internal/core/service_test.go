package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/ayaproj/aya/pkg/aya"
)

type stubClock struct{}

func (stubClock) NowUnix() int64 { return 100 }

type stubIDGen struct{}

func (stubIDGen) NewID() string { return "id-1" }

type stubBroker struct {
	presence   []aya.Presence
	replies    map[string]aya.ReplyEnvelope
	replyTopic string
	state      aya.PlayerState

	mu    sync.Mutex
	nodes map[string]string
	cmds  []aya.CommandEnvelope
}

func (s *stubBroker) ReplyTopic() string { return s.replyTopic }

func (s *stubBroker) PublishCommand(ctx context.Context, nodeID string, cmd aya.CommandEnvelope) (aya.ReplyEnvelope, error) {
	s.mu.Lock()
	if s.nodes == nil {
		s.nodes = map[string]string{}
	}
	s.nodes[cmd.Type] = nodeID
	s.cmds = append(s.cmds, cmd)
	s.mu.Unlock()

	if reply, ok := s.replies[cmd.Type]; ok {
		return reply, nil
	}
	return aya.ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, TS: 101}, nil
}

func (s *stubBroker) ListPresence(ctx context.Context) ([]aya.Presence, error) {
	return s.presence, nil
}

func (s *stubBroker) GetPlayerState(ctx context.Context, nodeID string) (aya.PlayerState, error) {
	return s.state, nil
}

func (s *stubBroker) WatchPlayer(ctx context.Context, nodeID string) (<-chan aya.PlayerState, <-chan aya.Event, <-chan error) {
	stateCh := make(chan aya.PlayerState)
	eventCh := make(chan aya.Event)
	errCh := make(chan error)
	close(stateCh)
	close(eventCh)
	close(errCh)
	return stateCh, eventCh, errCh
}

func (s *stubBroker) nodeFor(cmdType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes[cmdType]
}

func (s *stubBroker) lastCmd(cmdType string) (aya.CommandEnvelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.cmds) - 1; i >= 0; i-- {
		if s.cmds[i].Type == cmdType {
			return s.cmds[i], true
		}
	}
	return aya.CommandEnvelope{}, false
}

func allNodes() []aya.Presence {
	return []aya.Presence{
		{NodeID: "aya:player:music", Kind: "player", Role: "music", Name: "Music Player", TS: 100},
		{NodeID: "aya:source:scripture", Kind: "source", Role: "scripture", Name: "Scripture", TS: 100},
		{NodeID: "aya:source:media", Kind: "source", Role: "media", Name: "Media", TS: 100},
		{NodeID: "aya:library:tracks", Kind: "library", Name: "Tracks", TS: 100},
		{NodeID: "aya:source:newsletter", Kind: "source", Role: "newsletter", Name: "Newsletter", TS: 100},
	}
}

func newService(broker *stubBroker) Service {
	return Service{
		Broker:   broker,
		Resolver: Resolver{Presence: broker, Config: Config{}},
		Clock:    stubClock{},
		IDGen:    stubIDGen{},
		Config:   Config{Identity: "tester"},
	}
}

func mustReply(t *testing.T, body any) aya.ReplyEnvelope {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	return aya.ReplyEnvelope{ID: "id-1", Type: "ack", OK: true, TS: 101, Body: payload}
}

func TestQueryStructuralResolvesAgainstScripture(t *testing.T) {
	broker := &stubBroker{presence: allNodes(), replyTopic: "aya/v1/reply/test"}
	broker.replies = map[string]aya.ReplyEnvelope{
		"scripture.lookup": mustReply(t, aya.ScriptureLookupReply{
			Type:    aya.LookupVerse,
			Chapter: 2,
			Verses:  []aya.ScriptureVerse{{Chapter: 2, Verse: 255, Text: "..."}},
		}),
	}
	service := newService(broker)

	result, err := service.Query(context.Background(), "2:255", false)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Lookup == nil || result.Results != nil {
		t.Fatalf("reference input must resolve structurally, not search")
	}
	if broker.nodeFor("scripture.lookup") != "aya:source:scripture" {
		t.Fatalf("lookup must target the scripture source")
	}
	if _, searched := broker.lastCmd("scripture.search"); searched {
		t.Fatalf("structural query must not trigger free-text search")
	}
}

func TestQueryFreeTextFansOutToAllSources(t *testing.T) {
	broker := &stubBroker{presence: allNodes(), replyTopic: "aya/v1/reply/test"}
	broker.replies = map[string]aya.ReplyEnvelope{
		"scripture.search": mustReply(t, aya.ScriptureSearchReply{
			Hits: []aya.ScriptureHit{{Subtype: aya.SubtypeText, Chapter: 2, Verse: 255}},
		}),
		"media.search": mustReply(t, aya.MediaSearchReply{
			Hits: []aya.MediaHit{{ItemID: "m1", Category: "lectures"}},
		}),
		"newsletter.search": mustReply(t, aya.NewsletterSearchReply{
			Hits: []aya.NewsletterHit{{IssueID: "n1"}},
		}),
	}
	service := newService(broker)

	result, err := service.Query(context.Background(), "mercy", false)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Results == nil || result.Lookup != nil {
		t.Fatalf("free text must aggregate, not lookup")
	}
	set := result.Results
	if len(set.Scripture.Hits) != 1 || len(set.Media.Hits) != 1 || len(set.Newsletters.Hits) != 1 {
		t.Fatalf("expected hits from every source")
	}
	if set.SubtypeCounts[aya.SubtypeText] != 1 || set.CategoryCounts["lectures"] != 1 {
		t.Fatalf("expected pre-filter counts, got %v %v", set.SubtypeCounts, set.CategoryCounts)
	}
	if broker.nodeFor("media.search") != "aya:source:media" {
		t.Fatalf("media search must target the media source, got %s", broker.nodeFor("media.search"))
	}
}

func TestQueryMediaFailureIsolated(t *testing.T) {
	broker := &stubBroker{presence: allNodes(), replyTopic: "aya/v1/reply/test"}
	broker.replies = map[string]aya.ReplyEnvelope{
		"scripture.search": mustReply(t, aya.ScriptureSearchReply{
			Hits: []aya.ScriptureHit{{Subtype: aya.SubtypeText, Chapter: 3, Verse: 8}},
		}),
		"media.search": {
			ID: "id-1", Type: "ack", OK: false, TS: 101,
			Err: &aya.ReplyError{Code: aya.CodeUnavailable, Message: "index offline"},
		},
		"newsletter.search": mustReply(t, aya.NewsletterSearchReply{
			Hits: []aya.NewsletterHit{{IssueID: "n1"}},
		}),
	}
	service := newService(broker)

	result, err := service.Query(context.Background(), "mercy", false)
	if err != nil {
		t.Fatalf("sibling failure must not abort the query: %v", err)
	}
	set := result.Results
	if !set.Media.Failed() {
		t.Fatalf("expected media panel error")
	}
	if ExitCode(set.Media.Err) != ExitUnavailable {
		t.Fatalf("expected unavailable code on the media panel")
	}
	if len(set.Scripture.Hits) != 1 || len(set.Newsletters.Hits) != 1 {
		t.Fatalf("healthy panels must keep their hits")
	}
}

func TestLookupNotFoundIsTyped(t *testing.T) {
	broker := &stubBroker{presence: allNodes(), replyTopic: "aya/v1/reply/test"}
	broker.replies = map[string]aya.ReplyEnvelope{
		"scripture.lookup": mustReply(t, aya.ScriptureLookupReply{Type: aya.LookupNotFound}),
	}
	service := newService(broker)

	_, err := service.Query(context.Background(), "999:1", false)
	if ExitCode(err) != ExitNotFound {
		t.Fatalf("missing reference must exit not-found, got %v", err)
	}
}

func TestLookupVerseZeroNotFound(t *testing.T) {
	broker := &stubBroker{presence: allNodes(), replyTopic: "aya/v1/reply/test"}
	service := newService(broker)

	_, err := service.Query(context.Background(), "2:0", false)
	if ExitCode(err) != ExitNotFound {
		t.Fatalf("verse 0 must exit not-found, got %v", err)
	}
	if _, sent := broker.lastCmd("scripture.lookup"); sent {
		t.Fatalf("verse 0 must not reach the scripture source")
	}
}

func TestPlayItemCarriesContext(t *testing.T) {
	broker := &stubBroker{presence: allNodes(), replyTopic: "aya/v1/reply/test"}
	service := newService(broker)

	playCtx := &aya.PlayContext{Scope: aya.ScopeFavorites}
	if err := service.PlayItem(context.Background(), "music", "track:1", playCtx); err != nil {
		t.Fatalf("PlayItem: %v", err)
	}
	cmd, ok := broker.lastCmd("player.playItem")
	if !ok {
		t.Fatalf("expected player.playItem command")
	}
	var body aya.PlayItemBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ItemID != "track:1" || body.Context == nil || body.Context.Scope != aya.ScopeFavorites {
		t.Fatalf("unexpected body %+v", body)
	}
	if cmd.From != "tester" || cmd.ReplyTo != "aya/v1/reply/test" {
		t.Fatalf("command must carry identity and reply topic")
	}
}

func TestFavoriteDecodesReply(t *testing.T) {
	broker := &stubBroker{presence: allNodes(), replyTopic: "aya/v1/reply/test"}
	broker.replies = map[string]aya.ReplyEnvelope{
		"player.favorite": mustReply(t, aya.FavoriteReply{ItemKey: "http://x/1.mp3", Favorite: true, Total: 3}),
	}
	service := newService(broker)

	result, err := service.Favorite(context.Background(), "music", "http://x/1.mp3")
	if err != nil {
		t.Fatalf("Favorite: %v", err)
	}
	if !result.Favorite || result.Total != 3 {
		t.Fatalf("unexpected favorite result %+v", result)
	}
}

func TestResolveVolumeDeltaClamp(t *testing.T) {
	broker := &stubBroker{
		presence: allNodes(),
		state:    aya.PlayerState{Playback: &aya.PlaybackState{Volume: 0.9}},
	}
	service := newService(broker)

	vol, err := service.resolveVolume(context.Background(), "aya:player:music", "+20")
	if err != nil {
		t.Fatalf("resolveVolume: %v", err)
	}
	if vol != 1 {
		t.Fatalf("expected clamp to 1.0, got %f", vol)
	}
}

func TestParseFraction(t *testing.T) {
	tests := []struct {
		arg  string
		want float64
	}{
		{"50%", 0.5},
		{"0.25", 0.25},
		{"75", 0.75},
		{"150%", 1},
	}
	for _, test := range tests {
		got, err := parseFraction(test.arg)
		if err != nil {
			t.Fatalf("parseFraction(%q): %v", test.arg, err)
		}
		if got != test.want {
			t.Fatalf("parseFraction(%q) = %f, want %f", test.arg, got, test.want)
		}
	}
	if _, err := parseFraction("deep"); ExitCode(err) != ExitUsage {
		t.Fatalf("expected usage error for junk input")
	}
}
