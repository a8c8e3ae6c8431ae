package mediasource

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"

	"github.com/ayaproj/aya/internal/adapters/mqttserver"
	"github.com/ayaproj/aya/pkg/aya"
)

// Config configures the media transcript source module.
type Config struct {
	NodeID    string
	TopicBase string
	Name      string
	IndexPath string
}

// transcriptEntry is one indexed media item with its spoken transcript.
type transcriptEntry struct {
	ItemID     string `json:"itemId"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	URL        string `json:"url,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Module serves free-text search over media transcripts.
type Module struct {
	log     *zap.Logger
	client  *mqttserver.Client
	config  Config
	entries []transcriptEntry
}

// NewModule creates a media source module from a transcript index file.
func NewModule(log *zap.Logger, client *mqttserver.Client, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(cfg.IndexPath) == "" {
		return nil, errors.New("index_path required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = aya.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Media"
	}

	entries, err := loadIndex(cfg.IndexPath)
	if err != nil {
		return nil, err
	}
	return &Module{log: log, client: client, config: cfg, entries: entries}, nil
}

func loadIndex(path string) ([]transcriptEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []transcriptEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Run starts the module.
func (m *Module) Run(ctx context.Context) error {
	if err := m.publishPresence(); err != nil {
		return err
	}
	if err := m.client.SubscribeCommands(m.config.TopicBase, m.config.NodeID, m.handleCommand); err != nil {
		return err
	}
	defer m.client.Unsubscribe(aya.TopicCommands(m.config.TopicBase, m.config.NodeID))

	<-ctx.Done()
	return nil
}

func (m *Module) publishPresence() error {
	presence := aya.Presence{
		NodeID: m.config.NodeID,
		Kind:   aya.KindSource,
		Name:   m.config.Name,
		Role:   "media",
		Caps:   map[string]any{"search": true},
		TS:     time.Now().Unix(),
	}
	return m.client.PublishJSON(aya.TopicPresence(m.config.TopicBase, m.config.NodeID), true, presence)
}

func (m *Module) handleCommand(cmd aya.CommandEnvelope) {
	reply := m.dispatch(cmd)
	if err := m.client.PublishReply(cmd, reply); err != nil {
		m.log.Error("publish reply", zap.Error(err))
	}
}

func (m *Module) dispatch(cmd aya.CommandEnvelope) aya.ReplyEnvelope {
	reply := aya.ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, TS: time.Now().Unix()}

	switch cmd.Type {
	case "media.search":
		return m.search(cmd, reply)
	default:
		return errorReply(cmd, aya.CodeInvalid, "unsupported command")
	}
}

func (m *Module) search(cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) aya.ReplyEnvelope {
	var body aya.SearchBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, aya.CodeInvalid, "invalid body")
	}

	hits := m.match(body.Query, body.Limit)
	payload, _ := json.Marshal(aya.MediaSearchReply{Hits: hits})
	reply.Body = payload
	return reply
}

type rankedHit struct {
	hit  aya.MediaHit
	rank int
}

// match fuzzy-matches titles and scans transcripts for the query. Title
// matches rank ahead of transcript matches.
func (m *Module) match(query string, limit int64) []aya.MediaHit {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	ranked := make([]rankedHit, 0)
	for _, entry := range m.entries {
		if rank := fuzzy.RankMatchNormalizedFold(query, entry.Title); rank >= 0 {
			ranked = append(ranked, rankedHit{
				hit: aya.MediaHit{
					ItemID:   entry.ItemID,
					Title:    entry.Title,
					Category: entry.Category,
					URL:      entry.URL,
					Snippet:  snippet(entry.Transcript, query),
				},
				rank: rank,
			})
			continue
		}
		if snip := snippet(entry.Transcript, query); snip != "" {
			ranked = append(ranked, rankedHit{
				hit: aya.MediaHit{
					ItemID:   entry.ItemID,
					Title:    entry.Title,
					Category: entry.Category,
					URL:      entry.URL,
					Snippet:  snip,
				},
				rank: len(entry.Title) + 1000,
			})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].rank < ranked[j].rank })
	hits := make([]aya.MediaHit, 0, len(ranked))
	for _, r := range ranked {
		hits = append(hits, r.hit)
	}
	if limit > 0 && int64(len(hits)) > limit {
		hits = hits[:limit]
	}
	return hits
}

const snippetContext = 40

// snippet extracts the transcript text around the first occurrence of query.
func snippet(transcript string, query string) string {
	if transcript == "" {
		return ""
	}
	idx := strings.Index(strings.ToLower(transcript), strings.ToLower(query))
	if idx < 0 {
		return ""
	}
	start := idx - snippetContext
	if start < 0 {
		start = 0
	}
	end := idx + len(query) + snippetContext
	if end > len(transcript) {
		end = len(transcript)
	}
	out := strings.TrimSpace(transcript[start:end])
	if start > 0 {
		out = "..." + out
	}
	if end < len(transcript) {
		out += "..."
	}
	return out
}

func errorReply(cmd aya.CommandEnvelope, code string, message string) aya.ReplyEnvelope {
	return aya.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "error",
		OK:   false,
		TS:   time.Now().Unix(),
		Err:  &aya.ReplyError{Code: code, Message: message},
	}
}
