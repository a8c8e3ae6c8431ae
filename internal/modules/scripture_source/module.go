package scripturesource

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ayaproj/aya/internal/adapters/mqttserver"
	"github.com/ayaproj/aya/internal/scripture"
	"github.com/ayaproj/aya/pkg/aya"
)

// Config configures the scripture source module.
type Config struct {
	NodeID     string
	TopicBase  string
	Name       string
	CorpusPath string
	ReciterURL string
}

// Module serves scripture lookups and searches over the corpus.
type Module struct {
	log    *zap.Logger
	client *mqttserver.Client
	config Config
	corpus *scripture.Corpus
}

// NewModule creates a scripture source module.
func NewModule(log *zap.Logger, client *mqttserver.Client, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(cfg.CorpusPath) == "" {
		return nil, errors.New("corpus_path required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = aya.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Scripture"
	}

	corpus, err := scripture.Load(cfg.CorpusPath)
	if err != nil {
		return nil, err
	}
	return &Module{log: log, client: client, config: cfg, corpus: corpus}, nil
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
		Role:   "scripture",
		Caps: map[string]any{
			"lookup":     true,
			"search":     true,
			"wordByWord": true,
		},
		TS: time.Now().Unix(),
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
	case "scripture.lookup":
		return m.lookup(cmd, reply)
	case "scripture.search":
		return m.search(cmd, reply)
	case "scripture.wordByWord":
		return m.wordByWord(cmd, reply)
	case "scripture.chapters":
		return m.chapters(cmd, reply)
	default:
		return errorReply(cmd, aya.CodeInvalid, "unsupported command")
	}
}

// lookup serves structural references. A reference that parses but matches
// no chapter or verse is a not_found result, not an error reply.
func (m *Module) lookup(cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) aya.ReplyEnvelope {
	var body aya.ScriptureLookupBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, aya.CodeInvalid, "invalid body")
	}
	if body.Chapter <= 0 {
		return errorReply(cmd, aya.CodeInvalid, "chapter required")
	}

	result := m.resolveLookup(body)
	payload, _ := json.Marshal(result)
	reply.Body = payload
	return reply
}

func (m *Module) resolveLookup(body aya.ScriptureLookupBody) aya.ScriptureLookupReply {
	chapter, ok := m.corpus.Chapter(body.Chapter)
	if !ok {
		return aya.ScriptureLookupReply{Type: aya.LookupNotFound, Chapter: body.Chapter}
	}

	switch {
	// Any explicit range goes through Range, so a descending span fails
	// as not_found instead of collapsing into a single verse.
	case body.VerseEnd > 0 && body.VerseEnd != body.VerseStart:
		verses, ok := m.corpus.Range(body.Chapter, body.VerseStart, body.VerseEnd)
		if !ok {
			return aya.ScriptureLookupReply{Type: aya.LookupNotFound, Chapter: body.Chapter}
		}
		return aya.ScriptureLookupReply{
			Type:        aya.LookupVerses,
			Chapter:     chapter.Number,
			ChapterName: chapter.Name,
			Verses:      m.renderVerses(chapter.Number, verses, body.Audio),
		}
	case body.VerseStart > 0:
		verse, ok := m.corpus.Verse(body.Chapter, body.VerseStart)
		if !ok {
			return aya.ScriptureLookupReply{Type: aya.LookupNotFound, Chapter: body.Chapter}
		}
		return aya.ScriptureLookupReply{
			Type:        aya.LookupVerse,
			Chapter:     chapter.Number,
			ChapterName: chapter.Name,
			Verses:      m.renderVerses(chapter.Number, []scripture.Verse{verse}, body.Audio),
		}
	default:
		return aya.ScriptureLookupReply{
			Type:        aya.LookupChapter,
			Chapter:     chapter.Number,
			ChapterName: chapter.Name,
			Verses:      m.renderVerses(chapter.Number, chapter.Verses, body.Audio),
		}
	}
}

func (m *Module) renderVerses(chapter int, verses []scripture.Verse, audio bool) []aya.ScriptureVerse {
	out := make([]aya.ScriptureVerse, 0, len(verses))
	for _, v := range verses {
		rendered := aya.ScriptureVerse{
			Chapter: chapter,
			Verse:   v.Number,
			Text:    v.Text,
		}
		if audio && m.config.ReciterURL != "" {
			rendered.AudioURL = scripture.AudioURL(m.config.ReciterURL, chapter, v.Number)
		}
		out = append(out, rendered)
	}
	return out
}

func (m *Module) search(cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) aya.ReplyEnvelope {
	var body aya.SearchBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, aya.CodeInvalid, "invalid body")
	}

	hits := m.corpus.Search(body.Query)
	if body.Limit > 0 && int64(len(hits)) > body.Limit {
		hits = hits[:body.Limit]
	}
	payload, _ := json.Marshal(aya.ScriptureSearchReply{Hits: hits})
	reply.Body = payload
	return reply
}

func (m *Module) wordByWord(cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) aya.ReplyEnvelope {
	var body aya.WordByWordBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, aya.CodeInvalid, "invalid body")
	}

	payload, _ := json.Marshal(m.corpus.WordSearch(body.Query, body.Limit))
	reply.Body = payload
	return reply
}

func (m *Module) chapters(cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) aya.ReplyEnvelope {
	numbers := m.corpus.Chapters()
	chapters := make([]aya.ChapterInfo, 0, len(numbers))
	for _, number := range numbers {
		chapter, ok := m.corpus.Chapter(number)
		if !ok {
			continue
		}
		chapters = append(chapters, aya.ChapterInfo{
			Number: chapter.Number,
			Name:   chapter.Name,
			Verses: len(chapter.Verses),
		})
	}
	payload, _ := json.Marshal(aya.ChaptersReply{Chapters: chapters})
	reply.Body = payload
	return reply
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
