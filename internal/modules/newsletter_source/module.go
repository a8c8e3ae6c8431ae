package newslettersource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/ayaproj/aya/internal/adapters/mqttserver"
	"github.com/ayaproj/aya/pkg/aya"
)

// Config configures the newsletter source module.
type Config struct {
	NodeID          string
	TopicBase       string
	Name            string
	FeedURL         string
	CachePath       string
	RefreshInterval time.Duration
}

// cachedIssue is one newsletter issue kept in the on-disk cache.
type cachedIssue struct {
	IssueID   string `json:"issueId"`
	Title     string `json:"title"`
	Link      string `json:"link,omitempty"`
	Published int64  `json:"published,omitempty"`
	Content   string `json:"content,omitempty"`
}

type cachedFeed struct {
	FeedURL   string        `json:"feedUrl"`
	FetchedAt int64         `json:"fetchedAt"`
	Issues    []cachedIssue `json:"issues"`
}

// Module serves newsletter issue search and listings from an RSS feed.
type Module struct {
	log    *zap.Logger
	client *mqttserver.Client
	config Config
	http   *http.Client

	cacheMu sync.RWMutex
	cache   *cachedFeed
}

// NewModule creates a newsletter source module.
func NewModule(log *zap.Logger, client *mqttserver.Client, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(cfg.FeedURL) == "" {
		return nil, errors.New("feed_url required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = aya.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Newsletter"
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 6 * time.Hour
	}

	return &Module{
		log:    log,
		client: client,
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Run starts the module.
func (m *Module) Run(ctx context.Context) error {
	if err := m.refresh(); err != nil {
		m.log.Warn("initial feed refresh failed", zap.Error(err))
	}
	if err := m.publishPresence(); err != nil {
		return err
	}
	if err := m.client.SubscribeCommands(m.config.TopicBase, m.config.NodeID, m.handleCommand); err != nil {
		return err
	}
	defer m.client.Unsubscribe(aya.TopicCommands(m.config.TopicBase, m.config.NodeID))

	ticker := time.NewTicker(m.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.refresh(); err != nil {
				m.log.Warn("feed refresh failed", zap.Error(err))
			}
		}
	}
}

func (m *Module) publishPresence() error {
	presence := aya.Presence{
		NodeID: m.config.NodeID,
		Kind:   aya.KindSource,
		Name:   m.config.Name,
		Role:   "newsletter",
		Caps:   map[string]any{"search": true, "list": true},
		TS:     time.Now().Unix(),
	}
	return m.client.PublishJSON(aya.TopicPresence(m.config.TopicBase, m.config.NodeID), true, presence)
}

// refresh loads the cache and refetches the feed when stale. A failed fetch
// falls back to whatever the cache holds.
func (m *Module) refresh() error {
	cached, err := m.readCache()
	if err != nil {
		m.log.Debug("read cache failed", zap.Error(err))
	}
	if cached != nil && !m.isStale(cached.FetchedAt) {
		m.setCache(cached)
		return nil
	}

	fetched, fetchErr := m.fetchFeed()
	if fetchErr != nil {
		if cached != nil {
			m.setCache(cached)
			return nil
		}
		return fetchErr
	}

	if err := m.writeCache(fetched); err != nil {
		m.log.Warn("write cache failed", zap.Error(err))
	}
	m.setCache(fetched)
	return nil
}

func (m *Module) isStale(fetchedAt int64) bool {
	if fetchedAt == 0 {
		return true
	}
	return time.Since(time.Unix(fetchedAt, 0)) > m.config.RefreshInterval
}

func (m *Module) fetchFeed() (*cachedFeed, error) {
	req, err := http.NewRequest("GET", m.config.FeedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "aya/1.0")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, err
	}

	issues := make([]cachedIssue, 0, len(feed.Items))
	for _, item := range feed.Items {
		issue := buildIssue(item)
		if issue.IssueID == "" {
			continue
		}
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Published > issues[j].Published })

	return &cachedFeed{
		FeedURL:   m.config.FeedURL,
		FetchedAt: time.Now().Unix(),
		Issues:    issues,
	}, nil
}

func buildIssue(item *gofeed.Item) cachedIssue {
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = strings.TrimSpace(item.Link)
	}
	var published int64
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.Unix()
	}
	content := item.Content
	if content == "" {
		content = item.Description
	}
	return cachedIssue{
		IssueID:   id,
		Title:     strings.TrimSpace(item.Title),
		Link:      strings.TrimSpace(item.Link),
		Published: published,
		Content:   content,
	}
}

func (m *Module) setCache(cache *cachedFeed) {
	m.cacheMu.Lock()
	m.cache = cache
	m.cacheMu.Unlock()
}

func (m *Module) issues() []cachedIssue {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	if m.cache == nil {
		return nil
	}
	return m.cache.Issues
}

func (m *Module) readCache() (*cachedFeed, error) {
	if m.config.CachePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(m.config.CachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cached cachedFeed
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (m *Module) writeCache(cache *cachedFeed) error {
	if m.config.CachePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.config.CachePath), 0o750); err != nil {
		return err
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	return os.WriteFile(m.config.CachePath, data, 0o640)
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
	case "newsletter.search":
		return m.search(cmd, reply)
	case "newsletter.list":
		return m.list(cmd, reply)
	default:
		return errorReply(cmd, aya.CodeInvalid, "unsupported command")
	}
}

func (m *Module) search(cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) aya.ReplyEnvelope {
	var body aya.SearchBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, aya.CodeInvalid, "invalid body")
	}

	query := strings.ToLower(strings.TrimSpace(body.Query))
	hits := make([]aya.NewsletterHit, 0)
	if query != "" {
		for _, issue := range m.issues() {
			titleMatch := strings.Contains(strings.ToLower(issue.Title), query)
			contentIdx := strings.Index(strings.ToLower(issue.Content), query)
			if !titleMatch && contentIdx < 0 {
				continue
			}
			hit := aya.NewsletterHit{
				IssueID:   issue.IssueID,
				Title:     issue.Title,
				Link:      issue.Link,
				Published: issue.Published,
			}
			if contentIdx >= 0 {
				hit.Snippet = snippet(issue.Content, contentIdx, len(query))
			}
			hits = append(hits, hit)
			if body.Limit > 0 && int64(len(hits)) >= body.Limit {
				break
			}
		}
	}
	payload, _ := json.Marshal(aya.NewsletterSearchReply{Hits: hits})
	reply.Body = payload
	return reply
}

func (m *Module) list(cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) aya.ReplyEnvelope {
	var body aya.NewsletterListBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, aya.CodeInvalid, "invalid body")
	}

	issues := m.issues()
	out := make([]aya.NewsletterHit, 0, len(issues))
	for _, issue := range issues {
		out = append(out, aya.NewsletterHit{
			IssueID:   issue.IssueID,
			Title:     issue.Title,
			Link:      issue.Link,
			Published: issue.Published,
		})
		if body.Limit > 0 && int64(len(out)) >= body.Limit {
			break
		}
	}
	payload, _ := json.Marshal(aya.NewsletterListReply{Issues: out})
	reply.Body = payload
	return reply
}

const snippetContext = 40

func snippet(content string, idx int, matchLen int) string {
	start := idx - snippetContext
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + snippetContext
	if end > len(content) {
		end = len(content)
	}
	out := strings.TrimSpace(content[start:end])
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
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
