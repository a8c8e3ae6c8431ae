package trackslibrary

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayaproj/aya/internal/adapters/mqttserver"
	"github.com/ayaproj/aya/pkg/aya"
)

// Config configures the music catalog module.
type Config struct {
	NodeID       string
	TopicBase    string
	Name         string
	Roots        []string
	IncludeExts  []string
	HTTPListen   string
	IndexPath    string
	ScanInterval time.Duration
}

// Module exposes a filesystem music catalog with an HTTP stream server.
type Module struct {
	log    *zap.Logger
	client *mqttserver.Client
	config Config

	mu      sync.RWMutex
	index   *catalogIndex
	baseURL string
	server  *http.Server
	ln      net.Listener
}

// catalogIndex holds tracks in stable catalog order, keyed for resolve.
type catalogIndex struct {
	Tracks []catalogTrack          `json:"tracks"`
	ByID   map[string]catalogTrack `json:"-"`
}

type catalogTrack struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	Category string `json:"category"`
}

// NewModule creates a music catalog module.
func NewModule(log *zap.Logger, client *mqttserver.Client, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if len(cfg.Roots) == 0 {
		return nil, errors.New("roots required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = aya.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Tracks"
	}
	if strings.TrimSpace(cfg.HTTPListen) == "" {
		cfg.HTTPListen = "127.0.0.1:0"
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 15 * time.Minute
	}
	if len(cfg.IncludeExts) == 0 {
		cfg.IncludeExts = []string{".mp3", ".flac", ".ogg", ".m4a"}
	}

	return &Module{
		log:    log,
		client: client,
		config: cfg,
		index:  &catalogIndex{ByID: map[string]catalogTrack{}},
	}, nil
}

// Run starts the module.
func (m *Module) Run(ctx context.Context) error {
	if err := m.startHTTPServer(); err != nil {
		return err
	}
	defer m.shutdownHTTPServer()

	if err := m.loadIndex(); err != nil {
		m.log.Debug("index load failed", zap.Error(err))
	}
	if err := m.scan(); err != nil {
		m.log.Warn("initial scan failed", zap.Error(err))
	}

	if err := m.publishPresence(); err != nil {
		return err
	}
	if err := m.client.SubscribeCommands(m.config.TopicBase, m.config.NodeID, m.handleCommand); err != nil {
		return err
	}
	defer m.client.Unsubscribe(aya.TopicCommands(m.config.TopicBase, m.config.NodeID))

	ticker := time.NewTicker(m.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.scan(); err != nil {
				m.log.Warn("scan failed", zap.Error(err))
			}
		}
	}
}

func (m *Module) publishPresence() error {
	presence := aya.Presence{
		NodeID: m.config.NodeID,
		Kind:   aya.KindLibrary,
		Name:   m.config.Name,
		Role:   "tracks",
		Caps: map[string]any{
			"list":    true,
			"resolve": true,
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
	case "tracks.list":
		return m.tracksList(cmd, reply)
	case "tracks.resolve":
		return m.tracksResolve(cmd, reply)
	default:
		return errorReply(cmd, aya.CodeInvalid, "unsupported command")
	}
}

// tracksList returns the catalog in its stable order, optionally filtered
// to one category. Queues built from any scope preserve this order.
func (m *Module) tracksList(cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) aya.ReplyEnvelope {
	var body aya.TracksListBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, aya.CodeInvalid, "invalid body")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	tracks := make([]aya.Track, 0, len(m.index.Tracks))
	for _, track := range m.index.Tracks {
		if body.Category != "" && !strings.EqualFold(track.Category, body.Category) {
			continue
		}
		out, err := m.renderTrackLocked(track)
		if err != nil {
			return errorReply(cmd, aya.CodeUnavailable, err.Error())
		}
		tracks = append(tracks, out)
	}
	payload, _ := json.Marshal(aya.TracksListReply{Tracks: tracks, Total: int64(len(tracks))})
	reply.Body = payload
	return reply
}

func (m *Module) tracksResolve(cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) aya.ReplyEnvelope {
	var body aya.TrackResolveBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil || body.ItemID == "" {
		return errorReply(cmd, aya.CodeInvalid, "itemId required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	track, ok := m.index.ByID[body.ItemID]
	if !ok {
		return errorReply(cmd, aya.CodeNotFound, "track not found")
	}
	out, err := m.renderTrackLocked(track)
	if err != nil {
		return errorReply(cmd, aya.CodeUnavailable, err.Error())
	}
	payload, _ := json.Marshal(aya.TrackResolveReply{Track: out})
	reply.Body = payload
	return reply
}

func (m *Module) renderTrackLocked(track catalogTrack) (aya.Track, error) {
	if m.baseURL == "" {
		return aya.Track{}, errors.New("http server not ready")
	}
	return aya.Track{
		ItemID:   track.ID,
		Title:    track.Title,
		Artist:   track.Artist,
		Category: track.Category,
		URL:      fmt.Sprintf("%s/files/%s", m.baseURL, url.PathEscape(track.ID)),
	}, nil
}

// scan walks the roots and rebuilds the catalog. The category of a track is
// its parent directory name; order is category then filename.
func (m *Module) scan() error {
	started := time.Now()
	exts := buildExtMap(m.config.IncludeExts)

	tracks := make([]catalogTrack, 0)
	for _, root := range m.config.Roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				m.log.Debug("walk error", zap.Error(err), zap.String("path", path))
				return nil
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(d.Name()))
			if !exts[ext] {
				return nil
			}
			tracks = append(tracks, buildTrack(path))
			return nil
		})
		if err != nil {
			m.log.Warn("walk failed", zap.Error(err), zap.String("root", root))
		}
	}

	sort.Slice(tracks, func(i, j int) bool {
		if tracks[i].Category != tracks[j].Category {
			return tracks[i].Category < tracks[j].Category
		}
		return tracks[i].Title < tracks[j].Title
	})

	next := &catalogIndex{Tracks: tracks, ByID: indexTracks(tracks)}
	m.mu.Lock()
	m.index = next
	m.mu.Unlock()

	if err := m.saveIndex(); err != nil {
		m.log.Debug("index save failed", zap.Error(err))
	}
	m.log.Info("scan complete", zap.Duration("elapsed", time.Since(started)), zap.Int("tracks", len(tracks)))
	return nil
}

// buildTrack derives title and artist from an "Artist - Title" filename,
// falling back to the bare name, and the category from the parent dir.
func buildTrack(path string) catalogTrack {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title := name
	artist := ""
	if parts := strings.SplitN(name, " - ", 2); len(parts) == 2 {
		artist = strings.TrimSpace(parts[0])
		title = strings.TrimSpace(parts[1])
	}

	category := ""
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		category = filepath.Base(dir)
	}

	return catalogTrack{
		ID:       "track:" + hashID(path),
		Path:     path,
		Title:    title,
		Artist:   artist,
		Category: category,
	}
}

func indexTracks(tracks []catalogTrack) map[string]catalogTrack {
	byID := make(map[string]catalogTrack, len(tracks))
	for _, track := range tracks {
		byID[track.ID] = track
	}
	return byID
}

func buildExtMap(exts []string) map[string]bool {
	out := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = true
	}
	return out
}

func hashID(path string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, path)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (m *Module) startHTTPServer() error {
	ln, err := net.Listen("tcp", m.config.HTTPListen)
	if err != nil {
		return err
	}
	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	baseURL := fmt.Sprintf("http://%s:%s", host, port)

	mux := http.NewServeMux()
	mux.HandleFunc("/files/", m.serveFile)
	server := &http.Server{Handler: mux}

	m.mu.Lock()
	m.baseURL = baseURL
	m.server = server
	m.ln = ln
	m.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Warn("http server stopped", zap.Error(err))
		}
	}()
	m.log.Info("http server started", zap.String("base_url", baseURL))
	return nil
}

func (m *Module) shutdownHTTPServer() {
	m.mu.Lock()
	server := m.server
	m.server = nil
	ln := m.ln
	m.ln = nil
	m.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = server.Shutdown(ctx)
		cancel()
	}
}

func (m *Module) serveFile(w http.ResponseWriter, r *http.Request) {
	itemID := strings.TrimPrefix(r.URL.Path, "/files/")
	itemID, err := url.PathUnescape(itemID)
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	track, ok := m.index.ByID[itemID]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(track.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, filepath.Base(track.Path), time.Now(), f)
}

func (m *Module) loadIndex() error {
	if m.config.IndexPath == "" {
		return nil
	}
	data, err := os.ReadFile(m.config.IndexPath)
	if err != nil {
		return err
	}
	var idx catalogIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return err
	}
	idx.ByID = indexTracks(idx.Tracks)
	m.mu.Lock()
	m.index = &idx
	m.mu.Unlock()
	return nil
}

func (m *Module) saveIndex() error {
	if m.config.IndexPath == "" {
		return nil
	}
	m.mu.RLock()
	data, err := json.Marshal(m.index)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(m.config.IndexPath, data, 0o640)
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
