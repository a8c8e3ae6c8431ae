package audioplayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/ayaproj/aya/internal/adapters/idgen"
	"github.com/ayaproj/aya/internal/adapters/mqttserver"
	"github.com/ayaproj/aya/internal/player"
	"github.com/ayaproj/aya/internal/prefs"
	"github.com/ayaproj/aya/pkg/aya"
)

type busClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	PublishJSON(topic string, retained bool, v any) error
	PublishReply(cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	SubscribeCommands(topicBase string, nodeID string, handler func(aya.CommandEnvelope)) error
	Unsubscribe(topic string) error
}

// Roles a player instance can fill.
const (
	RoleMusic = "music"
	RoleVerse = "verse"
)

// Config configures one audio player instance.
type Config struct {
	NodeID      string
	TopicBase   string
	Name        string
	Role        string
	MPVSocket   string
	MPVBinary   string
	LibraryID   string
	ScriptureID string
	StateDir    string
}

// Module hosts a playback controller for one role on the bus.
type Module struct {
	log    *zap.Logger
	client busClient
	config Config
	bus    *busRequester

	mu         sync.Mutex
	controller *player.Controller
	driver     *mpvDriver
}

// NewModule creates a player module.
func NewModule(log *zap.Logger, client *mqttserver.Client, cfg Config) (*Module, error) {
	return newModule(log, client, cfg)
}

func newModule(log *zap.Logger, client busClient, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = aya.BaseTopic
	}
	switch cfg.Role {
	case RoleMusic:
		if strings.TrimSpace(cfg.LibraryID) == "" {
			return nil, errors.New("music player requires library node id")
		}
	case RoleVerse:
		if strings.TrimSpace(cfg.ScriptureID) == "" {
			return nil, errors.New("verse player requires scripture node id")
		}
	default:
		return nil, fmt.Errorf("unsupported role %q", cfg.Role)
	}
	if strings.TrimSpace(cfg.Name) == "" {
		if cfg.Role == RoleVerse {
			cfg.Name = "Verse Player"
		} else {
			cfg.Name = "Music Player"
		}
	}

	m := &Module{
		log:    log,
		client: client,
		config: cfg,
	}
	m.bus = &busRequester{client: client, topicBase: cfg.TopicBase, nodeID: cfg.NodeID}
	return m, nil
}

// Run starts the player module.
func (m *Module) Run(ctx context.Context) error {
	driver, err := startMPV(m.config.MPVBinary, m.config.MPVSocket, m.log)
	if err != nil {
		return err
	}
	defer driver.Close()

	root := m.config.StateDir
	if root == "" {
		root, err = prefs.DefaultRoot()
		if err != nil {
			return err
		}
	}
	store, err := prefs.Open(root, "player_"+m.config.Role)
	if err != nil {
		return err
	}

	controller := player.New(driver, m.catalog(controllerFavorites(m)), store, m.log, m.controllerOptions())
	if m.config.Role == RoleVerse {
		controller.SetPreloader(newHTTPPreloader(m.log))
	}
	controller.OnItemChange(func(itemID string) {
		m.publishEvent(aya.Event{Type: "player.item", ItemID: itemID, TS: time.Now().Unix()})
	})

	m.mu.Lock()
	m.controller = controller
	m.driver = driver
	m.mu.Unlock()

	if err := m.publishPresence(); err != nil {
		return err
	}
	if err := m.publishState(); err != nil {
		return err
	}

	if err := m.client.SubscribeCommands(m.config.TopicBase, m.config.NodeID, m.handleCommand); err != nil {
		return err
	}
	defer m.client.Unsubscribe(aya.TopicCommands(m.config.TopicBase, m.config.NodeID))

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-driver.Events():
			if !ok {
				return errors.New("audio backend exited")
			}
			m.handleDriverEvent(ev)
		case <-ticker.C:
			if controller.Playing() {
				_ = m.publishState()
			}
		}
	}
}

func (m *Module) controllerOptions() player.Options {
	if m.config.Role == RoleVerse {
		return player.Options{
			EndOfQueue:  player.ClearAtEnd,
			PrevWraps:   false,
			PreloadNext: true,
		}
	}
	return player.Options{
		EndOfQueue: player.StopAtEnd,
		PrevWraps:  true,
	}
}

func (m *Module) catalog(favorites func() []string) catalog {
	if m.config.Role == RoleVerse {
		return &verseCatalog{bus: m.bus, scriptureID: m.config.ScriptureID}
	}
	return &trackCatalog{bus: m.bus, libraryID: m.config.LibraryID, favorites: favorites}
}

func controllerFavorites(m *Module) func() []string {
	return func() []string {
		m.mu.Lock()
		controller := m.controller
		m.mu.Unlock()
		if controller == nil {
			return nil
		}
		return controller.Favorites()
	}
}

func (m *Module) handleDriverEvent(ev DriverEvent) {
	m.mu.Lock()
	controller := m.controller
	m.mu.Unlock()
	if controller == nil {
		return
	}
	switch ev {
	case EventEnded:
		controller.HandleEnded()
		m.publishEvent(aya.Event{Type: "player.ended", TS: time.Now().Unix()})
	case EventWaiting:
		controller.HandleWaiting()
	case EventPlaying:
		controller.HandlePlaying()
	}
	_ = m.publishState()
}

func (m *Module) publishPresence() error {
	presence := aya.Presence{
		NodeID: m.config.NodeID,
		Kind:   aya.KindPlayer,
		Name:   m.config.Name,
		Role:   m.config.Role,
		Caps: map[string]any{
			"seek":      true,
			"volume":    true,
			"loop":      true,
			"favorites": true,
		},
		TS: time.Now().Unix(),
	}
	return m.client.PublishJSON(aya.TopicPresence(m.config.TopicBase, m.config.NodeID), true, presence)
}

func (m *Module) publishState() error {
	m.mu.Lock()
	controller := m.controller
	m.mu.Unlock()
	if controller == nil {
		return nil
	}
	state := controller.Snapshot()
	state.TS = time.Now().Unix()
	return m.client.PublishJSON(aya.TopicState(m.config.TopicBase, m.config.NodeID), true, state)
}

func (m *Module) publishEvent(ev aya.Event) {
	if err := m.client.PublishJSON(aya.TopicEvents(m.config.TopicBase, m.config.NodeID), false, ev); err != nil {
		m.log.Warn("publish event failed", zap.Error(err))
	}
}

func (m *Module) handleCommand(cmd aya.CommandEnvelope) {
	reply := m.dispatch(cmd)
	if err := m.client.PublishReply(cmd, reply); err != nil {
		m.log.Error("publish reply", zap.Error(err))
	}
	_ = m.publishState()
}

func (m *Module) dispatch(cmd aya.CommandEnvelope) aya.ReplyEnvelope {
	m.mu.Lock()
	controller := m.controller
	m.mu.Unlock()
	if controller == nil {
		return errorReply(cmd, aya.CodeUnavailable, "player not ready")
	}

	reply := aya.ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, TS: time.Now().Unix()}

	switch cmd.Type {
	case "player.playItem":
		return m.playItem(controller, cmd, reply)
	case "player.toggle":
		controller.TogglePlayPause()
		return reply
	case "player.next":
		controller.SkipNext()
		return reply
	case "player.prev":
		controller.SkipPrevious()
		return reply
	case "player.seek":
		var body aya.SeekBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, aya.CodeInvalid, "invalid body")
		}
		controller.Seek(body.Fraction)
		return reply
	case "player.setVolume":
		var body aya.SetVolumeBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, aya.CodeInvalid, "invalid body")
		}
		if err := controller.SetVolume(body.Volume); err != nil {
			return errorReply(cmd, aya.CodeInvalid, err.Error())
		}
		return reply
	case "player.setLoop":
		var body aya.SetLoopBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, aya.CodeInvalid, "invalid body")
		}
		if err := controller.SetLoopMode(body.Mode); err != nil {
			return errorReply(cmd, aya.CodeInvalid, err.Error())
		}
		return reply
	case "player.cycleLoop":
		mode, err := controller.CycleLoopMode()
		if err != nil {
			return errorReply(cmd, aya.CodeInvalid, err.Error())
		}
		payload, _ := json.Marshal(aya.LoopReply{Mode: mode})
		reply.Body = payload
		return reply
	case "player.favorite":
		var body aya.FavoriteBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil || body.ItemKey == "" {
			return errorReply(cmd, aya.CodeInvalid, "itemKey required")
		}
		favorite, err := controller.ToggleFavorite(body.ItemKey)
		if err != nil {
			return errorReply(cmd, aya.CodeInvalid, err.Error())
		}
		payload, _ := json.Marshal(aya.FavoriteReply{
			ItemKey:  body.ItemKey,
			Favorite: favorite,
			Total:    int64(len(controller.Favorites())),
		})
		reply.Body = payload
		return reply
	case "queue.get":
		return m.queueGet(controller, cmd, reply)
	default:
		return errorReply(cmd, aya.CodeInvalid, "unsupported command")
	}
}

func (m *Module) playItem(controller *player.Controller, cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) aya.ReplyEnvelope {
	var body aya.PlayItemBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil || body.ItemID == "" {
		return errorReply(cmd, aya.CodeInvalid, "itemId required")
	}

	item, err := m.catalogForDispatch().Resolve(body.ItemID)
	if err != nil {
		return errorReply(cmd, aya.CodeNotFound, err.Error())
	}
	// Chapter scope without a chapter number takes it from the resolved
	// verse, so "play 2:255" alone is enough to queue chapter 2.
	if playCtx := body.Context; playCtx != nil && playCtx.Chapter == 0 && item.Chapter > 0 {
		switch playCtx.Scope {
		case aya.ScopeChapter, "":
			playCtx.Chapter = item.Chapter
		}
	}
	if err := controller.PlayItem(item, body.Context); err != nil {
		if errors.Is(err, player.ErrNotInQueue) {
			return errorReply(cmd, aya.CodeInvalid, err.Error())
		}
		return errorReply(cmd, aya.CodeUnavailable, err.Error())
	}
	return reply
}

func (m *Module) catalogForDispatch() catalog {
	return m.catalog(controllerFavorites(m))
}

func (m *Module) queueGet(controller *player.Controller, cmd aya.CommandEnvelope, reply aya.ReplyEnvelope) aya.ReplyEnvelope {
	var body aya.QueueGetBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, aya.CodeInvalid, "invalid body")
	}

	queue, index := controller.Queue()
	from := body.From
	if from < 0 {
		from = 0
	}
	count := body.Count
	if count <= 0 {
		count = int64(len(queue))
	}
	end := from + count
	if from > int64(len(queue)) {
		from = int64(len(queue))
	}
	if end > int64(len(queue)) {
		end = int64(len(queue))
	}

	entries := make([]aya.QueueItem, 0, end-from)
	for _, item := range queue[from:end] {
		entries = append(entries, aya.QueueItem{ItemID: item.ID, Title: item.Title, Artist: item.Artist})
	}
	payload, _ := json.Marshal(aya.QueueGetReply{
		Index:   int64(index),
		Length:  int64(len(queue)),
		Entries: entries,
	})
	reply.Body = payload
	return reply
}

// busRequester sends a command to another node and decodes its reply body.
type busRequester struct {
	client    busClient
	topicBase string
	nodeID    string
}

func (r *busRequester) request(targetID string, cmdType string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	cmd := aya.CommandEnvelope{
		ID:      idgen.Generator{}.NewID(),
		Type:    cmdType,
		TS:      time.Now().Unix(),
		From:    r.nodeID,
		ReplyTo: aya.TopicReply(r.topicBase, fmt.Sprintf("%s-%d", r.nodeID, time.Now().UnixNano())),
		Body:    payload,
	}

	replyCh := make(chan aya.ReplyEnvelope, 1)
	handler := func(_ paho.Client, msg paho.Message) {
		var reply aya.ReplyEnvelope
		if err := json.Unmarshal(msg.Payload(), &reply); err != nil {
			return
		}
		select {
		case replyCh <- reply:
		default:
		}
	}
	if err := r.client.Subscribe(cmd.ReplyTo, 1, handler); err != nil {
		return err
	}
	defer r.client.Unsubscribe(cmd.ReplyTo)

	cmdPayload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := r.client.Publish(aya.TopicCommands(r.topicBase, targetID), 1, false, cmdPayload); err != nil {
		return err
	}

	select {
	case reply := <-replyCh:
		if reply.Err != nil {
			return fmt.Errorf("%s: %s", reply.Err.Code, reply.Err.Message)
		}
		if out == nil || len(reply.Body) == 0 {
			return nil
		}
		return json.Unmarshal(reply.Body, out)
	case <-time.After(2 * time.Second):
		return fmt.Errorf("timeout waiting for %s", targetID)
	}
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
