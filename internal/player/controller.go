package player

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ayaproj/aya/internal/prefs"
	"github.com/ayaproj/aya/pkg/aya"
)

// Item is anything the controller can play: a music track or a single verse.
// The URL is immutable once the item is constructed; a different recording
// of the same logical item is a different Item.
type Item struct {
	ID       string
	URL      string
	Title    string
	Artist   string
	Category string
	Chapter  int
	Verse    int
}

// QueueSource builds a queue from a declared play context, in the declared
// sort order of the underlying collection.
type QueueSource interface {
	BuildQueue(ctx aya.PlayContext) ([]Item, error)
}

// EndPolicy selects what happens when advancing past the last queue item
// with looping off.
type EndPolicy int

const (
	// StopAtEnd stops playback and keeps the current item (music player).
	StopAtEnd EndPolicy = iota
	// ClearAtEnd clears the current item and resets position (verse player
	// terminal "end of chapter" state).
	ClearAtEnd
)

// Options parameterize a controller instantiation.
type Options struct {
	EndOfQueue EndPolicy
	// PrevWraps wraps backward from the first item to the last. When false
	// the controller restarts at the first item instead.
	PrevWraps bool
	// RestartAfter is the elapsed-seconds threshold above which
	// SkipPrevious restarts the current item instead of changing items.
	RestartAfter float64
	// PreloadNext warms the next queue item whenever the current changes.
	PreloadNext bool
}

// Preference keys within a controller's prefs scope.
const (
	prefVolume    = "volume"
	prefLoopMode  = "loopMode"
	prefFavorites = "favorites"
)

// Controller manages exactly one audio driver against a playback session:
// current item, queue, loop mode, volume, favorites, buffering.
type Controller struct {
	driver    Driver
	queues    QueueSource
	store     *prefs.Store
	preloader Preloader
	log       *zap.Logger
	opts      Options

	mu         sync.Mutex
	version    int64
	queue      []Item
	index      int
	current    *Item
	playing    bool
	buffering  bool
	loopMode   string
	volume     float64
	sourceURL  string
	preloadURL string
	onItem     func(itemID string)
}

// New creates a controller, restoring persisted volume and loop mode and
// applying the volume to the live driver.
func New(driver Driver, queues QueueSource, store *prefs.Store, log *zap.Logger, opts Options) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RestartAfter <= 0 {
		opts.RestartAfter = 3
	}

	c := &Controller{
		driver:   driver,
		queues:   queues,
		store:    store,
		log:      log,
		opts:     opts,
		loopMode: aya.LoopOff,
		volume:   1.0,
	}
	if store != nil {
		c.volume = store.GetFloat(prefVolume, 1.0)
		c.loopMode = store.GetString(prefLoopMode, aya.LoopOff)
	}
	if err := driver.SetVolume(c.volume); err != nil {
		log.Debug("restore volume failed", zap.Error(err))
	}
	return c
}

// SetPreloader installs the next-item preloader (verse player).
func (c *Controller) SetPreloader(p Preloader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preloader = p
}

// OnItemChange registers the shareable deep-link hook, invoked with the
// item id whenever the current item changes (empty id on clear).
func (c *Controller) OnItemChange(fn func(itemID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onItem = fn
}

// PlayItem starts playback of item. Playing the current item toggles
// play/pause instead of restarting. A non-nil context atomically replaces
// both the queue and the current item.
func (c *Controller) PlayItem(item Item, playCtx *aya.PlayContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.ID == item.ID {
		c.toggleLocked()
		return nil
	}

	queue := c.queue
	if playCtx != nil {
		built, err := c.queues.BuildQueue(*playCtx)
		if err != nil {
			return err
		}
		queue = built
	}

	idx := indexOf(queue, item.ID)
	if idx < 0 {
		if playCtx != nil {
			return ErrNotInQueue
		}
		queue = []Item{item}
		idx = 0
	}

	c.queue = queue
	c.index = idx
	c.setCurrentLocked(&queue[idx])
	c.playLocked()
	return nil
}

// TogglePlayPause flips playing. No-op without a current item.
func (c *Controller) TogglePlayPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	c.toggleLocked()
}

func (c *Controller) toggleLocked() {
	if c.playing {
		if err := c.driver.Pause(); err != nil {
			c.log.Warn("pause failed", zap.Error(err))
		}
		c.playing = false
		c.version++
		return
	}
	c.playLocked()
}

// SkipNext advances to the next queue member. With looping off, wrapping
// past the end follows the configured end-of-queue policy instead.
func (c *Controller) SkipNext() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked()
}

func (c *Controller) advanceLocked() {
	if c.current == nil || len(c.queue) == 0 {
		return
	}

	next := c.index + 1
	if next >= len(c.queue) {
		if c.loopMode == aya.LoopQueue {
			next = 0
		} else {
			c.finishQueueLocked()
			return
		}
	}
	c.index = next
	c.setCurrentLocked(&c.queue[next])
	c.playLocked()
}

func (c *Controller) finishQueueLocked() {
	if err := c.driver.Pause(); err != nil {
		c.log.Debug("pause at end failed", zap.Error(err))
	}
	c.playing = false
	if c.opts.EndOfQueue == ClearAtEnd {
		if err := c.driver.SeekSeconds(0); err != nil {
			c.log.Debug("reset position failed", zap.Error(err))
		}
		c.current = nil
		c.index = 0
		c.notifyItemLocked("")
	}
	c.version++
}

// SkipPrevious restarts the current item when more than RestartAfter
// seconds have elapsed; otherwise it moves to the previous queue index.
func (c *Controller) SkipPrevious() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || len(c.queue) == 0 {
		return
	}

	if pos, _, ok := c.driver.Position(); ok && pos > c.opts.RestartAfter {
		if err := c.driver.SeekSeconds(0); err != nil {
			c.log.Warn("restart seek failed", zap.Error(err))
		}
		return
	}

	prev := c.index - 1
	if prev < 0 {
		if c.opts.PrevWraps {
			prev = len(c.queue) - 1
		} else {
			// Never wrap backward: restart the first item.
			if err := c.driver.SeekSeconds(0); err != nil {
				c.log.Warn("restart seek failed", zap.Error(err))
			}
			c.playLocked()
			return
		}
	}
	c.index = prev
	c.setCurrentLocked(&c.queue[prev])
	c.playLocked()
}

// Seek moves to fraction (0..1) of the stream duration. No-op while the
// duration is still unknown.
func (c *Controller) Seek(fraction float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	_, duration, ok := c.driver.Position()
	if !ok || duration <= 0 {
		return
	}
	if err := c.driver.SeekSeconds(fraction * duration); err != nil {
		c.log.Warn("seek failed", zap.Error(err))
	}
}

// SetVolume applies volume immediately and persists it.
func (c *Controller) SetVolume(volume float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	if err := c.driver.SetVolume(volume); err != nil {
		return err
	}
	c.volume = volume
	c.version++
	if c.store != nil {
		return c.store.SetFloat(prefVolume, volume)
	}
	return nil
}

// SetLoopMode sets and persists the loop mode.
func (c *Controller) SetLoopMode(mode string) error {
	switch mode {
	case aya.LoopOff, aya.LoopQueue, aya.LoopOne:
	default:
		return errInvalidLoopMode
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loopMode = mode
	c.version++
	if c.store != nil {
		return c.store.SetString(prefLoopMode, mode)
	}
	return nil
}

// CycleLoopMode advances off → queue → one → off and returns the new mode.
func (c *Controller) CycleLoopMode() (string, error) {
	c.mu.Lock()
	next := aya.LoopOff
	switch c.loopMode {
	case aya.LoopOff:
		next = aya.LoopQueue
	case aya.LoopQueue:
		next = aya.LoopOne
	}
	c.mu.Unlock()

	if err := c.SetLoopMode(next); err != nil {
		return "", err
	}
	return next, nil
}

// ToggleFavorite flips membership of itemKey in the persisted favorites
// set and reports the new state. Queue membership is never changed
// retroactively.
func (c *Controller) ToggleFavorite(itemKey string) (bool, error) {
	if c.store == nil {
		return false, errNoStore
	}
	return c.store.Toggle(prefFavorites, itemKey)
}

// Favorites returns the persisted favorites set in sorted order.
func (c *Controller) Favorites() []string {
	if c.store == nil {
		return nil
	}
	return c.store.Members(prefFavorites)
}

// IsFavorite reports membership of itemKey in the favorites set.
func (c *Controller) IsFavorite(itemKey string) bool {
	if c.store == nil {
		return false
	}
	return c.store.Contains(prefFavorites, itemKey)
}

// HandleEnded reacts to the driver's end-of-stream signal: loop-one
// restarts the same item at position zero, everything else advances.
func (c *Controller) HandleEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return
	}
	if c.loopMode == aya.LoopOne {
		if err := c.driver.SeekSeconds(0); err != nil {
			c.log.Warn("loop restart seek failed", zap.Error(err))
		}
		c.playLocked()
		return
	}
	c.advanceLocked()
}

// HandleWaiting marks the stream as buffering. Buffering is derived only
// from driver signals, never inferred from network calls.
func (c *Controller) HandleWaiting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffering = true
	c.version++
}

// HandlePlaying clears buffering and confirms actual playback.
func (c *Controller) HandlePlaying() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffering = false
	if c.current != nil {
		c.playing = true
	}
	c.version++
}

// Current returns the current item, if any.
func (c *Controller) Current() (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Item{}, false
	}
	return *c.current, true
}

// Queue returns a copy of the queue and the current index.
func (c *Controller) Queue() ([]Item, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.queue))
	copy(out, c.queue)
	return out, c.index
}

// Playing reports whether the controller believes audio is playing.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Volume returns the current volume.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// LoopMode returns the current loop mode.
func (c *Controller) LoopMode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopMode
}

// Snapshot renders the protocol state for publication.
func (c *Controller) Snapshot() aya.PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := "stopped"
	if c.current != nil {
		if c.playing {
			status = "playing"
		} else {
			status = "paused"
		}
	}
	position, duration, _ := c.driver.Position()

	state := aya.PlayerState{
		Playback: &aya.PlaybackState{
			Status:    status,
			Position:  position,
			Duration:  duration,
			Volume:    c.volume,
			LoopMode:  c.loopMode,
			Buffering: c.buffering,
		},
		Queue:        &aya.QueueState{Length: int64(len(c.queue)), Index: int64(c.index)},
		StateVersion: c.version,
	}
	if c.current != nil {
		state.Current = &aya.CurrentItemState{
			ItemID: c.current.ID,
			Title:  c.current.Title,
			Artist: c.current.Artist,
			URL:    c.current.URL,
		}
	}
	return state
}

// playLocked attempts playback and recovers locally on rejection: playing
// is forced back to false and the error is logged, never surfaced.
func (c *Controller) playLocked() {
	if c.current == nil {
		return
	}
	if err := c.driver.Play(); err != nil {
		c.log.Warn("play rejected", zap.String("item", c.current.ID), zap.Error(err))
		c.playing = false
		c.version++
		return
	}
	c.playing = true
	c.version++
}

// setCurrentLocked swaps the driver source only when the resolved URL
// actually changes, and refreshes the next-item preload.
func (c *Controller) setCurrentLocked(item *Item) {
	if item.URL != c.sourceURL {
		if err := c.driver.SetSource(item.URL); err != nil {
			c.log.Warn("set source failed", zap.String("url", item.URL), zap.Error(err))
		}
		c.sourceURL = item.URL
	}
	c.current = item
	c.version++
	c.notifyItemLocked(item.ID)
	c.refreshPreloadLocked()
}

func (c *Controller) notifyItemLocked(itemID string) {
	if c.onItem != nil {
		c.onItem(itemID)
	}
}

// refreshPreloadLocked warms the next queue item. A preload keyed to a URL
// that no longer matches the new next item is discarded first.
func (c *Controller) refreshPreloadLocked() {
	if !c.opts.PreloadNext || c.preloader == nil {
		return
	}

	nextURL := ""
	if next := c.index + 1; next < len(c.queue) {
		nextURL = c.queue[next].URL
	} else if c.loopMode == aya.LoopQueue && len(c.queue) > 0 {
		nextURL = c.queue[0].URL
	}

	if nextURL == c.preloadURL {
		return
	}
	c.preloader.Discard()
	if nextURL != "" {
		c.preloader.Warm(nextURL)
	}
	c.preloadURL = nextURL
}

func indexOf(queue []Item, itemID string) int {
	for i, item := range queue {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

var (
	errInvalidLoopMode = errInvalid("invalid loop mode")
	errNoStore         = errInvalid("no preference store configured")
)

type errInvalid string

func (e errInvalid) Error() string { return string(e) }
