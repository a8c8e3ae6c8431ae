package player

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ayaproj/aya/internal/prefs"
	"github.com/ayaproj/aya/pkg/aya"
)

type fakeDriver struct {
	sourceURL  string
	setSources int
	playErr    error
	plays      int
	pauses     int
	seeks      []float64
	volume     float64
	position   float64
	duration   float64
	metaKnown  bool
}

func (d *fakeDriver) SetSource(url string) error {
	d.sourceURL = url
	d.setSources++
	return nil
}

func (d *fakeDriver) Play() error {
	if d.playErr != nil {
		return d.playErr
	}
	d.plays++
	return nil
}

func (d *fakeDriver) Pause() error { d.pauses++; return nil }

func (d *fakeDriver) SeekSeconds(seconds float64) error {
	d.seeks = append(d.seeks, seconds)
	d.position = seconds
	return nil
}

func (d *fakeDriver) SetVolume(volume float64) error {
	d.volume = volume
	return nil
}

func (d *fakeDriver) Position() (float64, float64, bool) {
	return d.position, d.duration, d.metaKnown
}

type staticQueue struct {
	items []Item
	err   error
	calls []aya.PlayContext
}

func (s *staticQueue) BuildQueue(ctx aya.PlayContext) ([]Item, error) {
	s.calls = append(s.calls, ctx)
	return s.items, s.err
}

type fakePreloader struct {
	warmed   []string
	discards int
}

func (p *fakePreloader) Warm(url string) { p.warmed = append(p.warmed, url) }
func (p *fakePreloader) Discard()        { p.discards++ }

func tracks(n int) []Item {
	out := make([]Item, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Item{
			ID:    fmt.Sprintf("track:%d", i),
			URL:   fmt.Sprintf("http://stream/%d.mp3", i),
			Title: fmt.Sprintf("Track %d", i),
		})
	}
	return out
}

func allContext() *aya.PlayContext {
	return &aya.PlayContext{Scope: aya.ScopeAll}
}

func newMusic(t *testing.T, driver *fakeDriver, items []Item) *Controller {
	t.Helper()
	store, err := prefs.Open(t.TempDir(), "music")
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	return New(driver, &staticQueue{items: items}, store, nil, Options{EndOfQueue: StopAtEnd, PrevWraps: true})
}

func newVerse(t *testing.T, driver *fakeDriver, items []Item) *Controller {
	t.Helper()
	store, err := prefs.Open(t.TempDir(), "verse")
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	return New(driver, &staticQueue{items: items}, store, nil, Options{EndOfQueue: ClearAtEnd, PrevWraps: false, PreloadNext: true})
}

func TestPlayItemBuildsQueueAndPlays(t *testing.T) {
	driver := &fakeDriver{}
	items := tracks(3)
	ctl := newMusic(t, driver, items)

	if err := ctl.PlayItem(items[1], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}
	if !ctl.Playing() {
		t.Fatalf("expected playing")
	}
	if driver.sourceURL != items[1].URL {
		t.Fatalf("unexpected source %s", driver.sourceURL)
	}
	queue, idx := ctl.Queue()
	if len(queue) != 3 || idx != 1 {
		t.Fatalf("unexpected queue %d idx %d", len(queue), idx)
	}
}

func TestPlayItemSameItemToggles(t *testing.T) {
	driver := &fakeDriver{}
	items := tracks(2)
	ctl := newMusic(t, driver, items)

	if err := ctl.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}
	setSources := driver.setSources

	if err := ctl.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if ctl.Playing() {
		t.Fatalf("expected paused after same-item play")
	}
	if driver.setSources != setSources {
		t.Fatalf("source must not swap on toggle")
	}

	if err := ctl.PlayItem(items[0], nil); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if !ctl.Playing() {
		t.Fatalf("expected resumed")
	}
}

func TestPlayItemRejectsItemOutsideContext(t *testing.T) {
	driver := &fakeDriver{}
	ctl := newMusic(t, driver, tracks(2))

	stranger := Item{ID: "track:99", URL: "http://stream/99.mp3"}
	if err := ctl.PlayItem(stranger, allContext()); !errors.Is(err, ErrNotInQueue) {
		t.Fatalf("expected ErrNotInQueue, got %v", err)
	}
}

func TestSkipNextStopsAtEndWithoutWrapping(t *testing.T) {
	driver := &fakeDriver{}
	items := tracks(3)
	ctl := newMusic(t, driver, items)

	if err := ctl.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}
	for i := 0; i < len(items); i++ {
		ctl.SkipNext()
	}

	if ctl.Playing() {
		t.Fatalf("expected stopped at end")
	}
	current, ok := ctl.Current()
	if !ok || current.ID != "track:3" {
		t.Fatalf("current must stay on last item, got %+v ok=%v", current, ok)
	}
	if _, idx := ctl.Queue(); idx != 2 {
		t.Fatalf("index must not wrap, got %d", idx)
	}
}

func TestSkipNextLoopQueueWraps(t *testing.T) {
	driver := &fakeDriver{}
	items := tracks(2)
	ctl := newMusic(t, driver, items)

	if err := ctl.PlayItem(items[1], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := ctl.SetLoopMode(aya.LoopQueue); err != nil {
		t.Fatalf("loop: %v", err)
	}
	ctl.SkipNext()

	current, _ := ctl.Current()
	if current.ID != "track:1" {
		t.Fatalf("expected wrap to first item, got %s", current.ID)
	}
	if !ctl.Playing() {
		t.Fatalf("expected still playing")
	}
}

func TestVerseEndOfQueueClearsCurrent(t *testing.T) {
	driver := &fakeDriver{}
	items := tracks(2)
	ctl := newVerse(t, driver, items)

	if err := ctl.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}
	ctl.SkipNext()
	ctl.SkipNext()

	if _, ok := ctl.Current(); ok {
		t.Fatalf("expected cleared current at end of chapter")
	}
	if ctl.Playing() {
		t.Fatalf("expected stopped")
	}
	if len(driver.seeks) == 0 || driver.seeks[len(driver.seeks)-1] != 0 {
		t.Fatalf("expected position reset to 0, seeks=%v", driver.seeks)
	}
}

func TestSkipPreviousRestartThreshold(t *testing.T) {
	driver := &fakeDriver{metaKnown: true, duration: 120}
	items := tracks(3)
	ctl := newMusic(t, driver, items)

	if err := ctl.PlayItem(items[1], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}

	driver.position = 5
	ctl.SkipPrevious()
	current, _ := ctl.Current()
	if current.ID != "track:2" {
		t.Fatalf("expected restart, not item change; got %s", current.ID)
	}
	if driver.seeks[len(driver.seeks)-1] != 0 {
		t.Fatalf("expected seek to 0")
	}

	driver.position = 1
	ctl.SkipPrevious()
	current, _ = ctl.Current()
	if current.ID != "track:1" {
		t.Fatalf("expected previous item, got %s", current.ID)
	}
}

func TestSkipPreviousWrapPolicies(t *testing.T) {
	items := tracks(3)

	music := newMusic(t, &fakeDriver{}, items)
	if err := music.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}
	music.SkipPrevious()
	current, _ := music.Current()
	if current.ID != "track:3" {
		t.Fatalf("music player must wrap backward, got %s", current.ID)
	}

	verseDriver := &fakeDriver{}
	verse := newVerse(t, verseDriver, items)
	if err := verse.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}
	verse.SkipPrevious()
	current, _ = verse.Current()
	if current.ID != "track:1" {
		t.Fatalf("verse player must stay on first item, got %s", current.ID)
	}
	if verseDriver.seeks[len(verseDriver.seeks)-1] != 0 {
		t.Fatalf("expected restart at first item")
	}
}

func TestSeekRequiresKnownDuration(t *testing.T) {
	driver := &fakeDriver{}
	items := tracks(1)
	ctl := newMusic(t, driver, items)
	if err := ctl.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}

	ctl.Seek(0.5)
	if len(driver.seeks) != 0 {
		t.Fatalf("seek must no-op without duration")
	}

	driver.metaKnown = true
	driver.duration = 200
	ctl.Seek(0.5)
	if len(driver.seeks) != 1 || driver.seeks[0] != 100 {
		t.Fatalf("expected seek to 100, got %v", driver.seeks)
	}
}

func TestSetVolumePersistsAcrossReload(t *testing.T) {
	root := t.TempDir()
	store, err := prefs.Open(root, "music")
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	driver := &fakeDriver{}
	ctl := New(driver, &staticQueue{}, store, nil, Options{})

	if err := ctl.SetVolume(0.4); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	if driver.volume != 0.4 || ctl.Volume() != 0.4 {
		t.Fatalf("volume not applied")
	}

	// Simulated reload: a fresh controller over the same store.
	reloadedStore, err := prefs.Open(root, "music")
	if err != nil {
		t.Fatalf("prefs reopen: %v", err)
	}
	reloadedDriver := &fakeDriver{}
	reloaded := New(reloadedDriver, &staticQueue{}, reloadedStore, nil, Options{})
	if reloaded.Volume() != 0.4 || reloadedDriver.volume != 0.4 {
		t.Fatalf("expected restored volume, got %v", reloaded.Volume())
	}
}

func TestCycleLoopMode(t *testing.T) {
	ctl := newMusic(t, &fakeDriver{}, nil)

	want := []string{aya.LoopQueue, aya.LoopOne, aya.LoopOff, aya.LoopQueue}
	for _, expected := range want {
		got, err := ctl.CycleLoopMode()
		if err != nil {
			t.Fatalf("cycle: %v", err)
		}
		if got != expected {
			t.Fatalf("expected %s, got %s", expected, got)
		}
	}
}

func TestHandleEndedLoopOneRestarts(t *testing.T) {
	driver := &fakeDriver{}
	items := tracks(2)
	ctl := newMusic(t, driver, items)

	if err := ctl.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := ctl.SetLoopMode(aya.LoopOne); err != nil {
		t.Fatalf("loop: %v", err)
	}

	ctl.HandleEnded()
	current, _ := ctl.Current()
	if current.ID != "track:1" {
		t.Fatalf("loop-one must not advance, got %s", current.ID)
	}
	if driver.seeks[len(driver.seeks)-1] != 0 {
		t.Fatalf("expected restart at 0")
	}
	if !ctl.Playing() {
		t.Fatalf("expected playing")
	}
}

func TestPlayRejectionForcesPausedState(t *testing.T) {
	driver := &fakeDriver{playErr: errors.New("autoplay policy")}
	items := tracks(1)
	ctl := newMusic(t, driver, items)

	if err := ctl.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play must swallow driver rejection, got %v", err)
	}
	if ctl.Playing() {
		t.Fatalf("playing must never desync from the driver")
	}
}

func TestSourceSwapOnlyOnURLChange(t *testing.T) {
	driver := &fakeDriver{}
	shared := []Item{
		{ID: "a", URL: "http://stream/same.mp3"},
		{ID: "b", URL: "http://stream/same.mp3"},
	}
	ctl := newMusic(t, driver, shared)

	if err := ctl.PlayItem(shared[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}
	ctl.SkipNext()
	if driver.setSources != 1 {
		t.Fatalf("expected single source swap for identical URL, got %d", driver.setSources)
	}
}

func TestPreloadTracksNextItem(t *testing.T) {
	driver := &fakeDriver{}
	items := tracks(3)
	ctl := newVerse(t, driver, items)
	preloader := &fakePreloader{}
	ctl.SetPreloader(preloader)

	if err := ctl.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(preloader.warmed) != 1 || preloader.warmed[0] != items[1].URL {
		t.Fatalf("expected next item warmed, got %v", preloader.warmed)
	}

	ctl.SkipNext()
	if len(preloader.warmed) != 2 || preloader.warmed[1] != items[2].URL {
		t.Fatalf("expected preload to follow current item, got %v", preloader.warmed)
	}
	if preloader.discards != 2 {
		t.Fatalf("stale preloads must be discarded, got %d", preloader.discards)
	}
}

func TestBufferingFollowsDriverSignals(t *testing.T) {
	driver := &fakeDriver{}
	items := tracks(1)
	ctl := newMusic(t, driver, items)
	if err := ctl.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}

	ctl.HandleWaiting()
	if state := ctl.Snapshot(); !state.Playback.Buffering {
		t.Fatalf("expected buffering")
	}
	ctl.HandlePlaying()
	if state := ctl.Snapshot(); state.Playback.Buffering {
		t.Fatalf("expected buffering cleared")
	}
}

func TestToggleFavoriteDoesNotTouchQueue(t *testing.T) {
	driver := &fakeDriver{}
	items := tracks(2)
	ctl := newMusic(t, driver, items)
	if err := ctl.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}

	on, err := ctl.ToggleFavorite(items[1].URL)
	if err != nil || !on {
		t.Fatalf("toggle: %v %v", on, err)
	}
	if queue, _ := ctl.Queue(); len(queue) != 2 {
		t.Fatalf("favorites must not mutate the live queue")
	}
	if !ctl.IsFavorite(items[1].URL) {
		t.Fatalf("expected favorite recorded")
	}
}

func TestDeepLinkCallback(t *testing.T) {
	driver := &fakeDriver{}
	items := tracks(2)
	ctl := newVerse(t, driver, items)

	var seen []string
	ctl.OnItemChange(func(itemID string) { seen = append(seen, itemID) })

	if err := ctl.PlayItem(items[0], allContext()); err != nil {
		t.Fatalf("play: %v", err)
	}
	ctl.SkipNext()
	ctl.SkipNext() // terminal: clears current

	if len(seen) != 3 || seen[0] != "track:1" || seen[1] != "track:2" || seen[2] != "" {
		t.Fatalf("unexpected deep-link updates: %v", seen)
	}
}
