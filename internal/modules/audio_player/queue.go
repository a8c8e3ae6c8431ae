package audioplayer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ayaproj/aya/internal/player"
	"github.com/ayaproj/aya/pkg/aya"
)

// catalog resolves item ids and builds queues for one player role.
type catalog interface {
	player.QueueSource
	Resolve(itemID string) (player.Item, error)
}

// trackCatalog builds music queues from a tracks library node. Queue order
// always follows the catalog's own listing order, also for favorites.
type trackCatalog struct {
	bus       *busRequester
	libraryID string
	favorites func() []string
}

func (c *trackCatalog) BuildQueue(playCtx aya.PlayContext) ([]player.Item, error) {
	switch playCtx.Scope {
	case aya.ScopeAll, "":
		return c.list("")
	case aya.ScopeCategory:
		if playCtx.Category == "" {
			return nil, errors.New("category scope requires a category")
		}
		return c.list(playCtx.Category)
	case aya.ScopeFavorites:
		all, err := c.list("")
		if err != nil {
			return nil, err
		}
		keep := map[string]bool{}
		for _, key := range c.favorites() {
			keep[key] = true
		}
		items := make([]player.Item, 0, len(keep))
		for _, item := range all {
			if keep[item.ID] {
				items = append(items, item)
			}
		}
		return items, nil
	case aya.ScopeExplicit:
		items := make([]player.Item, 0, len(playCtx.ItemIDs))
		for _, id := range playCtx.ItemIDs {
			item, err := c.Resolve(id)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported scope %q", playCtx.Scope)
	}
}

func (c *trackCatalog) list(category string) ([]player.Item, error) {
	var reply aya.TracksListReply
	if err := c.bus.request(c.libraryID, "tracks.list", aya.TracksListBody{Category: category}, &reply); err != nil {
		return nil, err
	}
	items := make([]player.Item, 0, len(reply.Tracks))
	for _, track := range reply.Tracks {
		items = append(items, trackItem(track))
	}
	return items, nil
}

func (c *trackCatalog) Resolve(itemID string) (player.Item, error) {
	var reply aya.TrackResolveReply
	if err := c.bus.request(c.libraryID, "tracks.resolve", aya.TrackResolveBody{ItemID: itemID}, &reply); err != nil {
		return player.Item{}, err
	}
	return trackItem(reply.Track), nil
}

func trackItem(track aya.Track) player.Item {
	return player.Item{
		ID:       track.ItemID,
		URL:      track.URL,
		Title:    track.Title,
		Artist:   track.Artist,
		Category: track.Category,
	}
}

// verseCatalog builds recitation queues from a scripture source node. Item
// ids are "chapter:verse" keys.
type verseCatalog struct {
	bus         *busRequester
	scriptureID string
}

func (c *verseCatalog) BuildQueue(playCtx aya.PlayContext) ([]player.Item, error) {
	switch playCtx.Scope {
	case aya.ScopeChapter, "":
		if playCtx.Chapter <= 0 {
			return nil, errors.New("chapter scope requires a chapter")
		}
		return c.chapter(playCtx.Chapter)
	case aya.ScopeExplicit:
		items := make([]player.Item, 0, len(playCtx.ItemIDs))
		for _, id := range playCtx.ItemIDs {
			item, err := c.Resolve(id)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported scope %q", playCtx.Scope)
	}
}

func (c *verseCatalog) chapter(chapter int) ([]player.Item, error) {
	var reply aya.ScriptureLookupReply
	body := aya.ScriptureLookupBody{Chapter: chapter, Audio: true}
	if err := c.bus.request(c.scriptureID, "scripture.lookup", body, &reply); err != nil {
		return nil, err
	}
	if reply.Type == aya.LookupNotFound {
		return nil, fmt.Errorf("chapter %d not found", chapter)
	}
	items := make([]player.Item, 0, len(reply.Verses))
	for _, verse := range reply.Verses {
		items = append(items, verseItem(reply.ChapterName, verse))
	}
	return items, nil
}

func (c *verseCatalog) Resolve(itemID string) (player.Item, error) {
	chapter, verse, err := parseVerseKey(itemID)
	if err != nil {
		return player.Item{}, err
	}
	var reply aya.ScriptureLookupReply
	body := aya.ScriptureLookupBody{Chapter: chapter, VerseStart: verse, Audio: true}
	if err := c.bus.request(c.scriptureID, "scripture.lookup", body, &reply); err != nil {
		return player.Item{}, err
	}
	if reply.Type == aya.LookupNotFound || len(reply.Verses) == 0 {
		return player.Item{}, fmt.Errorf("verse %s not found", itemID)
	}
	return verseItem(reply.ChapterName, reply.Verses[0]), nil
}

func verseItem(chapterName string, verse aya.ScriptureVerse) player.Item {
	return player.Item{
		ID:      fmt.Sprintf("%d:%d", verse.Chapter, verse.Verse),
		URL:     verse.AudioURL,
		Title:   fmt.Sprintf("%d:%d", verse.Chapter, verse.Verse),
		Artist:  chapterName,
		Chapter: verse.Chapter,
		Verse:   verse.Verse,
	}
}

func parseVerseKey(key string) (int, int, error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid verse key %q", key)
	}
	chapter, err := strconv.Atoi(parts[0])
	if err != nil || chapter <= 0 {
		return 0, 0, fmt.Errorf("invalid verse key %q", key)
	}
	verse, err := strconv.Atoi(parts[1])
	if err != nil || verse <= 0 {
		return 0, 0, fmt.Errorf("invalid verse key %q", key)
	}
	return chapter, verse, nil
}

// httpPreloader warms the next stream by fetching its head so the audio
// backend finds it in local caches. At most one warm is in flight.
type httpPreloader struct {
	log    *zap.Logger
	client *http.Client
	cancel context.CancelFunc
}

func newHTTPPreloader(log *zap.Logger) *httpPreloader {
	return &httpPreloader{log: log, client: &http.Client{}}
}

func (p *httpPreloader) Warm(url string) {
	p.Discard()
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return
		}
		req.Header.Set("Range", "bytes=0-262143")
		resp, err := p.client.Do(req)
		if err != nil {
			p.log.Debug("preload fetch failed", zap.String("url", url), zap.Error(err))
			return
		}
		defer resp.Body.Close()
		buf := make([]byte, 32*1024)
		for {
			if _, err := resp.Body.Read(buf); err != nil {
				return
			}
		}
	}()
}

func (p *httpPreloader) Discard() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
