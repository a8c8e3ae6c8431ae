package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pterm/pterm"

	"github.com/ayaproj/aya/internal/core"
	"github.com/ayaproj/aya/pkg/aya"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct{}

// Print renders human output.
func (HumanPrinter) Print(v any) error {
	switch data := v.(type) {
	case core.NodesResult:
		return printNodes(data)
	case core.StatusResult:
		return printStatus(data)
	case core.QueueResult:
		return printQueue(data)
	case core.LoopResult:
		_, err := fmt.Fprintf(os.Stdout, "loop %s\n", data.Mode)
		return err
	case core.FavoriteResult:
		return printFavorite(data)
	case core.SearchResult:
		return printSearch(data)
	case core.LookupResult:
		return printLookup(data.Reply)
	case core.WordResult:
		return printWords(data)
	case core.ChaptersResult:
		return printChapters(data)
	case core.TracksResult:
		return printTracks(data)
	case core.NewsletterListResult:
		return printNewsletters(data)
	case core.RawResult:
		return printRaw(data)
	default:
		_, err := fmt.Fprintln(os.Stdout, "ok")
		return err
	}
}

func printNodes(result core.NodesResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "NAME\tKIND\tROLE\tNODE_ID"); err != nil {
		return err
	}
	for _, node := range result.Nodes {
		_, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", node.Name, node.Kind, node.Role, node.NodeID)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printStatus(result core.StatusResult) error {
	status := "unknown"
	position := ""
	volume := ""
	item := ""
	queue := ""

	if result.State.Playback != nil {
		status = result.State.Playback.Status
		if result.State.Playback.Buffering {
			status += " (buffering)"
		}
		position = formatPosition(result.State.Playback.Position, result.State.Playback.Duration)
		volume = fmt.Sprintf("vol %d%%", int(result.State.Playback.Volume*100+0.5))
		if result.State.Playback.LoopMode != "" && result.State.Playback.LoopMode != aya.LoopOff {
			volume += fmt.Sprintf("  loop %s", result.State.Playback.LoopMode)
		}
	}
	if result.State.Current != nil {
		item = formatItem(result.State.Current)
	}
	if result.State.Queue != nil {
		queue = fmt.Sprintf("Queue: %d items (index %d)", result.State.Queue.Length, result.State.Queue.Index)
	}

	line := strings.TrimSpace(fmt.Sprintf("%s  [%s]  %s  %s  %s", result.Player.Name, status, item, position, volume))
	if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
		return err
	}
	if queue != "" {
		_, err := fmt.Fprintln(os.Stdout, queue)
		return err
	}
	return nil
}

func printQueue(result core.QueueResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "INDEX\tTITLE\tARTIST\tITEM_ID"); err != nil {
		return err
	}
	for idx, entry := range result.Queue.Entries {
		marker := " "
		if int64(idx) == result.Queue.Index {
			marker = "*"
		}
		_, err := fmt.Fprintf(tw, "%s%d\t%s\t%s\t%s\n", marker, idx, entry.Title, entry.Artist, entry.ItemID)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printFavorite(result core.FavoriteResult) error {
	verb := "removed from"
	if result.Favorite {
		verb = "added to"
	}
	_, err := fmt.Fprintf(os.Stdout, "%s %s favorites (%d total)\n", result.ItemKey, verb, result.Total)
	return err
}

func printSearch(result core.SearchResult) error {
	if result.Lookup != nil {
		return printLookup(*result.Lookup)
	}
	if result.Results == nil {
		_, err := fmt.Fprintln(os.Stdout, "no results")
		return err
	}
	set := result.Results

	pterm.DefaultSection.Printf("Scripture (%s)", subtypeSummary(set.SubtypeCounts))
	if set.Scripture.Failed() {
		pterm.Error.Printfln("scripture search failed: %v", set.Scripture.Err)
	} else {
		for _, hit := range set.Scripture.Hits {
			if result.Hidden[hit.Subtype] {
				continue
			}
			ref := fmt.Sprintf("%d", hit.Chapter)
			if hit.Verse > 0 {
				ref = fmt.Sprintf("%d:%d", hit.Chapter, hit.Verse)
			}
			fmt.Fprintf(os.Stdout, "  [%s] %s  %s\n", hit.Subtype, ref, hit.Text)
		}
	}

	pterm.DefaultSection.Printf("Media (%s)", categorySummary(set.CategoryCounts))
	if set.Media.Failed() {
		pterm.Error.Printfln("media search failed: %v", set.Media.Err)
	} else {
		for _, hit := range set.Media.Hits {
			fmt.Fprintf(os.Stdout, "  [%s] %s  %s\n", hit.Category, hit.Title, hit.Snippet)
		}
	}

	pterm.DefaultSection.Printf("Newsletters (%d)", len(set.Newsletters.Hits))
	if set.Newsletters.Failed() {
		pterm.Error.Printfln("newsletter search failed: %v", set.Newsletters.Err)
	} else {
		for _, hit := range set.Newsletters.Hits {
			fmt.Fprintf(os.Stdout, "  %s  %s\n", hit.Title, hit.Snippet)
		}
	}
	return nil
}

func printLookup(reply aya.ScriptureLookupReply) error {
	if reply.ChapterName != "" {
		if _, err := fmt.Fprintf(os.Stdout, "%d. %s\n", reply.Chapter, reply.ChapterName); err != nil {
			return err
		}
	}
	for _, verse := range reply.Verses {
		if _, err := fmt.Fprintf(os.Stdout, "%d:%d  %s\n", verse.Chapter, verse.Verse, verse.Text); err != nil {
			return err
		}
	}
	return nil
}

func printWords(result core.WordResult) error {
	total := fmt.Sprintf("%d", result.Reply.Total)
	if result.Reply.Capped {
		total = fmt.Sprintf("%d+", result.Reply.Total)
	}
	if _, err := fmt.Fprintf(os.Stdout, "%s occurrences for %q\n", total, result.Query); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ROOT\tWORD\tCOUNT"); err != nil {
		return err
	}
	for _, group := range result.Reply.Groups {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%d\n", group.Root, group.Word, group.Count); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printChapters(result core.ChaptersResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "NUM\tNAME\tVERSES"); err != nil {
		return err
	}
	for _, ch := range result.Chapters {
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%d\n", ch.Number, ch.Name, ch.Verses); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printTracks(result core.TracksResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "TITLE\tARTIST\tCATEGORY\tITEM_ID"); err != nil {
		return err
	}
	for _, track := range result.Reply.Tracks {
		_, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", track.Title, track.Artist, track.Category, track.ItemID)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printNewsletters(result core.NewsletterListResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "DATE\tTITLE\tLINK"); err != nil {
		return err
	}
	for _, issue := range result.Issues {
		date := ""
		if issue.Published > 0 {
			date = time.Unix(issue.Published, 0).Format("2006-01-02")
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", date, issue.Title, issue.Link); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printRaw(result core.RawResult) error {
	raw, err := rawBytes(result.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(raw))
	return err
}

func rawBytes(data any) ([]byte, error) {
	switch val := data.(type) {
	case json.RawMessage:
		return val, nil
	case []byte:
		return val, nil
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func subtypeSummary(counts map[string]int) string {
	order := []string{aya.SubtypeText, aya.SubtypeSubtitle, aya.SubtypeFootnote, aya.SubtypeChapter, aya.SubtypeWord}
	parts := make([]string, 0, len(order))
	for _, subtype := range order {
		if n := counts[subtype]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", subtype, n))
		}
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, ", ")
}

func categorySummary(counts map[string]int) string {
	categories := make([]string, 0, len(counts))
	for category := range counts {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	parts := make([]string, 0, len(categories))
	for _, category := range categories {
		parts = append(parts, fmt.Sprintf("%s %d", category, counts[category]))
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, ", ")
}

func formatPosition(pos, dur float64) string {
	if pos == 0 && dur == 0 {
		return ""
	}
	if dur > 0 {
		percent := int((pos / dur) * 100)
		return fmt.Sprintf("%s / %s (%d%%)", formatSeconds(pos), formatSeconds(dur), percent)
	}
	return formatSeconds(pos)
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	secs := int(seconds)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func formatItem(current *aya.CurrentItemState) string {
	if current.Title != "" && current.Artist != "" {
		return fmt.Sprintf("%s - %s", current.Artist, current.Title)
	}
	if current.Title != "" {
		return current.Title
	}
	return current.ItemID
}
