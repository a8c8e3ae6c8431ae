package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayaproj/aya/internal/prefs"
	"github.com/ayaproj/aya/internal/search"
)

func searchCommand() *cobra.Command {
	var (
		highlight bool
		live      bool
		window    time.Duration
		show      []string
		hide      []string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search scripture, media, and newsletters",
		Long: "Search classifies the query first: chapter:verse, chapter:verse-verse, " +
			"and bare chapter numbers resolve as scripture references; anything else " +
			"fans out as free text across all sources.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			query := strings.Join(args, " ")

			hidden, err := hiddenSubtypes(show, hide)
			if err != nil {
				return err
			}

			if live {
				return liveSearch(app, highlight, window, hidden)
			}

			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			result, err := app.service.Query(ctx, query, highlight)
			if err != nil {
				return err
			}
			result.Hidden = hidden
			return app.printer.Print(result)
		},
	}

	cmd.Flags().BoolVar(&highlight, "highlight", false, "mark matched terms in results")
	cmd.Flags().BoolVar(&live, "live", false, "read queries from stdin, one per line")
	cmd.Flags().DurationVar(&window, "window", search.DefaultWindow, "debounce window for --live")
	cmd.Flags().StringSliceVar(&show, "show", nil, "unhide result subtypes (persisted)")
	cmd.Flags().StringSliceVar(&hide, "hide", nil, "hide result subtypes (persisted)")

	return cmd
}

// hiddenSubtypes applies --show/--hide to the persisted filter set and
// returns the resulting hidden subtypes. The filter only affects display;
// the panel counts always describe the unfiltered result set.
func hiddenSubtypes(show []string, hide []string) (map[string]bool, error) {
	root, err := prefs.DefaultRoot()
	if err != nil {
		return nil, err
	}
	store, err := prefs.Open(root, "search")
	if err != nil {
		return nil, err
	}

	for _, subtype := range hide {
		subtype = strings.ToLower(strings.TrimSpace(subtype))
		if subtype == "" || store.Contains("hidden_subtypes", subtype) {
			continue
		}
		if _, err := store.Toggle("hidden_subtypes", subtype); err != nil {
			return nil, err
		}
	}
	for _, subtype := range show {
		subtype = strings.ToLower(strings.TrimSpace(subtype))
		if subtype == "" || !store.Contains("hidden_subtypes", subtype) {
			continue
		}
		if _, err := store.Toggle("hidden_subtypes", subtype); err != nil {
			return nil, err
		}
	}
	return store.GetSet("hidden_subtypes"), nil
}

// liveSearch reads one query per line and debounces them, so paste bursts
// and incremental typing issue a single search. A slow reply for an old
// line never overwrites the output of a newer one.
func liveSearch(app *app, highlight bool, window time.Duration, hidden map[string]bool) error {
	ctx := context.Background()
	debouncer := search.NewDebouncer(window, func(ctx context.Context, query string) {
		result, err := app.service.Query(ctx, query, highlight)
		if !search.Latest(ctx) {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		result.Hidden = hidden
		_ = app.printer.Print(result)
	})

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		debouncer.Submit(ctx, line)
	}
	if err := scanner.Err(); err != nil {
		debouncer.Flush()
		return err
	}
	// The last line before EOF still gets its search.
	debouncer.Drain(ctx)
	return nil
}

func wordsCommand() *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "words <query>",
		Short: "Word-by-word occurrences grouped by root",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.WordByWord(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 0, "occurrence cap (0 uses the source default)")
	return cmd
}

func chaptersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chapters",
		Short: "List the chapter index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Chapters(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
