package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayaproj/aya/pkg/aya"
)

func playCommand() *cobra.Command {
	var (
		player   string
		scope    string
		category string
	)

	cmd := &cobra.Command{
		Use:   "play <item-id>",
		Short: "Play an item, optionally rebuilding the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			var playCtx *aya.PlayContext
			if scope != "" {
				playCtx = &aya.PlayContext{Scope: scope, Category: category}
			}
			return app.service.PlayItem(ctx, player, args[0], playCtx)
		},
	}

	cmd.Flags().StringVarP(&player, "player", "p", "", "player selector")
	cmd.Flags().StringVar(&scope, "scope", "", "queue scope (all|category|favorites|chapter)")
	cmd.Flags().StringVar(&category, "category", "", "category for scope=category")

	return cmd
}

func toggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [player]",
		Short: "Toggle playback",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			return app.service.Toggle(ctx, selectorArg(args))
		},
	}
}

func nextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "next [player]",
		Short: "Skip to next item",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			return app.service.Next(ctx, selectorArg(args))
		},
	}
}

func prevCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prev [player]",
		Short: "Skip to previous item or restart the current one",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			return app.service.Prev(ctx, selectorArg(args))
		},
	}
}

func seekCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seek [player] <fraction|percent%>",
		Short: "Seek to a stream position",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			selector := ""
			seekArg := args[0]
			if len(args) == 2 {
				selector = args[0]
				seekArg = args[1]
			}
			return app.service.Seek(ctx, selector, seekArg)
		},
	}
}

func volumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vol [player] [<0..100>|<+/-n>]",
		Short: "Set volume",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			selector := ""
			arg := args[0]
			if len(args) == 2 {
				selector = args[0]
				arg = args[1]
			}
			if len(args) == 1 && !looksLikeVolume(arg) {
				return cmd.Usage()
			}
			return app.service.SetVolume(ctx, selector, arg)
		},
	}
}

func loopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loop [player] [off|queue|one]",
		Short: "Set or cycle the loop mode",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			selector := ""
			mode := ""
			switch len(args) {
			case 1:
				if looksLikeLoopMode(args[0]) {
					mode = args[0]
				} else {
					selector = args[0]
				}
			case 2:
				selector = args[0]
				mode = args[1]
			}

			if mode != "" {
				return app.service.SetLoop(ctx, selector, mode)
			}
			result, err := app.service.CycleLoop(ctx, selector)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	return cmd
}

func favCommand() *cobra.Command {
	var player string

	cmd := &cobra.Command{
		Use:   "fav <item-key>",
		Short: "Toggle an item in the favorites set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Favorite(ctx, player, args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().StringVarP(&player, "player", "p", "", "player selector")
	return cmd
}

func selectorArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

func looksLikeVolume(arg string) bool {
	if arg == "" {
		return false
	}
	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		return true
	}
	return arg[0] >= '0' && arg[0] <= '9'
}

func looksLikeLoopMode(arg string) bool {
	switch strings.ToLower(arg) {
	case "off", "queue", "one":
		return true
	}
	return false
}
