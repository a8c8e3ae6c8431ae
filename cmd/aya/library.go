package main

import (
	"context"

	"github.com/spf13/cobra"
)

func tracksCommand() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "tracks [library]",
		Short: "List the music catalog",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.TracksList(ctx, selectorArg(args), category)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	return cmd
}

func newslettersCommand() *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "newsletters",
		Short: "List recent newsletter issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.NewsletterList(ctx, limit)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 20, "max issues")
	return cmd
}
