package main

import (
	"context"

	"github.com/spf13/cobra"
)

func queueCommand() *cobra.Command {
	var from int64
	var count int64

	cmd := &cobra.Command{
		Use:   "queue [player]",
		Short: "List the play queue",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.QueueList(ctx, selectorArg(args), from, count)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().Int64Var(&from, "from", 0, "start index")
	cmd.Flags().Int64Var(&count, "count", 100, "max entries")

	return cmd
}
