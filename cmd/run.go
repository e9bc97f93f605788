package main

import (
	"fmt"
	"io"

	"github.com/cros-updates/cros-updates/internal/poller"
	"github.com/spf13/cobra"
)

func newRunCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Check every configured device once, store new versions and send notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := buildComponents(ctx, opts.cm.Config(), opts.log)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					opts.log.Warn().Err(err).Msg("Failed to release resources")
				}
			}()

			result, err := c.poller.Run(ctx, opts.cm.Devices())
			printSummary(cmd.OutOrStdout(), result)
			return err
		},
	}
}

func printSummary(w io.Writer, result poller.RunResult) {
	for _, o := range result.Outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(w, "%s: failed at %s: %v\n", o.Device.ID, o.FailedAt, o.Err)
		case o.Message != "":
			fmt.Fprintln(w, o.Message)
		}
	}

	counts := result.Counts()
	fmt.Fprintf(w, "updated=%d unchanged=%d first_observation=%d failed=%d\n",
		counts.Updated, counts.Unchanged, counts.FirstObservation, counts.Failed)
}
