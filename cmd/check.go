package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cros-updates/cros-updates/internal/poller"
	"github.com/spf13/cobra"
)

type checkOutput struct {
	Device  string `json:"device"`
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
	EOL     string `json:"eol,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newCheckCommand(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Print the current version of every configured device without storing or notifying",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "json" {
				return fmt.Errorf("unsupported output format %q", output)
			}

			cfg := opts.cm.Config()
			p := poller.New(newFetcher(cfg), newNormalizer(cfg, opts.log), nil, nil,
				poller.WithConcurrency(cfg.Concurrency),
				poller.WithLogger(opts.log),
			)

			results, err := p.Check(cmd.Context(), opts.cm.Devices())
			if output == "json" {
				if werr := writeCheckJSON(cmd.OutOrStdout(), results); werr != nil {
					return werr
				}
			} else {
				writeCheckTable(cmd.OutOrStdout(), results)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func toCheckOutput(r poller.CheckResult) checkOutput {
	out := checkOutput{
		Device:  r.Device.ID,
		Product: r.Fingerprint.Product,
		Version: r.Fingerprint.Version,
		EOL:     r.Fingerprint.EOL,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

func writeCheckJSON(w io.Writer, results []poller.CheckResult) error {
	out := make([]checkOutput, 0, len(results))
	for _, r := range results {
		out = append(out, toCheckOutput(r))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeCheckTable(w io.Writer, results []poller.CheckResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tPRODUCT\tVERSION\tEOL")
	for _, r := range results {
		o := toCheckOutput(r)
		if o.Error != "" {
			fmt.Fprintf(tw, "%s\t-\t-\t%s\n", o.Device, o.Error)
			continue
		}
		eol := o.EOL
		if eol == "" {
			eol = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Device, o.Product, o.Version, eol)
	}
	_ = tw.Flush()
}
