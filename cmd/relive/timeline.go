package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coreman2200/relive/internal/app"
	"github.com/coreman2200/relive/internal/timeline"
)

func newTimelineCommand(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print the records in playback order",
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := app.LoadRecords(root.cfg.Records.Path)
			if err != nil {
				return err
			}
			tl := timeline.Sort(recs)
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(tl.Records())
			case "text":
				return printTimeline(out, tl)
			}
			return fmt.Errorf("invalid format %q: must be text or json", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|json)")
	return cmd
}

func printTimeline(w io.Writer, tl timeline.Timeline) error {
	if tl.Empty() {
		_, err := fmt.Fprintln(w, "no records")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDATE\tLAT\tLNG\tCAPTION")
	for i, r := range tl.Records() {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\t%s\n", i+1, r.EffectiveTime().Format("2006-01-02"), r.Lat, r.Lng, r.Caption)
	}
	return tw.Flush()
}

func newConfigCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(root.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
