package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/flightdata-analyzer/ingest"
	"github.com/signalsfoundry/flightdata-analyzer/internal/logging"
	"github.com/signalsfoundry/flightdata-analyzer/outage"
	"github.com/signalsfoundry/flightdata-analyzer/playback"
	"github.com/signalsfoundry/flightdata-analyzer/session"
	"github.com/signalsfoundry/flightdata-analyzer/track"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "analyzer",
		Short: "Flight telemetry validation, outage analysis, and replay",
		Long: `analyzer works on recorded flight telemetry CSV files: it validates them
against the required schema, classifies columns into subsystems and
communication links, finds link outages against a margin threshold, and
replays missions offline.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log validation progress")

	cmd.AddCommand(validateCmd(&verbose))
	cmd.AddCommand(schemaCmd(&verbose))
	cmd.AddCommand(outagesCmd(&verbose))
	cmd.AddCommand(summaryCmd(&verbose))
	cmd.AddCommand(replayCmd(&verbose))
	return cmd
}

func newLoader(verbose bool) *ingest.Loader {
	log := logging.Noop()
	if verbose {
		log = logging.NewFromEnv()
	}
	return ingest.NewLoader(ingest.WithLogger(log))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// validateCmd loads a file and prints its acceptance report.
func validateCmd(verbose *bool) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a telemetry CSV and print the acceptance report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newLoader(*verbose).LoadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rep := res.Report
			if output == "json" {
				return printJSON(cmd, rep)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Dataset %s (%s)\n", rep.DatasetID, rep.Source)
			fmt.Fprintf(out, "  Rows:       %d total, %d accepted, %d rejected, %d duplicates\n",
				rep.TotalRows, rep.AcceptedRows, rep.RejectedRows, rep.DuplicateRows)
			fmt.Fprintf(out, "  Redacted:   %d cells\n", rep.RedactedCellCount)
			fmt.Fprintf(out, "  Subsystems: %s\n", strings.Join(rep.DetectedSubsystems, ", "))
			fmt.Fprintf(out, "  Links:      %s\n", strings.Join(rep.DetectedLinks, ", "))
			if !rep.Empty {
				fmt.Fprintf(out, "  Span:       %s .. %s\n",
					rep.StartTime.Format(time.RFC3339), rep.EndTime.Format(time.RFC3339))
			}
			for _, w := range rep.Warnings {
				fmt.Fprintf(out, "  warning: row %d: %s\n", w.Row, w.Reason)
			}
			if rep.WarningsTruncated {
				fmt.Fprintln(out, "  (further warnings truncated)")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	return cmd
}

// schemaCmd prints the subsystem and link classification of a file.
func schemaCmd(verbose *bool) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema [file]",
		Short: "Show detected subsystems and communication links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newLoader(*verbose).LoadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			subsystems := res.Registry.Subsystems()
			links := res.Registry.Links()
			if output == "json" {
				return printJSON(cmd, map[string]any{
					"subsystems": subsystems,
					"links":      links,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Subsystems (%d)\n", len(subsystems))
			for _, d := range subsystems {
				fmt.Fprintf(out, "  %-12s %s\n", d.ID, strings.Join(d.Fields, ", "))
			}
			fmt.Fprintf(out, "Links (%d)\n", len(links))
			for _, d := range links {
				fmt.Fprintf(out, "  %-12s kind=%-8s %s\n", d.ID, d.Kind, strings.Join(d.Fields, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	return cmd
}

// outagesCmd computes outage intervals for one link or stats for all.
func outagesCmd(verbose *bool) *cobra.Command {
	var link string
	var threshold float64
	var output string

	cmd := &cobra.Command{
		Use:   "outages [file]",
		Short: "Find link outages below a margin threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newLoader(*verbose).LoadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			analyzer := outage.NewAnalyzer(res.Store, res.Registry)
			out := cmd.OutOrStdout()

			if link == "" {
				stats, err := analyzer.Summary(threshold)
				if err != nil {
					return err
				}
				if output == "json" {
					return printJSON(cmd, stats)
				}
				fmt.Fprintf(out, "Outages below %.1f dB\n", threshold)
				for _, st := range stats {
					open := ""
					if st.OpenEnded {
						open = " (ongoing at end of data)"
					}
					fmt.Fprintf(out, "  %-16s %d outages, %s total, %s longest%s\n",
						st.LinkID, st.Count, st.Total, st.Longest, open)
				}
				return nil
			}

			intervals, err := analyzer.ComputeOutages(link, threshold)
			if err != nil {
				return err
			}
			if output == "json" {
				return printJSON(cmd, intervals)
			}
			fmt.Fprintf(out, "%s below %.1f dB: %d outages\n", link, threshold, len(intervals))
			for _, iv := range intervals {
				if iv.Open() {
					fmt.Fprintf(out, "  %s .. (end of data)\n", iv.StartTime.Format(time.RFC3339))
					continue
				}
				fmt.Fprintf(out, "  %s .. %s (%s)\n",
					iv.StartTime.Format(time.RFC3339), iv.EndTime.Format(time.RFC3339),
					iv.EndTime.Sub(iv.StartTime))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&link, "link", "l", "", "Link to analyze (default: all links)")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", session.DefaultThresholdDB, "Margin threshold in dB")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	return cmd
}

// summaryCmd prints the flight track summary for a file.
func summaryCmd(verbose *bool) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "summary [file]",
		Short: "Summarize the flown track: distance, speed, altitude envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newLoader(*verbose).LoadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sum := track.Summarize(res.Store)
			if output == "json" {
				return printJSON(cmd, sum)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Track summary (%d samples)\n", sum.Samples)
			if sum.Samples == 0 {
				return nil
			}
			fmt.Fprintf(out, "  Span:         %s .. %s (%.0fs)\n",
				sum.StartTime.Format(time.RFC3339), sum.EndTime.Format(time.RFC3339), sum.DurationSeconds)
			fmt.Fprintf(out, "  Path:         %.1f km flown, %.1f km displacement\n",
				sum.TotalPathKm, sum.DisplacementKm)
			fmt.Fprintf(out, "  Speed:        %.1f km/h average, %.1f km/h peak\n",
				sum.AvgSpeedKmh, sum.MaxSpeedKmh)
			fmt.Fprintf(out, "  Altitude:     %.0f .. %.0f ft\n", sum.MinAltitudeFt, sum.MaxAltitudeFt)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	return cmd
}

// replayCmd advances a playback engine tick by tick and prints each sample
// transition. The loop is driven by simulated wall time, so it completes
// immediately regardless of speed.
func replayCmd(verbose *bool) *cobra.Command {
	var speed float64
	var tick time.Duration
	var link string
	var threshold float64

	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Replay a mission offline and print link status transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newLoader(*verbose).LoadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Store.Len() == 0 {
				return fmt.Errorf("%s: no accepted rows to replay", args[0])
			}
			if tick <= 0 {
				return fmt.Errorf("tick must be positive, got %s", tick)
			}
			if link == "" {
				if ids := res.Registry.LinkIDs(); len(ids) > 0 {
					link = ids[0]
				}
			}
			analyzer := outage.NewAnalyzer(res.Store, res.Registry)

			engine := playback.NewEngine(res.Store)
			if err := engine.SetSpeed(speed); err != nil {
				return err
			}
			engine.Play()

			out := cmd.OutOrStdout()
			lastCursor := -1
			for {
				snap := engine.Snapshot()
				if snap.State.Cursor != lastCursor {
					lastCursor = snap.State.Cursor
					line := snap.State.CurrentTime.Format(time.RFC3339)
					if snap.Record != nil {
						line += fmt.Sprintf("  lat=%.4f lon=%.4f alt=%.0fft",
							snap.Record.Position.LatitudeDeg,
							snap.Record.Position.LongitudeDeg,
							snap.Record.Position.AltitudeFt)
					}
					if link != "" {
						if st, err := analyzer.StatusAt(link, threshold, snap.State.CurrentTime); err == nil {
							cond := "up"
							switch {
							case st.Redacted:
								cond = "redacted"
							case st.InOutage:
								cond = "OUTAGE"
							}
							line += fmt.Sprintf("  %s=%s", link, cond)
						}
					}
					fmt.Fprintln(out, line)
				}
				if snap.State.Status != playback.Playing {
					break
				}
				engine.Advance(tick)
			}
			fmt.Fprintf(out, "replay finished at %s\n", engine.State().CurrentTime.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Float64Var(&speed, "speed", 50, "Playback speed multiplier")
	cmd.Flags().DurationVar(&tick, "tick", 100*time.Millisecond, "Simulated wall-clock tick between advancements")
	cmd.Flags().StringVarP(&link, "link", "l", "", "Link to monitor (default: first detected)")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", session.DefaultThresholdDB, "Margin threshold in dB")
	return cmd
}
