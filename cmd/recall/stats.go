package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeanpaul/recall/internal/analytics"
	"github.com/jeanpaul/recall/internal/tui"
)

func newStatsCmd(c *cli) *cobra.Command {
	var (
		topK    int
		windows []int
		since   string
	)
	summarize := func(cmd *cobra.Command) (analytics.Summary, error) {
		toolLog, err := analytics.OpenLog(c.cfg.ToolLogPath, analytics.LogOptions{
			LockTimeout:    c.cfg.Store.LockTimeout,
			LockRetryDelay: c.cfg.Store.LockRetryDelay,
			StaleAfter:     c.cfg.Store.StaleAfter,
			Logger:         c.logger,
			TestMode:       c.cfg.TestMode,
		})
		if err != nil {
			return analytics.Summary{}, err
		}
		opts := analytics.SummaryOptions{Windows: c.cfg.Analytics.Windows, TopK: c.cfg.Analytics.TopK}
		if cmd.Flags().Changed("top-k") {
			opts.TopK = topK
		}
		if cmd.Flags().Changed("windows") {
			opts.Windows = windows
		}
		if since != "" {
			t, err := parseSince(since, time.Now())
			if err != nil {
				return analytics.Summary{}, err
			}
			opts.Since = t
		}
		for _, w := range opts.Windows {
			if w < 2 {
				return analytics.Summary{}, fmt.Errorf("--windows: sequence length %d is below 2", w)
			}
		}
		return toolLog.Summary(cmd.Context(), opts)
	}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the tool-call log",
		Long: `Summarize the tool-call log: per-tool call counts, error counts, token use
and latency, plus the most frequent tool sequences within a session.

Lines that are partial or malformed are skipped and counted. The log is
never rewritten; --since scopes the summary to recent calls instead.`,
		Example: `  recall stats --since 24h
  recall stats --since 2026-10-01T00:00:00Z --windows 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := summarize(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSummary(s))
			return nil
		},
	}
	cmd.PersistentFlags().IntVar(&topK, "top-k", analytics.DefaultTopK, "number of sequences to report")
	cmd.PersistentFlags().IntSliceVar(&windows, "windows", analytics.DefaultWindows, "sequence lengths to count")
	cmd.PersistentFlags().StringVar(&since, "since", "", "only count calls after a duration ago (24h) or an RFC 3339 time")

	var format, output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the summary as JSON, YAML or an Excel workbook",
		Example: `  recall stats export --format yaml
  recall stats export --format xlsx --output usage.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "" && !cmd.Flags().Changed("format") {
				format = formatFromExt(output)
			}
			if format == analytics.FormatXLSX && output == "" {
				return fmt.Errorf("--format xlsx needs --output")
			}
			s, err := summarize(cmd)
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := analytics.Write(w, format, s); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), tui.OKStyle.Render("wrote "+output))
			}
			return nil
		},
	}
	export.Flags().StringVarP(&format, "format", "f", analytics.FormatJSON, "json, yaml or xlsx")
	export.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	cmd.AddCommand(export)
	return cmd
}

// parseSince accepts a duration back from now or an RFC 3339 timestamp.
func parseSince(v string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(v); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("--since: duration %s is negative", v)
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since: %q is neither a duration nor an RFC 3339 time", v)
	}
	return t, nil
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return analytics.FormatYAML
	case ".xlsx":
		return analytics.FormatXLSX
	default:
		return analytics.FormatJSON
	}
}
