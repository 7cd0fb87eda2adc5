package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jeanpaul/recall/internal/analytics"
	"github.com/jeanpaul/recall/internal/health"
	"github.com/jeanpaul/recall/internal/memory"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(BorderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}
			return CellStyle
		})
}

func field(label string, value any) string {
	return LabelStyle.Render(fmt.Sprintf("%-14s", label)) + ValueStyle.Render(fmt.Sprint(value))
}

// RenderSummary formats an analytics summary for the terminal.
func RenderSummary(s analytics.Summary) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Tool usage") + "\n\n")
	b.WriteString(field("calls", s.TotalCalls) + "\n")
	b.WriteString(field("errors", s.TotalErrors) + "\n")
	b.WriteString(field("tokens", s.TotalTokens) + "\n")
	b.WriteString(field("mean latency", fmt.Sprintf("%.2f ms", s.MeanLatencyMS)) + "\n")
	if s.FirstCall != nil && s.LastCall != nil {
		b.WriteString(field("period", s.FirstCall.Format(time.RFC3339)+" .. "+s.LastCall.Format(time.RFC3339)) + "\n")
	}
	if s.SkippedLines > 0 {
		b.WriteString(WarnStyle.Render(fmt.Sprintf("%d unreadable log lines skipped", s.SkippedLines)) + "\n")
	}
	if s.TotalCalls == 0 {
		b.WriteString("\n" + HelpStyle.Render("No tool calls logged yet.") + "\n")
		return b.String()
	}

	names := make([]string, 0, len(s.Tools))
	for name := range s.Tools {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, c := s.Tools[names[i]], s.Tools[names[j]]
		if a.Calls != c.Calls {
			return a.Calls > c.Calls
		}
		return names[i] < names[j]
	})
	t := newTable("tool", "calls", "errors", "tokens", "mean ms")
	for _, name := range names {
		ts := s.Tools[name]
		t.Row(name, fmt.Sprint(ts.Calls), fmt.Sprint(ts.Errors), fmt.Sprint(ts.Tokens), fmt.Sprintf("%.2f", ts.MeanLatencyMS))
	}
	b.WriteString("\n" + t.Render() + "\n")

	if len(s.Sequences) > 0 {
		seq := newTable("sequence", "count")
		for _, sc := range s.Sequences {
			seq.Row(strings.Join(sc.Tools, " → "), fmt.Sprint(sc.Count))
		}
		b.WriteString("\n" + TitleStyle.Render("Frequent sequences") + "\n" + seq.Render() + "\n")
	}
	return b.String()
}

// RenderUsers formats the redacted user listing.
func RenderUsers(users []memory.UserSummary) string {
	if len(users) == 0 {
		return HelpStyle.Render("No users stored.") + "\n"
	}
	t := newTable("user", "notes", "preferences")
	for _, u := range users {
		t.Row(u.UserRef, fmt.Sprint(u.NoteCount), fmt.Sprint(u.PreferenceCount))
	}
	return t.Render() + "\n"
}

// RenderHealth formats a store probe.
func RenderHealth(s health.Status) string {
	var b strings.Builder
	state := OKStyle.Render("healthy")
	switch {
	case s.Corrupted:
		state = ErrorStyle.Render("corrupted, writes disabled")
	case !s.Reachable:
		state = ErrorStyle.Render("unreachable")
	}
	b.WriteString(field("document", s.Document) + "\n")
	b.WriteString(LabelStyle.Render(fmt.Sprintf("%-14s", "state")) + state + "\n")
	if s.Reachable {
		b.WriteString(field("users", s.Users) + "\n")
		b.WriteString(field("notes", s.Notes) + "\n")
		b.WriteString(field("preferences", s.Preferences) + "\n")
		b.WriteString(field("size", fmt.Sprintf("%d bytes", s.SizeBytes)) + "\n")
	}
	b.WriteString(field("latency", s.Latency.Round(time.Microsecond)) + "\n")
	if s.Error != "" {
		b.WriteString(ErrorStyle.Render("error: "+s.Error) + "\n")
	}
	return b.String()
}
