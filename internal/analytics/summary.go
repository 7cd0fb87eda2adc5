package analytics

import (
	"sort"
	"strings"
	"time"
)

const (
	DefaultTopK = 10
	// UnknownTool stands in for names outside the tool catalog.
	UnknownTool = "unknown"
	// sequence keys are tool names joined by this separator.
	seqSep = "\x1f"
	maxToolNameLen = 64
)

// DefaultWindows are the sequence lengths counted when none are configured.
var DefaultWindows = []int{2, 3}

// SummaryOptions selects which sequences a summary counts.
type SummaryOptions struct {
	// Windows lists the sequence lengths to count. Values below 2 are ignored.
	Windows []int
	// TopK bounds how many sequences the summary reports.
	TopK int
	// Since drops entries logged before it. Zero keeps everything.
	Since time.Time
}

func (o SummaryOptions) normalize() SummaryOptions {
	var windows []int
	seen := map[int]bool{}
	for _, w := range o.Windows {
		if w >= 2 && !seen[w] {
			seen[w] = true
			windows = append(windows, w)
		}
	}
	if len(windows) == 0 {
		windows = append(windows, DefaultWindows...)
	}
	sort.Ints(windows)
	o.Windows = windows
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	return o
}

// ToolStats aggregates the calls of one tool.
type ToolStats struct {
	Calls         int64   `json:"calls" yaml:"calls"`
	Errors        int64   `json:"errors" yaml:"errors"`
	TokensIn      int64   `json:"tokens_in" yaml:"tokens_in"`
	TokensOut     int64   `json:"tokens_out" yaml:"tokens_out"`
	Tokens        int64   `json:"tokens" yaml:"tokens"`
	MeanLatencyMS float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`

	latencySum float64
}

// SequenceCount is how often a run of consecutive tool calls occurred
// within one session (or one user, for calls without a session).
type SequenceCount struct {
	Tools []string `json:"tools" yaml:"tools"`
	Count int64    `json:"count" yaml:"count"`
}

// Summary is the reduction of a tool-call log.
type Summary struct {
	TotalCalls    int64                `json:"total_calls" yaml:"total_calls"`
	TotalErrors   int64                `json:"total_errors" yaml:"total_errors"`
	TotalTokens   int64                `json:"total_tokens" yaml:"total_tokens"`
	MeanLatencyMS float64              `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	FirstCall     *time.Time           `json:"first_call,omitempty" yaml:"first_call,omitempty"`
	LastCall      *time.Time           `json:"last_call,omitempty" yaml:"last_call,omitempty"`
	Tools         map[string]ToolStats `json:"tools" yaml:"tools"`
	Sequences     []SequenceCount      `json:"sequences" yaml:"sequences"`
	SkippedLines  int64                `json:"skipped_lines" yaml:"skipped_lines"`
	// Since echoes SummaryOptions.Since when the summary is scoped.
	Since *time.Time `json:"since,omitempty" yaml:"since,omitempty"`
}

// Reducer folds entries into a Summary in one pass. Memory is bounded by
// the number of distinct groups times the longest window, plus one counter
// per distinct tool sequence. Tool names are bounded by the catalog: the
// facade logs unrecognized names as UnknownTool and Add folds malformed
// ones into it.
type Reducer struct {
	opts       SummaryOptions
	maxWindow  int
	summary    Summary
	latencySum float64
	recent     map[string][]string
	sequences  map[string]int64
	skipped    int64
}

// NewReducer creates an empty reducer.
func NewReducer(opts SummaryOptions) *Reducer {
	opts = opts.normalize()
	return &Reducer{
		opts:      opts,
		maxWindow: opts.Windows[len(opts.Windows)-1],
		summary:   Summary{Tools: map[string]ToolStats{}, Sequences: []SequenceCount{}},
		recent:    map[string][]string{},
		sequences: map[string]int64{},
	}
}

// Add folds one entry into the summary.
func (r *Reducer) Add(e Entry) {
	if !r.opts.Since.IsZero() && e.Timestamp.Before(r.opts.Since) {
		return
	}
	e.ToolName = toolKey(e.ToolName)
	s := &r.summary
	s.TotalCalls++
	s.TotalTokens += int64(e.TokensConsumed)
	r.latencySum += e.LatencyMS
	if e.Status == StatusError {
		s.TotalErrors++
	}
	if !e.Timestamp.IsZero() {
		ts := e.Timestamp
		if s.FirstCall == nil || ts.Before(*s.FirstCall) {
			s.FirstCall = &ts
		}
		if s.LastCall == nil || ts.After(*s.LastCall) {
			s.LastCall = &ts
		}
	}

	ts := s.Tools[e.ToolName]
	ts.Calls++
	ts.TokensIn += int64(e.TokensIn)
	ts.TokensOut += int64(e.TokensOut)
	ts.Tokens += int64(e.TokensConsumed)
	ts.latencySum += e.LatencyMS
	if e.Status == StatusError {
		ts.Errors++
	}
	s.Tools[e.ToolName] = ts

	r.addSequence(e)
}

// toolKey maps names that could not have come from the catalog to
// UnknownTool, so hand-edited lines cannot forge sequence keys.
func toolKey(name string) string {
	if name == "" || len(name) > maxToolNameLen {
		return UnknownTool
	}
	for _, r := range name {
		if r != '_' && (r < 'a' || r > 'z') {
			return UnknownTool
		}
	}
	return name
}

func (r *Reducer) addSequence(e Entry) {
	group := e.SessionID
	if group == "" {
		group = e.UserID
	}
	window := append(r.recent[group], e.ToolName)
	if len(window) > r.maxWindow {
		window = window[len(window)-r.maxWindow:]
	}
	r.recent[group] = window

	for _, w := range r.opts.Windows {
		if len(window) < w {
			break
		}
		r.sequences[strings.Join(window[len(window)-w:], seqSep)]++
	}
}

// Summary returns the reduction so far. An empty reducer returns zeroed
// counts with non-nil, empty collections.
func (r *Reducer) Summary() Summary {
	out := r.summary
	out.SkippedLines = r.skipped
	if out.TotalCalls > 0 {
		out.MeanLatencyMS = r.latencySum / float64(out.TotalCalls)
	}
	out.Tools = make(map[string]ToolStats, len(r.summary.Tools))
	for name, ts := range r.summary.Tools {
		if ts.Calls > 0 {
			ts.MeanLatencyMS = ts.latencySum / float64(ts.Calls)
		}
		out.Tools[name] = ts
	}
	out.Sequences = topSequences(r.sequences, r.opts.TopK)
	if !r.opts.Since.IsZero() {
		since := r.opts.Since
		out.Since = &since
	}
	return out
}

func topSequences(counts map[string]int64, k int) []SequenceCount {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > k {
		keys = keys[:k]
	}
	out := make([]SequenceCount, 0, len(keys))
	for _, key := range keys {
		out = append(out, SequenceCount{Tools: strings.Split(key, seqSep), Count: counts[key]})
	}
	return out
}
