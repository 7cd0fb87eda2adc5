// Package analytics records one log entry per tool call and reduces the
// log into usage summaries on demand.
package analytics

import (
	"context"
	"time"
)

// Status is the outcome of a logged call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is one tool invocation. Entries are appended and never rewritten.
type Entry struct {
	Timestamp        time.Time `json:"timestamp"`
	ToolName         string    `json:"tool_name"`
	UserID           string    `json:"user_id,omitempty"`
	SessionID        string    `json:"session_id,omitempty"`
	ArgumentsSummary string    `json:"arguments_summary"`
	TokensIn         int       `json:"tokens_in"`
	TokensOut        int       `json:"tokens_out"`
	TokensConsumed   int       `json:"tokens_consumed"`
	LatencyMS        float64   `json:"latency_ms"`
	Status           Status    `json:"status"`
	ErrorKind        string    `json:"error_kind,omitempty"`
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Discard drops every entry.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, Entry) error { return nil }
