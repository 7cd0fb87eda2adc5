package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/analytics"
	"github.com/jeanpaul/recall/internal/memory"
	"github.com/jeanpaul/recall/internal/tokenizer"
)

// Request is one named call as received from a client.
type Request struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	// SessionID groups calls for sequence analytics. Optional.
	SessionID string `json:"session_id,omitempty"`
}

// Response is the structured result of a call: either Result or Error.
type Response struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Observer receives one notification per call, after it is logged.
type Observer interface {
	ObserveCall(tool string, status analytics.Status, errorKind string, latency time.Duration, tokens int)
}

// Options wires the facade. Store is required; the rest have no-op defaults.
type Options struct {
	Store    memory.Store
	Recorder analytics.Recorder
	Limits   memory.Limits
	Counter  tokenizer.Counter
	Observer Observer
	Logger   *zap.Logger
}

// Facade runs tool calls against a store. It is safe for concurrent use;
// every call is independent.
type Facade struct {
	store    memory.Store
	decoder  *Decoder
	recorder analytics.Recorder
	count    tokenizer.Counter
	observer Observer
	log      *zap.Logger
	now      func() time.Time
}

// New creates a facade from opts.
func New(opts Options) *Facade {
	f := &Facade{
		store:    opts.Store,
		decoder:  NewDecoder(opts.Limits),
		recorder: opts.Recorder,
		count:    opts.Counter,
		observer: opts.Observer,
		log:      opts.Logger,
		now:      time.Now,
	}
	if f.recorder == nil {
		f.recorder = analytics.Discard
	}
	if f.count == nil {
		f.count = tokenizer.Approx
	}
	if f.log == nil {
		f.log = zap.NewNop()
	}
	return f
}

// Definitions lists the catalog served by this facade.
func (f *Facade) Definitions() []Definition { return Definitions() }

// Invoke decodes, validates and runs one call, then appends exactly one
// analytics entry for it. Calls that fail validation never reach the
// store. Errors are always returned inside the Response.
func (f *Facade) Invoke(ctx context.Context, req Request) Response {
	start := f.now()

	var resp Response
	userID := ""
	call, err := f.decoder.Decode(req.Tool, req.Arguments)
	if err == nil {
		userID = call.User()
		var result any
		result, err = execute(ctx, f.store, call)
		if err == nil {
			resp = Response{OK: true, Result: result}
		}
	} else {
		userID = looseUserID(req.Arguments)
	}
	if err != nil {
		resp = Response{Error: f.fail(req.Tool, err)}
	}
	latency := f.now().Sub(start)

	out, _ := json.Marshal(resp)
	tokensIn := f.count(string(req.Arguments))
	tokensOut := f.count(string(out))

	toolName := req.Tool
	if _, ok := Lookup(toolName); !ok {
		toolName = analytics.UnknownTool
	}
	entry := analytics.Entry{
		Timestamp:        start.UTC(),
		ToolName:         toolName,
		UserID:           userID,
		SessionID:        req.SessionID,
		ArgumentsSummary: summarizeArguments(req.Arguments),
		TokensIn:         tokensIn,
		TokensOut:        tokensOut,
		TokensConsumed:   tokensIn + tokensOut,
		LatencyMS:        float64(latency.Microseconds()) / 1000,
		Status:           analytics.StatusSuccess,
	}
	if !resp.OK {
		entry.Status = analytics.StatusError
		entry.ErrorKind = resp.Error.Kind
	}
	// The call already happened; a canceled caller must not lose its entry.
	if err := f.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		f.log.Error("record tool call", zap.String("tool", req.Tool), zap.Error(err))
	}
	if f.observer != nil {
		f.observer.ObserveCall(toolName, entry.Status, entry.ErrorKind, latency, entry.TokensConsumed)
	}
	return resp
}

func (f *Facade) fail(tool string, err error) *Error {
	te := translate(err)
	fields := []zap.Field{zap.String("tool", tool), zap.String("kind", te.Kind), zap.Error(err)}
	switch te.Kind {
	case KindCorruption, KindInternal:
		f.log.Error("tool call failed", fields...)
	case KindLockTimeout:
		f.log.Warn("tool call failed", fields...)
	default:
		f.log.Debug("tool call rejected", fields...)
	}
	return te
}

// summarizeArguments records which arguments were passed without their
// values: the sorted top-level keys and a digest of the raw bytes.
func summarizeArguments(args json.RawMessage) string {
	sum := sha256.Sum256(args)
	digest := hex.EncodeToString(sum[:6])
	var m map[string]json.RawMessage
	if err := json.Unmarshal(args, &m); err != nil {
		return "sha256:" + digest
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",") + " sha256:" + digest
}

// looseUserID pulls a well-formed user id out of arguments that failed
// validation, so rejected calls still attribute to a user when possible.
func looseUserID(args json.RawMessage) string {
	var probe struct {
		UserID string `json:"user_id"`
	}
	if json.Unmarshal(args, &probe) != nil {
		return ""
	}
	id, err := memory.DefaultLimits().UserID(probe.UserID)
	if err != nil {
		return ""
	}
	return id
}
