package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jeanpaul/recall/internal/analytics"
	"github.com/jeanpaul/recall/internal/memory"
	"github.com/jeanpaul/recall/internal/memory/memorytest"
	"github.com/jeanpaul/recall/internal/metrics"
	"github.com/jeanpaul/recall/internal/tools"
)

type fixture struct {
	store  *memory.FileStore
	log    *analytics.Log
	facade *tools.Facade
	ts     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memorytest.New(t)
	toolLog, err := analytics.OpenLog(filepath.Join(t.TempDir(), "tool_calls.jsonl"), analytics.LogOptions{
		LockTimeout:    5 * time.Second,
		LockRetryDelay: time.Millisecond,
		Logger:         logger,
	})
	require.NoError(t, err)
	m := metrics.New()
	facade := tools.New(tools.Options{
		Store:    store,
		Recorder: toolLog,
		Limits:   store.Limits(),
		Observer: m,
		Logger:   logger,
	})
	srv := New(Options{
		Catalog:       facade,
		Users:         store,
		Health:        store,
		HealthTimeout: time.Second,
		ToolLog:       toolLog,
		Metrics:       m.Handler(),
		MCP:           NewMCPServer(facade, "test"),
		Logger:        logger,
		Version:       "test",
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &fixture{store: store, log: toolLog, facade: facade, ts: ts}
}

func (f *fixture) call(t *testing.T, tool, args string) (int, tools.Response) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/v1/tools/"+tool, strings.NewReader(args))
	require.NoError(t, err)
	req.Header.Set(SessionHeader, "web-1")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var resp tools.Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	return res.StatusCode, resp
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	res, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestCallToolStatusCodes(t *testing.T) {
	f := newFixture(t)

	code, resp := f.call(t, tools.NameAddNote, `{"user_id":"alice","text":"allergic to peanuts"}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.OK)

	code, resp = f.call(t, tools.NameAddNote, `{"user_id":"","text":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, tools.KindValidation, resp.Error.Kind)

	code, resp = f.call(t, tools.NameDeleteNote, `{"user_id":"alice","note_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, tools.KindNotFound, resp.Error.Kind)

	code, resp = f.call(t, "format_disk", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.OK)

	rec, err := f.store.GetMemory(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, rec.GeneralMemory, 1)
}

func TestCallToolBodyTooLarge(t *testing.T) {
	f := newFixture(t)
	big := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	res, err := http.Post(f.ts.URL+"/v1/tools/add_note", "application/json", bytes.NewReader(big))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)
}

func TestListTools(t *testing.T) {
	f := newFixture(t)
	var body struct {
		Tools []tools.Definition `json:"tools"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/tools", &body))
	assert.Len(t, body.Tools, len(tools.Definitions()))
}

func TestAnalyticsSummaryEndpoint(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.call(t, tools.NameGetMemory, `{"user_id":"bob"}`)
		f.call(t, tools.NameAddNote, `{"user_id":"bob","text":"note"}`)
	}

	var s analytics.Summary
	require.Equal(t, http.StatusOK, f.get(t, "/v1/analytics/summary?windows=2&top_k=1", &s))
	assert.Equal(t, int64(6), s.TotalCalls)
	assert.Equal(t, int64(3), s.Tools[tools.NameGetMemory].Calls)
	require.Len(t, s.Sequences, 1)
	assert.Equal(t, []string{tools.NameGetMemory, tools.NameAddNote}, s.Sequences[0].Tools)
	assert.Equal(t, int64(3), s.Sequences[0].Count)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/v1/analytics/summary?windows=1", nil))

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	var scoped analytics.Summary
	require.Equal(t, http.StatusOK, f.get(t, "/v1/analytics/summary?since="+future, &scoped))
	assert.Zero(t, scoped.TotalCalls)
	assert.NotNil(t, scoped.Since)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/v1/analytics/summary?since=yesterday", nil))
}

func TestEmptySummaryEndpoint(t *testing.T) {
	f := newFixture(t)
	var s analytics.Summary
	require.Equal(t, http.StatusOK, f.get(t, "/v1/analytics/summary", &s))
	assert.Zero(t, s.TotalCalls)
	assert.Empty(t, s.Tools)
}

func TestUsersAndHealth(t *testing.T) {
	f := newFixture(t)
	f.call(t, tools.NameAddNote, `{"user_id":"carol","text":"prefers hostels"}`)

	var users struct {
		Users []memory.UserSummary `json:"users"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/v1/users", &users))
	require.Len(t, users.Users, 1)
	assert.NotContains(t, users.Users[0].UserRef, "carol")
	assert.Equal(t, 1, users.Users[0].NoteCount)

	var h map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/healthz", &h))
	assert.Equal(t, "ok", h["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.call(t, tools.NameGetMemory, `{"user_id":"dave"}`)

	res, err := http.Get(f.ts.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(res.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `recall_tool_calls_total{error_kind="",status="success",tool="get_memory"} 1`)
}

func TestMCPRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := client.NewInProcessClient(NewMCPServer(f.facade, "test"))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Start(ctx))

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "recall-test", Version: "0"}
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	assert.Len(t, listed.Tools, len(tools.Definitions()))

	call := mcp.CallToolRequest{}
	call.Params.Name = tools.NameSetPreference
	call.Params.Arguments = map[string]any{"user_id": "erin", "key": "seat", "value": "aisle"}
	res, err := c.CallTool(ctx, call)
	require.NoError(t, err)
	assert.False(t, res.IsError)

	call.Params.Name = tools.NameDeletePreference
	call.Params.Arguments = map[string]any{"user_id": "erin", "key": "meal"}
	res, err = c.CallTool(ctx, call)
	require.NoError(t, err)
	require.True(t, res.IsError)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var resp tools.Response
	require.NoError(t, json.Unmarshal([]byte(text.Text), &resp))
	assert.Equal(t, tools.KindNotFound, resp.Error.Kind)

	pref, err := f.store.GetPreference(ctx, "erin", "seat")
	require.NoError(t, err)
	assert.Equal(t, "aisle", pref.Value)
}
