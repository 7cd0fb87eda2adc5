package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RECALL_DATA_DIR", dir)
	t.Setenv("RECALL_TEST_MODE", "true")
	t.Setenv("RECALL_LOGGING_LEVEL", "error")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"--data-dir", dir, "--test-mode"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCallRoundTrip(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, dir, "call", "add_note", `{"user_id":"alice","text":"aisle seat"}`)
	require.NoError(t, err)
	var resp struct {
		OK     bool `json:"ok"`
		Result struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "aisle seat", resp.Result.Text)
	assert.NotEmpty(t, resp.Result.ID)

	out, err = runCLI(t, dir, "call", "get_memory", `{"user_id":"alice"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "aisle seat")

	assert.FileExists(t, filepath.Join(dir, "memories.json"))
	assert.FileExists(t, filepath.Join(dir, "tool_calls.jsonl"))
}

func TestCallFailureReturnsError(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "call", "delete_note", `{"user_id":"bob","note_id":"missing"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found")
	assert.Contains(t, out, `"ok": false`)
}

func TestStatsExport(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		_, err := runCLI(t, dir, "call", "--session", "s1", "get_memory", `{"user_id":"carol"}`)
		require.NoError(t, err)
		_, err = runCLI(t, dir, "call", "--session", "s1", "add_note", `{"user_id":"carol","text":"x"}`)
		require.NoError(t, err)
	}

	out, err := runCLI(t, dir, "stats", "export", "--format", "json")
	require.NoError(t, err)
	var summary struct {
		TotalCalls int64 `json:"total_calls"`
		Sequences  []struct {
			Tools []string `json:"tools"`
			Count int64    `json:"count"`
		} `json:"sequences"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.EqualValues(t, 4, summary.TotalCalls)
	require.NotEmpty(t, summary.Sequences)
	assert.Equal(t, []string{"get_memory", "add_note"}, summary.Sequences[0].Tools)
	assert.EqualValues(t, 2, summary.Sequences[0].Count)

	xlsx := filepath.Join(dir, "usage.xlsx")
	_, err = runCLI(t, dir, "stats", "export", "--output", xlsx)
	require.NoError(t, err)
	fi, err := os.Stat(xlsx)
	require.NoError(t, err)
	assert.Positive(t, fi.Size())

	_, err = runCLI(t, dir, "stats", "--windows", "1")
	assert.Error(t, err)

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	out, err = runCLI(t, dir, "stats", "export", "--since", future)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Zero(t, summary.TotalCalls)

	out, err = runCLI(t, dir, "stats", "export", "--since", "1h")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.EqualValues(t, 4, summary.TotalCalls)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	got, err := parseSince("24h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), got)

	got, err = parseSince("2026-10-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = parseSince("-1h", now)
	assert.Error(t, err)
	_, err = parseSince("last week", now)
	assert.Error(t, err)
}

func TestDoctorAndUsers(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "call", "add_note", `{"user_id":"dave","text":"hi"}`)
	require.NoError(t, err)

	out, err := runCLI(t, dir, "users", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "dave")
	assert.Contains(t, out, `"note_count": 1`)

	_, err = runCLI(t, dir, "doctor")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "memories.json"), []byte("{not json"), 0o644))
	_, err = runCLI(t, dir, "doctor")
	require.Error(t, err)
	_, err = runCLI(t, dir, "call", "add_note", `{"user_id":"dave","text":"again"}`)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "memories.json"), []byte(`{"version":1,"users":{}}`), 0o644))
	_, err = runCLI(t, dir, "doctor", "--clear")
	require.NoError(t, err)
	_, err = runCLI(t, dir, "call", "add_note", `{"user_id":"dave","text":"again"}`)
	require.NoError(t, err)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "config.yaml")
	_, err := runCLI(t, dir, "config", "init", "--output", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Contains(t, m, "store")

	_, err = runCLI(t, dir, "config", "init", "--output", dest)
	assert.Error(t, err)
}
