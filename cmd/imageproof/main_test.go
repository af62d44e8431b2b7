package main

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const server = "http://api.test"

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func activate(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--server", server, "--token", "tok"}, args...))
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestStats(t *testing.T) {
	activate(t)
	httpmock.RegisterResponder(http.MethodGet, server+"/v1/analyses/stats",
		httpmock.NewStringResponder(http.StatusOK, `{"total":3,"authentic":2,"ai_generated":1,"pending":4}`))

	out, _, err := run(t, "stats")
	require.NoError(t, err)
	assert.Regexp(t, `analyzed\s+3`, out)
	assert.Regexp(t, `ai generated\s+1`, out)
	assert.Regexp(t, `pending\s+4`, out)
}

func TestDashboard(t *testing.T) {
	activate(t)
	httpmock.RegisterResponder(http.MethodGet, server+"/v1/analyses/stats",
		httpmock.NewStringResponder(http.StatusOK, `{"total":1,"authentic":1}`))
	httpmock.RegisterResponder(http.MethodGet, server+"/v1/analyses/recent?limit=2",
		httpmock.NewStringResponder(http.StatusOK, `[
			{"id":"a2","filename":"dog.png","verdict":"PENDING"},
			{"id":"a1","filename":"cat.png","verdict":"AUTHENTIC","confidence":91.5}
		]`))

	out, _, err := run(t, "dashboard", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "VERDICT")
	assert.Regexp(t, `a1\s+cat\.png\s+AUTHENTIC\s+91\.50%`, out)
	assert.Regexp(t, `a2\s+dog\.png\s+PENDING\s+-`, out)
}

func TestUpload_ReportsFailuresAndContinues(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(good, pngBytes, 0o644))
	bad := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(bad, []byte("hello"), 0o644))

	activate(t)
	httpmock.RegisterResponder(http.MethodPost, server+"/v1/uploads",
		httpmock.NewStringResponder(http.StatusCreated, `{"storage_id":"uploads/ns/o1","url":"http://blob.test/b/uploads/ns/o1","method":"PUT"}`))
	httpmock.RegisterResponder(http.MethodPut, "http://blob.test/b/uploads/ns/o1",
		httpmock.NewStringResponder(http.StatusOK, ""))
	httpmock.RegisterResponder(http.MethodPost, server+"/v1/analyses",
		httpmock.NewStringResponder(http.StatusCreated, `{"id":"a1"}`))
	httpmock.RegisterResponder(http.MethodPost, server+"/v1/analyses/a1/score",
		httpmock.NewStringResponder(http.StatusAccepted, `{"id":"a1","status":"queued"}`))

	out, errOut, err := run(t, "upload", bad, good)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 uploads failed")
	assert.Contains(t, errOut, "notes.txt")
	assert.Contains(t, out, good+"\ta1\tqueued")
	assert.Equal(t, 1, httpmock.GetCallCountInfo()["POST "+server+"/v1/uploads"])
}

func TestDelete_NotFound(t *testing.T) {
	activate(t)
	httpmock.RegisterResponder(http.MethodDelete, server+"/v1/analyses/missing",
		httpmock.NewStringResponder(http.StatusNotFound, `{"error":"Not Found"}`))

	_, _, err := run(t, "delete", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWatch(t *testing.T) {
	activate(t)
	httpmock.RegisterResponder(http.MethodGet, server+"/v1/analyses/a1",
		httpmock.NewStringResponder(http.StatusOK, `{"id":"a1","filename":"cat.png","verdict":"AI_GENERATED","confidence":88,
			"details":{"artifact_score":70,"pattern_consistency":60,"noise_analysis":55,"color_distribution":50,"edge_coherence":45,"metadata_score":40}}`))

	out, _, err := run(t, "watch", "a1", "--interval", "1ms")
	require.NoError(t, err)
	assert.Regexp(t, `verdict\s+AI_GENERATED`, out)
	assert.Regexp(t, `artifact\s+70\.00`, out)
}
