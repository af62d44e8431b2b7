package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

const base = "http://api.test"

// smallest valid PNG header DetectContentType accepts
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := New(base+"/", "tok")
	httpmock.ActivateNonDefault(c.HTTP)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func registerUploadFlow(t *testing.T, id string) {
	t.Helper()
	httpmock.RegisterResponder(http.MethodPost, base+"/v1/uploads", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		return httpmock.NewJsonResponse(http.StatusCreated, domain.UploadTarget{
			StorageID: "uploads/ns/obj-" + id,
			URL:       "http://blob.test/bucket/uploads/ns/obj-" + id + "?sig=1",
			Method:    http.MethodPut,
		})
	})
	httpmock.RegisterResponder(http.MethodPut, "=~^http://blob\\.test/bucket/uploads/ns/", func(req *http.Request) (*http.Response, error) {
		assert.Empty(t, req.Header.Get("Authorization"))
		assert.Equal(t, "image/png", req.Header.Get("Content-Type"))
		return httpmock.NewStringResponse(http.StatusOK, ""), nil
	})
	httpmock.RegisterResponder(http.MethodPost, base+"/v1/analyses", func(req *http.Request) (*http.Response, error) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "cat.png", body["filename"])
		return httpmock.NewJsonResponse(http.StatusCreated, map[string]string{"id": id})
	})
	httpmock.RegisterResponder(http.MethodPost, base+"/v1/analyses/"+id+"/score",
		httpmock.NewStringResponder(http.StatusAccepted, `{"status":"queued"}`))
}

func TestUpload_Flow(t *testing.T) {
	c := newTestClient(t)
	registerUploadFlow(t, "a1")

	id, err := c.Upload(context.Background(), writeFile(t, "cat.png", pngBytes))
	require.NoError(t, err)
	assert.Equal(t, domain.AnalysisID("a1"), id)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+base+"/v1/uploads"])
	assert.Equal(t, 1, info["POST "+base+"/v1/analyses"])
	assert.Equal(t, 1, info["POST "+base+"/v1/analyses/a1/score"])
}

func TestUpload_RejectsNonImageLocally(t *testing.T) {
	c := newTestClient(t)

	cases := map[string][]byte{
		"notes.txt":    []byte("hello"),
		"archive.zip":  []byte("PK\x03\x04rest-of-zip"),
		"no-extension": []byte("plain text"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Upload(context.Background(), writeFile(t, name, data))
			assert.ErrorIs(t, err, ErrNotImage)
		})
	}
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestReadImage_AcceptsEitherSignal(t *testing.T) {
	tiff := append([]byte("II*\x00"), make([]byte, 32)...)
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"></svg>`)

	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"scan.tiff", tiff, "image/tiff"},
		{"scan.TIF", tiff, "image/tiff"},
		{"logo.svg", svg, "image/svg+xml"},
		{"photo.heic", make([]byte, 32), "image/heic"},
		{"cat.png", pngBytes, "image/png"},
		{"no-extension", pngBytes, "image/png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, contentType, err := readImage(writeFile(t, tc.name, tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.want, contentType)
			assert.Equal(t, tc.data, data)
		})
	}
}

func TestUpload_TIFFUsesExtensionType(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, base+"/v1/uploads",
		httpmock.NewStringResponder(http.StatusCreated, `{"storage_id":"uploads/ns/o1","url":"http://blob.test/b/o1","method":"PUT"}`))
	httpmock.RegisterResponder(http.MethodPut, "http://blob.test/b/o1", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "image/tiff", req.Header.Get("Content-Type"))
		return httpmock.NewStringResponse(http.StatusOK, ""), nil
	})
	httpmock.RegisterResponder(http.MethodPost, base+"/v1/analyses",
		httpmock.NewStringResponder(http.StatusCreated, `{"id":"a9"}`))
	httpmock.RegisterResponder(http.MethodPost, base+"/v1/analyses/a9/score",
		httpmock.NewStringResponder(http.StatusAccepted, `{"status":"queued"}`))

	id, err := c.Upload(context.Background(), writeFile(t, "scan.tiff", append([]byte("II*\x00"), make([]byte, 32)...)))
	require.NoError(t, err)
	assert.Equal(t, domain.AnalysisID("a9"), id)
	assert.Equal(t, 1, httpmock.GetCallCountInfo()["PUT http://blob.test/b/o1"])
}

func TestUploadAll_ContinuesAfterFailure(t *testing.T) {
	c := newTestClient(t)
	registerUploadFlow(t, "a1")

	dir := t.TempDir()
	good := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(good, pngBytes, 0o644))
	bad := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(bad, []byte("text"), 0o644))

	results := c.UploadAll(context.Background(), []string{bad, good})
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrNotImage)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, domain.AnalysisID("a1"), results[1].ID)
}

func TestUpload_NoRetryOnServerError(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, base+"/v1/uploads",
		httpmock.NewStringResponder(http.StatusInternalServerError, `{"error":"Internal Server Error"}`))

	_, err := c.Upload(context.Background(), writeFile(t, "cat.png", pngBytes))
	require.Error(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestAPIError_MapsToDomain(t *testing.T) {
	c := newTestClient(t)
	for status, want := range map[int]error{
		http.StatusUnauthorized: domain.ErrUnauthenticated,
		http.StatusForbidden:    domain.ErrUnauthorized,
		http.StatusNotFound:     domain.ErrNotFound,
		http.StatusConflict:     domain.ErrAlreadyScored,
		http.StatusBadRequest:   domain.ErrInvalidInput,
	} {
		httpmock.RegisterResponder(http.MethodDelete, base+"/v1/analyses/x",
			httpmock.NewStringResponder(status, `{"error":"nope"}`))
		err := c.Delete(context.Background(), "x")
		assert.ErrorIs(t, err, want)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "nope", apiErr.Message)
	}
}

func TestReads(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, base+"/v1/analyses",
		httpmock.NewStringResponder(http.StatusOK, `[{"id":"a2","verdict":"PENDING"},{"id":"a1","verdict":"AUTHENTIC"}]`))
	httpmock.RegisterResponder(http.MethodGet, base+"/v1/analyses/recent?limit=1",
		httpmock.NewStringResponder(http.StatusOK, `[{"id":"a2","verdict":"PENDING"}]`))
	httpmock.RegisterResponder(http.MethodGet, base+"/v1/analyses/stats",
		httpmock.NewStringResponder(http.StatusOK, `{"total":1,"authentic":1,"ai_generated":0,"pending":1}`))

	list, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.VerdictAuthentic, list[1].Verdict)

	recent, err := c.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{Total: 1, Authentic: 1, Pending: 1}, st)
}

func TestWait_PollsUntilTerminal(t *testing.T) {
	c := newTestClient(t)
	calls := 0
	httpmock.RegisterResponder(http.MethodGet, base+"/v1/analyses/a1", func(*http.Request) (*http.Response, error) {
		calls++
		verdict := domain.VerdictPending
		if calls >= 3 {
			verdict = domain.VerdictAIGenerated
		}
		return httpmock.NewJsonResponse(http.StatusOK, domain.Analysis{ID: "a1", Verdict: verdict})
	})

	a, err := c.Wait(context.Background(), "a1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictAIGenerated, a.Verdict)
	assert.Equal(t, 3, calls)
}

func TestWait_ContextCancel(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, base+"/v1/analyses/a1",
		httpmock.NewStringResponder(http.StatusOK, `{"id":"a1","verdict":"PENDING"}`))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	a, err := c.Wait(ctx, "a1", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, a)
	assert.True(t, a.Pending())
}
