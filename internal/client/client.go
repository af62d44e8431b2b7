// Package client talks to the imageproof API on behalf of a dashboard user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

// ErrNotImage is returned by Upload before any network call when the file
// is not an image.
var ErrNotImage = errors.New("file is not an image")

const sniffLen = 512

// APIError is a non-2xx answer. It unwraps to the matching domain error so
// callers can use errors.Is(err, analyses.ErrNotFound).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return domain.ErrUnauthenticated
	case http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrAlreadyScored
	case http.StatusBadRequest:
		return domain.ErrInvalidInput
	}
	return nil
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// UploadResult is the outcome for one file of UploadAll.
type UploadResult struct {
	Path string
	ID   domain.AnalysisID
	Err  error
}

// Upload sends one image and starts its scoring. It returns as soon as the
// server has queued the task; use Wait for the verdict.
func (c *Client) Upload(ctx context.Context, path string) (domain.AnalysisID, error) {
	data, contentType, err := readImage(path)
	if err != nil {
		return "", err
	}

	var target domain.UploadTarget
	if err := c.do(ctx, http.MethodPost, "/v1/uploads", nil, &target); err != nil {
		return "", eris.Wrap(err, "issue upload target")
	}
	if err := c.putBlob(ctx, target, data, contentType); err != nil {
		return "", err
	}

	var created struct {
		ID domain.AnalysisID `json:"id"`
	}
	body := map[string]string{"storage_id": target.StorageID, "filename": filepath.Base(path)}
	if err := c.do(ctx, http.MethodPost, "/v1/analyses", body, &created); err != nil {
		return "", eris.Wrap(err, "create analysis")
	}

	if err := c.TriggerScoring(ctx, created.ID); err != nil {
		return created.ID, eris.Wrapf(err, "trigger scoring for %s", created.ID)
	}
	zap.L().Debug("uploaded", zap.String("path", path), zap.String("id", string(created.ID)))
	return created.ID, nil
}

// UploadAll uploads each file independently. A failure is recorded in its
// result and the remaining files continue; nothing is retried.
func (c *Client) UploadAll(ctx context.Context, paths []string) []UploadResult {
	out := make([]UploadResult, 0, len(paths))
	for _, p := range paths {
		id, err := c.Upload(ctx, p)
		out = append(out, UploadResult{Path: p, ID: id, Err: err})
	}
	return out
}

func (c *Client) TriggerScoring(ctx context.Context, id domain.AnalysisID) error {
	return c.do(ctx, http.MethodPost, "/v1/analyses/"+url.PathEscape(string(id))+"/score", nil, nil)
}

func (c *Client) List(ctx context.Context) ([]*domain.Analysis, error) {
	var list []*domain.Analysis
	return list, c.do(ctx, http.MethodGet, "/v1/analyses", nil, &list)
}

func (c *Client) Recent(ctx context.Context, limit int) ([]*domain.Analysis, error) {
	path := "/v1/analyses/recent"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list []*domain.Analysis
	return list, c.do(ctx, http.MethodGet, path, nil, &list)
}

func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	return st, c.do(ctx, http.MethodGet, "/v1/analyses/stats", nil, &st)
}

func (c *Client) Get(ctx context.Context, id domain.AnalysisID) (*domain.Analysis, error) {
	var a domain.Analysis
	if err := c.do(ctx, http.MethodGet, "/v1/analyses/"+url.PathEscape(string(id)), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) Delete(ctx context.Context, id domain.AnalysisID) error {
	return c.do(ctx, http.MethodDelete, "/v1/analyses/"+url.PathEscape(string(id)), nil, nil)
}

// Wait polls until the record leaves PENDING or ctx ends.
func (c *Client) Wait(ctx context.Context, id domain.AnalysisID, interval time.Duration) (*domain.Analysis, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		a, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if a.Verdict.Terminal() {
			return a, nil
		}
		select {
		case <-ctx.Done():
			return a, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) putBlob(ctx context.Context, target domain.UploadTarget, data []byte, contentType string) error {
	method := target.Method
	if method == "" {
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, target.URL, bytes.NewReader(data))
	if err != nil {
		return eris.Wrap(err, "build upload request")
	}
	// presigned: no Authorization header
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return eris.Wrap(err, "upload blob")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return eris.Wrapf(&APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}, "upload blob")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return eris.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}

// extension types the stdlib table may lack, so the check does not depend
// on the host's mime.types
var imageExtensions = map[string]string{
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".svg":  "image/svg+xml",
}

func extensionType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := imageExtensions[ext]; ok {
		return t
	}
	t, _, _ := mime.ParseMediaType(mime.TypeByExtension(ext))
	return t
}

// readImage loads path and accepts it when either its extension or its
// content says image/*. The returned type is the sniffed one when that is an
// image, else the extension's.
func readImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", eris.Wrapf(err, "read %s", path)
	}
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	sniffed := http.DetectContentType(head)
	if strings.HasPrefix(sniffed, "image/") {
		return data, sniffed, nil
	}
	if byExt := extensionType(path); strings.HasPrefix(byExt, "image/") {
		return data, byExt, nil
	}
	return nil, "", eris.Wrapf(ErrNotImage, "%s: content is %s", filepath.Base(path), sniffed)
}
