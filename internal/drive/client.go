// Package drive is a minimal Google Drive v3 client covering exactly what the
// extraction engine needs: listing a folder and downloading or exporting one
// file. Native workspace documents are exported as PDF; everything else is
// downloaded verbatim.
package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

const (
	// DefaultBaseURL is the Drive v3 API root.
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"

	// DefaultTimeout bounds one HTTP round trip, downloads included.
	DefaultTimeout = 5 * time.Minute

	// workspacePrefix marks native workspace types that have no byte content
	// and must be exported instead of downloaded.
	workspacePrefix = "application/vnd.google-apps"

	// exportMIMEType is the format workspace documents are exported as.
	exportMIMEType = "application/pdf"

	// listPageSize is the maximum Drive allows per list page.
	listPageSize = 1000

	// maxDownloadBytes caps one download; anything larger is not a document
	// the extraction service would accept anyway.
	maxDownloadBytes = 256 << 20
)

// ErrTooLarge is returned when a download exceeds maxDownloadBytes.
var ErrTooLarge = errors.New("file exceeds download cap")

// File is one entry of a folder listing.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,string,omitempty"`
}

type listResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Files         []File `json:"files"`
}

// Client talks to one Drive endpoint with one bearer token. It is safe for
// concurrent use, but the engine builds one per worker via NewFactory so
// connection state stays worker-local.
type Client struct {
	hc      *http.Client
	baseURL string
	token   string
}

// Option adjusts a Client at construction.
type Option func(*Client)

// WithBaseURL points the client at a non-default endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// New builds a Client authenticating with token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		hc:      &http.Client{Timeout: DefaultTimeout},
		baseURL: DefaultBaseURL,
		token:   token,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewFactory returns a FetcherFactory building one Client per worker, all
// sharing the same token and options.
func NewFactory(token string, opts ...Option) batch.FetcherFactory {
	return func(int) batch.Fetcher {
		return New(token, opts...)
	}
}

// ListFolder returns every non-trashed file directly inside folderID,
// following pagination to the end.
func (c *Client) ListFolder(ctx context.Context, folderID string) ([]File, error) {
	var files []File

	pageToken := ""

	for {
		page, err := c.listPage(ctx, folderID, pageToken)
		if err != nil {
			return nil, err
		}

		files = append(files, page.Files...)

		if page.NextPageToken == "" {
			return files, nil
		}

		pageToken = page.NextPageToken
	}
}

func (c *Client) listPage(ctx context.Context, folderID, pageToken string) (listResponse, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", folderID))
	query.Set("pageSize", fmt.Sprint(listPageSize))
	query.Set("fields", "nextPageToken,files(id,name,mimeType,size)")

	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	body, err := c.get(ctx, "/files?"+query.Encode())
	if err != nil {
		return listResponse{}, fmt.Errorf("list folder %s: %w", folderID, err)
	}

	var page listResponse

	err = json.Unmarshal(body, &page)
	if err != nil {
		return listResponse{}, fmt.Errorf("decode folder listing: %w", err)
	}

	return page, nil
}

// Fetch downloads the content of one task's file. Workspace-native content
// types are exported as PDF; all other types are downloaded with alt=media.
func (c *Client) Fetch(ctx context.Context, task batch.Task) ([]byte, error) {
	path := "/files/" + url.PathEscape(task.ID) + "?alt=media"
	if strings.HasPrefix(task.ContentType, workspacePrefix) {
		path = "/files/" + url.PathEscape(task.ID) + "/export?mimeType=" + url.QueryEscape(exportMIMEType)
	}

	data, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", task.ID, err)
	}

	return data, nil
}

// get performs one authenticated GET and returns the body. Non-2xx responses
// become errors carrying the HTTP status line, so throttling responses stay
// recognizable upstream.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("drive API: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if len(body) > maxDownloadBytes {
		return nil, ErrTooLarge
	}

	return body, nil
}

// Tasks converts a folder listing into engine tasks, preserving order.
func Tasks(files []File) []batch.Task {
	tasks := make([]batch.Task, 0, len(files))

	for _, f := range files {
		tasks = append(tasks, batch.Task{
			ID:          f.ID,
			Name:        f.Name,
			ContentType: f.MimeType,
		})
	}

	return tasks
}
