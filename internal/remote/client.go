package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/morgisync/internal/model"
)

// DefaultTimeout bounds a single request when no http.Client is supplied.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a response body is read.
const maxBody = 32 << 20

// Client is the HTTP client for the store's request/response endpoints.
type Client struct {
	base string
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http = &http.Client{Timeout: d}
	}
}

// NewClient creates a Client for the store at baseURL, e.g.
// "http://127.0.0.1:8000".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server url %q: missing host", baseURL)
	}

	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoints returns the display and live-channel address helpers for this
// store.
func (c *Client) Endpoints() Endpoints {
	return Endpoints{Base: c.base}
}

// FetchImages pulls every image record.
func (c *Client) FetchImages(ctx context.Context) ([]model.Image, error) {
	var images []model.Image
	if err := c.do(ctx, "fetch images", http.MethodGet, "/images", nil, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// FetchCategories pulls the category list.
func (c *Client) FetchCategories(ctx context.Context) ([]model.Category, error) {
	var list categoryList
	if err := c.do(ctx, "fetch categories", http.MethodGet, "/categories", nil, &list); err != nil {
		return nil, err
	}
	return list.Categories, nil
}

// Trash moves an image to the recycle state.
func (c *Client) Trash(ctx context.Context, id string) error {
	return c.do(ctx, "trash", http.MethodPatch, "/images/"+url.PathEscape(id)+"/trash", nil, nil)
}

// ToggleFavorite flips the favorite flag and returns the stored value.
func (c *Client) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var res favoriteResult
	if err := c.do(ctx, "toggle favorite", http.MethodPatch, "/images/toggle-favorite/"+url.PathEscape(id), nil, &res); err != nil {
		return false, err
	}
	return res.IsFavorite, nil
}

// ChangeCategory moves an image to category. With restore set the image
// also leaves the trash.
func (c *Client) ChangeCategory(ctx context.Context, id, category string, restore bool) error {
	body := changeCategoryRequest{ID: id, Category: category, Restore: restore}
	return c.do(ctx, "change category", http.MethodPatch, "/images/change-category", body, nil)
}

// PermanentDelete removes an image and its archived file.
func (c *Client) PermanentDelete(ctx context.Context, id string) error {
	return c.do(ctx, "permanent delete", http.MethodDelete, "/images/permanent-delete/"+url.PathEscape(id), nil, nil)
}

// EmptyTrash removes every trashed image. It returns the number removed, or
// -1 when the store does not report it.
func (c *Client) EmptyTrash(ctx context.Context) (int, error) {
	var res emptyTrashResult
	if err := c.do(ctx, "empty trash", http.MethodDelete, "/empty-trash", nil, &res); err != nil {
		return 0, err
	}
	if res.Removed == nil {
		return -1, nil
	}
	return *res.Removed, nil
}

// CreateCategory creates a category and returns the stored record.
func (c *Client) CreateCategory(ctx context.Context, name string) (model.Category, error) {
	var cat model.Category
	if err := c.do(ctx, "create category", http.MethodPost, "/categories", createRequest{Name: name}, &cat); err != nil {
		return model.Category{}, err
	}
	return cat, nil
}

// RenameCategory renames oldName to newName. Without merge a clash with an
// existing name yields RenameConflict rather than an error.
func (c *Client) RenameCategory(ctx context.Context, oldName, newName string, merge bool) (RenameResult, error) {
	var res RenameResult
	body := renameRequest{OldName: oldName, NewName: newName, Merge: merge}
	if err := c.do(ctx, "rename category", http.MethodPatch, "/categories/rename", body, &res); err != nil {
		return RenameResult{}, err
	}
	return res, nil
}

// DeleteCategory deletes a category. With DeleteIfEmpty the store reports the
// member count instead of deleting a non-empty category.
func (c *Client) DeleteCategory(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	var res DeleteResult
	if err := c.do(ctx, "delete category", http.MethodDelete, "/categories", req, &res); err != nil {
		return DeleteResult{}, err
	}
	return res, nil
}

// VerifyAndShield asks the store to archive the most recent download as the
// image's local copy. It returns the archived path.
func (c *Client) VerifyAndShield(ctx context.Context, id string) (string, error) {
	var res shieldResult
	if err := c.do(ctx, "shield", http.MethodPost, "/images/"+url.PathEscape(id)+"/verify-and-shield", nil, &res); err != nil {
		return "", err
	}
	return res.SafePath, nil
}

// SaveImage submits a captured image.
func (c *Client) SaveImage(ctx context.Context, draft ImageDraft) (SaveResult, error) {
	var res SaveResult
	if err := c.do(ctx, "save image", http.MethodPost, "/add-image", draft, &res); err != nil {
		return SaveResult{}, err
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(op, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
