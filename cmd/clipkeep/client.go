package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hp77-creator/clipkeep/internal/search"
	"github.com/hp77-creator/clipkeep/pkg/types"
)

// apiClient talks to a running daemon
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: base, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) list(ctx context.Context, limit int) ([]types.Entry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out []types.Entry
	err := c.do(ctx, http.MethodGet, "/api/clips?"+q.Encode(), nil, &out)
	return out, err
}

func (c *apiClient) search(ctx context.Context, query, mode string, threshold float64, limit int) ([]search.RankedEntry, error) {
	q := url.Values{"q": {query}}
	if mode != "" {
		q.Set("mode", mode)
	}
	if threshold > 0 {
		q.Set("threshold", fmt.Sprint(threshold))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out []search.RankedEntry
	err := c.do(ctx, http.MethodGet, "/api/search?"+q.Encode(), nil, &out)
	return out, err
}

func (c *apiClient) setPinned(ctx context.Context, id string, pinned bool) error {
	action := "unpin"
	if pinned {
		action = "pin"
	}
	return c.do(ctx, http.MethodPost, "/api/clips/"+url.PathEscape(id)+"/"+action, nil, nil)
}

func (c *apiClient) setTags(ctx context.Context, id string, tags []string) error {
	return c.do(ctx, http.MethodPut, "/api/clips/"+url.PathEscape(id)+"/tags", map[string][]string{"tags": tags}, nil)
}

func (c *apiClient) remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/clips/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/clips", nil, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach clipkeep daemon (is `clipkeep run` active?): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
