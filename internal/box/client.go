// Package box is a small client for the parts of the Box Content API the
// pipeline uses: folder listing, uploads and shared links.
package box

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"council-pipeline-go/internal/config"
	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/retry"
)

const (
	APIBase    = "https://api.box.com/2.0"
	UploadBase = "https://upload.box.com/api/2.0"

	pageSize = 1000
)

// Item is a file or folder entry.
type Item struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type Client struct {
	http       *http.Client
	apiBase    string
	uploadBase string
	maxElapsed time.Duration
	log        *logger.Logger
}

// NewClient authenticates with the stored token pair. Refreshed tokens are
// written back to cfg.Box.EnvFile.
func NewClient(ctx context.Context, cfg *config.Config, log *logger.Logger) *Client {
	hc := oauth2.NewClient(ctx, TokenSource(ctx, cfg.Box))
	return NewWithHTTPClient(hc, APIBase, UploadBase, cfg.HTTP.MaxRetryElapsed, log)
}

// NewWithHTTPClient builds a client around an already authenticated
// http.Client.
func NewWithHTTPClient(hc *http.Client, apiBase, uploadBase string, maxElapsed time.Duration, log *logger.Logger) *Client {
	return &Client{
		http:       hc,
		apiBase:    strings.TrimRight(apiBase, "/"),
		uploadBase: strings.TrimRight(uploadBase, "/"),
		maxElapsed: maxElapsed,
		log:        log.Component("box"),
	}
}

// ListFolder returns every entry in the folder, following pagination.
func (c *Client) ListFolder(ctx context.Context, folderID string) ([]Item, error) {
	var all []Item
	for offset := 0; ; {
		q := url.Values{}
		q.Set("fields", "id,type,name")
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("offset", strconv.Itoa(offset))
		endpoint := fmt.Sprintf("%s/folders/%s/items?%s", c.apiBase, url.PathEscape(folderID), q.Encode())

		var page struct {
			TotalCount int    `json:"total_count"`
			Entries    []Item `json:"entries"`
		}
		err := c.doJSON(ctx, func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		}, &page)
		if err != nil {
			return nil, fmt.Errorf("list folder %s: %w", folderID, err)
		}
		all = append(all, page.Entries...)
		offset += len(page.Entries)
		if len(page.Entries) == 0 || offset >= page.TotalCount {
			return all, nil
		}
	}
}

// SharedLink turns on an open, downloadable shared link for the file and
// returns its URL.
func (c *Client) SharedLink(ctx context.Context, fileID string) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"shared_link": map[string]any{
			"access":      "open",
			"permissions": map[string]bool{"can_download": true},
		},
	})
	endpoint := fmt.Sprintf("%s/files/%s?fields=shared_link", c.apiBase, url.PathEscape(fileID))

	var out struct {
		SharedLink *struct {
			URL string `json:"url"`
		} `json:"shared_link"`
	}
	err := c.doJSON(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &out)
	if err != nil {
		return "", fmt.Errorf("shared link for %s: %w", fileID, err)
	}
	if out.SharedLink == nil || out.SharedLink.URL == "" {
		return "", fmt.Errorf("shared link for %s: empty response", fileID)
	}
	return out.SharedLink.URL, nil
}

// Upload sends a local file into the folder under its base name.
func (c *Client) Upload(ctx context.Context, folderID, path string) (Item, error) {
	attrs, _ := json.Marshal(map[string]any{
		"name":   filepath.Base(path),
		"parent": map[string]string{"id": folderID},
	})

	var out struct {
		Entries []Item `json:"entries"`
	}
	start := time.Now()
	err := c.doJSON(ctx, func() (*http.Request, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			defer f.Close()
			err := mw.WriteField("attributes", string(attrs))
			if err == nil {
				var part io.Writer
				part, err = mw.CreateFormFile("file", filepath.Base(path))
				if err == nil {
					_, err = io.Copy(part, f)
				}
			}
			if err == nil {
				err = mw.Close()
			}
			pw.CloseWithError(err)
		}()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadBase+"/files/content", pr)
		if err != nil {
			pr.Close()
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}, &out)
	if err != nil {
		return Item{}, fmt.Errorf("upload %s: %w", path, err)
	}
	if len(out.Entries) == 0 {
		return Item{}, fmt.Errorf("upload %s: empty response", path)
	}
	c.log.WithField("file", path).
		WithField("box_id", out.Entries[0].ID).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("uploaded")
	return out.Entries[0], nil
}

// doJSON sends the request built by newReq, retrying transient failures,
// and decodes a 2xx body into target. newReq runs once per attempt so
// request bodies can be rebuilt.
func (c *Client) doJSON(ctx context.Context, newReq func() (*http.Request, error), target any) error {
	return retry.Do(ctx, c.maxElapsed, func() error {
		req, err := newReq()
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			var authErr *oauth2.RetrieveError
			if errors.As(err, &authErr) {
				return retry.Permanent(fmt.Errorf("refresh box token: %w", err))
			}
			c.log.WithError(err).WithField("url", req.URL.Path).Warn("box request failed")
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := retry.CheckStatus(resp.StatusCode, body); err != nil {
			return err
		}
		if target == nil {
			return nil
		}
		if err := json.Unmarshal(body, target); err != nil {
			return retry.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}
