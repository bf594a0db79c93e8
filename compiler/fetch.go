package compiler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// SourceFetcher resolves a <script src>/<data src> URL to its body
// (spec.md §4.1 / §6 "Document resolution": http, https, file, plus bare
// paths relative to filedir).
type SourceFetcher interface {
	Fetch(ctx context.Context, resolved string) (string, error)
}

// DefaultFetcher fetches http(s) URLs over the network and resolves
// file/bare paths against BaseDir.
type DefaultFetcher struct {
	BaseDir string
	Client  *http.Client
}

func (f DefaultFetcher) Fetch(ctx context.Context, resolved string) (string, error) {
	u, err := url.Parse(resolved)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return f.fetchHTTP(ctx, resolved)
	}

	path := resolved
	if u != nil && u.Scheme == "file" {
		path = u.Path
	}
	if !filepath.IsAbs(path) && f.BaseDir != "" {
		path = filepath.Join(f.BaseDir, path)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("fetch %q: %w", resolved, err)
	}
	return string(body), nil
}

func (f DefaultFetcher) fetchHTTP(ctx context.Context, resolved string) (string, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %q: %w", resolved, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %q: %w", resolved, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %q: HTTP %d", resolved, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch %q: %w", resolved, err)
	}
	return string(body), nil
}
