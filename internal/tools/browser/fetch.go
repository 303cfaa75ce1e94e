package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
)

// FetchResult is the outcome of rendering a URL to disk for ingestion.
type FetchResult struct {
	// Path is the local HTML file written to destDir.
	Path string
	// Title is the page's <title>, when present.
	Title string
	// FinalURL is the URL after any redirects.
	FinalURL string
}

// FetchToFile navigates to url in a pooled headless browser tab, waits for
// the network to settle, and writes the rendered HTML to a file under
// destDir so the ingestion pipeline can hand it to the same parser path
// used for local files.
func FetchToFile(ctx context.Context, pool *Pool, url, destDir string) (*FetchResult, error) {
	instance, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire browser: %w", err)
	}
	defer pool.Release(instance)

	var html, title, finalURL string
	err = chromedp.Run(instance.ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create fetch dir: %w", err)
	}

	path := filepath.Join(destDir, "page.html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return nil, fmt.Errorf("write fetched page: %w", err)
	}

	if finalURL == "" {
		finalURL = url
	}
	return &FetchResult{Path: path, Title: title, FinalURL: finalURL}, nil
}
