package index

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nexuscore/agentcore/internal/net/ssrf"
	"github.com/nexuscore/agentcore/internal/tools/browser"
)

// sourceItem is one unit of work discovered while enumerating a request,
// ahead of being handed to the parser/chunker/embedder/store chain.
type sourceItem struct {
	Index    int
	Path     string // local filesystem path to read
	URI      string // logical identity: the original URL, or the path
	MimeType string
	Source   string // file|web|audio|video|image
	Size     int64
}

// enumerateLocal expands a local file or directory into one sourceItem per
// file, honoring recursive.
func enumerateLocal(root string, recursive bool) ([]sourceItem, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	if !info.IsDir() {
		return []sourceItem{newLocalItem(root, info.Size())}, nil
	}

	var paths []string
	if recursive {
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				paths = append(paths, path)
			}
			return nil
		})
	} else {
		entries, readErr := os.ReadDir(root)
		if readErr != nil {
			return nil, fmt.Errorf("read dir %s: %w", root, readErr)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				paths = append(paths, filepath.Join(root, entry.Name()))
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)

	items := make([]sourceItem, 0, len(paths))
	for _, p := range paths {
		fi, statErr := os.Stat(p)
		if statErr != nil {
			continue
		}
		items = append(items, newLocalItem(p, fi.Size()))
	}
	return items, nil
}

func newLocalItem(path string, size int64) sourceItem {
	mimeType := detectMimeType(path)
	return sourceItem{
		Path:     path,
		URI:      path,
		MimeType: mimeType,
		Source:   sourceFromMime(mimeType),
		Size:     size,
	}
}

// enumerateURL fetches a URL with a pooled headless browser, validates it
// against SSRF rules first, and materializes the rendered page plus any
// embedded assets into destDir as local sourceItems carrying their
// original URIs.
func enumerateURL(ctx context.Context, pool *browser.Pool, rawURL, destDir string) ([]sourceItem, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", rawURL, err)
	}
	if err := ssrf.ValidatePublicHostname(parsed.Hostname()); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	result, err := browser.FetchToFile(ctx, pool, rawURL, destDir)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	info, statErr := os.Stat(result.Path)
	var size int64
	if statErr == nil {
		size = info.Size()
	}

	items := []sourceItem{{
		Path:     result.Path,
		URI:      rawURL,
		MimeType: "text/html",
		Source:   "web",
		Size:     size,
	}}

	assets, err := enumerateEmbeddedAssets(ctx, result.Path, rawURL, destDir)
	if err != nil {
		return items, nil // the page itself still ingests even if asset discovery fails
	}
	items = append(items, assets...)
	return items, nil
}

// enumerateEmbeddedAssets downloads the binary assets (images, mostly)
// directly referenced by an already-fetched HTML document, sharing the
// page's origin URI per spec so provenance ties back to the same fetch.
func enumerateEmbeddedAssets(ctx context.Context, htmlPath, originURL, destDir string) ([]sourceItem, error) {
	data, err := os.ReadFile(htmlPath)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(originURL)
	if err != nil {
		return nil, err
	}

	refs := extractAssetRefs(string(data))
	var items []sourceItem
	client := &http.Client{}

	for i, ref := range refs {
		assetURL, err := base.Parse(ref)
		if err != nil || !assetURL.IsAbs() {
			continue
		}
		if err := ssrf.ValidatePublicHostname(assetURL.Hostname()); err != nil {
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL.String(), nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}

		name := filepath.Base(assetURL.Path)
		if name == "" || name == "." || name == "/" {
			name = fmt.Sprintf("asset-%d", i)
		}
		localPath := filepath.Join(destDir, fmt.Sprintf("asset-%d-%s", i, name))
		out, err := os.Create(localPath)
		if err != nil {
			resp.Body.Close()
			continue
		}
		written, copyErr := copyBody(out, resp.Body)
		out.Close()
		resp.Body.Close()
		if copyErr != nil {
			continue
		}

		mimeType := resp.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = detectMimeType(localPath)
		}

		items = append(items, sourceItem{
			Path:     localPath,
			URI:      originURL,
			MimeType: mimeType,
			Source:   sourceFromMime(mimeType),
			Size:     written,
		})
	}
	return items, nil
}

// detectMimeType resolves a MIME type from a file's extension, falling
// back to sniffing its leading bytes when the extension is unknown.
func detectMimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		if idx := strings.Index(t, ";"); idx != -1 {
			t = strings.TrimSpace(t[:idx])
		}
		return t
	}
	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n])
}

// sourceFromMime maps a MIME type to the source enum used by the
// pipeline and recorded alongside every document.
func sourceFromMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	default:
		return "file"
	}
}
