package index

import (
	"io"
	"regexp"
)

// assetRefPattern matches src="..."/href="..." attributes on the element
// types that carry embedded binary assets worth ingesting alongside a
// fetched page: images and linked icons.
var assetRefPattern = regexp.MustCompile(`(?i)<(?:img|source)[^>]+src=["']([^"']+)["']|<link[^>]+rel=["'](?:icon|shortcut icon)["'][^>]+href=["']([^"']+)["']`)

// extractAssetRefs returns the raw (possibly relative) asset URLs
// referenced by an HTML document.
func extractAssetRefs(html string) []string {
	matches := assetRefPattern.FindAllStringSubmatch(html, -1)
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		if m[1] != "" {
			refs = append(refs, m[1])
		} else if m[2] != "" {
			refs = append(refs, m[2])
		}
	}
	return refs
}

func copyBody(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}
