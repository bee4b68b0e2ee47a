// Package slug maps target URLs to stable, filesystem-safe directory names.
package slug

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// defaultSegment is used when the URL path carries no usable last segment.
const defaultSegment = "product"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// For combines the last path segment (readability) with a truncated SHA-1 of
// the full URL (uniqueness). Pure function: the same URL yields the same slug
// on every call, on any machine. Ten hex digits (40 bits) keep the collision
// odds negligible for batches in the thousands.
func For(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	h := hex.EncodeToString(sum[:])[:10]

	base := defaultSegment
	if u, err := url.Parse(rawURL); err == nil {
		if seg := path.Base(u.Path); seg != "" && seg != "/" && seg != "." {
			base = seg
		}
	}
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "-"), "-")
	if base == "" {
		base = defaultSegment
	}

	return base + "-" + h
}
