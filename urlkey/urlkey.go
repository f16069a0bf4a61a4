// Package urlkey validates, canonicalizes and fingerprints URLs so that
// equivalent inputs always map to the same cache key.
package urlkey

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultScreenshotBase is the screenshot rendering service endpoint. The
// service is never called from this process; the URL is handed to the
// presentation layer as-is.
const DefaultScreenshotBase = "https://api.microlink.io"

var schemeRe = regexp.MustCompile(`(?i)^https?://`)

// Normalize validates a raw user-supplied URL and returns its canonical
// form. Inputs without a scheme get https:// prepended; schemes other than
// http and https are rejected. Scheme and host are lower-cased and an empty
// path becomes "/" so that equivalent spellings normalize identically.
func Normalize(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", fmt.Errorf("empty URL")
	}

	if !schemeRe.MatchString(candidate) {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("only HTTP and HTTPS URLs are supported")
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL has no host")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// Fingerprint derives the cache/storage key for a normalized URL: the md5
// hex digest of the lower-cased, trimmed input. The digest is a lookup key,
// not an integrity check, so md5's collision weakness is irrelevant here.
func Fingerprint(normalized string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(normalized))))
	return hex.EncodeToString(sum[:])
}

// ScreenshotURL builds the templated screenshot-service URL for a normalized
// URL. Callers must re-derive this per response rather than replaying a
// stored value, so that template changes take effect immediately.
func ScreenshotURL(base, normalized string) string {
	if base == "" {
		base = DefaultScreenshotBase
	}
	return fmt.Sprintf("%s?url=%s&screenshot=true&meta=false&embed=screenshot.url",
		base, url.QueryEscape(normalized))
}
