// Package locator classifies asset locators and turns them into user-facing
// download references. Nothing here performs I/O.
//
// A locator is one of:
//   - a fallback placeholder, "fallback:{productID}", written when no asset
//     mapping existed at fulfillment time
//   - a direct single-asset link, e.g. https://drive.google.com/file/d/<id>/view
//   - a shared container link, e.g. https://drive.google.com/drive/folders/<id>
//   - any other absolute URL
//   - a bare file id with no scheme and no path
//
// The kind is decided from the locator's shape alone. A container link is never
// rewritten into a file link, and a file link is never rewritten into a
// container link.
package locator

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// FallbackPrefix marks placeholder locators.
const FallbackPrefix = "fallback:"

const driveFileURL = "https://drive.google.com/file/d/%s/view"

// Kind is the shape of a locator.
type Kind string

const (
	KindFallback  Kind = "fallback"
	KindFile      Kind = "file"
	KindContainer Kind = "container"
	KindURL       Kind = "url"
	KindFileID    Kind = "file_id"
	KindUnknown   Kind = "unknown"
)

// Reference is what the storefront renders for a grant. Actionable is false
// for placeholders; the caller shows a support message instead of a link.
type Reference struct {
	Kind       Kind   `json:"kind"`
	URL        string `json:"url,omitempty"`
	Actionable bool   `json:"actionable"`
}

// Fallback returns the placeholder locator for a product.
func Fallback(productID int64) string {
	return FallbackPrefix + strconv.FormatInt(productID, 10)
}

// IsFallback reports whether l is a placeholder locator.
func IsFallback(l string) bool {
	return strings.HasPrefix(l, FallbackPrefix)
}

// IsReal reports whether l names an actual asset.
func IsReal(l string) bool {
	return strings.TrimSpace(l) != "" && !IsFallback(l)
}

// Malformed reports whether l cannot name an asset at all: it holds
// whitespace or control characters, or it looks like a URL without a host.
// Short opaque tokens are not malformed.
func Malformed(l string) bool {
	l = strings.TrimSpace(l)
	if strings.ContainsFunc(l, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) {
		return true
	}
	if strings.Contains(l, "://") {
		u, err := url.Parse(l)
		return err != nil || u.Host == ""
	}
	return false
}

// Classify returns the kind of l.
func Classify(l string) Kind {
	l = strings.TrimSpace(l)
	switch {
	case l == "":
		return KindUnknown
	case IsFallback(l):
		return KindFallback
	}

	if !strings.Contains(l, "://") {
		if isBareID(l) {
			return KindFileID
		}
		return KindUnknown
	}

	u, err := url.Parse(l)
	if err != nil || u.Host == "" {
		return KindUnknown
	}

	path := u.Path
	switch {
	case strings.Contains(path, "/file/d/"):
		return KindFile
	case strings.Contains(path, "/folders/"):
		return KindContainer
	case u.Query().Get("id") != "" && strings.HasSuffix(path, "/uc"):
		return KindFile
	}
	return KindURL
}

// Resolve converts a raw locator into a reference.
func Resolve(l string) Reference {
	l = strings.TrimSpace(l)
	kind := Classify(l)
	switch kind {
	case KindFallback, KindUnknown:
		return Reference{Kind: kind}
	case KindFileID:
		return Reference{Kind: kind, URL: fmt.Sprintf(driveFileURL, l), Actionable: true}
	}
	return Reference{Kind: kind, URL: l, Actionable: true}
}

// isBareID accepts the character set of hosted file ids.
func isBareID(s string) bool {
	if len(s) < 8 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
