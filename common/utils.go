package common

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// BoolOr dereferences an optional flag, falling back to def when it is unset.
//
// Parameters:
//   - b: the optional flag
//   - def: the default value
//
// Returns:
//   - bool: *b, or def if b is nil
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// IsDataURL reports whether p is a data: URL.
func IsDataURL(p string) bool {
	return strings.HasPrefix(p, "data:")
}

// StripQuery removes a "?query" suffix from a path. Data URLs are returned unchanged.
//
// Parameters:
//   - p: the path or URL
//
// Returns:
//   - string: the path without its query string
//   - string: the query string without the leading "?"
func StripQuery(p string) (string, string) {
	if IsDataURL(p) {
		return p, ""
	}
	before, after, found := strings.Cut(p, "?")
	if !found {
		return p, ""
	}
	return before, after
}

// FileExtension returns the lower-cased extension of a file name or URL without the leading dot.
// Query strings and fragments are ignored. Data URLs have no extension.
//
// Parameters:
//   - name: the file name, path or URL
//
// Returns:
//   - string: the extension, or "" if there is none
func FileExtension(name string) string {
	if IsDataURL(name) {
		return ""
	}
	name, _ = StripQuery(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '#'); i >= 0 {
		name = name[:i]
	}
	ext := path.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// DataURLMime returns the MIME type declared by a data URL, or "" for other paths.
func DataURLMime(p string) string {
	if !IsDataURL(p) {
		return ""
	}
	header, _, found := strings.Cut(p[len("data:"):], ",")
	if !found {
		return ""
	}
	mime, _, _ := strings.Cut(header, ";")
	return mime
}

// DecodeDataURL decodes a data URL into raw bytes and extracts the MIME type.
// Both base64 and percent-encoded payloads are supported.
//
// Parameters:
//   - uri: the data URL
//
// Returns:
//   - []byte: the decoded payload
//   - string: the declared MIME type
//   - error: error if the URL is malformed
func DecodeDataURL(uri string) ([]byte, string, error) {
	if !IsDataURL(uri) {
		return nil, "", fmt.Errorf("not a data URI")
	}

	header, encoded, found := strings.Cut(uri[len("data:"):], ",")
	if !found {
		return nil, "", fmt.Errorf("malformed data URI: no comma found")
	}

	mimeType := header
	if strings.HasSuffix(header, ";base64") {
		mimeType = strings.TrimSuffix(header, ";base64")
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode base64: %w", err)
		}
		return data, mimeType, nil
	}

	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("failed to unescape data URI: %w", err)
	}
	return []byte(decoded), mimeType, nil
}

// EncodeDataURL encodes data as a base64 data URL.
//
// Parameters:
//   - data: the payload
//   - mimeType: the media type to declare, "application/octet-stream" when empty
//
// Returns:
//   - string: the data URL
func EncodeDataURL(data []byte, mimeType string) string {
	return "data:" + Coalesce(mimeType, "application/octet-stream") + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// URLBase returns the directory part of a path or URL including the trailing slash,
// or "./" when the path has no directory.
func URLBase(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "./"
	}
	return p[:i+1]
}

// IsAbsoluteURL reports whether p carries a scheme (http:, blob:, data:) or starts at a root.
func IsAbsoluteURL(p string) bool {
	if strings.HasPrefix(p, "/") || IsDataURL(p) || strings.HasPrefix(p, "blob:") {
		return true
	}
	return strings.Contains(p, "://")
}

// FileNameFromPath returns the last path element of p without query string.
func FileNameFromPath(p string) string {
	p, _ = StripQuery(p)
	return path.Base(strings.TrimRight(p, "/"))
}
