package client

import (
	"regexp"
	"strings"
)

var (
	urlHostPrefix  = regexp.MustCompile(`(?i)^https?://[^/]+/`)
	s3BucketPrefix = regexp.MustCompile(`(?i)^s3://[^/]+/`)
	querySuffix    = regexp.MustCompile(`[?#].*$`)
	repeatedSlash  = regexp.MustCompile(`/+`)
)

const catalogProductDir = "catalog/product/"

// ToTail reduces a gallery path, media URL or s3:// URI to the path below
// catalog/product, e.g. "https://cdn/media/catalog/product/a/b/x.jpg?v=1"
// becomes "a/b/x.jpg".
func ToTail(input string) string {
	val := strings.TrimSpace(input)
	val = urlHostPrefix.ReplaceAllString(val, "")
	val = s3BucketPrefix.ReplaceAllString(val, "")
	val = querySuffix.ReplaceAllString(val, "")
	val = strings.TrimLeft(val, "/")

	switch {
	case strings.HasPrefix(val, "pub/media/"):
		val = strings.TrimPrefix(val, "pub/media/")
	case strings.HasPrefix(val, "media/"):
		val = strings.TrimPrefix(val, "media/")
	}
	val = strings.TrimPrefix(val, catalogProductDir)

	val = repeatedSlash.ReplaceAllString(val, "/")
	return strings.TrimLeft(val, "/")
}

// ObjectKey builds the object key of a tail path under prefix
func ObjectKey(prefix, tail string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + catalogProductDir + strings.TrimLeft(tail, "/")
}
