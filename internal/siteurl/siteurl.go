// Package siteurl holds the URL shape rules shared by configuration, crawl
// control, and search.
package siteurl

import (
	"net/url"
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`^https?://(?:www\.)?[-a-zA-Z0-9@:%._+~#=]{1,256}\b$`)

// Valid reports whether raw looks like a site root URL.
func Valid(raw string) bool {
	return pattern.MatchString(raw)
}

// Normalize trims whitespace and a trailing slash from a site root.
func Normalize(raw string) string {
	return strings.TrimSuffix(strings.TrimSpace(raw), "/")
}

// Join builds an absolute URL from a site root and a root-relative path.
func Join(root, path string) string {
	root = Normalize(root)
	if path == "" {
		return root + "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return root + path
}

// RelativePath returns the part of pageURL below root, or false when pageURL
// does not belong to root. The comparison ignores case in the root part.
func RelativePath(root, pageURL string) (string, bool) {
	root = Normalize(root)
	pageURL = strings.TrimSpace(pageURL)
	if len(pageURL) < len(root) || !strings.EqualFold(pageURL[:len(root)], root) {
		return "", false
	}
	rest := pageURL[len(root):]
	switch {
	case rest == "":
		return "/", true
	case strings.HasPrefix(rest, "/"):
		return rest, true
	default:
		// https://example.com is not a prefix owner of https://example.com.evil
		return "", false
	}
}

// Host returns the lower-cased host of raw, or raw itself when it cannot be parsed.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.ToLower(u.Host)
}
