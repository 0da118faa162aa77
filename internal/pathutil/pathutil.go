// Package pathutil provides canonical path handling for cache keys and
// tracking identities.
//
// All paths are normalized to forward-slash form. Matching is segment-wise:
// "/dir1" is an ancestor of "/dir1/x" but not of "/dir1x".
package pathutil

import (
	"path"
	"strings"
)

// Normalize returns the canonical form of p: forward slashes, cleaned
// (no ".", "..", duplicate or trailing separators). Case is preserved.
// The empty string normalizes to ".".
func Normalize(p string) string {
	if p == "" {
		return "."
	}
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean(p)
}

// Depth returns the number of path segments in p after normalization.
// "/" and "." have depth 0, "/a/b" and "a/b" have depth 2.
func Depth(p string) int {
	p = Normalize(p)
	if p == "/" || p == "." {
		return 0
	}
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

// IsAncestorOf reports whether p equals ancestor or lies below it.
// The comparison is segment-wise, so "/dir1" does not match "/dir1x".
// Both arguments must already be normalized.
func IsAncestorOf(ancestor, p string) bool {
	if ancestor == p {
		return true
	}
	if ancestor == "/" {
		return strings.HasPrefix(p, "/")
	}
	if ancestor == "." {
		return p != "" && !strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// Join joins a parent path and a child name in normalized form.
func Join(parent, name string) string {
	return Normalize(path.Join(parent, name))
}

// Base returns the last segment of p.
func Base(p string) string {
	return path.Base(Normalize(p))
}

// Parent returns the parent path of p and false if p is a root ("/" or ".").
func Parent(p string) (string, bool) {
	p = Normalize(p)
	if p == "/" || p == "." {
		return p, false
	}
	dir := path.Dir(p)
	if dir == p {
		return dir, false
	}
	return dir, true
}
