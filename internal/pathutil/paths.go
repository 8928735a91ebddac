// Package pathutil holds the filesystem-facing helpers that run before the
// worker pool starts: path expansion, destination preparation and filename
// derivation. None of this is concurrent with workers.
package pathutil

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FallbackFilename is used when a URL has no usable final path segment.
const FallbackFilename = "downloaded_file"

// ExpandTilde replaces a leading ~ with the current user's home directory.
func ExpandTilde(s string) string {
	if s == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return s
	}
	if strings.HasPrefix(s, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, s[2:])
		}
	}
	return s
}

// Expand performs environment variable expansion plus tilde expansion.
// Unset variables expand to the empty string.
func Expand(s string) string {
	return ExpandTilde(os.ExpandEnv(s))
}

// PrepareDest expands dir, optionally removes it first, creates it and
// returns the absolute path. Must run before workers start.
func PrepareDest(dir string, clean bool) (string, error) {
	dir = Expand(dir)
	if clean {
		_ = os.RemoveAll(dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir, nil
	}
	return abs, nil
}

// Filename derives the local filename from the URL's final path segment.
func Filename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return FallbackFilename
	}
	name := filepath.Base(u.Path)
	if name == "" || name == "." || name == "/" || strings.Contains(name, "\x00") {
		return FallbackFilename
	}
	return name
}

// Disambiguate makes every name unique while preserving order. The first
// occurrence keeps its name; later collisions get a numeric suffix inserted
// before the extension ("a.txt" -> "a.1.txt").
func Disambiguate(names []string) []string {
	used := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		if !used[name] {
			out[i] = name
			used[name] = true
			continue
		}
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s.%d%s", base, n, ext)
			if !used[candidate] {
				out[i] = candidate
				used[candidate] = true
				break
			}
		}
	}
	return out
}
