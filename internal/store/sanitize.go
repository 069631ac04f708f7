package store

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// maxNameLength bounds sanitized directory names for portability.
const maxNameLength = 100

var (
	hostileChars   = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// SanitizeName makes an entity display name safe as a directory component:
// filesystem-hostile characters and whitespace runs become underscores and
// the result is truncated to a bounded length.
func SanitizeName(name string) string {
	s := hostileChars.ReplaceAllString(name, "_")
	s = whitespaceRuns.ReplaceAllString(strings.TrimSpace(s), "_")
	if runes := []rune(s); len(runes) > maxNameLength {
		s = string(runes[:maxNameLength])
	}
	if s == "" {
		s = "_"
	}
	return s
}

// extensionFor picks the artifact extension from the validated content type,
// falling back to the URL path, defaulting to .jpg.
func extensionFor(contentType, rawURL string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "svg"):
		return ".svg"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	}
	if u, err := url.Parse(rawURL); err == nil {
		switch ext := strings.ToLower(path.Ext(u.Path)); ext {
		case ".png", ".jpg", ".jpeg", ".svg", ".webp", ".gif":
			return ext
		}
	}
	return ".jpg"
}
