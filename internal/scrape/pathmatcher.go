package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns skip documents and app pages that never carry
// company signals.
var defaultExcludePatterns = []string{
	"/*.pdf",
	"/*.zip",
	"/login*",
	"/signin*",
	"/cart/*",
	"/checkout/*",
	"/wp-admin/*",
}

// PathMatcher filters URLs by glob-style path patterns. "/x/*" also matches
// deeper paths such as "/x/a/b".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher falls back to the default patterns when none are given.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	lower := make([]string, len(patterns))
	for i, p := range patterns {
		lower[i] = strings.ToLower(p)
	}
	return &PathMatcher{patterns: lower}
}

// IsExcluded reports whether the URL is unparseable or matches a pattern.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(pattern, p) {
			return true
		}
	}
	return false
}

func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/")
	}
	// "/x*" style: match any path starting with /x.
	if strings.HasSuffix(pattern, "*") && !strings.Contains(pattern[:len(pattern)-1], "*") {
		return strings.HasPrefix(urlPath, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
