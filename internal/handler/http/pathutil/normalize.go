package pathutil

import (
	"regexp"
	"strings"
)

// PathPattern represents a regex pattern and its corresponding normalized template.
type PathPattern struct {
	Pattern  *regexp.Regexp
	Template string
}

// pathPatterns defines the dynamic routes, most specific first.
var pathPatterns = []*PathPattern{
	// 投稿
	{Pattern: regexp.MustCompile(`^/posts/\d+$`), Template: "/posts/:id"},
	{Pattern: regexp.MustCompile(`^/posts/\d+/comments$`), Template: "/posts/:id/comments"},

	// 著者
	{Pattern: regexp.MustCompile(`^/authors/\d+$`), Template: "/authors/:id"},
	{Pattern: regexp.MustCompile(`^/authors/\d+/posts$`), Template: "/authors/:id/posts"},
}

// NormalizePath converts dynamic URL paths to their route templates so that
// metric labels stay bounded.
//
// Examples:
//
//	NormalizePath("/posts/123")         // "/posts/:id"
//	NormalizePath("/posts/123/")        // "/posts/:id"
//	NormalizePath("/posts/123?draft=1") // "/posts/:id"
//	NormalizePath("/health")            // "/health" (unchanged)
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}

	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	for _, p := range pathPatterns {
		if p.Pattern.MatchString(path) {
			return p.Template
		}
	}

	// 静的パスはそのまま
	return path
}

// GetExpectedCardinality returns the expected number of unique path labels
// after normalization.
func GetExpectedCardinality() int {
	// /health, /health/breakers, /ready, /live, /metrics, /posts, ...
	staticCount := 10
	return len(pathPatterns) + staticCount
}
