// internal/rules/pattern.go
package rules

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

// Compiled patterns, including compile failures, live in a bounded LRU
// shared by all goroutines.
const patternCacheSize = 1024

var patternCache = mustPatternCache()

type compiledPattern struct {
	re *regexp.Regexp // nil = pattern failed to compile
}

func mustPatternCache() *lru.Cache {
	c, err := lru.New(patternCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}

// compilePattern compiles expr with the cache. Returns nil on error.
func compilePattern(expr string) *regexp.Regexp {
	if v, ok := patternCache.Get(expr); ok {
		return v.(compiledPattern).re
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		re = nil
	}
	patternCache.Add(expr, compiledPattern{re: re})
	return re
}

// matchPattern reports whether the bare pattern matches subject.
// Empty or invalid patterns never match.
func matchPattern(pattern, subject string) bool {
	if pattern == "" {
		return false
	}
	re := compilePattern(pattern)
	return re != nil && re.MatchString(subject)
}

// MatchPathPattern matches a path_regex expectation. Patterns starting with
// "/" use the delimited form /body/flags (flags i, m, s, U; u is accepted and
// ignored); anything else is a bare pattern.
func MatchPathPattern(pattern, subject string) bool {
	if !strings.HasPrefix(pattern, "/") {
		return matchPattern(pattern, subject)
	}

	end := strings.LastIndex(pattern, "/")
	if end <= 0 {
		return false
	}
	body, flags := pattern[1:end], pattern[end+1:]
	if body == "" {
		return false
	}

	var prefix strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's', 'U':
			if !strings.ContainsRune(prefix.String(), f) {
				prefix.WriteRune(f)
			}
		case 'u':
		default:
			return false
		}
	}
	if prefix.Len() > 0 {
		body = "(?" + prefix.String() + ")" + body
	}
	return matchPattern(body, subject)
}
