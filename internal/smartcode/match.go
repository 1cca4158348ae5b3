package smartcode

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Match reports whether code matches a segment glob pattern.
//
// Patterns use dots as separators; "*" matches exactly one part and "**" matches any
// run of parts (including none). Matching is case-insensitive:
//
//	Match("**.POS.**", "HERA.SALON.POS.SALE.v1")   // true
//	Match("HERA.*.SVC.**", "HERA.SALON.SVC.CUT.v2") // true
//	Match("HERA.GL.*.v1", "HERA.GL.JOURNAL.v2")     // false
//
// An invalid pattern never matches.
func Match(pattern, code string) bool {
	if pattern == "" || code == "" {
		return false
	}
	ok, err := doublestar.Match(toPath(pattern), toPath(code))
	return err == nil && ok
}

// MatchAny reports whether code matches at least one pattern.
func MatchAny(patterns []string, code string) bool {
	for _, p := range patterns {
		if Match(p, code) {
			return true
		}
	}
	return false
}

// ValidPattern reports whether pattern is a syntactically valid glob.
func ValidPattern(pattern string) bool {
	return pattern != "" && doublestar.ValidatePattern(toPath(pattern))
}

// toPath maps dot separators onto the slash separators doublestar understands.
func toPath(s string) string {
	return strings.ReplaceAll(strings.ToUpper(s), ".", "/")
}
