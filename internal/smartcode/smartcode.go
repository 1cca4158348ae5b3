// Package smartcode parses and validates the versioned classification string attached to
// every record.
//
// A smart code has the shape PREFIX.SEGMENT.SEGMENT[...].vN:
//
//	HERA.SALON.SVC.HAIRCUT.v1
//	HERA.JEWELRY.POS.SALE.V3
//
// At least four dot-separated parts are required: a prefix, two or more segments and a
// version suffix. Prefix and segments are upper case; only the version suffix is
// case-insensitive. Downstream consumers pattern-match on codes with Match instead of
// relying on a schema.
package smartcode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/recordstore/internal/apperr"
)

const (
	// MinParts is the minimum number of dot-separated parts (prefix, 2 segments, version).
	MinParts = 4

	// MaxParts bounds the code length.
	MaxParts = 16

	maxSegmentLen = 40
)

// Code is a parsed smart code.
type Code struct {
	Raw      string
	Prefix   string
	Segments []string // Between prefix and version, never empty
	Version  int
}

// Parse parses and validates s.
// Returns an InvalidSmartCode error naming the malformed part.
func Parse(s string) (Code, error) {
	if s == "" {
		return Code{}, apperr.InvalidSmartCode(s, "empty")
	}
	if strings.TrimSpace(s) != s {
		return Code{}, apperr.InvalidSmartCode(s, "leading or trailing whitespace")
	}

	parts := strings.Split(s, ".")
	if len(parts) < MinParts {
		return Code{}, apperr.InvalidSmartCode(s, fmt.Sprintf("need at least %d parts, got %d", MinParts, len(parts)))
	}
	if len(parts) > MaxParts {
		return Code{}, apperr.InvalidSmartCode(s, fmt.Sprintf("at most %d parts allowed, got %d", MaxParts, len(parts)))
	}

	if !isPrefix(parts[0]) {
		return Code{}, partError(s, 0, parts[0], "prefix must start with A-Z and contain only A-Z, 0-9")
	}

	last := len(parts) - 1
	for i := 1; i < last; i++ {
		if !isSegment(parts[i]) {
			return Code{}, partError(s, i, parts[i], "segment must contain only A-Z, 0-9, _")
		}
	}

	version, ok := parseVersion(parts[last])
	if !ok {
		return Code{}, partError(s, last, parts[last], "version suffix must be v<N> with N >= 1")
	}

	return Code{
		Raw:      s,
		Prefix:   parts[0],
		Segments: append([]string(nil), parts[1:last]...),
		Version:  version,
	}, nil
}

// Validate reports whether s is a well-formed smart code.
func Validate(s string) error {
	_, err := Parse(s)
	return err
}

// MustParse is like Parse but panics on error.
// Use only in tests or with constant inputs.
func MustParse(s string) Code {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the code with a normalised lower-case version suffix.
func (c Code) String() string {
	return c.Family() + ".v" + strconv.Itoa(c.Version)
}

// Family returns the code without its version suffix.
func (c Code) Family() string {
	return c.Prefix + "." + strings.Join(c.Segments, ".")
}

// WithVersion returns a copy of c at version n.
func (c Code) WithVersion(n int) Code {
	out := c
	out.Segments = append([]string(nil), c.Segments...)
	out.Version = n
	out.Raw = out.String()
	return out
}

// Module returns the first segment after the prefix (the business module).
func (c Code) Module() string {
	return c.Segments[0]
}

// Equal compares two codes ignoring version-suffix case.
func Equal(a, b string) bool {
	ca, errA := Parse(a)
	cb, errB := Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ca.String() == cb.String()
}

func partError(code string, index int, part, reason string) error {
	return apperr.InvalidSmartCode(code, reason).
		WithDetail("part", part).
		WithDetail("index", strconv.Itoa(index))
}

func isPrefix(s string) bool {
	if s == "" || len(s) > maxSegmentLen {
		return false
	}
	if s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func isSegment(s string) bool {
	if s == "" || len(s) > maxSegmentLen {
		return false
	}
	if s[0] == '_' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_' {
			return false
		}
	}
	return true
}

func parseVersion(s string) (int, bool) {
	if len(s) < 2 || (s[0] != 'v' && s[0] != 'V') {
		return 0, false
	}
	digits := s[1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	if digits[0] == '0' {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
