package harness

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var templateRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)((?:\.[A-Za-z0-9_]+)*)\}`)

// bindings holds step results by save_as label.
type bindings map[string]any

// resolve replaces ${label.path} references in every string of v. A string that is
// exactly one reference takes the referenced value with its JSON type; otherwise the
// value is formatted into the string.
func (b bindings) resolve(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return b.resolveString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			r, err := b.resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := b.resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func (b bindings) resolveString(s string) (any, error) {
	matches := templateRef.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return b.lookup(s[matches[0][2]:matches[0][3]], s[matches[0][4]:matches[0][5]])
	}

	var out strings.Builder
	last := 0
	for _, m := range matches {
		out.WriteString(s[last:m[0]])
		v, err := b.lookup(s[m[2]:m[3]], s[m[4]:m[5]])
		if err != nil {
			return nil, err
		}
		fmt.Fprint(&out, v)
		last = m[1]
	}
	out.WriteString(s[last:])
	return out.String(), nil
}

// lookup walks path (".a.0.b") through the value saved as label.
func (b bindings) lookup(label, path string) (any, error) {
	cur, ok := b[label]
	if !ok {
		return nil, fmt.Errorf("unknown template label %q", label)
	}
	ref := label + path
	for _, seg := range strings.Split(strings.TrimPrefix(path, "."), ".") {
		if seg == "" {
			continue
		}
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("template ${%s}: no key %q", ref, seg)
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("template ${%s}: bad index %q", ref, seg)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("template ${%s}: cannot descend into %T", ref, cur)
		}
	}
	return cur, nil
}
