// Package rowpath resolves declarative column references against a
// dataset row. A reference is written as ${data.field.sub[0].leaf}: a
// dotted path with optional numeric list indices, rooted at the
// synthetic "data" wrapper that stands for the row itself.
package rowpath

import (
	"strconv"
	"strings"
)

// Root is the synthetic wrapper key that addresses the row.
const Root = "data"

const (
	refOpen  = "${"
	refClose = "}"
)

// IsRef reports whether a mapping value is a path reference rather than
// a literal.
func IsRef(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, refOpen) && strings.HasSuffix(s, refClose)
}

// ParseRef strips the ${...} wrapper and returns the inner path.
// The second return is false when v is not a reference.
func ParseRef(v any) (string, bool) {
	if !IsRef(v) {
		return "", false
	}
	s := strings.TrimSpace(v.(string))
	return strings.TrimSpace(s[len(refOpen) : len(s)-len(refClose)]), true
}

// Ref wraps a path in reference syntax.
func Ref(path string) string {
	return refOpen + path + refClose
}

type segment struct {
	field string
	index int
	isIdx bool
}

// Resolve walks path into row. It never errors: a missing intermediate
// key, a non-container where a container is needed, or an out-of-range
// index all report found = false.
func Resolve(path string, row map[string]any) (any, bool) {
	segs, ok := parsePath(path)
	if !ok || len(segs) == 0 {
		return nil, false
	}
	if segs[0].isIdx || segs[0].field != Root {
		return nil, false
	}

	var cur any = map[string]any(row)
	for _, seg := range segs[1:] {
		if seg.isIdx {
			list, ok := cur.([]any)
			if !ok {
				return nil, false
			}
			if seg.index < 0 || seg.index >= len(list) {
				return nil, false
			}
			cur = list[seg.index]
			continue
		}

		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg.field]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func parsePath(path string) ([]segment, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}

	var segs []segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, false
		}

		// Each dotted part is a field name followed by zero or more
		// [n] index suffixes; nothing may follow a closing bracket
		// except another index.
		field := part
		var idxs []int
		if open := strings.IndexByte(field, '['); open >= 0 {
			rest := field[open:]
			field = field[:open]
			for rest != "" {
				if rest[0] != '[' {
					return nil, false
				}
				closing := strings.IndexByte(rest, ']')
				if closing < 0 {
					return nil, false
				}
				n, err := strconv.Atoi(rest[1:closing])
				if err != nil {
					return nil, false
				}
				idxs = append(idxs, n)
				rest = rest[closing+1:]
			}
		}

		if field == "" {
			return nil, false
		}
		segs = append(segs, segment{field: field})
		for _, n := range idxs {
			segs = append(segs, segment{index: n, isIdx: true})
		}
	}
	return segs, true
}
