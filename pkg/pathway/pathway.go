// Package pathway resolves dot-separated paths ("data.items.0.id") against
// arbitrary decoded JSON/YAML values (maps, slices, scalars).
package pathway

import (
	"fmt"
	"strconv"
	"strings"
)

// Get walks path segment by segment through root, descending into map
// values by key and slice values by numeric index. Empty segments (from a
// leading/trailing/doubled '.') are skipped rather than treated as a
// descent step, matching the walk every reference implementation in this
// family performs.
func Get(root any, path string) (any, error) {
	cur := root
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		next, err := step(cur, seg)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		cur = next
	}
	return cur, nil
}

func step(cur any, seg string) (any, error) {
	switch v := cur.(type) {
	case map[string]any:
		val, ok := v[seg]
		if !ok {
			return nil, fmt.Errorf("no key %q", seg)
		}
		return val, nil
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return nil, fmt.Errorf("segment %q is not a valid array index", seg)
		}
		if idx < 0 || idx >= len(v) {
			return nil, fmt.Errorf("index %d out of range (len %d)", idx, len(v))
		}
		return v[idx], nil
	default:
		return nil, fmt.Errorf("cannot descend into %T at %q", cur, seg)
	}
}

// Strip removes a leading "$.", "$" or "." prefix some path sources include.
func Strip(path string) string {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	return path
}
