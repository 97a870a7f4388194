// Package deepequal compares decoded JSON/YAML values for structural
// equality, collecting every mismatch rather than stopping at the first,
// and letting the caller exclude volatile fields by dot-path pattern.
package deepequal

import (
	"fmt"
	"sort"
)

// Compare reports every path at which got differs from want. ignore holds
// dot-path patterns; a "*" segment matches any key or index at that depth,
// and a pattern that matches a prefix of a path masks the rest of that
// subtree.
func Compare(want, got any, ignore []string) []string {
	var diffs []string
	compare("", want, got, ignore, &diffs)
	return diffs
}

// Equal reports whether want and got are structurally equal once the
// ignored paths are excluded.
func Equal(want, got any, ignore []string) bool {
	return len(Compare(want, got, ignore)) == 0
}

func compare(path string, want, got any, ignore []string, diffs *[]string) {
	if matchesAny(path, ignore) {
		return
	}

	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			*diffs = append(*diffs, fmt.Sprintf("%s: want object, got %T", display(path), got))
			return
		}
		compareMaps(path, w, g, ignore, diffs)
	case []any:
		g, ok := got.([]any)
		if !ok {
			*diffs = append(*diffs, fmt.Sprintf("%s: want array, got %T", display(path), got))
			return
		}
		compareSlices(path, w, g, ignore, diffs)
	default:
		if !scalarEqual(want, got) {
			*diffs = append(*diffs, fmt.Sprintf("%s: want %v, got %v", display(path), want, got))
		}
	}
}

func compareMaps(path string, want, got map[string]any, ignore []string, diffs *[]string) {
	keys := make(map[string]struct{}, len(want)+len(got))
	for k := range want {
		keys[k] = struct{}{}
	}
	for k := range got {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		sub := join(path, k)
		if matchesAny(sub, ignore) {
			continue
		}
		wv, wok := want[k]
		gv, gok := got[k]
		switch {
		case wok && !gok:
			*diffs = append(*diffs, fmt.Sprintf("%s: missing key %q", display(path), k))
		case !wok && gok:
			*diffs = append(*diffs, fmt.Sprintf("%s: unexpected key %q", display(path), k))
		default:
			compare(sub, wv, gv, ignore, diffs)
		}
	}
}

func compareSlices(path string, want, got []any, ignore []string, diffs *[]string) {
	if len(want) != len(got) {
		*diffs = append(*diffs, fmt.Sprintf("%s: want length %d, got %d", display(path), len(want), len(got)))
		n := len(want)
		if len(got) < n {
			n = len(got)
		}
		for i := 0; i < n; i++ {
			compare(join(path, itoa(i)), want[i], got[i], ignore, diffs)
		}
		return
	}
	for i := range want {
		compare(join(path, itoa(i)), want[i], got[i], ignore, diffs)
	}
}

func scalarEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func join(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + "." + seg
}

func display(path string) string {
	if path == "" {
		return "$"
	}
	return path
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

// matchesAny reports whether path is masked by any ignore pattern: an exact
// match, a "*" wildcard segment matching any key/index at that position, or
// an ignore pattern that is itself a prefix of path (masking the subtree).
func matchesAny(path string, ignore []string) bool {
	for _, pat := range ignore {
		if matches(path, pat) {
			return true
		}
	}
	return false
}

func matches(path, pattern string) bool {
	ps := splitPath(path)
	qs := splitPath(pattern)
	if len(qs) > len(ps) {
		return false
	}
	for i, q := range qs {
		if q == "*" {
			continue
		}
		if q != ps[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	segs = append(segs, path[start:])
	return segs
}
