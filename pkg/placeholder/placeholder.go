// Package placeholder expands "{{ key }}" and "{{ vars.key }}" tokens
// against a flattened context map. The expansion is regex-based, not
// text/template-based: an unresolved key is left in the output literally
// rather than raising an error, which lets a scenario author reference a
// value that may or may not have been captured yet.
package placeholder

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// pattern matches "{{ key }}" or "{{ vars.key }}", capturing the key (the
// optional "vars." prefix is stripped by the capture group itself so both
// forms resolve against the same context map).
var pattern = regexp.MustCompile(`\{\{\s*(?:vars\.)?(.+?)\s*\}\}`)

// Expand replaces every placeholder occurrence in s with its string
// representation looked up in ctx by dot-path. A key not found in ctx is
// left untouched (the literal "{{ ... }}" text is kept).
func Expand(s string, ctx map[string]any) string {
	return pattern.ReplaceAllStringFunc(s, func(match string) string {
		key := pattern.FindStringSubmatch(match)[1]
		val, ok := lookup(ctx, key)
		if !ok {
			return match
		}
		return stringify(val)
	})
}

// ExpandAny walks an arbitrary JSON-shaped value (map/slice/string/scalar)
// and expands every string leaf: a leaf that is exactly one placeholder is
// replaced by the resolved value itself (see expandLeaf), any other string
// goes through Expand. Non-string leaves pass through unchanged.
func ExpandAny(v any, ctx map[string]any) any {
	switch t := v.(type) {
	case string:
		return expandLeaf(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = ExpandAny(v, ctx)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = ExpandAny(v, ctx)
		}
		return out
	default:
		return v
	}
}

// expandLeaf expands a whole-string placeholder ("{{ name }}" with nothing
// else around it) back into the raw resolved value (preserving type) rather
// than its stringified form, matching the original's "deep" substitution
// behavior used for SSE data_equals comparisons.
func expandLeaf(s string, ctx map[string]any) any {
	if m := pattern.FindStringSubmatch(s); m != nil && m[0] == s {
		if val, ok := lookup(ctx, m[1]); ok {
			return val
		}
		return s
	}
	return Expand(s, ctx)
}

// lookup resolves key against ctx directly first (this is where the
// flattened "steps.<key>.*", "current", "previous" and "env.<NAME>" forms
// live), then falls back to ctx["vars"] (this is where saved/bound/initial
// scenario variables live — the driver never flattens "vars" itself, since
// the "{{ vars.name }}" and bare "{{ name }}" placeholder forms both strip
// down to the same captured key and must resolve against the same
// variable namespace).
func lookup(ctx map[string]any, key string) (any, bool) {
	if v, ok := lookupIn(ctx, key); ok {
		return v, true
	}
	if vars, ok := ctx["vars"].(map[string]any); ok {
		if v, ok := lookupIn(vars, key); ok {
			return v, true
		}
	}
	return nil, false
}

func lookupIn(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	segs := strings.Split(key, ".")
	var cur any = m
	for _, seg := range segs {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := mm[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
