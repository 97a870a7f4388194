// Package expreval compiles and runs the expression language used by
// step.test, step.bind, and loop.until: a small CEL-flavored
// dialect layered on top of github.com/expr-lang/expr, with a handful of
// runn-compatible aliases and custom functions.
package expreval

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
)

var (
	lenRe  = regexp.MustCompile(`\blen\(`)
	typeRe = regexp.MustCompile(`\btype\(`)
)

// preprocess rewrites runn-style aliases that would otherwise collide with
// expr-lang reserved words or shadow its own builtins: len(x) -> size(x),
// type(x) -> type_of(x).
func preprocess(src string) string {
	src = lenRe.ReplaceAllString(src, "size(")
	src = typeRe.ReplaceAllString(src, "type_of(")
	return src
}

// Bool compiles src and runs it against ctx, coercing the result with
// Truthy (the shape needed for step.test and loop.until).
func Bool(src string, ctx map[string]any) (bool, error) {
	out, err := Run(src, ctx)
	if err != nil {
		return false, err
	}
	return Truthy(out), nil
}

// Run compiles src and runs it against ctx, returning the raw result (the
// shape needed for step.bind, which may resolve to any value type).
func Run(src string, ctx map[string]any) (any, error) {
	program, err := compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", src, err)
	}
	out, err := programRun(program, ctx)
	if err != nil {
		return nil, fmt.Errorf("eval expression %q: %w", src, err)
	}
	return out, nil
}

// Truthy applies the same coercion rules as the original CEL-based
// evaluator: bools by value, int/int64/float64 nonzero, strings non-empty,
// nil false, lists and maps non-empty, everything else true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Map, reflect.Array:
			return rv.Len() > 0
		default:
			return true
		}
	}
}

// compareFn implements the runn-compatible compare(a, b) builtin: deep
// structural equality, true/false.
func compareFn(a, b any) bool {
	return deepEqualJSON(a, b)
}

// diffFn implements diff(a, b): empty string if equal, else a human
// description of the mismatch.
func diffFn(a, b any) string {
	if deepEqualJSON(a, b) {
		return ""
	}
	return fmt.Sprintf("expected %v, got %v", b, a)
}

// typeOfFn implements type_of(x), returning a CEL-style type name.
func typeOfFn(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int, int64:
		return "int"
	case float64:
		return "double"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	default:
		return "unknown"
	}
}

// urlencodeFn implements urlencode(s): standard query escaping, matching
// `url::form_urlencoded::byte_serialize` (space becomes '+').
func urlencodeFn(s string) string {
	return url.QueryEscape(s)
}

func deepEqualJSON(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ab) == string(bb)
}
