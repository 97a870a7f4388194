package placeholder

import (
	"reflect"
	"testing"
)

func TestExpand(t *testing.T) {
	ctx := map[string]any{
		"vars": map[string]any{"token": "abc123"},
		"steps": map[string]any{
			"login": map[string]any{"body": map[string]any{"id": "u1"}},
		},
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "vars prefix resolves", in: "Bearer {{ vars.token }}", want: "Bearer abc123"},
		{name: "bare key under vars namespace", in: "{{token}}", want: "abc123"},
		{name: "dotted path into steps", in: "{{ steps.login.body.id }}", want: "u1"},
		{name: "missing key left literal", in: "{{ nope.missing }}", want: "{{ nope.missing }}"},
		{name: "no placeholder passthrough", in: "plain text", want: "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expand(tt.in, ctx); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandAnyPreservesType(t *testing.T) {
	ctx := map[string]any{"vars": map[string]any{"n": float64(42)}}
	got := ExpandAny("{{ vars.n }}", ctx)
	if got != float64(42) {
		t.Fatalf("got %v (%T), want float64(42)", got, got)
	}
}

func TestExpandAnyWalksNested(t *testing.T) {
	ctx := map[string]any{"vars": map[string]any{"id": "u1"}}
	in := map[string]any{
		"user": map[string]any{"id": "{{ vars.id }}"},
		"list": []any{"{{ vars.id }}", "literal"},
	}
	want := map[string]any{
		"user": map[string]any{"id": "u1"},
		"list": []any{"u1", "literal"},
	}
	got := ExpandAny(in, ctx)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}
