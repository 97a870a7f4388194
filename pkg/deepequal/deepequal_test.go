package deepequal

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		want   any
		got    any
		ignore []string
		n      int
	}{
		{
			name: "equal scalars",
			want: map[string]any{"id": "a", "count": float64(3)},
			got:  map[string]any{"id": "a", "count": float64(3)},
			n:    0,
		},
		{
			name: "mismatched value",
			want: map[string]any{"id": "a"},
			got:  map[string]any{"id": "b"},
			n:    1,
		},
		{
			name:   "ignored field masks mismatch",
			want:   map[string]any{"id": "a", "updated_at": "t1"},
			got:    map[string]any{"id": "a", "updated_at": "t2"},
			ignore: []string{"updated_at"},
			n:      0,
		},
		{
			name:   "wildcard masks array element subtree",
			want:   map[string]any{"items": []any{map[string]any{"id": "a", "ts": "t1"}}},
			got:    map[string]any{"items": []any{map[string]any{"id": "a", "ts": "t2"}}},
			ignore: []string{"items.*.ts"},
			n:      0,
		},
		{
			name: "missing key reported",
			want: map[string]any{"id": "a", "extra": "x"},
			got:  map[string]any{"id": "a"},
			n:    1,
		},
		{
			name: "array length mismatch reported once plus per-element diffs",
			want: map[string]any{"items": []any{"a", "b"}},
			got:  map[string]any{"items": []any{"a"}},
			n:    1,
		},
		{
			name: "numeric types compare by value",
			want: map[string]any{"n": float64(1)},
			got:  map[string]any{"n": int(1)},
			n:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diffs := Compare(tt.want, tt.got, tt.ignore)
			if len(diffs) != tt.n {
				t.Fatalf("got %d diffs (%v), want %d", len(diffs), diffs, tt.n)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	if !Equal(map[string]any{"a": float64(1)}, map[string]any{"a": float64(1)}, nil) {
		t.Fatal("expected equal")
	}
	if Equal(map[string]any{"a": float64(1)}, map[string]any{"a": float64(2)}, nil) {
		t.Fatal("expected not equal")
	}
}
