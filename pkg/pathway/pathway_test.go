package pathway

import "testing"

func TestGet(t *testing.T) {
	root := map[string]any{
		"data": map[string]any{
			"items": []any{
				map[string]any{"id": "a"},
				map[string]any{"id": "b"},
			},
		},
	}

	tests := []struct {
		name    string
		path    string
		want    any
		wantErr bool
	}{
		{name: "nested map then index then map", path: "data.items.1.id", want: "b"},
		{name: "leading dollar dot stripped by Strip first", path: Strip("$.data.items.0.id"), want: "a"},
		{name: "empty segments skipped", path: "data..items.0.id", want: "a"},
		{name: "missing key", path: "data.nope", wantErr: true},
		{name: "index out of range", path: "data.items.5", wantErr: true},
		{name: "non-numeric index into slice", path: "data.items.x", wantErr: true},
		{name: "descend into scalar", path: "data.items.0.id.x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Get(root, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStrip(t *testing.T) {
	tests := map[string]string{
		"$.data.id": "data.id",
		"$data.id":  "data.id",
		".data.id":  "data.id",
		"data.id":   "data.id",
	}
	for in, want := range tests {
		if got := Strip(in); got != want {
			t.Errorf("Strip(%q) = %q, want %q", in, got, want)
		}
	}
}
