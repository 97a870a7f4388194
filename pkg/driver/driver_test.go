package driver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/apirunner/scenario/pkg/model"
)

func TestRunHappyPathJSONLengths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"items":[{"id":"a"},{"id":"b"}]}}`))
	}))
	defer srv.Close()

	scn := &model.Scenario{
		Name:   "list items",
		Config: model.Config{BaseURL: srv.URL},
		Steps: []model.Step{
			{
				Name:    "list items",
				Request: model.Request{Method: "GET", URL: "/items"},
				Expect:  model.Expect{Status: 200, JSONLengths: map[string]int{"data.items": 2}},
			},
		},
	}

	result, err := Run(context.Background(), scn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, steps: %#v", result.Steps)
	}
}

func TestRunLengthMismatchFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"items":[{"id":"a"},{"id":"b"}]}}`))
	}))
	defer srv.Close()

	scn := &model.Scenario{
		Name:   "list items",
		Config: model.Config{BaseURL: srv.URL},
		Steps: []model.Step{
			{
				Name:    "list items",
				Request: model.Request{Method: "GET", URL: "/items"},
				Expect:  model.Expect{Status: 200, JSONLengths: map[string]int{"data.items": 3}},
			},
		},
	}

	result, err := Run(context.Background(), scn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected scenario failure")
	}
	if result.Error != model.ErrAtLeastOneStepFailed {
		t.Fatalf("error = %q", result.Error)
	}
}

// TestRunSaveThenSubstitute mirrors the canonical "save then substitute"
// scenario: a first step saves an id, a second step substitutes it into
// its URL and the sent request reflects the saved value.
func TestRunSaveThenSubstitute(t *testing.T) {
	var sawUserPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"u_42"}`))
	})
	mux.HandleFunc("/user/u_42", func(w http.ResponseWriter, r *http.Request) {
		sawUserPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	scn := &model.Scenario{
		Name:   "save then substitute",
		Config: model.Config{BaseURL: srv.URL},
		Steps: []model.Step{
			{
				Name:    "get user",
				Request: model.Request{Method: "GET", URL: "/user"},
				Expect:  model.Expect{Status: 200},
				Save:    map[string]string{"uid": "id"},
			},
			{
				Name:    "get user by id",
				Request: model.Request{Method: "GET", URL: "/user/{{ vars.uid }}"},
				Expect:  model.Expect{Status: 200},
			},
		},
	}

	result, err := Run(context.Background(), scn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, steps: %#v", result.Steps)
	}
	if sawUserPath != "/user/u_42" {
		t.Fatalf("second request path = %q", sawUserPath)
	}
}

// TestRunLoopUntilReady mirrors the "loop until ready" scenario: the
// server flips to ready on the third call, and loop.until should exit as
// soon as the context reflects that.
func TestRunLoopUntilReady(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls < 3 {
			w.Write([]byte(`{"ready":false}`))
		} else {
			w.Write([]byte(`{"ready":true}`))
		}
	}))
	defer srv.Close()

	scn := &model.Scenario{
		Name:   "poll status",
		Config: model.Config{BaseURL: srv.URL},
		Steps: []model.Step{
			{
				Name:    "poll",
				Request: model.Request{Method: "GET", URL: "/status"},
				Expect:  model.Expect{Status: 200},
				Loop: &model.LoopConfig{
					Count:    5,
					Until:    "current.res.body.ready == true",
					Interval: 0.01,
				},
			},
		},
	}

	result, err := Run(context.Background(), scn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, steps: %#v", result.Steps)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 calls, got %d", calls)
	}
}

// TestRunIncludeWithVarOverride mirrors the "include with var override"
// scenario: the parent includes a child scenario file, overriding one of
// its vars, and the child's step reflects the override.
func TestRunIncludeWithVarOverride(t *testing.T) {
	var sawGreetPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawGreetPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	childPath := filepath.Join(dir, "child.yaml")
	childContent := `
name: greet child
vars:
  name: bob
steps:
  - name: greet
    request:
      method: GET
      url: /greet/{{ vars.name }}
    expect:
      status: 200
`
	if err := os.WriteFile(childPath, []byte(childContent), 0o644); err != nil {
		t.Fatal(err)
	}

	parentPath := filepath.Join(dir, "parent.yaml")
	scn := &model.Scenario{
		Name:       "parent",
		SourcePath: parentPath,
		Config:     model.Config{BaseURL: srv.URL},
		Steps: []model.Step{
			{
				Name: "run child",
				Include: &model.IncludeConfig{
					Path: "child.yaml",
					Vars: map[string]any{"name": "alice"},
				},
			},
		},
	}

	result, err := Run(context.Background(), scn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, steps: %#v", result.Steps)
	}
	if sawGreetPath != "/greet/alice" {
		t.Fatalf("child request path = %q, want override to take effect", sawGreetPath)
	}
	if len(result.Steps) != 1 || result.Steps[0].Request.Method != "INCLUDE" {
		t.Fatalf("expected synthetic INCLUDE step result, got %#v", result.Steps)
	}
}

func TestRunConditionSkipsStep(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(200)
	}))
	defer srv.Close()

	scn := &model.Scenario{
		Name:   "conditional",
		Config: model.Config{BaseURL: srv.URL},
		Steps: []model.Step{
			{
				Name:      "maybe call",
				Condition: "false",
				Request:   model.Request{Method: "GET", URL: "/never"},
			},
		},
	}

	result, err := Run(context.Background(), scn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatal("scenario with only a skipped step should succeed")
	}
	if called {
		t.Fatal("server should not have been called")
	}
	if len(result.Steps) != 0 {
		t.Fatalf("skipped steps should not append a result, got %#v", result.Steps)
	}
}

func TestRunContextFlatteningDualForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"u_1"}`))
	}))
	defer srv.Close()

	runCtx := newContext(map[string]any{})
	scn := &model.Scenario{
		Name:       "one step",
		SourcePath: "/tmp/one.yaml",
		Config:     model.Config{BaseURL: srv.URL},
		Steps: []model.Step{
			{Name: "Get User", Request: model.Request{Method: "GET", URL: "/user"}, Expect: model.Expect{Status: 200}},
		},
	}

	_ = execute(context.Background(), scn, runCtx, nil, 0)

	stepsObj, ok := runCtx["steps"].(map[string]any)
	if !ok {
		t.Fatal("steps object missing")
	}
	entry, ok := stepsObj["get_user"].(map[string]any)
	if !ok {
		t.Fatalf("steps.get_user missing, got keys %v", keysOf(stepsObj))
	}
	flatSuccess, ok := runCtx["steps.get_user.success"]
	if !ok || flatSuccess != entry["success"] {
		t.Fatalf("flattened steps.get_user.success = %v, nested = %v", flatSuccess, entry["success"])
	}

	b, _ := json.Marshal(entry["res"])
	if len(b) == 0 {
		t.Fatal("expected res to be populated")
	}
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
