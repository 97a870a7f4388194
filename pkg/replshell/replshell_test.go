package replshell

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/apirunner/scenario/pkg/model"
)

func TestShellHandleNextAdvancesAndCommits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"u_1"}`))
	}))
	defer srv.Close()

	scn := &model.Scenario{
		Name:   "probe",
		Config: model.Config{BaseURL: srv.URL},
		Steps: []model.Step{
			{Name: "get user", Request: model.Request{Method: "GET", URL: "/user"}, Expect: model.Expect{Status: 200}, Save: map[string]string{"uid": "id"}},
		},
	}

	sh := New(scn)
	var buf bytes.Buffer
	sh.output = &buf

	sh.handleNext(context.Background())

	if sh.index != 1 {
		t.Fatalf("index = %d, want 1", sh.index)
	}
	if !strings.Contains(buf.String(), "ok: get user") {
		t.Fatalf("expected success line, got: %s", buf.String())
	}
	vars, _ := sh.ctx["vars"].(map[string]any)
	if vars["uid"] != "u_1" {
		t.Fatalf("expected saved uid, got %v", vars)
	}
}

func TestShellHandleRunExhaustsAllSteps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	scn := &model.Scenario{
		Name:   "two steps",
		Config: model.Config{BaseURL: srv.URL},
		Steps: []model.Step{
			{Name: "one", Request: model.Request{Method: "GET", URL: "/a"}, Expect: model.Expect{Status: 200}},
			{Name: "two", Request: model.Request{Method: "GET", URL: "/b"}, Expect: model.Expect{Status: 200}},
		},
	}

	sh := New(scn)
	var buf bytes.Buffer
	sh.output = &buf

	sh.handleRun(context.Background())

	if sh.index != 2 {
		t.Fatalf("index = %d, want 2", sh.index)
	}
}

func TestShellPrintUnknownTarget(t *testing.T) {
	scn := &model.Scenario{Name: "x", Steps: []model.Step{{Name: "one"}}}
	sh := New(scn)
	var buf bytes.Buffer
	sh.output = &buf

	sh.handlePrint([]string{"print", "bogus"})
	if !strings.Contains(buf.String(), "unknown print target") {
		t.Fatalf("expected unknown-target message, got: %s", buf.String())
	}
}
