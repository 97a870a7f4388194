package scenarioio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	content := `
name: login flow
vars:
  name: alice
steps:
  - name: get user
    request:
      method: GET
      url: /users/{{ vars.name }}
    expect:
      status: 200
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	scn, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scn.Name != "login flow" {
		t.Fatalf("Name = %q", scn.Name)
	}
	if len(scn.Steps) != 1 {
		t.Fatalf("got %d steps", len(scn.Steps))
	}
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	content := "name: x\nsteps: []\nbogus_field: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected strict decode to reject unknown field")
	}
}

func TestLoadMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "login.scenario.md")
	content := "---\n" +
		"name: login flow\n" +
		"vars:\n  name: alice\n" +
		"---\n\n" +
		"# Description\n\nSome free-form text.\n\n" +
		"```yaml scenario\n" +
		"steps:\n" +
		"  - name: get user\n" +
		"    request:\n" +
		"      method: GET\n" +
		"      url: /users/{{ vars.name }}\n" +
		"    expect:\n" +
		"      status: 200\n" +
		"```\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	scn, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scn.Name != "login flow" {
		t.Fatalf("Name = %q", scn.Name)
	}
	if len(scn.Steps) != 1 || scn.Steps[0].Name != "get user" {
		t.Fatalf("got steps %#v", scn.Steps)
	}
}

func TestLoadRunbookDialect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "create-user.yaml")
	content := `
apiVersion: runbook/v1
meta:
  name: create user
  description: smoke-tests user creation
  vars:
    name: alice
steps:
  - id: create
    title: create user
    with:
      argv:
        - POST
        - /users
        - '{"name": "alice"}'
    capture:
      uid: body.id
    assertions:
      - "status == 201"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	scn, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scn.Name != "create user" {
		t.Fatalf("Name = %q", scn.Name)
	}
	if scn.Vars["name"] != "alice" {
		t.Fatalf("Vars[name] = %v", scn.Vars["name"])
	}
	if len(scn.Steps) != 1 {
		t.Fatalf("got %d steps", len(scn.Steps))
	}
	step := scn.Steps[0]
	if step.Request.Method != "POST" || step.Request.URL != "/users" {
		t.Fatalf("got request %#v", step.Request)
	}
	if step.Request.Body == nil {
		t.Fatalf("expected body to be parsed")
	}
	if step.Save["uid"] != "body.id" {
		t.Fatalf("Save[uid] = %q", step.Save["uid"])
	}
	if step.Test != "status == 201" {
		t.Fatalf("Test = %q", step.Test)
	}
}

func TestLoadRunbookDialectNotConfusedWithPlainYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.yaml")
	content := "name: plain scenario\nsteps: []\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	scn, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scn.Name != "plain scenario" {
		t.Fatalf("Name = %q", scn.Name)
	}
}

func TestResolveIncludePath(t *testing.T) {
	got := ResolveIncludePath("/scenarios/parent.yaml", "child.yaml")
	want := "/scenarios/child.yaml"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
