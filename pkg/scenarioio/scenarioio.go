// Package scenarioio loads scenario documents from disk. Three shapes are
// accepted, all producing the same model.Scenario: a plain YAML mapping
// document, a Markdown document with YAML front matter plus one or more
// fenced scenario code blocks, and a foreign runbook dialect (detected by
// its "apiVersion" field) whose meta/steps/with.argv shape is read
// structurally rather than byte-for-byte.
package scenarioio

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apirunner/scenario/pkg/model"
	"gopkg.in/yaml.v3"
)

// Load reads the scenario document at path, dispatching on its extension
// and, for YAML files, on its top-level shape: a document whose
// "apiVersion" names a foreign procedure format is read structurally as a
// runbook rather than as a plain scenario mapping.
func Load(path string) (*model.Scenario, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case strings.HasSuffix(strings.ToLower(path), ".scenario.md"), ext == ".md":
		return loadMarkdown(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read scenario file %s: %w", path, err)
		}
		if looksLikeRunbook(data) {
			return loadRunbook(path, data)
		}
		return loadYAML(path, data)
	}
}

// runbookProbe peeks at a YAML document's top-level shape without
// committing to either document type.
type runbookProbe struct {
	APIVersion string `yaml:"apiVersion"`
}

func looksLikeRunbook(data []byte) bool {
	var probe runbookProbe
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return false
	}
	return strings.HasPrefix(probe.APIVersion, "runbook/")
}

// loadYAML decodes a plain YAML mapping document strictly, rejecting
// unknown fields the way the teacher's own schema loader does.
func loadYAML(path string, data []byte) (*model.Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var scn model.Scenario
	if err := dec.Decode(&scn); err != nil {
		return nil, fmt.Errorf("parse scenario file %s: %w", path, err)
	}
	scn.SourcePath = path
	return &scn, nil
}

// runbookDocument is the shape-level structure of a foreign runbook
// dialect: scenario-level fields live under "meta" instead of at the
// document's top level, and each step carries a command-shaped "with.argv"
// in place of a structured request and a flat "assertions" list in place
// of an expect block. Fields specific to the foreign format's own
// execution model (approvals, evidence, governance, preconditions) have no
// HTTP-scenario equivalent and are not read.
type runbookDocument struct {
	APIVersion string        `yaml:"apiVersion"`
	Meta       runbookMeta   `yaml:"meta"`
	Steps      []runbookStep `yaml:"steps"`
}

type runbookMeta struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Vars        map[string]string `yaml:"vars,omitempty"`
}

type runbookStep struct {
	ID         string            `yaml:"id"`
	Title      string            `yaml:"title,omitempty"`
	With       *runbookWith      `yaml:"with,omitempty"`
	Capture    map[string]string `yaml:"capture,omitempty"`
	Assertions []string          `yaml:"assertions,omitempty"`
}

// runbookWith's Argv is read as [method, url, body?], mirroring the
// foreign dialect's CLI-argv shape: the first two tokens become the HTTP
// method and URL, an optional third is parsed as a JSON request body.
type runbookWith struct {
	Argv []string `yaml:"argv,omitempty"`
}

// loadRunbook translates a foreign-dialect document into a model.Scenario,
// reading only the shape spec.md §6 names: meta fields become scenario
// fields, each step's argv becomes a request, capture becomes save, and
// assertions are joined into a single boolean test expression.
func loadRunbook(path string, data []byte) (*model.Scenario, error) {
	var doc runbookDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse runbook document %s: %w", path, err)
	}

	scn := &model.Scenario{
		Name:        doc.Meta.Name,
		Description: doc.Meta.Description,
		SourcePath:  path,
	}
	if len(doc.Meta.Vars) > 0 {
		scn.Vars = make(map[string]any, len(doc.Meta.Vars))
		for k, v := range doc.Meta.Vars {
			scn.Vars[k] = v
		}
	}

	for _, rs := range doc.Steps {
		step := model.Step{
			ID:   rs.ID,
			Name: rs.Title,
			Save: rs.Capture,
		}
		if step.Name == "" {
			step.Name = rs.ID
		}
		if rs.With != nil && len(rs.With.Argv) >= 2 {
			step.Request.Method = strings.ToUpper(rs.With.Argv[0])
			step.Request.URL = rs.With.Argv[1]
			if len(rs.With.Argv) >= 3 && strings.TrimSpace(rs.With.Argv[2]) != "" {
				var body any
				if err := yaml.Unmarshal([]byte(rs.With.Argv[2]), &body); err != nil {
					return nil, fmt.Errorf("parse runbook step %q body in %s: %w", rs.ID, path, err)
				}
				step.Request.Body = body
			}
		}
		if len(rs.Assertions) > 0 {
			step.Test = strings.Join(rs.Assertions, " && ")
		}
		scn.Steps = append(scn.Steps, step)
	}

	return scn, nil
}

// frontMatter is the YAML document a .scenario.md file opens with, between
// a pair of "---" delimiter lines.
type frontMatter struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Tags        []string       `yaml:"tags,omitempty"`
	Vars        map[string]any `yaml:"vars,omitempty"`
	Config      model.Config   `yaml:"config,omitempty"`
}

// scenarioBlock is what a fenced ```yaml scenario code block decodes to; a
// document may contain more than one, and each contributes its steps in
// order. A block's config, if present, replaces the config set so far
// (front matter or an earlier block) as a whole; fields are not merged.
type scenarioBlock struct {
	Steps  []model.Step  `yaml:"steps,omitempty"`
	Config *model.Config `yaml:"config,omitempty"`
}

// loadMarkdown parses a .scenario.md file: YAML front matter for the
// scenario-level fields, then every ```yaml scenario fenced block
// contributes steps (and a block's config replaces the current one).
func loadMarkdown(path string) (*model.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file %s: %w", path, err)
	}

	fm, body, err := splitFrontMatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse front matter in %s: %w", path, err)
	}

	var front frontMatter
	if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
		return nil, fmt.Errorf("decode front matter in %s: %w", path, err)
	}

	scn := &model.Scenario{
		Name:        front.Name,
		Description: front.Description,
		Tags:        front.Tags,
		Vars:        front.Vars,
		Config:      front.Config,
		SourcePath:  path,
	}

	blocks, err := extractScenarioBlocks(body)
	if err != nil {
		return nil, fmt.Errorf("parse scenario blocks in %s: %w", path, err)
	}
	for _, raw := range blocks {
		var blk scenarioBlock
		if err := yaml.Unmarshal([]byte(raw), &blk); err != nil {
			return nil, fmt.Errorf("decode scenario block in %s: %w", path, err)
		}
		scn.Steps = append(scn.Steps, blk.Steps...)
		if blk.Config != nil {
			scn.Config = *blk.Config
		}
	}

	return scn, nil
}

// splitFrontMatter separates a "---\n...\n---\n" prologue from the rest of
// the document. The front matter text (without the delimiters) and the
// remaining body are returned.
func splitFrontMatter(doc string) (front, body string, err error) {
	const delim = "---"
	if !strings.HasPrefix(strings.TrimLeft(doc, "\r\n"), delim) {
		return "", "", fmt.Errorf("document does not start with %q front matter delimiter", delim)
	}
	doc = strings.TrimLeft(doc, "\r\n")
	doc = strings.TrimPrefix(doc, delim)
	idx := strings.Index(doc, "\n"+delim)
	if idx < 0 {
		return "", "", fmt.Errorf("unterminated front matter (missing closing %q)", delim)
	}
	front = doc[:idx]
	rest := doc[idx+len(delim)+1:]
	return front, rest, nil
}

// extractScenarioBlocks pulls the content of every ```yaml scenario fenced
// code block out of a Markdown body, in document order.
func extractScenarioBlocks(body string) ([]string, error) {
	const openFence = "```yaml scenario"
	const closeFence = "```"

	var blocks []string
	rest := body
	for {
		start := strings.Index(rest, openFence)
		if start < 0 {
			break
		}
		afterOpen := rest[start+len(openFence):]
		nl := strings.IndexByte(afterOpen, '\n')
		if nl < 0 {
			return nil, fmt.Errorf("unterminated scenario code block")
		}
		afterOpen = afterOpen[nl+1:]
		end := strings.Index(afterOpen, closeFence)
		if end < 0 {
			return nil, fmt.Errorf("unterminated scenario code block (missing closing fence)")
		}
		blocks = append(blocks, afterOpen[:end])
		rest = afterOpen[end+len(closeFence):]
	}
	return blocks, nil
}

// ResolveIncludePath joins an include path relative to the including
// scenario's own source file, unless it's already absolute.
func ResolveIncludePath(scenarioSourcePath, includePath string) string {
	if filepath.IsAbs(includePath) {
		return includePath
	}
	return filepath.Join(filepath.Dir(scenarioSourcePath), includePath)
}
