// Package model defines the value types that make up a scenario document:
// the steps, requests, and expectations a scenario run walks through, and
// the results it produces.
package model

// Scenario is a single test document: a named sequence of steps sharing a
// config and a set of top-level variables.
type Scenario struct {
	Name        string         `yaml:"name" json:"name" jsonschema:"required,description=Human-readable scenario name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty" jsonschema:"description=Markdown description shown in reports"`
	Tags        []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
	Config      Config         `yaml:"config,omitempty" json:"config,omitempty"`
	Vars        map[string]any `yaml:"vars,omitempty" json:"vars,omitempty" jsonschema:"description=Top-level variables available to every step as vars.<name>"`
	Steps       []Step         `yaml:"steps" json:"steps" jsonschema:"required,minItems=1"`

	// SourcePath is the filesystem location the scenario was loaded from,
	// used to resolve relative include paths. Not part of the document
	// schema itself.
	SourcePath string `yaml:"-" json:"-"`
}

// Config holds the run-wide HTTP defaults a scenario can set, overridable by
// CLI flags (see cmd/scenario).
type Config struct {
	BaseURL           string            `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Headers           map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	TimeoutSeconds    int               `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"description=Per-step timeout in whole seconds; defaults to 30"`
	ContinueOnFailure bool              `yaml:"continue_on_failure,omitempty" json:"continue_on_failure,omitempty"`
}

// DefaultTimeoutSeconds is used when Config.TimeoutSeconds is zero.
const DefaultTimeoutSeconds = 30

// Step is one entry in a scenario: a named HTTP call plus what to check
// about its response, with optional looping, conditioning, and binding.
type Step struct {
	Name        string            `yaml:"name" json:"name" jsonschema:"required"`
	ID          string            `yaml:"id,omitempty" json:"id,omitempty" jsonschema:"description=Stable key for context.steps.<id>; defaults to a slug of name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Condition   string            `yaml:"condition,omitempty" json:"condition,omitempty" jsonschema:"description=Placeholder-expanded string; step runs only if it equals \"true\" case-insensitively"`
	Include     *IncludeConfig    `yaml:"include,omitempty" json:"include,omitempty"`
	Request     Request           `yaml:"request,omitempty" json:"request,omitempty"`
	Expect      Expect            `yaml:"expect,omitempty" json:"expect,omitempty"`
	Test        string            `yaml:"test,omitempty" json:"test,omitempty" jsonschema:"description=Expression evaluated after expectations pass; must be truthy"`
	Save        map[string]string `yaml:"save,omitempty" json:"save,omitempty" jsonschema:"description=Maps a variable name to a dot-path into the response (or SSE grouped value)"`
	Bind        map[string]string `yaml:"bind,omitempty" json:"bind,omitempty" jsonschema:"description=Maps a variable name to an expression evaluated against the context"`
	Loop        *LoopConfig       `yaml:"loop,omitempty" json:"loop,omitempty"`
}

// Request is the HTTP call a step issues.
type Request struct {
	Method  string            `yaml:"method" json:"method" jsonschema:"required,enum=GET,enum=POST,enum=PUT,enum=PATCH,enum=DELETE,enum=HEAD,enum=OPTIONS"`
	URL     string            `yaml:"url" json:"url" jsonschema:"required,description=Absolute, or relative to config.base_url"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Query   map[string]string `yaml:"query,omitempty" json:"query,omitempty"`
	Body    any               `yaml:"body,omitempty" json:"body,omitempty"`
}

// Expect is what a step's response is checked against.
type Expect struct {
	Status      int            `yaml:"status,omitempty" json:"status,omitempty" jsonschema:"description=Defaults to 200"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	JSON        map[string]any `yaml:"json,omitempty" json:"json,omitempty" jsonschema:"description=Dot-path to expected structured value, exact equality"`
	JSONLengths map[string]int `yaml:"json_lengths,omitempty" json:"json_lengths,omitempty" jsonschema:"description=Dot-path to expected array/object length"`
	JSONEq      any            `yaml:"json_eq,omitempty" json:"json_eq,omitempty" jsonschema:"description=Full deep-equality check against the parsed body"`
	Ignore      []string       `yaml:"ignore,omitempty" json:"ignore,omitempty" jsonschema:"description=Wildcard dot-paths excluded from the json_eq comparison"`
	Contains    []string       `yaml:"contains,omitempty" json:"contains,omitempty" jsonschema:"description=Substrings that must appear in the raw response body"`
	SSE         *SseExpect     `yaml:"sse,omitempty" json:"sse,omitempty"`
}

// SseExpect describes assertions against a Server-Sent Events response body.
type SseExpect struct {
	HasEvents     []string         `yaml:"has_events,omitempty" json:"has_events,omitempty"`
	HasNoEvents   []string         `yaml:"has_no_events,omitempty" json:"has_no_events,omitempty"`
	OrderedEvents []SseEventExpect `yaml:"events,omitempty" json:"events,omitempty"`
}

// SseEventExpect is one entry in an ordered events list: the next event of
// Type must satisfy the data checks, advancing a shared cursor.
type SseEventExpect struct {
	Type         string            `yaml:"event" json:"event" jsonschema:"required"`
	Data         map[string]any    `yaml:"data,omitempty" json:"data,omitempty" jsonschema:"description=Per-field exact-match checks"`
	DataEq       any               `yaml:"data_eq,omitempty" json:"data_eq,omitempty"`
	IgnoreFields []string          `yaml:"ignore_fields,omitempty" json:"ignore_fields,omitempty"`
	DataContains string            `yaml:"data_contains,omitempty" json:"data_contains,omitempty"`
	DataExists   []string          `yaml:"data_exists,omitempty" json:"data_exists,omitempty"`
	Save         map[string]string `yaml:"save,omitempty" json:"save,omitempty"`
}

// LoopConfig makes a step retry until its Until expression is truthy or the
// iteration budget is exhausted.
type LoopConfig struct {
	Count       int     `yaml:"count,omitempty" json:"count,omitempty" jsonschema:"description=Defaults to 3"`
	Until       string  `yaml:"until,omitempty" json:"until,omitempty" jsonschema:"description=Expression evaluated against the context after each iteration; absent means exit on step success"`
	Interval    float64 `yaml:"interval,omitempty" json:"interval,omitempty" jsonschema:"description=Seconds between iterations, defaults to 1.0"`
	Multiplier  float64 `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
	MaxInterval float64 `yaml:"max_interval,omitempty" json:"max_interval,omitempty"`
}

// DefaultLoopCount and DefaultLoopInterval apply when LoopConfig omits them.
const (
	DefaultLoopCount    = 3
	DefaultLoopInterval = 1.0
)

// IncludeConfig pulls in another scenario file's steps inline, with the
// child's top-level vars overridden by Vars, and the parent's context
// filling in anything the child leaves unset.
type IncludeConfig struct {
	Path string         `yaml:"path" json:"path" jsonschema:"required"`
	Vars map[string]any `yaml:"vars,omitempty" json:"vars,omitempty"`
}

// StepResult is the recorded outcome of running one step.
type StepResult struct {
	Name       string         `json:"name"`
	ID         string         `json:"id,omitempty"`
	Skipped    bool           `json:"skipped,omitempty"`
	Request    *RequestInfo   `json:"request,omitempty"`
	Response   *ResponseInfo  `json:"response,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Outputs    map[string]any `json:"outputs,omitempty"`
}

// RequestInfo captures what was actually sent, after placeholder expansion.
type RequestInfo struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ResponseInfo captures what came back.
type ResponseInfo struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ScenarioResult is the recorded outcome of running an entire scenario.
type ScenarioResult struct {
	Name       string       `json:"name"`
	Success    bool         `json:"success"`
	Error      string       `json:"error,omitempty"`
	Steps      []StepResult `json:"steps"`
	DurationMS int64        `json:"duration_ms"`
}

// ErrAtLeastOneStepFailed is the scenario driver's fixed summary error
// message when the scenario as a whole fails.
const ErrAtLeastOneStepFailed = "scenario failed: at least one step did not succeed"
