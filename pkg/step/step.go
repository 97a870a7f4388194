// Package step implements the inner portion of the per-step state machine:
// given an already-conditioned, already-included step and a context, it
// sends the request, observes the response, runs the declarative
// expectations and test expression, and computes the save/bind outputs.
// The outer states (Conditioned, Included?, loop iteration, and
// ContextUpdated) are orchestrated by pkg/driver, which owns cross-step and
// cross-scenario concerns this package has no need to know about.
package step

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/apirunner/scenario/pkg/deepequal"
	"github.com/apirunner/scenario/pkg/expreval"
	"github.com/apirunner/scenario/pkg/httpadapter"
	"github.com/apirunner/scenario/pkg/model"
	"github.com/apirunner/scenario/pkg/pathway"
	"github.com/apirunner/scenario/pkg/placeholder"
	"github.com/apirunner/scenario/pkg/sse"
)

// Result is the outcome of one Sent..Bound attempt.
type Result struct {
	Success      bool
	Error        string   // first user-visible failure
	Warnings     []string // soft failures: save misses, bind errors
	Request      *model.RequestInfo
	Response     *model.ResponseInfo
	ParsedBody   any // nil if not JSON
	SSEGrouped   map[string]any
	Saved        map[string]any // save + SSE ordered_events.save
	Bound        map[string]any // bind outputs
}

// Execute runs one attempt of step's request/expectations/test/save/bind
// against runCtx (the flattened context map visible to placeholders and
// expressions).
func Execute(ctx context.Context, client *httpadapter.Client, st model.Step, runCtx map[string]any) Result {
	var res Result

	resp, reqInfo, err := client.Send(ctx, st.Request, runCtx)
	if err != nil {
		res.Error = fmt.Sprintf("request send error: %s", err)
		res.Request = reqInfo
		return res
	}
	res.Request = reqInfo

	headers := flattenHeader(resp.Headers)
	res.Response = &model.ResponseInfo{Status: resp.Status, Headers: headers, Body: string(resp.Body)}

	var parsed any
	if err := json.Unmarshal(resp.Body, &parsed); err == nil {
		res.ParsedBody = parsed
	}

	contentType := headers["Content-Type"]
	var sseEvents []sse.Event
	if strings.Contains(contentType, "text/event-stream") || st.Expect.SSE != nil {
		sseEvents = sse.Parse(string(resp.Body))
		res.SSEGrouped = sse.BuildValue(sseEvents)
	}

	var failures []string

	if st.Expect.Status != 0 && resp.Status != st.Expect.Status {
		failures = append(failures, fmt.Sprintf("status: want %d, got %d", st.Expect.Status, resp.Status))
	} else if st.Expect.Status == 0 && resp.Status != 200 {
		failures = append(failures, fmt.Sprintf("status: want 200, got %d", resp.Status))
	}

	for k, want := range st.Expect.Headers {
		got, ok := headers[k]
		if !ok || got != want {
			failures = append(failures, fmt.Sprintf("header %q: want %q, got %q", k, want, got))
		}
	}

	if len(st.Expect.JSON) > 0 || len(st.Expect.JSONLengths) > 0 {
		if res.ParsedBody == nil {
			failures = append(failures, "response is not valid JSON")
		} else {
			for path, want := range st.Expect.JSON {
				got, err := pathway.Get(res.ParsedBody, path)
				if err != nil {
					failures = append(failures, fmt.Sprintf("json %q: %s", path, err))
					continue
				}
				if diffs := deepequal.Compare(want, got, nil); len(diffs) > 0 {
					failures = append(failures, fmt.Sprintf("json %q: %s", path, strings.Join(diffs, "; ")))
				}
			}
			for path, want := range st.Expect.JSONLengths {
				got, err := pathway.Get(res.ParsedBody, path)
				if err != nil {
					failures = append(failures, fmt.Sprintf("json_lengths %q: %s", path, err))
					continue
				}
				n, ok := lengthOf(got)
				if !ok {
					failures = append(failures, fmt.Sprintf("json_lengths %q: value is neither array nor object", path))
					continue
				}
				if n != want {
					failures = append(failures, fmt.Sprintf("json_lengths %q: want length %d, got %d", path, want, n))
				}
			}
		}
	}

	if st.Expect.JSONEq != nil {
		expanded := expandJSONEq(st.Expect.JSONEq, runCtx)
		if diffs := deepequal.Compare(expanded, res.ParsedBody, st.Expect.Ignore); len(diffs) > 0 {
			failures = append(failures, fmt.Sprintf("json_eq: %s", strings.Join(diffs, "; ")))
		}
	}

	for _, substr := range st.Expect.Contains {
		expanded := placeholder.Expand(substr, runCtx)
		if !strings.Contains(string(resp.Body), expanded) {
			failures = append(failures, fmt.Sprintf("contains: body does not contain %q", expanded))
		}
	}

	saved := map[string]any{}
	if st.Expect.SSE != nil && sseEvents != nil {
		sseErrs, sseSaved := sse.Validate(sseEvents, st.Expect.SSE, runCtx)
		failures = append(failures, sseErrs...)
		for k, v := range sseSaved {
			saved[k] = v
		}
	}

	if len(failures) > 0 {
		res.Error = failures[0]
	} else {
		res.Success = true
	}

	if res.Success && st.Test != "" {
		expanded := placeholder.Expand(st.Test, runCtx)
		out, err := expreval.Bool(expanded, runCtx)
		if err != nil {
			res.Success = false
			res.Error = fmt.Sprintf("test expression error: %s", err)
		} else if !out {
			res.Success = false
			res.Error = fmt.Sprintf("test expression failed: %s", expanded)
		}
	}

	if res.Success && len(st.Save) > 0 {
		for name, path := range st.Save {
			val, ok, warn := resolveSave(path, res, st.Expect.SSE != nil)
			if warn != "" {
				res.Warnings = append(res.Warnings, warn)
			}
			if ok {
				saved[name] = val
			}
		}
	}
	res.Saved = saved

	bound := map[string]any{}
	if res.Success && len(st.Bind) > 0 {
		for name, expr := range st.Bind {
			expanded := placeholder.Expand(expr, runCtx)
			val, err := expreval.Run(expanded, runCtx)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("bind %q evaluation error: %s", name, err))
				continue
			}
			bound[name] = val
		}
	}
	res.Bound = bound

	return res
}

func resolveSave(path string, res Result, isSSE bool) (val any, ok bool, warn string) {
	if isSSE {
		trimmed := strings.TrimPrefix(path, "sse.")
		v, err := pathway.Get(any(res.SSEGrouped), trimmed)
		if err != nil {
			return nil, false, fmt.Sprintf("save path %q not found in SSE data: %s", path, err)
		}
		return v, true, ""
	}
	if res.ParsedBody == nil {
		return nil, false, fmt.Sprintf("save path %q: response is not valid JSON", path)
	}
	v, err := pathway.Get(res.ParsedBody, path)
	if err != nil {
		return nil, false, fmt.Sprintf("save path %q not found: %s", path, err)
	}
	return v, true, ""
}

func expandJSONEq(want any, ctx map[string]any) any {
	b, err := json.Marshal(want)
	if err != nil {
		return want
	}
	expanded := placeholder.Expand(string(b), ctx)
	var out any
	if err := json.Unmarshal([]byte(expanded), &out); err != nil {
		return want
	}
	return out
}

func lengthOf(v any) (int, bool) {
	switch t := v.(type) {
	case []any:
		return len(t), true
	case map[string]any:
		return len(t), true
	default:
		return 0, false
	}
}

func flattenHeader(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// Slugify turns a step name into a context key: lower-case ASCII
// alphanumerics, runs of other characters collapsed to a single
// underscore, leading/trailing underscores trimmed. An all-punctuation
// name slugifies to the empty string; callers substitute "step<N>".
func Slugify(name string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// Itoa is a tiny helper kept local to avoid an extra import at call sites
// that build "step<N>" fallback keys.
func Itoa(n int) string {
	return strconv.Itoa(n)
}
