// Package sse parses Server-Sent Events response bodies and validates them
// against a scenario's sse expectation: which event types must (or must
// not) appear, and an ordered sequence of per-event field checks that can
// capture values into the running context as it scans.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apirunner/scenario/pkg/deepequal"
	"github.com/apirunner/scenario/pkg/model"
	"github.com/apirunner/scenario/pkg/pathway"
	"github.com/apirunner/scenario/pkg/placeholder"
)

func dataEqualErrors(got, want any, ignore []string) []string {
	return deepequal.Compare(want, got, ignore)
}

// Event is one parsed "event:"/"data:" block.
type Event struct {
	Type     string
	DataRaw  string
	DataJSON any // nil if DataRaw did not parse as JSON
}

// Parse scans body line by line, grouping "event:"/"data:" pairs into
// Events. A blank line or a new "event:" line flushes the event in
// progress; a trailing event with no closing blank line is flushed at
// end of input.
func Parse(body string) []Event {
	var (
		events      []Event
		curType     string
		haveType    bool
		dataParts   []string
	)

	flush := func() {
		if !haveType {
			return
		}
		raw := strings.Join(dataParts, "\n")
		events = append(events, Event{Type: curType, DataRaw: raw, DataJSON: tryParseJSON(raw)})
		dataParts = nil
		haveType = false
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			flush()
			curType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			haveType = true
		case strings.HasPrefix(line, "data:"):
			dataParts = append(dataParts, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			flush()
		}
	}
	flush()
	return events
}

func tryParseJSON(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	return v
}

// BuildValue groups events by type into {"type": [data, ...], ...}, for
// general-purpose capture of an SSE stream into a single context value.
func BuildValue(events []Event) map[string]any {
	groups := map[string][]any{}
	order := []string{}
	for _, e := range events {
		data := e.DataJSON
		if data == nil {
			data = e.DataRaw
		}
		if _, ok := groups[e.Type]; !ok {
			order = append(order, e.Type)
		}
		groups[e.Type] = append(groups[e.Type], data)
	}
	out := make(map[string]any, len(groups))
	for _, t := range order {
		out[t] = groups[t]
	}
	return out
}

// Validate checks events against expect, returning every mismatch found
// and the variables captured along the way by ordered_events.save entries.
func Validate(events []Event, expect *model.SseExpect, ctx map[string]any) (errs []string, saved map[string]any) {
	saved = map[string]any{}
	if expect == nil {
		return nil, saved
	}

	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}

	for _, required := range expect.HasEvents {
		if !contains(types, required) {
			errs = append(errs, fmt.Sprintf("SSE: expected event type %q not found (found: %v)", required, types))
		}
	}
	for _, forbidden := range expect.HasNoEvents {
		if contains(types, forbidden) {
			errs = append(errs, fmt.Sprintf("SSE: forbidden event type %q was found in stream", forbidden))
		}
	}

	if len(expect.OrderedEvents) > 0 {
		ordErrs := validateOrdered(events, expect.OrderedEvents, ctx, saved)
		errs = append(errs, ordErrs...)
	}

	return errs, saved
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func validateOrdered(events []Event, exps []model.SseEventExpect, ctx map[string]any, saved map[string]any) []string {
	var errs []string
	cursor := 0

	for idx, exp := range exps {
		expandedType := placeholder.Expand(exp.Type, mergeSaved(ctx, saved))

		found := false
		for cursor < len(events) {
			if events[cursor].Type == expandedType {
				found = true
				break
			}
			cursor++
		}
		if !found {
			errs = append(errs, fmt.Sprintf("SSE event[%d]: expected event %q not found after scanning from position", idx, expandedType))
			continue
		}
		event := events[cursor]

		if len(exp.Data) > 0 {
			if event.DataJSON == nil {
				errs = append(errs, fmt.Sprintf("SSE event[%d] %q: data is not valid JSON, cannot check fields", idx, expandedType))
			} else {
				for key, expectedVal := range exp.Data {
					expandedExpected := expandScalar(expectedVal, mergeSaved(ctx, saved))
					actual, err := pathway.Get(event.DataJSON, key)
					if err != nil {
						errs = append(errs, fmt.Sprintf("SSE event[%d] %q: field %q not found in data", idx, expandedType, key))
						continue
					}
					if fmt.Sprint(actual) != fmt.Sprint(expandedExpected) {
						errs = append(errs, fmt.Sprintf("SSE event[%d] %q: field %q mismatch — expected %v, got %v", idx, expandedType, key, expandedExpected, actual))
					}
				}
			}
		}

		if exp.DataEq != nil {
			if event.DataJSON == nil {
				errs = append(errs, fmt.Sprintf("SSE event[%d] %q: data is not valid JSON, cannot run data_eq check", idx, expandedType))
			} else {
				expectedWithType := injectType(exp.DataEq, expandedType)
				expanded := expandDeep(expectedWithType, mergeSaved(ctx, saved))
				for _, e := range dataEqualErrors(event.DataJSON, expanded, exp.IgnoreFields) {
					errs = append(errs, fmt.Sprintf("SSE event[%d] %q: %s", idx, expandedType, e))
				}
			}
		}

		if exp.DataContains != "" {
			expandedSubstr := placeholder.Expand(exp.DataContains, mergeSaved(ctx, saved))
			if !strings.Contains(event.DataRaw, expandedSubstr) {
				errs = append(errs, fmt.Sprintf("SSE event[%d] %q: data does not contain %q", idx, expandedType, expandedSubstr))
			}
		}

		for _, field := range exp.DataExists {
			if event.DataJSON == nil {
				errs = append(errs, fmt.Sprintf("SSE event[%d] %q: data is not valid JSON, cannot check field existence for %q", idx, expandedType, field))
				continue
			}
			if _, err := pathway.Get(event.DataJSON, field); err != nil {
				errs = append(errs, fmt.Sprintf("SSE event[%d] %q: expected field %q to exist in data", idx, expandedType, field))
			}
		}

		for varName, dataField := range exp.Save {
			if event.DataJSON == nil {
				continue
			}
			val, err := pathway.Get(event.DataJSON, dataField)
			if err != nil {
				errs = append(errs, fmt.Sprintf("SSE event[%d] %q: save field %q not found in data", idx, expandedType, dataField))
				continue
			}
			saved[varName] = val
		}

		cursor++
	}

	return errs
}

// injectType mirrors the "auto-inject type from event name" behavior: if
// want is a map and has no "type" key, one is added with the event's type.
func injectType(want any, eventType string) any {
	m, ok := want.(map[string]any)
	if !ok {
		return want
	}
	if _, has := m["type"]; has {
		return want
	}
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out["type"] = eventType
	return out
}

// expandScalar applies the same "whole-placeholder resolves to raw value"
// rule as expandDeep, but to a single Data field's expected value rather
// than a whole tree.
func expandScalar(want any, ctx map[string]any) any {
	s, ok := want.(string)
	if !ok {
		return want
	}
	return placeholder.ExpandAny(s, ctx)
}

// expandDeep walks want, resolving whole-string "{{ name }}" leaves against
// ctx and saved-so-far captures (saved vars take precedence, matching the
// per-event capture-as-you-scan semantics of ordered_events).
func expandDeep(want any, ctx map[string]any) any {
	return placeholder.ExpandAny(want, ctx)
}

func mergeSaved(ctx map[string]any, saved map[string]any) map[string]any {
	if len(saved) == 0 {
		return ctx
	}
	merged := make(map[string]any, len(ctx)+1)
	for k, v := range ctx {
		merged[k] = v
	}
	vars, _ := merged["vars"].(map[string]any)
	mergedVars := make(map[string]any, len(vars)+len(saved))
	for k, v := range vars {
		mergedVars[k] = v
	}
	for k, v := range saved {
		mergedVars[k] = v
	}
	merged["vars"] = mergedVars
	return merged
}
