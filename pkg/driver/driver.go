// Package driver is the scenario driver: it walks a scenario's steps in
// order, threading a single context map through them, and is the only
// package that owns the outer Conditioned -> Included? -> [loop-wrapped
// request] -> ContextUpdated state machine. pkg/step supplies the inner
// Sent..Bound portion; pkg/loopctl supplies retry; pkg/scenarioio loads
// included scenario files.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/apirunner/scenario/pkg/httpadapter"
	"github.com/apirunner/scenario/pkg/loopctl"
	"github.com/apirunner/scenario/pkg/model"
	"github.com/apirunner/scenario/pkg/placeholder"
	"github.com/apirunner/scenario/pkg/scenarioio"
	"github.com/apirunner/scenario/pkg/step"
	"github.com/apirunner/scenario/pkg/trace"
)

// maxIncludeDepth bounds include recursion; a scenario that includes itself
// (directly or transitively) fails cleanly instead of hanging.
const maxIncludeDepth = 16

// Run executes scn from a fresh context built from its own vars.
func Run(ctx context.Context, scn *model.Scenario, tracer *trace.Writer) (*model.ScenarioResult, error) {
	runCtx := newContext(scn.Vars)
	result := execute(ctx, scn, runCtx, tracer, 0)
	return result, nil
}

// execute is the recursive core shared by top-level runs and includes.
// runCtx is mutated in place; depth guards against include cycles.
func execute(ctx context.Context, scn *model.Scenario, runCtx map[string]any, tracer *trace.Writer, depth int) *model.ScenarioResult {
	cfg := scn.Config
	timeoutSeconds := cfg.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = model.DefaultTimeoutSeconds
	}
	client := httpadapter.New(cfg.BaseURL, cfg.Headers, time.Duration(timeoutSeconds)*time.Second)

	start := time.Now()
	tracer.EmitRunStart(scn.Name, len(scn.Steps))

	keyCounts := map[string]int{}
	var stepResults []model.StepResult
	anyFailed := false

	for i, st := range scn.Steps {
		if st.Condition != "" {
			expanded := placeholder.Expand(st.Condition, runCtx)
			if !strings.EqualFold(strings.TrimSpace(expanded), "true") {
				continue
			}
		}

		key := computeKey(st, i, keyCounts)
		tracer.EmitStepStart(key, st.Name)
		stepStart := time.Now()

		var sr model.StepResult
		if st.Include != nil {
			sr = runInclude(ctx, scn, st, key, runCtx, tracer, depth)
		} else {
			sr = runRequestStep(ctx, client, st, key, runCtx, tracer)
		}
		sr.Name = st.Name
		sr.ID = key
		sr.DurationMS = time.Since(stepStart).Milliseconds()
		if st.Include == nil {
			setStepDuration(runCtx, key, sr.DurationMS)
		}

		tracer.EmitStepComplete(key, sr.Success, sr.Skipped, sr.Error, time.Since(stepStart))
		stepResults = append(stepResults, sr)

		if !sr.Success {
			anyFailed = true
			if !cfg.ContinueOnFailure {
				break
			}
		}
	}

	result := &model.ScenarioResult{
		Name:       scn.Name,
		Success:    !anyFailed,
		Steps:      stepResults,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if anyFailed {
		result.Error = model.ErrAtLeastOneStepFailed
	}
	tracer.EmitRunComplete(scn.Name, result.Success, time.Since(start))
	return result
}

// computeKey derives the context.steps.<key> slug for a step: its ID if
// set, else a slug of its name, else "step<N>" (1-based). Duplicate keys
// within one scenario get "_2", "_3", ... suffixes on the repeat.
func computeKey(st model.Step, index int, counts map[string]int) string {
	base := st.ID
	if base == "" {
		base = step.Slugify(st.Name)
	}
	if base == "" {
		base = "step" + step.Itoa(index+1)
	}
	counts[base]++
	if n := counts[base]; n > 1 {
		return base + "_" + step.Itoa(n)
	}
	return base
}

// runRequestStep wraps the step's Sent..Bound attempt in the loop
// controller, then commits the final attempt's outcome into runCtx.
func runRequestStep(ctx context.Context, client *httpadapter.Client, st model.Step, key string, runCtx map[string]any, tracer *trace.Writer) model.StepResult {
	attempt := func(actx context.Context, iteration int) (any, bool, map[string]any, error) {
		attemptCtx := cloneShallow(runCtx)
		res := step.Execute(actx, client, st, attemptCtx)
		attemptCtx["current"] = buildCurrent(res)
		tracer.EmitLoopIteration(key, iteration, res.Success)
		return res, res.Success, attemptCtx, nil
	}

	out, err := loopctl.Run(ctx, st.Loop, attempt)

	var final step.Result
	if err != nil {
		final = step.Result{Error: fmt.Sprintf("loop error: %s", err)}
	} else if r, ok := out.(step.Result); ok {
		final = r
	} else {
		final = step.Result{Error: "step produced no result"}
	}

	commitStep(runCtx, key, st.Name, final)

	return model.StepResult{
		Request:  final.Request,
		Response: final.Response,
		Success:  final.Success,
		Error:    final.Error,
		Outputs:  mergeOutputs(final.Saved, final.Bound),
	}
}

// runInclude expands and loads the included scenario, merges vars and
// context per the parent/child precedence rules, recursively invokes the
// driver, and summarizes the child run into a synthetic step result.
func runInclude(ctx context.Context, parent *model.Scenario, st model.Step, key string, runCtx map[string]any, tracer *trace.Writer, depth int) model.StepResult {
	expandedPath := placeholder.Expand(st.Include.Path, runCtx)
	tracer.EmitIncludeEnter(key, expandedPath)

	if depth >= maxIncludeDepth {
		errMsg := fmt.Sprintf("include depth exceeded %d (possible include cycle) at %q", maxIncludeDepth, expandedPath)
		tracer.EmitIncludeExit(key, false)
		return model.StepResult{
			Request: &model.RequestInfo{Method: "INCLUDE", URL: expandedPath},
			Success: false,
			Error:   errMsg,
		}
	}

	resolvedPath := scenarioio.ResolveIncludePath(parent.SourcePath, expandedPath)
	child, err := scenarioio.Load(resolvedPath)
	if err != nil {
		errMsg := fmt.Sprintf("include %q: %s", expandedPath, err)
		tracer.EmitIncludeExit(key, false)
		return model.StepResult{
			Request: &model.RequestInfo{Method: "INCLUDE", URL: expandedPath},
			Success: false,
			Error:   errMsg,
		}
	}

	if child.Vars == nil {
		child.Vars = map[string]any{}
	}
	for name, raw := range st.Include.Vars {
		child.Vars[name] = reparseOverride(raw, runCtx)
	}

	childCtx := cloneShallow(runCtx)
	childVars := copyMap(child.Vars)
	if parentVars, ok := runCtx["vars"].(map[string]any); ok {
		for k, v := range parentVars {
			if _, already := childVars[k]; !already {
				childVars[k] = v
			}
		}
	}
	childCtx["vars"] = childVars
	childCtx["steps"] = map[string]any{}
	delete(childCtx, "current")
	delete(childCtx, "previous")

	if child.Config.BaseURL == "" {
		child.Config.BaseURL = parent.Config.BaseURL
	}
	if child.Config.Headers == nil {
		child.Config.Headers = parent.Config.Headers
	}
	if child.Config.TimeoutSeconds == 0 {
		child.Config.TimeoutSeconds = parent.Config.TimeoutSeconds
	}

	childResult := execute(ctx, child, childCtx, tracer, depth+1)
	tracer.EmitIncludeExit(key, childResult.Success)

	childSteps := map[string]any{}
	for _, cs := range childResult.Steps {
		childSteps[cs.ID] = map[string]any{"name": cs.Name, "success": cs.Success}
	}

	entry := map[string]any{
		"id":         key,
		"name":       st.Name,
		"success":    childResult.Success,
		"durationMs": childResult.DurationMS,
		"request":    map[string]any{"method": "INCLUDE", "url": expandedPath},
		"outputs":    map[string]any{},
		"steps":      childSteps,
	}
	if childResult.Error != "" {
		entry["error"] = childResult.Error
	}

	stepsObj, _ := runCtx["steps"].(map[string]any)
	if stepsObj == nil {
		stepsObj = map[string]any{}
	}
	stepsObj[key] = entry
	runCtx["steps"] = stepsObj
	flattenInto("steps."+key, entry, runCtx)

	return model.StepResult{
		Request: &model.RequestInfo{Method: "INCLUDE", URL: expandedPath},
		Success: childResult.Success,
		Error:   childResult.Error,
	}
}

// reparseOverride placeholder-expands an include var override and, if the
// result is a string that re-parses as JSON, substitutes the structured
// value. Non-string overrides pass through unchanged.
func reparseOverride(raw any, ctx map[string]any) any {
	s, ok := raw.(string)
	if !ok {
		return raw
	}
	expanded := placeholder.Expand(s, ctx)
	var parsed any
	if err := json.Unmarshal([]byte(expanded), &parsed); err == nil {
		return parsed
	}
	return expanded
}

// commitStep performs ContextUpdated: rotate current into previous, write
// the new current, write and flatten steps.<key>, merge saved/bound vars,
// and refresh env.
func commitStep(runCtx map[string]any, key, name string, final step.Result) {
	if cur, had := runCtx["current"]; had {
		runCtx["previous"] = cur
	}
	current := buildCurrent(final)
	runCtx["current"] = current

	outputs := mergeOutputs(final.Saved, final.Bound)
	entry := map[string]any{
		"id":         key,
		"name":       name,
		"success":    final.Success,
		"durationMs": int64(0), // filled in by setStepDuration once known
		"request":    toJSONAny(final.Request),
		"outputs":    toJSONAny(outputs),
	}
	if final.Error != "" {
		entry["error"] = final.Error
	}
	if res, ok := current["res"]; ok {
		entry["res"] = res
	}
	if resp := toJSONAny(final.Response); resp != nil {
		entry["response"] = resp
	}

	stepsObj, _ := runCtx["steps"].(map[string]any)
	if stepsObj == nil {
		stepsObj = map[string]any{}
	}
	stepsObj[key] = entry
	runCtx["steps"] = stepsObj
	flattenInto("steps."+key, entry, runCtx)

	varsMap, _ := runCtx["vars"].(map[string]any)
	if varsMap == nil {
		varsMap = map[string]any{}
	}
	for k, v := range final.Saved {
		varsMap[k] = v
	}
	for k, v := range final.Bound {
		varsMap[k] = v
	}
	runCtx["vars"] = varsMap

	refreshEnv(runCtx)
}

// buildCurrent constructs the current.{req,res} object for one attempt's
// result. The response body prefers the parsed JSON view over the raw
// string when available.
func buildCurrent(res step.Result) map[string]any {
	cur := map[string]any{}
	if res.Request != nil {
		cur["req"] = toJSONAny(res.Request)
	}
	if res.Response != nil {
		respMap, _ := toJSONAny(res.Response).(map[string]any)
		if respMap == nil {
			respMap = map[string]any{}
		}
		if res.ParsedBody != nil {
			respMap["body"] = res.ParsedBody
		}
		respMap["rawBody"] = res.Response.Body
		cur["res"] = respMap
	}
	return cur
}

// setStepDuration patches the already-committed steps.<key>.durationMs
// value in place, both in the nested steps object and its flattened key,
// once the caller has measured the full attempt (including any looping).
func setStepDuration(runCtx map[string]any, key string, durationMS int64) {
	stepsObj, _ := runCtx["steps"].(map[string]any)
	if stepsObj == nil {
		return
	}
	entry, ok := stepsObj[key].(map[string]any)
	if !ok {
		return
	}
	entry["durationMs"] = durationMS
	runCtx["steps."+key+".durationMs"] = durationMS
}

func mergeOutputs(saved, bound map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range saved {
		out[k] = v
	}
	for k, v := range bound {
		out[k] = v
	}
	return out
}

// toJSONAny round-trips v through JSON so struct values become the plain
// map[string]any / []any / scalar shapes flattenInto and the placeholder
// expander expect.
func toJSONAny(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
