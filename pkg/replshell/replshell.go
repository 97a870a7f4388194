// Package replshell implements an interactive REPL for stepping through a
// scenario one step at a time, adapted from pkg/debugger's runbook REPL:
// same readline-driven command loop and prompt shape, stepping through
// model.Step entries and the driver's context instead of runbook steps and
// engine state.
package replshell

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apirunner/scenario/pkg/httpadapter"
	"github.com/apirunner/scenario/pkg/model"
	"github.com/apirunner/scenario/pkg/step"
	"github.com/chzyer/readline"
)

// Shell steps through a scenario's steps one at a time, letting the
// operator inspect the context and saved/bound variables between steps.
type Shell struct {
	scn    *model.Scenario
	client *httpadapter.Client
	ctx    map[string]any
	index  int
	output io.Writer
	rl     *readline.Instance
}

// New creates a shell positioned before the scenario's first step.
func New(scn *model.Scenario) *Shell {
	cfg := scn.Config
	timeoutSeconds := cfg.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = model.DefaultTimeoutSeconds
	}
	return &Shell{
		scn:    scn,
		client: httpadapter.New(cfg.BaseURL, cfg.Headers, time.Duration(timeoutSeconds)*time.Second),
		ctx:    map[string]any{"vars": copyMap(scn.Vars), "steps": map[string]any{}},
		output: os.Stdout,
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context) error {
	commands := []string{"next", "run", "print vars", "print current", "print steps", "history", "help", "quit"}
	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	s.rl = rl
	defer rl.Close()

	fmt.Fprintf(s.output, "scenario debugger — %q, %d steps\n", s.scn.Name, len(s.scn.Steps))
	fmt.Fprintf(s.output, "Type 'help' for available commands, 'next' to execute the next step.\n\n")

	for {
		rl.SetPrompt(s.prompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		switch parts[0] {
		case "next", "n":
			s.handleNext(ctx)
		case "run", "r":
			s.handleRun(ctx)
		case "print", "p":
			s.handlePrint(parts)
		case "history", "h":
			s.handleHistory()
		case "help", "?":
			s.handleHelp()
		case "quit", "q":
			fmt.Fprintln(s.output, "Exiting debugger.")
			return nil
		default:
			fmt.Fprintf(s.output, "Unknown command: %q. Type 'help' for available commands.\n", parts[0])
		}
	}
}

func (s *Shell) prompt() string {
	total := len(s.scn.Steps)
	if s.index >= total {
		return "scenario[done]> "
	}
	st := s.scn.Steps[s.index]
	key := st.ID
	if key == "" {
		key = step.Slugify(st.Name)
	}
	return fmt.Sprintf("scenario[%d/%d | %s]> ", s.index+1, total, key)
}

func (s *Shell) handleNext(ctx context.Context) {
	if s.index >= len(s.scn.Steps) {
		fmt.Fprintln(s.output, "No more steps.")
		return
	}
	st := s.scn.Steps[s.index]
	res := step.Execute(ctx, s.client, st, s.ctx)
	s.commit(st, res)
	if res.Success {
		fmt.Fprintf(s.output, "ok: %s\n", st.Name)
	} else {
		fmt.Fprintf(s.output, "FAIL: %s — %s\n", st.Name, res.Error)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(s.output, "  warning: %s\n", w)
	}
	s.index++
}

func (s *Shell) handleRun(ctx context.Context) {
	for s.index < len(s.scn.Steps) {
		s.handleNext(ctx)
	}
}

func (s *Shell) commit(st model.Step, res step.Result) {
	varsMap, _ := s.ctx["vars"].(map[string]any)
	if varsMap == nil {
		varsMap = map[string]any{}
	}
	for k, v := range res.Saved {
		varsMap[k] = v
	}
	for k, v := range res.Bound {
		varsMap[k] = v
	}
	s.ctx["vars"] = varsMap

	cur := map[string]any{}
	if res.Response != nil {
		body := any(res.Response.Body)
		if res.ParsedBody != nil {
			body = res.ParsedBody
		}
		cur["res"] = map[string]any{"status": res.Response.Status, "body": body}
	}
	s.ctx["current"] = cur

	key := st.ID
	if key == "" {
		key = step.Slugify(st.Name)
	}
	stepsObj, _ := s.ctx["steps"].(map[string]any)
	if stepsObj == nil {
		stepsObj = map[string]any{}
	}
	stepsObj[key] = map[string]any{"success": res.Success, "res": cur["res"]}
	s.ctx["steps"] = stepsObj
}

func (s *Shell) handlePrint(parts []string) {
	if len(parts) < 2 {
		fmt.Fprintln(s.output, "usage: print <vars|current|steps>")
		return
	}
	switch parts[1] {
	case "vars":
		fmt.Fprintf(s.output, "%v\n", s.ctx["vars"])
	case "current":
		fmt.Fprintf(s.output, "%v\n", s.ctx["current"])
	case "steps":
		fmt.Fprintf(s.output, "%v\n", s.ctx["steps"])
	default:
		fmt.Fprintf(s.output, "unknown print target %q\n", parts[1])
	}
}

func (s *Shell) handleHistory() {
	for i := 0; i < s.index; i++ {
		fmt.Fprintf(s.output, "  %d. %s\n", i+1, s.scn.Steps[i].Name)
	}
}

func (s *Shell) handleHelp() {
	fmt.Fprintln(s.output, `Commands:
  next, n        execute the next step
  run, r         execute all remaining steps
  print <what>   print vars, current, or steps
  history, h     list executed steps
  help, ?        show this text
  quit, q        exit the debugger`)
}
