// progress.go implements the live progress view: one line per scenario
// step, a spinner while it's in flight, a check or cross once it settles.
// Adapted from pkg/ecosystem/tui/model.go's event-driven Model: the same
// eventCh-streamed-from-a-goroutine shape, narrowed to the scenario/step
// trace vocabulary instead of the kernel engine's.
package tui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/apirunner/scenario/pkg/driver"
	"github.com/apirunner/scenario/pkg/model"
	"github.com/apirunner/scenario/pkg/step"
	"github.com/apirunner/scenario/pkg/trace"
)

// StepState tracks the progress of a single scenario step in the TUI.
type StepState struct {
	Key      string
	Name     string
	Status   string // "pending", "running", "success", "failed", "skipped"
	Duration time.Duration
	Error    string
}

// Model is the Bubble Tea model driving the live progress view.
type Model struct {
	scn     *model.Scenario
	steps   []StepState
	index   map[string]int // step key -> index in steps
	spinner spinner.Model
	status  string // "idle", "running", "completed", "failed"
	err     error
	width   int

	ctx     context.Context
	cancel  context.CancelFunc
	eventCh chan tea.Msg
	result  *model.ScenarioResult
}

// NewModel creates a progress model for scn. The run doesn't start until
// Init() is called (normally by tea.NewProgram.Run).
func NewModel(scn *model.Scenario) Model {
	steps := make([]StepState, 0, len(scn.Steps))
	idx := make(map[string]int, len(scn.Steps))
	counts := map[string]int{}
	for i, st := range scn.Steps {
		key := st.ID
		if key == "" {
			key = step.Slugify(st.Name)
		}
		if key == "" {
			key = "step" + step.Itoa(i+1)
		}
		counts[key]++
		if n := counts[key]; n > 1 {
			key += "_" + step.Itoa(n)
		}
		idx[key] = i
		steps = append(steps, StepState{Key: key, Name: st.Name, Status: "pending"})
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		scn:     scn,
		steps:   steps,
		index:   idx,
		spinner: sp,
		status:  "idle",
		ctx:     ctx,
		cancel:  cancel,
		eventCh: make(chan tea.Msg, 64),
	}
}

// --- messages ---

type traceEventMsg struct{ Event trace.Event }

type runCompleteMsg struct {
	Result *model.ScenarioResult
	Err    error
}

func waitForEvent(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// Init starts the scenario in a goroutine and begins listening for events.
func (m Model) Init() tea.Cmd {
	go m.runScenario()
	return tea.Batch(m.spinner.Tick, waitForEvent(m.eventCh))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case traceEventMsg:
		m.apply(msg.Event)
		m.status = "running"
		return m, waitForEvent(m.eventCh)

	case runCompleteMsg:
		m.result = msg.Result
		m.err = msg.Err
		if msg.Err != nil {
			m.status = "failed"
		} else if msg.Result != nil && msg.Result.Success {
			m.status = "completed"
		} else {
			m.status = "failed"
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) apply(evt trace.Event) {
	key, _ := evt.Data["step_key"].(string)
	if key == "" {
		return
	}
	i, ok := m.index[key]
	if !ok {
		return
	}
	switch evt.Type {
	case trace.EventStepStart:
		m.steps[i].Status = "running"
	case trace.EventStepComplete:
		skipped, _ := evt.Data["skipped"].(bool)
		success, _ := evt.Data["success"].(bool)
		switch {
		case skipped:
			m.steps[i].Status = "skipped"
		case success:
			m.steps[i].Status = "success"
		default:
			m.steps[i].Status = "failed"
		}
		if d, ok := evt.Data["duration"].(string); ok {
			m.steps[i].Duration, _ = time.ParseDuration(d)
		}
		if e, ok := evt.Data["error"].(string); ok {
			m.steps[i].Error = e
		}
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("scenario: %s", m.scn.Name)))
	b.WriteString("\n")
	if m.scn.Description != "" {
		b.WriteString(renderMarkdownWidth(m.scn.Description, max(m.width, 40)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, s := range m.steps {
		b.WriteString("  ")
		b.WriteString(m.glyph(s.Status))
		b.WriteString(" ")
		switch s.Status {
		case "success":
			b.WriteString(stepPassed.Render(s.Name))
		case "failed":
			b.WriteString(stepFailed.Render(s.Name))
		case "skipped":
			b.WriteString(stepSkipped.Render(s.Name))
		case "running":
			b.WriteString(stepCurrent.Render(s.Name))
		default:
			b.WriteString(stepNormal.Render(s.Name))
		}
		if s.Duration > 0 {
			fmt.Fprintf(&b, "  (%s)", s.Duration.Truncate(time.Millisecond))
		}
		if s.Status == "failed" && s.Error != "" {
			fmt.Fprintf(&b, "\n      %s", errorStyle.Render(s.Error))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch m.status {
	case "idle", "running":
		b.WriteString("  status: running\n")
	case "completed":
		b.WriteString(statusPassedStyle.Render("  ✓ all steps passed") + "\n")
	case "failed":
		b.WriteString(statusFailedStyle.Render("  ✗ scenario failed") + "\n")
	}
	b.WriteString("  " + keyBarText())
	return b.String()
}

func (m Model) glyph(status string) string {
	switch status {
	case "running":
		return m.spinner.View()
	case "success":
		return GlyphPassed
	case "failed":
		return GlyphFailed
	case "skipped":
		return GlyphSkipped
	default:
		return GlyphPending
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// runScenario drives the scenario through pkg/driver, turning its trace
// output into eventCh messages the same way the engine goroutine does:
// a pipe carries JSONL trace events to a reader goroutine while the run
// itself executes synchronously in this one.
func (m Model) runScenario() {
	defer close(m.eventCh)

	pr, pw := io.Pipe()
	tw := trace.NewWriter(pw, "tui-run")

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 1<<20), 1<<20)
		for scanner.Scan() {
			var evt trace.Event
			if err := json.Unmarshal(scanner.Bytes(), &evt); err == nil {
				m.eventCh <- traceEventMsg{Event: evt}
			}
		}
	}()

	result, err := driver.Run(m.ctx, m.scn, tw)

	pw.Close()
	<-done

	m.eventCh <- runCompleteMsg{Result: result, Err: err}
}

// Result returns the completed scenario result, or nil if the run was
// cancelled before completing.
func (m Model) Result() *model.ScenarioResult { return m.result }

// Run launches the progress TUI for scn and returns once it quits.
func Run(scn *model.Scenario) (*model.ScenarioResult, error) {
	p := tea.NewProgram(NewModel(scn))
	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}
	fm := finalModel.(Model)
	if fm.err != nil {
		return nil, fm.err
	}
	return fm.result, nil
}
