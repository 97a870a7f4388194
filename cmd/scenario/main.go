// Package main provides the scenario CLI entrypoint.
//
//	scenario run <path> [--var key=value] [--base-url url] [--timeout s]
//	                     [--name filter] [--report-output path] [--report-format json|yaml|text]
//	                     [--report-api-url url] [--report-api-key key]
//	scenario validate <path>
//	scenario schema
//	scenario debug <file.yaml>
//	scenario serve-mcp
//	scenario tui <file.yaml>
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apirunner/scenario/pkg/driver"
	"github.com/apirunner/scenario/pkg/mcpserver"
	"github.com/apirunner/scenario/pkg/model"
	"github.com/apirunner/scenario/pkg/replshell"
	"github.com/apirunner/scenario/pkg/report"
	"github.com/apirunner/scenario/pkg/scenarioio"
	"github.com/apirunner/scenario/pkg/scenarioschema"
	"github.com/apirunner/scenario/pkg/trace"
	"github.com/apirunner/scenario/pkg/tui"
	mcpserverlib "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Declarative HTTP scenario test runner",
}

// --- run ---

var (
	runVars         []string
	runNameFilter   string
	runBaseURL      string
	runTimeout      int
	runTraceFile    string
	runReportOut    string
	runReportFormat string
	runReportAPIURL string
	runReportAPIKey string
)

var runCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "Run one scenario file or every scenario under a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	files, err := collectScenarioFiles(args[0])
	if err != nil {
		return err
	}

	vars, err := parseVars(runVars)
	if err != nil {
		return err
	}

	var tracer *trace.Writer
	if runTraceFile != "" {
		w, err := trace.NewFileWriter(runTraceFile, "run-1")
		if err != nil {
			return fmt.Errorf("trace: %w", err)
		}
		tracer = w
	}

	start := time.Now()
	var results []model.ScenarioResult
	allPassed := true

	for _, file := range files {
		scn, err := scenarioio.Load(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
			allPassed = false
			continue
		}
		if runNameFilter != "" && !strings.Contains(strings.ToLower(scn.Name), strings.ToLower(runNameFilter)) {
			continue
		}
		applyOverrides(scn, vars, runBaseURL, runTimeout)

		if scn.Description != "" {
			fmt.Println(tui.RenderMarkdown(scn.Description))
		}

		result, err := driver.Run(cmd.Context(), scn, tracer)
		if err != nil {
			return fmt.Errorf("run %s: %w", file, err)
		}
		results = append(results, *result)
		if !result.Success {
			allPassed = false
		}
		printScenarioResult(*result)
	}

	batch := report.NewBatch(results, start.UTC().Format(time.RFC3339), nil)
	if err := writeReport(batch, runReportOut, runReportFormat); err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
	}
	submitReport(cmd.Context(), batch, runReportAPIURL, runReportAPIKey)

	if !allPassed {
		return fmt.Errorf("one or more scenarios failed")
	}
	return nil
}

func printScenarioResult(r model.ScenarioResult) {
	status := "PASS"
	if !r.Success {
		status = "FAIL"
	}
	fmt.Printf("%s  %s  (%dms)\n", status, r.Name, r.DurationMS)
	for _, s := range r.Steps {
		switch {
		case s.Skipped:
			fmt.Printf("  - %s\n", s.Name)
		case s.Success:
			fmt.Printf("  ok %s\n", s.Name)
		default:
			fmt.Printf("  FAIL %s — %s\n", s.Name, s.Error)
		}
	}
}

// writeReport renders batch and writes it to reportOut; with an empty
// reportOut the rendered report is not written anywhere and only a render
// error is returned. A render/submission failure never changes the
// scenario run's own exit status — it's surfaced but kept separate.
func writeReport(batch report.Batch, reportOut, format string) error {
	if format == "" {
		format = "text"
	}
	data, err := report.Render(batch, report.Format(format))
	if err != nil {
		return err
	}
	if reportOut == "" {
		return nil
	}
	return os.WriteFile(reportOut, data, 0o644)
}

func submitReport(ctx context.Context, batch report.Batch, apiURL, apiKey string) {
	if apiURL == "" {
		return
	}
	client := report.NewRemoteClient(apiURL, apiKey)
	if _, err := client.Submit(ctx, batch); err != nil {
		fmt.Fprintf(os.Stderr, "remote report submission failed: %v\n", err)
	}
}

func applyOverrides(scn *model.Scenario, vars map[string]any, baseURL string, timeoutSeconds int) {
	if scn.Vars == nil {
		scn.Vars = map[string]any{}
	}
	for k, v := range vars {
		scn.Vars[k] = v
	}
	if baseURL != "" {
		scn.Config.BaseURL = baseURL
	}
	if timeoutSeconds > 0 {
		scn.Config.TimeoutSeconds = timeoutSeconds
	}
}

func parseVars(raw []string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for _, v := range raw {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", v)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

func collectScenarioFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yaml" || ext == ".yml" || strings.HasSuffix(strings.ToLower(p), ".scenario.md") {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a scenario file against its schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := collectScenarioFiles(args[0])
	if err != nil {
		return err
	}
	allValid := true
	for _, file := range files {
		scn, err := scenarioio.Load(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
			allValid = false
			continue
		}
		errs, err := scenarioschema.Validate(scn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
			allValid = false
			continue
		}
		if len(errs) > 0 {
			allValid = false
			fmt.Fprintf(os.Stderr, "%s: %d error(s)\n", file, len(errs))
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "  %s\n", e.Error())
			}
			continue
		}
		fmt.Printf("✓ %s is valid (%d steps)\n", scn.Name, len(scn.Steps))
	}
	if !allValid {
		return fmt.Errorf("validation failed")
	}
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export the scenario document JSON Schema to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := scenarioschema.Generate()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

// --- debug ---

var debugCmd = &cobra.Command{
	Use:   "debug <file.yaml>",
	Short: "Step through a scenario interactively",
	Args:  cobra.ExactArgs(1),
	RunE:  runDebug,
}

func runDebug(cmd *cobra.Command, args []string) error {
	scn, err := scenarioio.Load(args[0])
	if err != nil {
		return err
	}
	if errs, err := scenarioschema.Validate(scn); err == nil && len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  %s\n", e.Error())
		}
		return fmt.Errorf("validation failed")
	}
	return replshell.New(scn).Run(cmd.Context())
}

// --- serve-mcp ---

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the scenario MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := mcpserver.NewServer(version)
		return mcpserverlib.ServeStdio(s)
	},
}

// --- tui ---

var tuiCmd = &cobra.Command{
	Use:   "tui <file.yaml>",
	Short: "Run a scenario with a live progress view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scn, err := scenarioio.Load(args[0])
		if err != nil {
			return err
		}
		result, err := tui.Run(scn)
		if err != nil {
			return err
		}
		if result != nil && !result.Success {
			return fmt.Errorf("scenario failed")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Set a variable (key=value), repeatable")
	runCmd.Flags().StringVar(&runNameFilter, "name", "", "Only run scenarios whose name contains this substring")
	runCmd.Flags().StringVar(&runBaseURL, "base-url", "", "Override the scenario's base URL")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "Override the scenario's per-request timeout in seconds")
	runCmd.Flags().StringVar(&runTraceFile, "trace", "", "Write a JSONL trace to this file")
	runCmd.Flags().StringVar(&runReportOut, "report-output", "", "Write the rendered report to this file")
	runCmd.Flags().StringVar(&runReportFormat, "report-format", "text", "Report format: json, yaml, or text")
	runCmd.Flags().StringVar(&runReportAPIURL, "report-api-url", "", "Submit the report to this remote collector")
	runCmd.Flags().StringVar(&runReportAPIKey, "report-api-key", "", "Bearer token for --report-api-url")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(serveMCPCmd)
	rootCmd.AddCommand(tuiCmd)
}
