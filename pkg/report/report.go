// Package report serializes scenario run results and optionally submits
// them to a remote collector. Grounded on the report shape and retry
// policy of original_source's TestRunReport/TachyonOpsClient, re-expressed
// as a plain Go HTTP client in the style of pkg/icm's client.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apirunner/scenario/pkg/model"
	"gopkg.in/yaml.v3"
)

// Format is a serialization format a batch of results can be written as.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// Batch is the full report payload: one or more scenario results, a total
// duration, a timestamp, and optional CI metadata.
type Batch struct {
	Scenarios       []model.ScenarioResult `json:"scenarios" yaml:"scenarios"`
	TotalDurationMS int64                  `json:"total_duration_ms" yaml:"total_duration_ms"`
	Timestamp       string                 `json:"timestamp" yaml:"timestamp"`
	CI              *CiMetadata            `json:"ci,omitempty" yaml:"ci,omitempty"`
}

// CiMetadata describes the CI environment a run happened in, attached to
// a submitted report for traceability.
type CiMetadata struct {
	Provider   string `json:"provider" yaml:"provider"`
	Repository string `json:"repository" yaml:"repository"`
	Branch     string `json:"branch" yaml:"branch"`
	CommitSHA  string `json:"commit_sha" yaml:"commit_sha"`
	PRNumber   *int   `json:"pr_number,omitempty" yaml:"pr_number,omitempty"`
	RunID      string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	RunURL     string `json:"run_url,omitempty" yaml:"run_url,omitempty"`
}

// NewBatch wraps results for serialization, computing the total duration
// as the sum of each scenario's own.
func NewBatch(results []model.ScenarioResult, timestamp string, ci *CiMetadata) Batch {
	var total int64
	for _, r := range results {
		total += r.DurationMS
	}
	return Batch{Scenarios: results, TotalDurationMS: total, Timestamp: timestamp, CI: ci}
}

// Render serializes b in the requested format.
func Render(b Batch, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("render json report: %w", err)
		}
		return data, nil
	case FormatYAML:
		data, err := yaml.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("render yaml report: %w", err)
		}
		return data, nil
	case FormatText:
		return renderText(b), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

func renderText(b Batch) []byte {
	var sb strings.Builder
	passed, failed := 0, 0
	for _, s := range b.Scenarios {
		status := "PASS"
		if !s.Success {
			status = "FAIL"
			failed++
		} else {
			passed++
		}
		fmt.Fprintf(&sb, "%-6s %-40s %6dms\n", status, s.Name, s.DurationMS)
		for _, st := range s.Steps {
			stepStatus := "ok"
			if st.Skipped {
				stepStatus = "skip"
			} else if !st.Success {
				stepStatus = "FAIL"
			}
			fmt.Fprintf(&sb, "  [%-4s] %-36s %6dms\n", stepStatus, st.Name, st.DurationMS)
			if !st.Success && !st.Skipped {
				fmt.Fprintf(&sb, "         %s\n", st.Error)
			}
		}
	}
	fmt.Fprintf(&sb, "\n%d passed, %d failed, %d total (%dms)\n", passed, failed, len(b.Scenarios), b.TotalDurationMS)
	return []byte(sb.String())
}

// RemoteClient submits a report batch to a remote collector. Submission
// failures are reported to the caller but must never be allowed to mask
// the scenario run's own exit status — callers decide the process exit
// code from the run results, not from whether submission succeeded.
type RemoteClient struct {
	APIURL     string
	APIKey     string
	HTTPClient *http.Client

	// RetryBaseDelay is the starting backoff delay, doubled each retry.
	// Defaults to 500ms; tests shrink it to keep the suite fast.
	RetryBaseDelay time.Duration
}

// NewRemoteClient builds a client with a 30s timeout, matching the
// teacher's own external-API clients.
func NewRemoteClient(apiURL, apiKey string) *RemoteClient {
	return &RemoteClient{
		APIURL:         apiURL,
		APIKey:         apiKey,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		RetryBaseDelay: 500 * time.Millisecond,
	}
}

// SubmitResponse is what the remote collector returns on success.
type SubmitResponse struct {
	RunID        string `json:"run_id"`
	DashboardURL string `json:"dashboard_url,omitempty"`
}

// Submit posts b to the remote collector, retrying up to 3 times with
// exponential backoff on server errors and network failures, same as the
// retry policy this was translated from.
func (c *RemoteClient) Submit(ctx context.Context, b Batch) (*SubmitResponse, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	const maxRetries = 3
	url := strings.TrimRight(c.APIURL, "/") + "/v1/ops/scenario-reports"

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build submit request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.APIKey)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxRetries {
				c.sleepBackoff(attempt)
				continue
			}
			return nil, fmt.Errorf("submit report after %d retries: %w", maxRetries, lastErr)
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			var out SubmitResponse
			if err := json.Unmarshal(respBody, &out); err != nil {
				return nil, fmt.Errorf("parse submit response: %w", err)
			}
			return &out, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(respBody, 500))
			if attempt < maxRetries {
				c.sleepBackoff(attempt)
				continue
			}
			return nil, fmt.Errorf("submit report after %d retries: %w", maxRetries, lastErr)
		default:
			return nil, fmt.Errorf("submit report: %d %s", resp.StatusCode, truncate(respBody, 500))
		}
	}
	return nil, lastErr
}

func (c *RemoteClient) sleepBackoff(attempt int) {
	base := c.RetryBaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	time.Sleep(base * time.Duration(1<<uint(attempt)))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
