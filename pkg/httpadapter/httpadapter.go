// Package httpadapter sends a scenario step's request over HTTP: it joins
// the request URL against the scenario's base URL, expands placeholders in
// URL/headers/query/body, applies the step timeout, and returns both the
// raw response and a RequestInfo capturing what was actually sent.
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apirunner/scenario/pkg/model"
	"github.com/apirunner/scenario/pkg/placeholder"
)

// Client issues scenario requests against a base URL and default headers,
// mirroring the teacher's hand-rolled net/http REST client rather than a
// third-party HTTP library.
type Client struct {
	BaseURL        string
	DefaultHeaders map[string]string
	HTTPClient     *http.Client
}

// New builds a Client with the given base URL, default headers, and
// per-request timeout.
func New(baseURL string, defaultHeaders map[string]string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:        baseURL,
		DefaultHeaders: defaultHeaders,
		HTTPClient:     &http.Client{Timeout: timeout},
	}
}

// Response is the raw result of sending a request.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Send resolves req against c's base URL and defaults, expands placeholders
// in every templatable field, and performs the call.
func (c *Client) Send(ctx context.Context, req model.Request, vars map[string]any) (*Response, *model.RequestInfo, error) {
	finalURL, err := c.resolveURL(req.URL, req.Query, vars)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve request url: %w", err)
	}

	headers := mergeHeaders(c.DefaultHeaders, req.Headers, vars)

	var bodyText string
	var bodyReader io.Reader
	if req.Body != nil {
		expanded := placeholder.ExpandAny(req.Body, vars)
		b, err := json.Marshal(expanded)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyText = string(b)
		bodyReader = bytes.NewReader(b)
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), finalURL, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	info := &model.RequestInfo{
		Method:  strings.ToUpper(req.Method),
		URL:     finalURL,
		Headers: headers,
		Body:    bodyText,
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, info, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, info, fmt.Errorf("read response body: %w", err)
	}

	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: data}, info, nil
}

// resolveURL follows §4.5: a URL containing "://" is used verbatim;
// otherwise it is joined onto the base URL with any leading "/" in the
// request path stripped before joining. Query parameters are appended
// after placeholder expansion.
func (c *Client) resolveURL(rawURL string, query map[string]string, vars map[string]any) (string, error) {
	expanded := placeholder.Expand(rawURL, vars)

	var base string
	if strings.Contains(expanded, "://") {
		base = expanded
	} else {
		trimmedBase := strings.TrimSuffix(c.BaseURL, "/")
		trimmedPath := strings.TrimPrefix(expanded, "/")
		base = trimmedBase + "/" + trimmedPath
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", base, err)
	}

	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, placeholder.Expand(v, vars))
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func mergeHeaders(defaults, override map[string]string, vars map[string]any) map[string]string {
	out := make(map[string]string, len(defaults)+len(override))
	for k, v := range defaults {
		out[k] = placeholder.Expand(v, vars)
	}
	for k, v := range override {
		out[k] = placeholder.Expand(v, vars)
	}
	return out
}
