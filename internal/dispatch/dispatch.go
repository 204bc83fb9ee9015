// Package dispatch executes a single automation and normalizes the
// heterogeneous platform call conventions (internal webhook, external
// webhook, local script) into one result shape. Every fault becomes an
// Error result; nothing here panics or escapes the orchestrator.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/relayhq/relay/internal/registry"
	"github.com/relayhq/relay/internal/script"
)

// Sentinel faults callers may branch on via errors.Is against Result.Err.
var (
	// ErrTimeout marks an outbound call that exceeded the request
	// timeout. Kept distinct from other network faults so callers can
	// retry timeouts differently.
	ErrTimeout = errors.New("request timed out")
	// ErrNoEndpoint marks an automation with no usable endpoint. A
	// configuration fault, the automation is not runnable.
	ErrNoEndpoint = errors.New("no endpoint configured")
)

// Status is the normalized outcome of one dispatch.
type Status int

const (
	StatusSuccess Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "error"
}

// Result is the one shape every platform's outcome collapses into.
type Result struct {
	Status     Status
	Data       map[string]any // decoded JSON payload, when there was one
	Message    string
	HTTPStatus int
	Err        error // underlying fault, nil on success
}

// envelope is the JSON body sent to webhook automations.
type envelope struct {
	UserInput  string         `json:"user_input"`
	Timestamp  string         `json:"timestamp"`
	Parameters map[string]any `json:"parameters"`
}

// Dispatcher executes automations against the configured automation
// host, external endpoints, or the local script runner.
type Dispatcher struct {
	baseURL string
	timeout time.Duration
	scripts *script.Runner
	client  *http.Client
	logger  *slog.Logger
}

// New builds a Dispatcher. baseURL is the internal automation host for
// path-style webhook automations; timeout bounds every execution.
func New(baseURL string, timeout time.Duration, scripts *script.Runner, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		scripts: scripts,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "dispatch"),
	}
}

// Execute runs one automation with the given input and parameters.
// All faults are reported through the Result, never as a Go error.
func (d *Dispatcher) Execute(ctx context.Context, a *registry.Automation, userInput string, params map[string]any) *Result {
	if params == nil {
		params = map[string]any{}
	}
	start := time.Now()
	var res *Result
	switch a.Platform.Kind {
	case registry.KindScript:
		res = d.runScript(ctx, a, userInput, params)
	case registry.KindExternal:
		if a.Platform.Target == "" {
			res = errorResult(fmt.Errorf("%w for automation %s", ErrNoEndpoint, a.Name))
		} else {
			res = d.post(ctx, a, a.Platform.Target, userInput, params)
		}
	default: // KindWebhook
		if a.Platform.Target == "" {
			res = errorResult(fmt.Errorf("%w for automation %s", ErrNoEndpoint, a.Name))
		} else {
			res = d.post(ctx, a, d.baseURL+a.Platform.Target, userInput, params)
		}
	}
	d.logger.Info("dispatched automation",
		"automation", a.Name,
		"platform", a.Platform.Kind.String(),
		"status", res.Status.String(),
		"elapsed", time.Since(start))
	return res
}

func (d *Dispatcher) runScript(ctx context.Context, a *registry.Automation, userInput string, params map[string]any) *Result {
	if d.scripts == nil {
		return errorResult(fmt.Errorf("%w: no script runner for automation %s", ErrNoEndpoint, a.Name))
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	data, err := d.scripts.Run(ctx, a.Platform.Target, userInput, params)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errorResult(fmt.Errorf("%w after %s: script %s", ErrTimeout, d.timeout, a.Platform.Target))
		}
		return errorResult(fmt.Errorf("script %s: %w", a.Platform.Target, err))
	}
	return d.validated(a, data, 0)
}

func (d *Dispatcher) post(ctx context.Context, a *registry.Automation, url, userInput string, params map[string]any) *Result {
	body, err := json.Marshal(envelope{
		UserInput:  userInput,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Parameters: params,
	})
	if err != nil {
		return errorResult(fmt.Errorf("encoding request for %s: %w", a.Name, err))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errorResult(fmt.Errorf("building request for %s: %w", a.Name, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return errorResult(fmt.Errorf("%w after %s: %s", ErrTimeout, d.timeout, a.Name))
		}
		return errorResult(fmt.Errorf("calling %s: %w", a.Name, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errorResult(fmt.Errorf("reading response from %s: %w", a.Name, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res := errorResult(fmt.Errorf("automation %s returned HTTP %d: %s", a.Name, resp.StatusCode, strings.TrimSpace(string(raw))))
		res.HTTPStatus = resp.StatusCode
		return res
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		// Non-JSON 2xx bodies are still a success, reported as text.
		return &Result{Status: StatusSuccess, Message: strings.TrimSpace(string(raw)), HTTPStatus: resp.StatusCode}
	}
	return d.validated(a, data, resp.StatusCode)
}

// validated runs the automation's declared response schema over a
// JSON payload. A schema violation downgrades the whole dispatch to
// Error so chain-abort policy applies uniformly.
func (d *Dispatcher) validated(a *registry.Automation, data map[string]any, httpStatus int) *Result {
	if err := a.Schema.Validate(data); err != nil {
		res := errorResult(fmt.Errorf("invalid response from %s: %w", a.Name, err))
		res.Data = data
		res.HTTPStatus = httpStatus
		return res
	}
	return &Result{Status: StatusSuccess, Data: data, HTTPStatus: httpStatus}
}

func errorResult(err error) *Result {
	return &Result{Status: StatusError, Message: err.Error(), Err: err}
}
