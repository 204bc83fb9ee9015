// Package workflow is the routing state machine: it decides whether a
// request is a system query, a single automation, or a chain, executes
// the chosen path, and records the outcome to telemetry, the session
// history, and the ledger.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/relayhq/relay/internal/dispatch"
	"github.com/relayhq/relay/internal/intent"
	"github.com/relayhq/relay/internal/ledger"
	"github.com/relayhq/relay/internal/registry"
	"github.com/relayhq/relay/internal/state"
	"github.com/relayhq/relay/internal/telemetry"
)

// Dispatcher executes one automation. Satisfied by *dispatch.Dispatcher;
// tests substitute a scripted fake.
type Dispatcher interface {
	Execute(ctx context.Context, a *registry.Automation, userInput string, params map[string]any) *dispatch.Result
}

// Recorder persists completed executions. Satisfied by *ledger.Ledger.
type Recorder interface {
	RecordExecution(rec *ledger.ExecutionRecord) error
}

// contactRecorder is the optional ledger surface for payloads that
// carry leads or sent emails. *ledger.Ledger satisfies it; a Recorder
// that does not is simply skipped.
type contactRecorder interface {
	UpsertLead(lead *ledger.Lead) (*ledger.Lead, error)
	RecordEmail(e *ledger.SentEmail) error
}

// ResponseKind tells the caller what shape of answer it got.
type ResponseKind string

const (
	ResponseListing    ResponseKind = "listing"
	ResponseSingle     ResponseKind = "single"
	ResponseChain      ResponseKind = "chain"
	ResponseSuggestion ResponseKind = "suggestion"
	ResponseError      ResponseKind = "error"
)

// Response is the engine's answer to one request.
type Response struct {
	Kind       ResponseKind
	Text       string
	Automation string
	Result     *dispatch.Result
	Run        *Run
}

// StepOutcome is the recorded fate of one chain step.
type StepOutcome string

const (
	StepSuccess StepOutcome = "success"
	StepFailed  StepOutcome = "failed"
	StepSkipped StepOutcome = "skipped"
)

// StepResult is immutable once appended to a Run.
type StepResult struct {
	Ordinal            int
	Automation         string
	Description        string
	Outcome            StepOutcome
	Payload            map[string]any
	Message            string
	ConditionEvaluated string
}

// Run is one chain execution: the ordered step results plus counts.
type Run struct {
	Name    string
	Steps   []StepResult
	Success int
	Failed  int
	Skipped int
}

// stepPlan is a planned step before execution.
type stepPlan struct {
	description string
	automation  string
	condition   string
}

// thenToken matches the literal word "then", which forces chain
// detection regardless of the classifier's verdict.
var thenToken = regexp.MustCompile(`(?i)\bthen\b`)

// splitPattern breaks an overridden input into fragments.
var splitPattern = regexp.MustCompile(`(?i)\s+then\s+|,`)

// Engine routes one request at a time. Independent requests may run
// concurrently; telemetry, history and the ledger serialize their own
// writes.
type Engine struct {
	registry   *registry.Registry
	classifier intent.Classifier
	dispatcher Dispatcher
	metrics    *telemetry.Metrics
	history    *state.History
	recorder   Recorder // nil disables durable recording
	logger     *slog.Logger
}

// New assembles an Engine. recorder may be nil.
func New(reg *registry.Registry, classifier intent.Classifier, d Dispatcher,
	metrics *telemetry.Metrics, history *state.History, recorder Recorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:   reg,
		classifier: classifier,
		dispatcher: d,
		metrics:    metrics,
		history:    history,
		recorder:   recorder,
		logger:     logger.With("component", "workflow"),
	}
}

// Handle routes one request end to end. It never panics and never
// returns a Go error; every fault becomes a structured Response.
func (e *Engine) Handle(ctx context.Context, input string) *Response {
	input = strings.TrimSpace(input)
	if input == "" {
		return &Response{Kind: ResponseError, Text: "empty request"}
	}

	// System queries list capabilities and bypass execution entirely.
	if isSystemQuery(input) {
		return e.listing()
	}

	plans, name := e.plan(ctx, input)
	if len(plans) >= 2 {
		return e.runChain(ctx, input, name, plans)
	}
	return e.runSingle(ctx, input)
}

// listing renders the registry without touching ledger or counters.
func (e *Engine) listing() *Response {
	if e.registry.Len() == 0 {
		return &Response{Kind: ResponseListing, Text: "No automations available."}
	}
	var b strings.Builder
	b.WriteString("Available automations:\n")
	for _, a := range e.registry.List() {
		fmt.Fprintf(&b, "  %s (%s): %s\n", a.Name, a.Platform.Kind, a.Description)
	}
	return &Response{Kind: ResponseListing, Text: b.String()}
}

var (
	systemQueryVerbs = []string{"how many", "list", "show", "what", "which", "all", "available", "have"}
	systemQueryNouns = []string{"automation", "workflow"}
)

// isSystemQuery reports whether the input asks about capabilities
// rather than requesting work: a query verb paired with "automation"
// or "workflow", or a direct help request.
func isSystemQuery(input string) bool {
	lower := strings.ToLower(strings.TrimSpace(input))
	if lower == "help" || strings.Contains(lower, "what can you do") {
		return true
	}
	noun := false
	for _, n := range systemQueryNouns {
		if strings.Contains(lower, n) {
			noun = true
			break
		}
	}
	if !noun {
		return false
	}
	for _, v := range systemQueryVerbs {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

// plan decides whether the request chains multiple automations and, if
// so, returns the ordered step plans and the workflow name. Zero or one
// plan means single execution.
func (e *Engine) plan(ctx context.Context, input string) ([]stepPlan, string) {
	verdict, err := e.classifier.DetectMultiStep(ctx, input, e.registry)
	if err != nil {
		e.logger.Warn("multi-step detection failed", "error", err)
		verdict = &intent.MultiStep{}
	}

	// Deterministic overrides: "then" always chains; a comma chains
	// unless the input carries an @ (an email list is not a chain).
	override := thenToken.MatchString(input) ||
		(strings.Contains(input, ",") && !strings.Contains(input, "@"))

	if !verdict.IsMultiStep && !override {
		return nil, ""
	}

	var plans []stepPlan
	for i, s := range verdict.Steps {
		name := s.Automation
		if name == "" && i < len(verdict.Automations) {
			name = verdict.Automations[i]
		}
		// A step with no automation name cannot execute; only named
		// steps count toward chaining, so a description-only verdict
		// routes as a single request.
		if name == "" {
			continue
		}
		plans = append(plans, stepPlan{description: s.Description, automation: name, condition: s.Condition})
	}
	if len(plans) == 0 {
		for _, name := range verdict.Automations {
			if name == "" {
				continue
			}
			plans = append(plans, stepPlan{description: name, automation: name})
		}
	}

	// When an override fires and the classifier produced nothing, derive
	// steps by matching each input fragment independently.
	if override && len(plans) == 0 {
		for _, frag := range splitPattern.Split(input, -1) {
			frag = strings.TrimSpace(frag)
			if frag == "" {
				continue
			}
			match, err := e.classifier.MatchAutomation(ctx, frag, e.registry)
			if err != nil || match == nil {
				continue
			}
			plans = append(plans, stepPlan{description: frag, automation: match.Automation})
		}
	}
	return plans, verdict.WorkflowName
}

// runSingle executes the request as one automation.
func (e *Engine) runSingle(ctx context.Context, input string) *Response {
	params, err := e.classifier.ExtractParameters(ctx, input)
	if err != nil {
		e.logger.Warn("parameter extraction failed", "error", err)
		params = intent.Parameters{}
	}
	if len(params) > 0 {
		e.metrics.RecordParameters()
	}

	match, err := e.classifier.MatchAutomation(ctx, input, e.registry)
	if err != nil {
		e.metrics.RecordError(err.Error())
		return &Response{Kind: ResponseError, Text: fmt.Sprintf("routing failed: %v", err)}
	}
	if match == nil {
		// Open-ended request, not a failure: the failed counter stays
		// untouched and nothing is written to the ledger.
		return e.suggest(ctx, input)
	}

	a, ok := e.registry.Resolve(match.Automation)
	if !ok {
		e.metrics.RecordExecution(match.Automation, false)
		e.metrics.RecordError("automation not found: " + match.Automation)
		return &Response{Kind: ResponseError, Text: fmt.Sprintf("automation %q is not registered", match.Automation)}
	}

	start := time.Now()
	res := e.dispatcher.Execute(ctx, a, input, params)
	elapsed := time.Since(start)

	success := res.Status == dispatch.StatusSuccess
	e.metrics.RecordExecution(a.Name, success)
	if success {
		e.capture(res.Data)
	} else {
		e.metrics.RecordError(res.Message)
	}
	status := "success"
	if !success {
		status = "failed"
	}
	e.record(&ledger.ExecutionRecord{
		AutomationName: a.Name,
		UserInput:      input,
		Parameters:     params,
		Status:         status,
		Result:         renderPayload(res),
		Error:          errorMessage(res),
		ExecutionTime:  elapsed,
	})
	e.history.Append(state.Entry{
		Input:      input,
		Kind:       state.KindSingle,
		Automation: a.Name,
		Result:     renderPayload(res),
		Status:     status,
	})

	text := e.summarize(ctx, input, res.Data, res.Message)
	if !success {
		text = fmt.Sprintf("%s failed: %s", a.Name, res.Message)
	}
	return &Response{Kind: ResponseSingle, Text: text, Automation: a.Name, Result: res}
}

// suggest handles the no-match outcome with classifier guidance.
func (e *Engine) suggest(ctx context.Context, input string) *Response {
	guidance, err := e.classifier.Suggest(ctx, input, e.registry)
	if err != nil || strings.TrimSpace(guidance) == "" {
		guidance = "No automation matches that request. Try 'list automations' to see what is available."
	}
	return &Response{Kind: ResponseSuggestion, Text: guidance}
}

// runChain executes two or more planned steps strictly in order.
func (e *Engine) runChain(ctx context.Context, input, name string, plans []stepPlan) *Response {
	if name == "" {
		name = workflowName(plans)
	}
	run := &Run{Name: name}
	start := time.Now()

	for i, p := range plans {
		e.metrics.RecordStep()

		// Gate on the immediately preceding step's payload only.
		if p.condition != "" && len(run.Steps) > 0 {
			prev := run.Steps[len(run.Steps)-1]
			if !evalCondition(p.condition, prev.Payload) {
				run.append(StepResult{
					Ordinal:            i + 1,
					Automation:         p.automation,
					Description:        p.description,
					Outcome:            StepSkipped,
					ConditionEvaluated: p.condition,
				})
				continue
			}
		}

		a, ok := e.registry.Resolve(p.automation)
		if !ok {
			// Unknown automation fails the step but not the chain.
			e.metrics.RecordExecution(p.automation, false)
			e.metrics.RecordError("automation not found: " + p.automation)
			run.append(StepResult{
				Ordinal:            i + 1,
				Automation:         p.automation,
				Description:        p.description,
				Outcome:            StepFailed,
				Message:            "automation not found",
				ConditionEvaluated: p.condition,
			})
			continue
		}

		// Chained steps carry the original input; per-step parameter
		// extraction is deliberately not done.
		res := e.dispatcher.Execute(ctx, a, input, nil)
		if res.Status != dispatch.StatusSuccess {
			e.metrics.RecordExecution(a.Name, false)
			e.metrics.RecordError(res.Message)
			run.append(StepResult{
				Ordinal:            i + 1,
				Automation:         a.Name,
				Description:        p.description,
				Outcome:            StepFailed,
				Payload:            res.Data,
				Message:            res.Message,
				ConditionEvaluated: p.condition,
			})
			// A dispatch error is the one early exit.
			break
		}
		e.metrics.RecordExecution(a.Name, true)
		e.capture(res.Data)
		run.append(StepResult{
			Ordinal:            i + 1,
			Automation:         a.Name,
			Description:        p.description,
			Outcome:            StepSuccess,
			Payload:            res.Data,
			Message:            res.Message,
			ConditionEvaluated: p.condition,
		})
	}

	elapsed := time.Since(start)
	e.metrics.RecordWorkflow(run.Name)

	status := "success"
	if run.Failed > 0 {
		status = "failed"
	}
	names := make([]string, len(run.Steps))
	for i, s := range run.Steps {
		names[i] = s.Automation
	}
	e.record(&ledger.ExecutionRecord{
		AutomationName: run.Name,
		UserInput:      input,
		Parameters:     map[string]any{"steps": names},
		Status:         status,
		Result:         run.render(),
		ExecutionTime:  elapsed,
	})
	e.history.Append(state.Entry{
		Input:  input,
		Kind:   state.KindMultiStep,
		Steps:  names,
		Result: run.render(),
		Status: status,
	})

	text := e.summarize(ctx, input, map[string]any{
		"workflow": run.Name,
		"success":  run.Success,
		"failed":   run.Failed,
		"skipped":  run.Skipped,
	}, run.render())
	return &Response{Kind: ResponseChain, Text: text, Run: run}
}

// summarize asks the classifier for a natural-language analysis and
// degrades to a plain rendering when it cannot produce one.
func (e *Engine) summarize(ctx context.Context, input string, data map[string]any, fallback string) string {
	payload := any(data)
	if data == nil {
		payload = fallback
	}
	text, err := e.classifier.Summarize(ctx, input, payload)
	if err != nil || strings.TrimSpace(text) == "" {
		if fallback != "" {
			return fallback
		}
		raw, _ := json.Marshal(data)
		return string(raw)
	}
	return text
}

// capture persists leads and sent emails found in a successful
// payload, when the recorder supports them. Capture failures are
// logged and never fail the execution.
func (e *Engine) capture(data map[string]any) {
	cr, ok := e.recorder.(contactRecorder)
	if !ok || data == nil {
		return
	}
	if items, ok := data["leads"].([]any); ok {
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			lead := &ledger.Lead{
				Name:     stringField(m, "name"),
				Email:    stringField(m, "email"),
				Company:  stringField(m, "company"),
				Title:    stringField(m, "title"),
				Industry: stringField(m, "industry"),
				Source:   stringField(m, "source"),
			}
			if lead.Email == "" {
				continue
			}
			if _, err := cr.UpsertLead(lead); err != nil {
				e.logger.Warn("lead capture failed", "error", err)
			}
		}
	}
	if items, ok := data["emails"].([]any); ok {
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			email := &ledger.SentEmail{
				Recipient: stringField(m, "recipient"),
				Subject:   stringField(m, "subject"),
				Body:      stringField(m, "body"),
				Status:    stringField(m, "status"),
			}
			if email.Recipient == "" {
				continue
			}
			if err := cr.RecordEmail(email); err != nil {
				e.logger.Warn("email capture failed", "error", err)
			}
		}
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func (e *Engine) record(rec *ledger.ExecutionRecord) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordExecution(rec); err != nil {
		e.logger.Warn("ledger write failed", "error", err)
	}
}

func (r *Run) append(s StepResult) {
	r.Steps = append(r.Steps, s)
	switch s.Outcome {
	case StepSuccess:
		r.Success++
	case StepFailed:
		r.Failed++
	case StepSkipped:
		r.Skipped++
	}
}

// render is the plain-text fallback summary of a run.
func (r *Run) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %s: %d succeeded, %d failed, %d skipped\n", r.Name, r.Success, r.Failed, r.Skipped)
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "  %d. %s [%s]", s.Ordinal, s.Automation, s.Outcome)
		if s.Message != "" {
			fmt.Fprintf(&b, ": %s", s.Message)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func workflowName(plans []stepPlan) string {
	names := make([]string, 0, len(plans))
	for _, p := range plans {
		if p.automation != "" {
			names = append(names, p.automation)
		}
	}
	if len(names) == 0 {
		return "unnamed"
	}
	return strings.Join(names, "_")
}

func renderPayload(res *dispatch.Result) string {
	if res.Data != nil {
		raw, err := json.Marshal(res.Data)
		if err == nil {
			return string(raw)
		}
	}
	return res.Message
}

func errorMessage(res *dispatch.Result) string {
	if res.Status == dispatch.StatusSuccess {
		return ""
	}
	return res.Message
}
