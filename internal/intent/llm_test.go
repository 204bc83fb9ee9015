package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/relayhq/relay/internal/provider"
	"github.com/relayhq/relay/internal/registry"
)

// fakeProvider replays scripted completions in order.
type fakeProvider struct {
	replies []string
	err     error
	calls   []*provider.CompletionRequest
}

func (f *fakeProvider) ID() string { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return &provider.CompletionResponse{Content: ""}, nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return &provider.CompletionResponse{Content: reply}, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Parse([]byte(`
- name: enrich_leads
  description: Find and enrich leads
  webhook_path: /webhook/enrich-leads
- name: generate_emails
  description: Generate outreach emails
  platform: script
  script_name: generate_emails
`))
	if err != nil {
		t.Fatalf("parse registry: %v", err)
	}
	return reg
}

func TestExtractParameters(t *testing.T) {
	fake := &fakeProvider{replies: []string{`{"count": 50, "industry": "fintech"}`}}
	c := NewLLMClassifier(fake, nil)

	params, err := c.ExtractParameters(context.Background(), "find 50 fintech leads")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params["industry"] != "fintech" {
		t.Errorf("industry = %v, want fintech", params["industry"])
	}
	if params["count"] != float64(50) {
		t.Errorf("count = %v, want 50", params["count"])
	}
}

func TestExtractParametersToleratesFencedJSON(t *testing.T) {
	fake := &fakeProvider{replies: []string{"Here you go:\n```json\n{\"count\": 5}\n```"}}
	c := NewLLMClassifier(fake, nil)

	params, err := c.ExtractParameters(context.Background(), "five leads")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params["count"] != float64(5) {
		t.Errorf("count = %v, want 5", params["count"])
	}
}

func TestExtractParametersDegradesToEmptyBag(t *testing.T) {
	fake := &fakeProvider{replies: []string{"I could not find any parameters."}}
	c := NewLLMClassifier(fake, nil)

	params, err := c.ExtractParameters(context.Background(), "do something")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params) != 0 {
		t.Errorf("expected empty bag, got %v", params)
	}
}

func TestExtractParametersPropagatesProviderError(t *testing.T) {
	fake := &fakeProvider{err: errors.New("upstream down")}
	c := NewLLMClassifier(fake, nil)

	if _, err := c.ExtractParameters(context.Background(), "anything"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMatchAutomation(t *testing.T) {
	fake := &fakeProvider{replies: []string{"enrich_leads"}}
	c := NewLLMClassifier(fake, nil)

	match, err := c.MatchAutomation(context.Background(), "find leads", testRegistry(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil || match.Automation != "enrich_leads" {
		t.Fatalf("match = %+v, want enrich_leads", match)
	}
	if match.Confidence != 90 {
		t.Errorf("confidence = %d, want 90", match.Confidence)
	}
}

func TestMatchAutomationNone(t *testing.T) {
	fake := &fakeProvider{replies: []string{"NONE"}}
	c := NewLLMClassifier(fake, nil)

	match, err := c.MatchAutomation(context.Background(), "order a pizza", testRegistry(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match, got %+v", match)
	}
}

func TestMatchAutomationUnknownNameIsNoMatch(t *testing.T) {
	fake := &fakeProvider{replies: []string{"send_faxes"}}
	c := NewLLMClassifier(fake, nil)

	match, err := c.MatchAutomation(context.Background(), "send faxes", testRegistry(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("hallucinated name should not match, got %+v", match)
	}
}

func TestMatchAutomationTrimsQuotes(t *testing.T) {
	fake := &fakeProvider{replies: []string{`"generate_emails"`}}
	c := NewLLMClassifier(fake, nil)

	match, err := c.MatchAutomation(context.Background(), "write emails", testRegistry(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil || match.Automation != "generate_emails" {
		t.Fatalf("match = %+v, want generate_emails", match)
	}
}

func TestDetectMultiStep(t *testing.T) {
	fake := &fakeProvider{replies: []string{`{
		"is_multi_step": true,
		"workflow_name": "lead_outreach",
		"steps": [
			{"description": "find 50 leads", "automation": "enrich_leads"},
			{"description": "email them", "automation": "generate_emails", "condition": "leads_found > 0"}
		],
		"automations": ["enrich_leads", "generate_emails"]
	}`}}
	c := NewLLMClassifier(fake, nil)

	verdict, err := c.DetectMultiStep(context.Background(), "find 50 leads then email them", testRegistry(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.IsMultiStep {
		t.Fatal("expected multi-step verdict")
	}
	if len(verdict.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(verdict.Steps))
	}
	if verdict.Steps[1].Condition != "leads_found > 0" {
		t.Errorf("condition = %q", verdict.Steps[1].Condition)
	}
}

func TestDetectMultiStepAcceptsBareStringSteps(t *testing.T) {
	fake := &fakeProvider{replies: []string{`{"is_multi_step": true, "steps": ["find leads", "email them"]}`}}
	c := NewLLMClassifier(fake, nil)

	verdict, err := c.DetectMultiStep(context.Background(), "find leads and email them", testRegistry(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(verdict.Steps) != 2 || verdict.Steps[0].Description != "find leads" {
		t.Fatalf("steps = %+v", verdict.Steps)
	}
}

func TestDetectMultiStepDegradesOnGarbage(t *testing.T) {
	fake := &fakeProvider{replies: []string{"definitely multi step, trust me"}}
	c := NewLLMClassifier(fake, nil)

	verdict, err := c.DetectMultiStep(context.Background(), "do things", testRegistry(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.IsMultiStep {
		t.Error("garbage reply must degrade to single-step")
	}
}

func TestSuggestReturnsGuidance(t *testing.T) {
	fake := &fakeProvider{replies: []string{"Try enrich_leads: it finds leads for you."}}
	c := NewLLMClassifier(fake, nil)

	got, err := c.Suggest(context.Background(), "help with leads", testRegistry(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == "" {
		t.Error("expected non-empty guidance")
	}
}

func TestSummarizeIncludesResultInPrompt(t *testing.T) {
	fake := &fakeProvider{replies: []string{"Found 12 leads in fintech."}}
	c := NewLLMClassifier(fake, nil)

	got, err := c.Summarize(context.Background(), "find leads", map[string]any{"leads_found": 12})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Found 12 leads in fintech." {
		t.Errorf("summary = %q", got)
	}
	last := fake.calls[len(fake.calls)-1]
	userMsg := last.Messages[len(last.Messages)-1].Content
	if want := `"leads_found":12`; !strings.Contains(userMsg, want) {
		t.Errorf("prompt missing result payload: %q", userMsg)
	}
}
