package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/relayhq/relay/internal/provider"
	"github.com/relayhq/relay/internal/registry"
)

// jsonBlock grabs the outermost JSON object from a model reply that may
// wrap it in prose or a code fence.
var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

// LLMClassifier implements Classifier on top of a chat-completions
// provider.
type LLMClassifier struct {
	provider provider.Provider
	logger   *slog.Logger
}

// NewLLMClassifier wires a Classifier to the given provider.
func NewLLMClassifier(p provider.Provider, logger *slog.Logger) *LLMClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMClassifier{provider: p, logger: logger.With("component", "intent")}
}

func (c *LLMClassifier) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := c.provider.Complete(ctx, &provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: system},
			{Role: provider.RoleUser, Content: user},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func describeAutomations(reg *registry.Registry) string {
	var b strings.Builder
	for _, a := range reg.List() {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Description)
	}
	return b.String()
}

// ExtractParameters asks the model for a flat JSON object of parameters
// found in the text. Unparseable replies degrade to an empty bag.
func (c *LLMClassifier) ExtractParameters(ctx context.Context, text string) (Parameters, error) {
	const system = "You extract structured parameters from automation requests. " +
		"Reply with a single flat JSON object. Use keys such as \"count\", \"industry\", " +
		"\"location\", \"company_size\", \"recipient\", \"subject\", \"date\", \"time\" when present. " +
		"Omit keys the text does not mention. Reply with {} when nothing is extractable."

	raw, err := c.complete(ctx, system, text, 512)
	if err != nil {
		return nil, err
	}
	block := jsonBlock.FindString(raw)
	if block == "" {
		c.logger.Debug("no JSON in parameter reply", "reply", raw)
		return Parameters{}, nil
	}
	var params Parameters
	if err := json.Unmarshal([]byte(block), &params); err != nil {
		c.logger.Debug("unparseable parameter reply", "error", err)
		return Parameters{}, nil
	}
	return params, nil
}

// MatchAutomation asks the model to pick one automation by name, or
// NONE. Replies that name an unknown automation count as no match.
func (c *LLMClassifier) MatchAutomation(ctx context.Context, text string, reg *registry.Registry) (*Match, error) {
	system := "You route requests to named automations. Available automations:\n" +
		describeAutomations(reg) +
		"\nReply with exactly one automation name from the list, or NONE if no automation fits. " +
		"Reply with the name only, nothing else."

	raw, err := c.complete(ctx, system, text, 64)
	if err != nil {
		return nil, err
	}
	name := strings.Trim(strings.TrimSpace(raw), "\"'` ")
	if name == "" || strings.EqualFold(name, "NONE") {
		return nil, nil
	}
	if _, ok := reg.Resolve(name); !ok {
		c.logger.Debug("model named unknown automation", "name", name)
		return nil, nil
	}
	return &Match{Automation: name, Confidence: 90, Reason: "Direct match"}, nil
}

// multiStepReply is the wire shape of the model's multi-step verdict.
// Steps may arrive as bare strings or as objects, so they land in
// json.RawMessage first.
type multiStepReply struct {
	IsMultiStep  bool              `json:"is_multi_step"`
	WorkflowName string            `json:"workflow_name"`
	Steps        []json.RawMessage `json:"steps"`
	Automations  []string          `json:"automations"`
}

// DetectMultiStep asks whether the request chains several automations.
// Malformed replies degrade to a single-step verdict rather than error.
func (c *LLMClassifier) DetectMultiStep(ctx context.Context, text string, reg *registry.Registry) (*MultiStep, error) {
	system := "You analyze whether an automation request needs multiple automations run in sequence.\n" +
		"Available automations:\n" + describeAutomations(reg) +
		"\nReply with JSON only: {\"is_multi_step\": bool, \"workflow_name\": string, " +
		"\"steps\": [{\"description\": string, \"automation\": string, \"condition\": string}], " +
		"\"automations\": [string]}.\n" +
		"A condition gates a step on the previous step's result and has the form " +
		"\"field op literal\" with op one of > < == !=. Leave condition empty when the step is unconditional."

	raw, err := c.complete(ctx, system, text, 1024)
	if err != nil {
		return nil, err
	}
	block := jsonBlock.FindString(raw)
	if block == "" {
		return &MultiStep{IsMultiStep: false}, nil
	}
	var reply multiStepReply
	if err := json.Unmarshal([]byte(block), &reply); err != nil {
		c.logger.Debug("unparseable multi-step reply", "error", err)
		return &MultiStep{IsMultiStep: false}, nil
	}
	out := &MultiStep{
		IsMultiStep:  reply.IsMultiStep,
		WorkflowName: reply.WorkflowName,
		Automations:  reply.Automations,
	}
	for _, rawStep := range reply.Steps {
		out.Steps = append(out.Steps, decodeStep(rawStep))
	}
	return out, nil
}

// decodeStep accepts a step as either a bare string or an object.
func decodeStep(raw json.RawMessage) Step {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Step{Description: s}
	}
	var step Step
	if err := json.Unmarshal(raw, &step); err != nil {
		return Step{Description: strings.Trim(string(raw), "\"")}
	}
	return step
}

// Suggest produces short guidance when nothing matched: a few relevant
// automations with one-line rationale each.
func (c *LLMClassifier) Suggest(ctx context.Context, text string, reg *registry.Registry) (string, error) {
	system := "No automation directly matches the user's request. Available automations:\n" +
		describeAutomations(reg) +
		"\nSuggest the 2-3 most relevant automations with a one-line reason each. " +
		"Be brief and concrete."

	return c.complete(ctx, system, text, 512)
}

// Summarize turns a raw execution result into a short analysis.
func (c *LLMClassifier) Summarize(ctx context.Context, userInput string, result any) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", result))
	}
	const system = "You summarize automation results for the user. Two or three sentences, " +
		"concrete numbers when present, no preamble."

	user := fmt.Sprintf("Request: %s\nResult: %s", userInput, payload)
	return c.complete(ctx, system, user, 512)
}
