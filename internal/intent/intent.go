// Package intent is the language-understanding boundary: everything the
// orchestrator needs from a model backend is expressed as the Classifier
// interface, so routing logic stays deterministic and testable with a
// scripted fake.
package intent

import (
	"context"

	"github.com/relayhq/relay/internal/registry"
)

// Parameters is the loosely-typed bag extracted from free text. Every
// field is optional; consumers must treat each key as possibly absent.
type Parameters map[string]any

// Match is a single best-matching automation for a request.
type Match struct {
	Automation string `json:"automation"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

// Step is one proposed step of a multi-step request. Condition, when
// set, gates the step on the previous step's result.
type Step struct {
	Description string `json:"description"`
	Automation  string `json:"automation,omitempty"`
	Condition   string `json:"condition,omitempty"`
}

// MultiStep is the classifier's verdict on whether a request chains
// several automations.
type MultiStep struct {
	IsMultiStep  bool     `json:"is_multi_step"`
	WorkflowName string   `json:"workflow_name,omitempty"`
	Steps        []Step   `json:"steps,omitempty"`
	Automations  []string `json:"automations,omitempty"`
}

// Classifier is the pluggable language-understanding capability. The
// live implementation prompts an LLM; tests substitute a scripted fake.
type Classifier interface {
	// ExtractParameters pulls structured parameters out of free text.
	// Best effort: an unparseable model response yields an empty bag,
	// not an error.
	ExtractParameters(ctx context.Context, text string) (Parameters, error)

	// MatchAutomation returns the best-matching automation, or nil when
	// nothing fits. A nil match is a normal outcome, not an error.
	MatchAutomation(ctx context.Context, text string, reg *registry.Registry) (*Match, error)

	// DetectMultiStep decides whether the request chains several
	// automations. A malformed model response degrades to a
	// single-step verdict.
	DetectMultiStep(ctx context.Context, text string, reg *registry.Registry) (*MultiStep, error)

	// Suggest produces 2-3 relevant automation suggestions with
	// rationale for a request nothing matched.
	Suggest(ctx context.Context, text string, reg *registry.Registry) (string, error)

	// Summarize turns a raw execution result into a short
	// natural-language analysis for the user.
	Summarize(ctx context.Context, userInput string, result any) (string, error)
}
