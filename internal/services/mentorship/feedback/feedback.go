// Package feedback generates AI "fog check" feedback: one observation and
// one strategic question reflecting a user's crisis protocol and weekly
// self-report. Generation is a templated prompt, a strict JSON parse, and a
// fixed fallback pair when the model output cannot be parsed.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ascentlabs/ascentledger/internal/platform/timeouts"
)

// Provider is a hosted text-generation model.
type Provider interface {
	// GenerateText renders a single completion for the prompt.
	GenerateText(ctx context.Context, prompt string) (string, error)
	// Name identifies the provider in logs.
	Name() string
}

// Context carries the protocol and self-report fields rendered into the
// prompt.
type Context struct {
	CrisisType         string
	BurdenToCut        string
	OxygenSource       string
	BurdenCut          bool
	OxygenConnected    bool
	WeekNumber         int
	OxygenLevelCurrent *int
	Notes              string
}

// Feedback is the parsed model output.
type Feedback struct {
	Observation       string `json:"observation"`
	StrategicQuestion string `json:"strategicQuestion"`
}

// Fallback pair used whenever the model output cannot be parsed. The
// surrounding request must never fail because of feedback generation.
const (
	FallbackObservation       = "You showed up this week, and that is the foundation everything else builds on."
	FallbackStrategicQuestion = "What is one small thing you could do this week to protect your oxygen source?"
)

// Generator renders prompts and parses model output through a provider.
type Generator struct {
	provider Provider
}

// New builds a Generator over a provider. A nil provider disables generation.
func New(provider Provider) *Generator {
	return &Generator{provider: provider}
}

// Enabled reports whether a provider is configured.
func (g *Generator) Enabled() bool {
	return g != nil && g.provider != nil
}

// ProviderName identifies the configured provider, or "disabled".
func (g *Generator) ProviderName() string {
	if !g.Enabled() {
		return "disabled"
	}
	return g.provider.Name()
}

// Generate calls the model and parses its output. A transport failure is
// returned for the caller to log; malformed output degrades to the fixed
// fallback pair without error. The provider call is capped at
// timeouts.LLMRequest so a hung model cannot hold the surrounding request
// open.
func (g *Generator) Generate(ctx context.Context, fc Context) (Feedback, error) {
	if !g.Enabled() {
		return Feedback{}, fmt.Errorf("feedback generation is disabled")
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.LLMRequest)
	defer cancel()
	raw, err := g.provider.GenerateText(ctx, BuildPrompt(fc))
	if err != nil {
		return Feedback{}, fmt.Errorf("%s generate: %w", g.provider.Name(), err)
	}
	return ParseFeedback(raw), nil
}

// BuildPrompt renders the fixed fog-check prompt for a context.
func BuildPrompt(fc Context) string {
	var b strings.Builder
	b.WriteString("You are a direct, grounded mentor reviewing a weekly recovery check-in.\n\n")
	fmt.Fprintf(&b, "Crisis type: %s\n", fc.CrisisType)
	fmt.Fprintf(&b, "Committed to cutting: %s (done: %t)\n", fc.BurdenToCut, fc.BurdenCut)
	fmt.Fprintf(&b, "Committed oxygen source: %s (connected: %t)\n", fc.OxygenSource, fc.OxygenConnected)
	fmt.Fprintf(&b, "Week number: %d\n", fc.WeekNumber)
	if fc.OxygenLevelCurrent != nil {
		fmt.Fprintf(&b, "Current oxygen level (1-10): %d\n", *fc.OxygenLevelCurrent)
	} else {
		b.WriteString("Current oxygen level (1-10): not reported\n")
	}
	if strings.TrimSpace(fc.Notes) != "" {
		fmt.Fprintf(&b, "Notes from the user: %s\n", strings.TrimSpace(fc.Notes))
	}
	b.WriteString("\nRespond with ONLY a JSON object, no prose and no markdown, with exactly two string fields:\n")
	b.WriteString(`{"observation": "one concrete observation about this week, two sentences max", "strategicQuestion": "one forward-looking question, one sentence"}`)
	b.WriteString("\n")
	return b.String()
}

// ParseFeedback extracts the two feedback fields from raw model output.
// Models wrap JSON in markdown fences often enough that fences are stripped
// first. Malformed output or empty fields yield the fallback pair.
func ParseFeedback(raw string) Feedback {
	cleaned := trimCodeFences(raw)

	var parsed Feedback
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Feedback{
			Observation:       FallbackObservation,
			StrategicQuestion: FallbackStrategicQuestion,
		}
	}
	parsed.Observation = strings.TrimSpace(parsed.Observation)
	parsed.StrategicQuestion = strings.TrimSpace(parsed.StrategicQuestion)
	if parsed.Observation == "" || parsed.StrategicQuestion == "" {
		return Feedback{
			Observation:       FallbackObservation,
			StrategicQuestion: FallbackStrategicQuestion,
		}
	}
	return parsed
}

// trimCodeFences strips a surrounding markdown code fence, with or without a
// language tag.
func trimCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```")
	if idx := strings.Index(cleaned, "\n"); idx >= 0 && !strings.HasPrefix(cleaned, "{") {
		// Drop a language tag like "json" on the fence line.
		cleaned = cleaned[idx+1:]
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}
