// Package llm implements the downstream explain/fix stage: findings are
// grouped into batches, each batch is one model call, and annotations
// are merged back onto the findings that produced them.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codesweep/codesweep/internal/finding"
)

// Model constants. Explanation batches are simple summarization work,
// so the cost-efficient model is the default.
const (
	ModelDefault = "claude-3-5-haiku-20241022"
)

// GetModel returns the model to use, honoring the CODESWEEP_MODEL
// environment override.
func GetModel() string {
	if model := os.Getenv("CODESWEEP_MODEL"); model != "" {
		return model
	}
	return ModelDefault
}

// Annotation is one finding's explanation and optional fix proposal.
// Index refers to the finding's position within the submitted batch.
type Annotation struct {
	Index       int    `json:"index"`
	Explanation string `json:"explanation"`
	ProposedFix string `json:"proposed_fix,omitempty"`
}

// Explainer produces annotations for a batch of findings. One call is
// one downstream request; the batch stage owns retries and batching.
type Explainer interface {
	ExplainBatch(ctx context.Context, findings []finding.Finding) ([]Annotation, error)
}

// AnthropicExplainer implements Explainer against the Anthropic API.
type AnthropicExplainer struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicExplainer creates an explainer. If apiKey is empty the
// ANTHROPIC_API_KEY environment variable is used.
func NewAnthropicExplainer(apiKey, model string) (*AnthropicExplainer, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}
	if model == "" {
		model = GetModel()
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicExplainer{
		client:    &client,
		model:     model,
		maxTokens: 4096,
	}, nil
}

// batchFinding is the wire shape sent to the model for one finding.
type batchFinding struct {
	Index       int    `json:"index"`
	Kind        string `json:"kind"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	File        string `json:"file"`
	Line        int    `json:"line"`
	Action      string `json:"action,omitempty"`
}

// ExplainBatch implements Explainer: one Messages call per batch, with
// the findings serialized as JSON and the response parsed back into
// annotations.
func (e *AnthropicExplainer) ExplainBatch(ctx context.Context, findings []finding.Finding) ([]Annotation, error) {
	prompt, err := e.buildPrompt(findings)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: int64(e.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	annotations, err := parseAnnotations(responseText)
	if err != nil {
		return nil, fmt.Errorf("parsing explanation response: %w", err)
	}
	return annotations, nil
}

func (e *AnthropicExplainer) buildPrompt(findings []finding.Finding) (string, error) {
	wire := make([]batchFinding, len(findings))
	for i, f := range findings {
		wire[i] = batchFinding{
			Index:       i,
			Kind:        string(f.Kind),
			Severity:    string(f.Severity),
			Description: f.Description,
			File:        f.File,
			Line:        f.Line,
			Action:      f.Action,
		}
	}
	payload, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding batch findings: %w", err)
	}

	return fmt.Sprintf(`You are reviewing static-analysis findings from a codebase scan.

For each finding below, explain in one or two sentences why it matters and,
where a concrete fix is obvious, propose it briefly.

Findings (JSON):
%s

Respond with ONLY a JSON array, one object per finding:
[{"index": 0, "explanation": "...", "proposed_fix": "..."}]

The "index" must match the finding's index above. Omit "proposed_fix" when
no concrete fix is apparent. No markdown, no commentary.`, payload), nil
}

// parseAnnotations extracts the JSON array from the model's reply,
// tolerating stray prose or code fences around it.
func parseAnnotations(responseText string) ([]Annotation, error) {
	start := strings.Index(responseText, "[")
	end := strings.LastIndex(responseText, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in response: %s", truncate(responseText, 200))
	}

	var annotations []Annotation
	if err := json.Unmarshal([]byte(responseText[start:end+1]), &annotations); err != nil {
		return nil, fmt.Errorf("invalid annotation JSON: %w", err)
	}
	return annotations, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
