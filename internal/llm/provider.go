package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/raine/review-moderator/internal/prompt"
	"github.com/raine/review-moderator/internal/schema"
)

// OutputMode declares how a provider is expected to return JSON.
type OutputMode string

const (
	// OutputStructured asks the provider to enforce the schema with its
	// structured-output feature. The reply is expected to be bare JSON.
	OutputStructured OutputMode = "structured"
	// OutputText sends the schema as prompt instructions only and extracts
	// a JSON object from free text afterwards.
	OutputText OutputMode = "text"
)

// ParseOutputMode parses a configured output mode name.
func ParseOutputMode(s string) (OutputMode, error) {
	switch OutputMode(strings.ToLower(strings.TrimSpace(s))) {
	case OutputStructured, "":
		return OutputStructured, nil
	case OutputText:
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output mode %q (use structured or text)", s)
	}
}

// Request is a single model call.
type Request struct {
	// Flow names the calling flow for logging.
	Flow    string
	Payload prompt.Payload
	// Schema is the expected reply shape. Nil means plain text.
	Schema *schema.Schema
	Mode   OutputMode
}

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// Response is the raw model reply.
type Response struct {
	// Text is the reply body. In text mode it has already been narrowed
	// to the JSON object it contains.
	Text  string
	Model string
	Usage Usage
}

// Provider calls an external text/vision model.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Name identifies the provider and model in logs.
	Name() string
}

func calculateCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting. When no object is found the text is
// returned unchanged so the caller's schema check reports it.
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return text
	}
	return text[start : end+1]
}

// schemaInstructions renders a schema as prompt text for text mode.
func schemaInstructions(s *schema.Schema) string {
	var sb strings.Builder
	sb.WriteString("\n\nRespond ONLY with a JSON object, no markdown or other text, with these fields:\n")
	for _, name := range s.Ordering() {
		prop := s.Properties[name]
		fmt.Fprintf(&sb, "- %s (%s)", name, describeType(prop))
		if prop.Description != "" {
			fmt.Fprintf(&sb, ": %s", prop.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func describeType(s *schema.Schema) string {
	if s.Type == schema.TypeArray && s.Items != nil {
		return "array of " + string(s.Items.Type)
	}
	return string(s.Type)
}
