package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/raine/review-moderator/internal/schema"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// ErrEmptyResponse is returned when the model replies with no content,
// e.g. when a safety filter blocks the candidate.
var ErrEmptyResponse = errors.New("empty response from model")

// Gemini pricing (USD per million tokens)
var geminiPricing = map[string]struct{ input, output float64 }{
	"gemini-2.5-flash":       {0.30, 2.50},
	"gemini-2.5-flash-lite":  {0.10, 0.40},
	"gemini-2.5-pro":         {1.25, 10.00},
	"gemini-3-flash-preview": {0.50, 3.00},
}

// GeminiConfig configures a GeminiProvider.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string
}

// GeminiProvider uses Google's Gemini API for multimodal prompts.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a new Gemini-based provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Name implements Provider.
func (g *GeminiProvider) Name() string {
	return "gemini/" + g.model
}

// Generate implements Provider.
func (g *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	parts, err := geminiParts(req)
	if err != nil {
		return nil, err
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	var config *genai.GenerateContentConfig
	if req.Schema != nil {
		switch req.Mode {
		case OutputStructured:
			config = &genai.GenerateContentConfig{
				ResponseMIMEType: "application/json",
				ResponseSchema:   toGeminiSchema(req.Schema),
			}
		case OutputText:
			config = &genai.GenerateContentConfig{ResponseMIMEType: "text/plain"}
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	text := result.Text()
	if req.Schema != nil && req.Mode == OutputText {
		text = extractJSONObject(text)
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		if price, ok := geminiPricing[g.model]; ok {
			usage.CostUSD = calculateCost(usage.InputTokens, usage.OutputTokens, price.input, price.output)
		}
	}

	log.Info().
		Str("model", g.model).
		Str("flow", req.Flow).
		Int("imageCount", len(req.Payload.Media())).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("moderation llm call")

	return &Response{Text: text, Model: g.model, Usage: usage}, nil
}

// geminiParts converts a rendered payload to Gemini parts. Media is sent
// inline; the SDK needs raw bytes, so the base64 payload is decoded here.
func geminiParts(req *Request) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(req.Payload.Parts)+1)
	for _, p := range req.Payload.Parts {
		if !p.IsMedia() {
			parts = append(parts, genai.NewPartFromText(p.Text))
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.Media.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode inline media: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, p.Media.MIMEType))
	}
	if req.Schema != nil && req.Mode == OutputText {
		parts = append(parts, genai.NewPartFromText(schemaInstructions(req.Schema)))
	}
	return parts, nil
}

func toGeminiSchema(s *schema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        geminiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Items:       toGeminiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGeminiSchema(prop)
		}
		out.PropertyOrdering = s.Ordering()
	}
	return out
}

func geminiType(t schema.Type) genai.Type {
	switch t {
	case schema.TypeObject:
		return genai.TypeObject
	case schema.TypeArray:
		return genai.TypeArray
	case schema.TypeString:
		return genai.TypeString
	case schema.TypeBoolean:
		return genai.TypeBoolean
	case schema.TypeInteger:
		return genai.TypeInteger
	case schema.TypeNumber:
		return genai.TypeNumber
	default:
		return genai.TypeUnspecified
	}
}

var _ Provider = (*GeminiProvider)(nil)
