package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/raine/review-moderator/internal/schema"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI pricing (USD per million tokens)
var openaiPricing = map[string]struct{ input, output float64 }{
	"gpt-4o-mini": {0.15, 0.60},
	"gpt-4o":      {2.50, 10.00},
	"gpt-4.1":     {2.00, 8.00},
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL points at any OpenAI-compatible endpoint, e.g. a local
	// vision model server. Empty means api.openai.com.
	BaseURL string
}

// OpenAIProvider uses the OpenAI chat completions API with image parts.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI-based provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Name implements Provider.
func (o *OpenAIProvider) Name() string {
	return "openai/" + o.model
}

// Generate implements Provider.
func (o *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: openaiParts(req),
			},
		},
	}

	if req.Schema != nil {
		switch req.Mode {
		case OutputStructured:
			chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   req.Flow,
					Schema: toJSONSchema(req.Schema),
					Strict: true,
				},
			}
		case OutputText:
			chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	text := resp.Choices[0].Message.Content
	if req.Schema != nil && req.Mode == OutputText {
		text = extractJSONObject(text)
	}

	usage := Usage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
		TotalTokens:  int64(resp.Usage.TotalTokens),
	}
	if price, ok := openaiPricing[o.model]; ok {
		usage.CostUSD = calculateCost(usage.InputTokens, usage.OutputTokens, price.input, price.output)
	}

	log.Info().
		Str("model", o.model).
		Str("flow", req.Flow).
		Int("imageCount", len(req.Payload.Media())).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("moderation llm call")

	return &Response{Text: text, Model: o.model, Usage: usage}, nil
}

// openaiParts converts a rendered payload to chat message parts. Images
// are passed through as data URLs, which the API accepts directly.
func openaiParts(req *Request) []openai.ChatMessagePart {
	parts := make([]openai.ChatMessagePart, 0, len(req.Payload.Parts)+1)
	for _, p := range req.Payload.Parts {
		if p.IsMedia() {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    p.Media.String(),
					Detail: openai.ImageURLDetailAuto,
				},
			})
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: p.Text,
		})
	}
	if req.Schema != nil && req.Mode == OutputText {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: schemaInstructions(req.Schema),
		})
	}
	return parts
}

// toJSONSchema converts a schema for strict structured output, which
// requires additionalProperties to be false on every object.
func toJSONSchema(s *schema.Schema) *jsonschema.Definition {
	def := &jsonschema.Definition{
		Type:        jsonschema.DataType(s.Type),
		Description: s.Description,
		Required:    s.Required,
	}
	if s.Items != nil {
		def.Items = toJSONSchema(s.Items)
	}
	if s.Type == schema.TypeObject {
		def.Properties = make(map[string]jsonschema.Definition, len(s.Properties))
		for name, prop := range s.Properties {
			def.Properties[name] = *toJSONSchema(prop)
		}
		def.AdditionalProperties = false
	}
	return def
}

var _ Provider = (*OpenAIProvider)(nil)
