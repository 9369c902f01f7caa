package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raine/review-moderator/internal/prompt"
	"github.com/raine/review-moderator/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var verdictSchema = &schema.Schema{
	Type: schema.TypeObject,
	Properties: map[string]*schema.Schema{
		"approved": {Type: schema.TypeBoolean, Description: "Whether the image is approved."},
		"reason":   {Type: schema.TypeString, Description: "Explanation for the decision."},
	},
	Required:         []string{"approved", "reason"},
	PropertyOrdering: []string{"approved", "reason"},
}

var testTemplate = prompt.Must("test", `
	Product: {{.Details}}
	{{range .Images}}{{media .}}{{end}}
	Customer: {{media .Customer}}
`)

func testRequest(t *testing.T, mode OutputMode) *Request {
	t.Helper()
	payload, err := testTemplate.Render(struct {
		Details  string
		Images   []string
		Customer string
	}{
		Details:  "Red cotton T-shirt",
		Images:   []string{"data:image/png;base64,QQ==", "data:image/jpeg;base64,Qg=="},
		Customer: "data:image/png;base64,Qw==",
	})
	require.NoError(t, err)
	return &Request{Flow: "moderateReviewImage", Payload: payload, Schema: verdictSchema, Mode: mode}
}

func TestParseOutputMode(t *testing.T) {
	mode, err := ParseOutputMode("")
	require.NoError(t, err)
	assert.Equal(t, OutputStructured, mode)

	mode, err = ParseOutputMode(" TEXT ")
	require.NoError(t, err)
	assert.Equal(t, OutputText, mode)

	_, err = ParseOutputMode("xml")
	assert.Error(t, err)
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, extractJSONObject("```json\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": {"b": 2}}`, extractJSONObject(`Sure! {"a": {"b": 2}} Hope this helps.`))
	assert.Equal(t, "no json here", extractJSONObject("  no json here "))
}

func TestSchemaInstructions(t *testing.T) {
	got := schemaInstructions(verdictSchema)
	assert.Contains(t, got, "Respond ONLY with a JSON object")
	assert.Contains(t, got, "- approved (boolean): Whether the image is approved.\n- reason (string): Explanation for the decision.")
}

func TestCalculateCost(t *testing.T) {
	assert.InDelta(t, 0.8, calculateCost(1_000_000, 100_000, 0.30, 5.00), 1e-9)
}

func geminiServer(t *testing.T, reply string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			assert.NoError(t, json.Unmarshal(body, captured))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": reply}},
				}},
			},
			"usageMetadata": map[string]any{
				"promptTokenCount":     1000,
				"candidatesTokenCount": 20,
				"totalTokenCount":      1020,
			},
		})
	}))
}

func TestGeminiProvider_Generate(t *testing.T) {
	var captured map[string]any
	ts := geminiServer(t, `{"approved": false, "reason": "Image does not match purchased product"}`, &captured)
	defer ts.Close()

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: ts.URL})
	require.NoError(t, err)
	assert.Equal(t, "gemini/"+DefaultGeminiModel, p.Name())

	resp, err := p.Generate(context.Background(), testRequest(t, OutputStructured))
	require.NoError(t, err)
	assert.Equal(t, `{"approved": false, "reason": "Image does not match purchased product"}`, resp.Text)
	assert.Equal(t, int64(1000), resp.Usage.InputTokens)
	assert.Equal(t, int64(20), resp.Usage.OutputTokens)
	assert.Greater(t, resp.Usage.CostUSD, 0.0)

	// Text and images are sent interleaved, in render order.
	contents := captured["contents"].([]any)
	require.Len(t, contents, 1)
	parts := contents[0].(map[string]any)["parts"].([]any)
	var mediaData []string
	for _, part := range parts {
		if inline, ok := part.(map[string]any)["inlineData"].(map[string]any); ok {
			mediaData = append(mediaData, inline["data"].(string))
		}
	}
	assert.Equal(t, []string{"QQ==", "Qg==", "Qw=="}, mediaData)
}

func TestGeminiProvider_TextModeExtractsJSON(t *testing.T) {
	ts := geminiServer(t, "```json\n{\"approved\": true, \"reason\": \"ok\"}\n```", nil)
	defer ts.Close()

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: ts.URL})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), testRequest(t, OutputText))
	require.NoError(t, err)
	assert.Equal(t, `{"approved": true, "reason": "ok"}`, resp.Text)
}

func TestGeminiProvider_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"code": 503, "message": "overloaded", "status": "UNAVAILABLE"}}`))
	}))
	defer ts.Close()

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), testRequest(t, OutputStructured))
	assert.ErrorContains(t, err, "failed to generate content")
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}

func TestToGeminiSchema(t *testing.T) {
	s := toGeminiSchema(&schema.Schema{
		Type: schema.TypeObject,
		Properties: map[string]*schema.Schema{
			"explanations": {Type: schema.TypeArray, Items: &schema.Schema{Type: schema.TypeString}},
		},
		Required: []string{"explanations"},
	})
	assert.Equal(t, "OBJECT", string(s.Type))
	assert.Equal(t, []string{"explanations"}, s.Required)
	assert.Equal(t, []string{"explanations"}, s.PropertyOrdering)
	assert.Equal(t, "ARRAY", string(s.Properties["explanations"].Type))
	assert.Equal(t, "STRING", string(s.Properties["explanations"].Items.Type))
}

func openaiServer(t *testing.T, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if captured != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}},
			},
			"usage": map[string]any{"prompt_tokens": 900, "completion_tokens": 30, "total_tokens": 930},
		})
	}))
}

func TestOpenAIProvider_Generate(t *testing.T) {
	var captured map[string]any
	ts := openaiServer(t, `{"approved": true, "reason": "Matches the product"}`, &captured)
	defer ts.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: ts.URL + "/v1"})
	require.NoError(t, err)
	assert.Equal(t, "openai/"+DefaultOpenAIModel, p.Name())

	resp, err := p.Generate(context.Background(), testRequest(t, OutputStructured))
	require.NoError(t, err)
	assert.Equal(t, `{"approved": true, "reason": "Matches the product"}`, resp.Text)
	assert.Equal(t, int64(900), resp.Usage.InputTokens)

	format := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	jsonSchema := format["json_schema"].(map[string]any)
	assert.Equal(t, "moderateReviewImage", jsonSchema["name"])
	assert.Equal(t, false, jsonSchema["schema"].(map[string]any)["additionalProperties"])

	messages := captured["messages"].([]any)
	parts := messages[0].(map[string]any)["content"].([]any)
	var urls []string
	for _, part := range parts {
		if img, ok := part.(map[string]any)["image_url"].(map[string]any); ok {
			urls = append(urls, img["url"].(string))
		}
	}
	assert.Equal(t, []string{
		"data:image/png;base64,QQ==",
		"data:image/jpeg;base64,Qg==",
		"data:image/png;base64,Qw==",
	}, urls)
}

func TestOpenAIProvider_EmptyResponse(t *testing.T) {
	ts := openaiServer(t, "", nil)
	defer ts.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: ts.URL + "/v1"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), testRequest(t, OutputStructured))
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIProvider_TextMode(t *testing.T) {
	var captured map[string]any
	ts := openaiServer(t, "Here you go: {\"approved\": true, \"reason\": \"ok\"}", &captured)
	defer ts.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: ts.URL + "/v1", Model: "local-vision"})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), testRequest(t, OutputText))
	require.NoError(t, err)
	assert.Equal(t, `{"approved": true, "reason": "ok"}`, resp.Text)
	assert.Equal(t, 0.0, resp.Usage.CostUSD)
	assert.Equal(t, "json_object", captured["response_format"].(map[string]any)["type"])
}
