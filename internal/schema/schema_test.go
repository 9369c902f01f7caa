package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var verdictSchema = &Schema{
	Type: TypeObject,
	Properties: map[string]*Schema{
		"approved": {Type: TypeBoolean},
		"reason":   {Type: TypeString},
	},
	Required:         []string{"approved", "reason"},
	PropertyOrdering: []string{"approved", "reason"},
}

var listSchema = &Schema{
	Type: TypeObject,
	Properties: map[string]*Schema{
		"explanations": {Type: TypeArray, Items: &Schema{Type: TypeString}},
	},
	Required: []string{"explanations"},
}

func TestValidate_Accepts(t *testing.T) {
	assert.NoError(t, verdictSchema.Validate([]byte(`{"approved": false, "reason": "blurred"}`)))
	assert.NoError(t, verdictSchema.Validate([]byte(`{"approved": true, "reason": "", "extra": 1}`)))
	assert.NoError(t, verdictSchema.Validate([]byte("  {\"approved\": true, \"reason\": \"ok\"}\n")))
	assert.NoError(t, listSchema.Validate([]byte(`{"explanations": []}`)))
	assert.NoError(t, listSchema.Validate([]byte(`{"explanations": ["a", "b", "c"]}`)))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		schema *Schema
		raw    string
		path   string
		reason string
	}{
		{"malformed", verdictSchema, `{"approved": true,`, "", "malformed JSON"},
		{"trailing data", verdictSchema, `{"approved": true, "reason": "x"} {}`, "", "trailing data"},
		{"not object", verdictSchema, `["approved"]`, "", "expected object, got array"},
		{"missing reason", verdictSchema, `{"approved": false}`, "reason", "required property missing"},
		{"null reason", verdictSchema, `{"approved": false, "reason": null}`, "reason", "required property missing"},
		{"string boolean", verdictSchema, `{"approved": "false", "reason": "x"}`, "approved", "expected boolean, got string"},
		{"numeric reason", verdictSchema, `{"approved": true, "reason": 1}`, "reason", "expected string, got number"},
		{"list not array", listSchema, `{"explanations": "blurred"}`, "explanations", "expected array, got string"},
		{"list item type", listSchema, `{"explanations": ["a", 2]}`, "explanations[1]", "expected string, got number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate([]byte(tt.raw))
			require.Error(t, err)
			var oerr *OutputError
			require.ErrorAs(t, err, &oerr)
			assert.Equal(t, tt.path, oerr.Path)
			assert.Contains(t, oerr.Reason, tt.reason)
		})
	}
}

func TestValidate_Integer(t *testing.T) {
	s := &Schema{Type: TypeObject, Properties: map[string]*Schema{"n": {Type: TypeInteger}}, Required: []string{"n"}}
	assert.NoError(t, s.Validate([]byte(`{"n": 3}`)))
	assert.Error(t, s.Validate([]byte(`{"n": 3.5}`)))
}

func TestOrdering(t *testing.T) {
	assert.Equal(t, []string{"approved", "reason"}, verdictSchema.Ordering())
	assert.Equal(t, []string{"explanations"}, listSchema.Ordering())
}

type request struct {
	ProductDetails string   `json:"productDetails" validate:"notblank"`
	ProductImages  []string `json:"productImages" validate:"required,min=1,dive,imageuri"`
	CustomerImage  string   `json:"customerImage" validate:"required,imageuri"`
}

const img = "data:image/png;base64,QQ=="

func TestValidator_Struct(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.Struct(request{ProductDetails: "shirt", ProductImages: []string{img}, CustomerImage: img}))

	tests := []struct {
		name       string
		req        request
		field      string
		constraint string
	}{
		{"blank details", request{ProductDetails: "  ", ProductImages: []string{img}, CustomerImage: img}, "productDetails", "notblank"},
		{"no images", request{ProductDetails: "shirt", CustomerImage: img}, "productImages", "required"},
		{"empty images", request{ProductDetails: "shirt", ProductImages: []string{}, CustomerImage: img}, "productImages", "min"},
		{"bad image", request{ProductDetails: "shirt", ProductImages: []string{img, "data:;base64,QQ=="}, CustomerImage: img}, "productImages[1]", "imageuri"},
		{"missing customer", request{ProductDetails: "shirt", ProductImages: []string{img}}, "customerImage", "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			var ferr *FieldError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tt.field, ferr.Field)
			assert.Equal(t, tt.constraint, ferr.Constraint)
		})
	}
}
