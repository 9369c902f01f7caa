package moderation

import (
	"errors"
	"strings"

	"github.com/raine/review-moderator/internal/schema"
)

// Flow names, as reported in errors, logs and structured output requests.
const (
	FlowModerate = "moderateReviewImage"
	FlowExplain  = "explainImageRejection"
	FlowDraft    = "generateModerationPrompt"
)

var errRejectionWithoutReason = errors.New("rejected verdict has an empty reason")

// VerdictFlow decides whether a customer image may be published.
var VerdictFlow = &Flow[ModerationRequest, ModerationVerdict]{
	Name:     FlowModerate,
	Template: verdictTemplate,
	Output: &schema.Schema{
		Type: schema.TypeObject,
		Properties: map[string]*schema.Schema{
			"approved": {Type: schema.TypeBoolean, Description: "Whether the image is approved or not."},
			"reason":   {Type: schema.TypeString, Description: "The reason for the approval or rejection."},
		},
		Required:         []string{"approved", "reason"},
		PropertyOrdering: []string{"approved", "reason"},
	},
	Check: func(v *ModerationVerdict) error {
		if !v.Approved && strings.TrimSpace(v.Reason) == "" {
			return errRejectionWithoutReason
		}
		return nil
	},
}

// ExplainFlow explains identified violations in prose.
var ExplainFlow = &Flow[ExplanationRequest, ExplanationResult]{
	Name:     FlowExplain,
	Template: explainTemplate,
	Output: &schema.Schema{
		Type: schema.TypeObject,
		Properties: map[string]*schema.Schema{
			"explanations": {
				Type:        schema.TypeArray,
				Description: "Detailed explanations for each identified violation.",
				Items:       &schema.Schema{Type: schema.TypeString},
			},
		},
		Required: []string{"explanations"},
	},
}

// DraftFlow drafts a moderation prompt for a product.
var DraftFlow = &Flow[DraftPromptRequest, DraftPromptResult]{
	Name:     FlowDraft,
	Template: draftTemplate,
	Output: &schema.Schema{
		Type: schema.TypeObject,
		Properties: map[string]*schema.Schema{
			"prompt": {Type: schema.TypeString, Description: "The generated moderation prompt."},
		},
		Required: []string{"prompt"},
	},
}
