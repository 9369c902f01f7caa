package moderation

// Images are data URIs (data:<mime>;base64,<payload>) throughout. They are
// re-embedded into prompts as-is and never decoded here.

// ModerationRequest asks for an approve/reject verdict on a review image.
type ModerationRequest struct {
	ProductDetails string   `json:"productDetails" validate:"notblank"`
	ProductImages  []string `json:"productImages" validate:"required,min=1,dive,imageuri"`
	CustomerImage  string   `json:"customerImage" validate:"required,imageuri"`
}

// ModerationVerdict is the model's decision.
type ModerationVerdict struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// ExplanationRequest asks for explanations of violations identified
// elsewhere, by a verdict or a human moderator.
type ExplanationRequest struct {
	ProductDetails       string   `json:"productDetails" validate:"notblank"`
	ProductImages        []string `json:"productImages" validate:"dive,imageuri"`
	CustomerReviewImage  string   `json:"customerReviewImage" validate:"required,imageuri"`
	IdentifiedViolations []string `json:"identifiedViolations" validate:"dive,notblank"`
}

// ExplanationResult holds one explanation per violation the model chose to
// explain. Its length is not guaranteed to match IdentifiedViolations.
type ExplanationResult struct {
	Explanations []string `json:"explanations"`
}

// DraftPromptRequest asks for a moderation prompt to be drafted.
type DraftPromptRequest struct {
	ProductDetails      string   `json:"productDetails" validate:"notblank"`
	ProductImages       []string `json:"productImages" validate:"dive,imageuri"`
	CustomerReviewImage string   `json:"customerReviewImage" validate:"required,imageuri"`
}

// DraftPromptResult is a drafted moderation prompt.
type DraftPromptResult struct {
	Prompt string `json:"prompt"`
}
