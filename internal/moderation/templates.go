package moderation

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/raine/review-moderator/internal/prompt"
)

// RejectionCriteria is the moderation checklist, applied in order.
var RejectionCriteria = []string{
	"Image should not contain profane/abusive content",
	"Image doesn't match the product purchased",
	"Image doesn't match the brand of the product purchased",
	"Image lacks focus on the product purchased",
	"Image should not be a screenshot",
	"Image should not be of poor quality",
	"Image should not be blurred",
	"Image should not be Incomplete or cropped",
	"Image should not contain personal or sensitive information",
	"Image should not contain reference to other platforms or retailers",
	"Image should not contains service related feedback (about shipment) Ex: fake or damaged product received",
	"There should not be any error in opening image",
}

func checklist() string {
	var sb strings.Builder
	for i, c := range RejectionCriteria {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, c)
	}
	return sb.String()
}

func promptSource(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

var verdictTemplate = prompt.Must("moderateReviewImagePrompt", promptSource(`
	You are an expert moderator for an Indian e-commerce platform.
	You need to determine whether a customer-submitted image is appropriate to be displayed on the website for a product.

	Reject the image if any of the following criteria applies. Check them in order:

	%s

	Here is the product information:

	Product Details: {{.ProductDetails}}
	Product Images:{{range .ProductImages}} {{media .}}{{end}}
	Customer Image: {{media .CustomerImage}}

	Based on these criteria, decide whether to approve or reject the customer image.
	If you reject it, the reason must name the criterion that was violated.

	Respond in the following JSON format:
	{
	  "approved": boolean, // true if the image is approved, false if rejected
	  "reason": string // detailed explanation for the decision
	}
`, checklist()))

var explainTemplate = prompt.Must("explainImageRejectionPrompt", promptSource(`
	You are an expert moderator for an Indian e-commerce platform.
	You need to provide detailed explanations for each potential rule violation identified in a customer-submitted image.

	Product Details: {{.ProductDetails}}
	Product Images:{{range .ProductImages}} {{media .}}{{end}}
	Customer Review Image: {{media .CustomerReviewImage}}

	Identified Violations:
	{{range .IdentifiedViolations}}- {{.}}
	{{end}}
	Provide a detailed explanation for each identified violation, including the reasoning behind the flag and confidence scores (if available).
	Format the output as an array of strings, where each string is an explanation for a specific violation.
`))

const draftIntro = `You are an agent who moderates images given by customers on an Indian ecommerce platform. Customers provide photos along with review after purchasing a product. You take product details, product images and the image given by the customer as an input and do the following checks before either approving or rejecting the image for showing on the website.`

// DecisionInstruction closes the checklist prompt a decision model acts on.
const DecisionInstruction = "Based on the above checks, decide on whether to approve or reject the image provided by the customer. Provide a detailed explanation for your decision."

var draftTemplate = prompt.Must("generateModerationPromptPrompt", promptSource(`
	%s

	%s

	Product Details: {{.ProductDetails}}
	Product Images:{{range .ProductImages}} {{media .}}{{end}}
	Customer Review Image: {{media .CustomerReviewImage}}

	Write the moderation prompt a reviewer model should follow for this product and image.
`, draftIntro, checklist()))

// checklistTemplate is the moderation prompt itself, rendered without a
// model call in DraftLocal mode.
var checklistTemplate = prompt.Must("moderationChecklistPrompt", promptSource(`
	%s

	%s

	Product Details: {{.ProductDetails}}
	Product Images:{{range .ProductImages}} {{media .}}{{end}}
	Customer Review Image: {{media .CustomerReviewImage}}

	%s
`, draftIntro, checklist(), DecisionInstruction))
