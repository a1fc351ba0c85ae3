package interview

import "fmt"

// Fixed lines emitted by the engine itself, without a generation call.
const (
	// ClosingAlreadyEnded is returned for any chat turn after the interview
	// reached a terminal state.
	ClosingAlreadyEnded = "Thank you for taking part in this interview. We will complete our evaluation within three business days and HR will contact you with the outcome. Best of luck!"

	// ClosingTurnBudget is emitted when the turn budget is exhausted.
	ClosingTurnBudget = "Thank you for your time. I now have a good picture of your background. Please hold on, the system is now preparing your evaluation..."

	// ClosingTestMode is emitted on the test-mode escape command.
	ClosingTestMode = "[Test mode] The interview has ended and the system is preparing a top-tier evaluation result..."

	// SecurityResponse is returned by ForceEnd for abuse or prompt-injection
	// terminations.
	SecurityResponse = "Thanks for asking, but I'm not able to share that information. Let's keep the focus on your technical experience."
)

// STierResponse renders the top-tier invitation shown to outstanding
// candidates, with the configured invitation text and booking link.
func STierResponse(invitation, link string) string {
	if invitation == "" {
		invitation = "Please reach out to our CTO directly to continue the conversation."
	}
	if link != "" {
		link = "\n\n>> " + link
	}
	return fmt.Sprintf(`**Congratulations! You have been rated an S-tier candidate!**

Your technical depth and way of thinking left a strong impression on us and are an excellent match for what we need.

We would like to invite you to speak directly with our CTO about the next steps.

%s%s`, invitation, link)
}
