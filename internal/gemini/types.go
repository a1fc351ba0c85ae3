package gemini

import "context"

// ModelClass selects which configured model a call is routed to.
type ModelClass string

const (
	// ModelInterviewer is the fast conversational model.
	ModelInterviewer ModelClass = "interviewer"
	// ModelEvaluator is the deep-reasoning model used for structured scoring.
	ModelEvaluator ModelClass = "evaluator"
)

// Thinking effort hints accepted by the generation service.
const (
	ThinkingMinimal = "MINIMAL"
	ThinkingLow     = "LOW"
	ThinkingMedium  = "MEDIUM"
	ThinkingHigh    = "HIGH"
)

type Part struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// UserContent builds a single-part user turn.
func UserContent(text string) Content {
	return Content{Role: "user", Parts: []Part{{Text: text}}}
}

// ModelContent builds a single-part model turn.
func ModelContent(text string) Content {
	return Content{Role: "model", Parts: []Part{{Text: text}}}
}

// StreamRequest describes one streaming generation call.
type StreamRequest struct {
	Model             ModelClass
	Contents          []Content
	SystemInstruction string
	ThinkingLevel     string
	// ThoughtSignature is the opaque continuation token from the previous
	// call of the same conversation. Empty means "start fresh"; when present
	// it must be forwarded verbatim.
	ThoughtSignature string
}

// GenerateRequest describes one non-streaming call, optionally constrained
// to structured JSON output.
type GenerateRequest struct {
	Model             ModelClass
	Contents          []Content
	SystemInstruction string
	ThinkingLevel     string
	ResponseMIMEType  string
	ResponseSchema    map[string]any
}

// StreamEvent is one element of a streaming generation sequence. Exactly one
// of Text, Signature, or Err is meaningful: text deltas first, then at most
// one terminal signature event.
type StreamEvent struct {
	Text      string
	Signature string
	Err       error
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GenerateResult is the outcome of a non-streaming call.
type GenerateResult struct {
	Text             string
	Usage            UsageMetadata
	ThoughtSignature string
}

// Generator abstracts the generation service for the interview and
// evaluation engines; tests substitute scripted fakes.
type Generator interface {
	StreamGenerate(ctx context.Context, req StreamRequest) (<-chan StreamEvent, error)
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}
