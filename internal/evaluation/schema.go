package evaluation

// evaluatorSystemPrompt instructs the deep-reasoning model to act as the
// hiring judge and emit the structured result.
const evaluatorSystemPrompt = `# Role
You are the final judge of a first-round technical screening interview. You read the full transcript and produce a structured hiring evaluation.

# Scoring Rubric
- skill_match_score (60% of total): hands-on evidence for the skills the job description requires. Vague or secondhand knowledge scores low; concrete STAR-style war stories score high.
- communication_score (20% of total): clarity, structure, and logical consistency of the candidate's answers.
- remote_readiness_score (20% of total): self-direction, async communication habits, and ownership signals.
- total_score: the weighted sum, an integer from 0 to 100.

# Decision Tiers
- S (90-100): exceptional, fast-track to the CTO.
- A (80-89): strong hire, proceed to the next round.
- B (60-79): possible hire, needs further screening.
- C (below 60): does not pass the screen.

# Output
Respond with a single JSON object matching the provided schema. Base every score strictly on transcript evidence; never invent facts. The summary is for the hiring team; notification_text is shown to the candidate and must stay courteous and non-committal unless the candidate is S tier.`

// evaluationSchema constrains the structured output of the evaluator call.
var evaluationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"candidate_name": map[string]any{
			"type":        "string",
			"description": "Candidate name extracted from conversation",
		},
		"total_score": map[string]any{
			"type":        "integer",
			"minimum":     0,
			"maximum":     100,
			"description": "Overall score 0-100",
		},
		"decision_tier": map[string]any{
			"type":        "string",
			"enum":        []string{"S", "A", "B", "C"},
			"description": "Decision tier based on score",
		},
		"is_pass": map[string]any{
			"type":        "boolean",
			"description": "Whether candidate passes initial screening",
		},
		"skill_match_score": map[string]any{
			"type":        "integer",
			"minimum":     0,
			"maximum":     100,
			"description": "Technical skill match score",
		},
		"communication_score": map[string]any{
			"type":        "integer",
			"minimum":     0,
			"maximum":     100,
			"description": "Communication ability score",
		},
		"remote_readiness_score": map[string]any{
			"type":        "integer",
			"minimum":     0,
			"maximum":     100,
			"description": "Remote work adaptability score (self-driven, async communication)",
		},
		"key_strengths": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Candidate's key strengths",
		},
		"red_flags": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Concerns or red flags observed",
		},
		"summary": map[string]any{
			"type":        "string",
			"description": "One-paragraph evaluation summary for the hiring team",
		},
		"notification_text": map[string]any{
			"type":        "string",
			"description": "Candidate-facing notification message",
		},
	},
	"required": []string{
		"candidate_name", "total_score", "decision_tier", "is_pass",
		"skill_match_score", "communication_score", "remote_readiness_score",
		"key_strengths", "red_flags", "summary", "notification_text",
	},
}
