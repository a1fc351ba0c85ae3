package gemini

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// decodeSSEStream reads "data: {...}" lines from an SSE body and emits text
// deltas followed by at most one terminal signature event. Reasoning-trace
// parts are skipped; a safety block mid-stream turns into a single sentinel
// text event and ends the stream.
func decodeSSEStream(ctx context.Context, body io.Reader, events chan<- StreamEvent) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var signature string

	send := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		raw := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if raw == "" || raw == "[DONE]" {
			continue
		}

		var chunk apiResponse
		if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
			log.Debug().Err(err).Str("chunk", truncate(raw, 100)).Msg("malformed sse chunk, skipping")
			continue
		}
		if len(chunk.Candidates) == 0 {
			continue
		}

		cand := chunk.Candidates[0]

		if isSafetyBlocked(cand.FinishReason) {
			send(StreamEvent{Text: SafetyBlockNotice})
			return
		}

		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part.Thought || part.Text == "" {
					continue
				}
				if !send(StreamEvent{Text: part.Text}) {
					return
				}
			}
		}

		if cand.ThoughtSignature != "" {
			signature = cand.ThoughtSignature
		}
	}

	if err := scanner.Err(); err != nil {
		send(StreamEvent{Err: err})
		return
	}

	if signature != "" {
		send(StreamEvent{Signature: signature})
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
