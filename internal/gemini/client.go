package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/voiverse/interview-server/internal/errors"
)

// SafetyBlockNotice is yielded as ordinary stream content when the service
// filters a reply mid-stream. Callers must treat it as text, not as an error.
const SafetyBlockNotice = "[This response was blocked by the content safety filter]"

// Config holds the static client configuration.
type Config struct {
	BaseURL          string
	APIKey           string
	InterviewerModel string
	EvaluatorModel   string
	Timeout          time.Duration
	MaxAttempts      int
	BaseDelay        time.Duration
}

// Client is a REST client for the Gemini generateContent endpoints. It is
// stateless aside from configuration; continuation tokens are threaded
// through requests by the caller, never stored here.
type Client struct {
	cfg  Config
	http *http.Client

	// sleep is indirected for tests.
	sleep func(time.Duration)
}

func NewClient(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		sleep: time.Sleep,
	}
}

func (c *Client) modelID(class ModelClass) string {
	if class == ModelEvaluator {
		return c.cfg.EvaluatorModel
	}
	return c.cfg.InterviewerModel
}

func (c *Client) endpoint(class ModelClass, streaming bool) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if streaming {
		return fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", base, c.modelID(class))
	}
	return fmt.Sprintf("%s/models/%s:generateContent", base, c.modelID(class))
}

type thinkingConfig struct {
	ThinkingLevel   string `json:"thinkingLevel"`
	IncludeThoughts bool   `json:"includeThoughts"`
}

type generationConfig struct {
	ThinkingConfig   thinkingConfig `json:"thinkingConfig"`
	ThoughtSignature string         `json:"thoughtSignature,omitempty"`
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type systemInstruction struct {
	Parts []Part `json:"parts"`
}

type apiRequest struct {
	Contents          []Content          `json:"contents"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
}

func buildAPIRequest(contents []Content, system, thinkingLevel, signature, mimeType string, schema map[string]any) apiRequest {
	if thinkingLevel == "" {
		thinkingLevel = ThinkingMedium
	}
	req := apiRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			ThinkingConfig: thinkingConfig{
				ThinkingLevel:   thinkingLevel,
				IncludeThoughts: false,
			},
			ThoughtSignature: signature,
			ResponseMIMEType: mimeType,
			ResponseSchema:   schema,
		},
	}
	if system != "" {
		req.SystemInstruction = &systemInstruction{Parts: []Part{{Text: system}}}
	}
	return req
}

// doWithRetry posts the payload with exponential backoff. Transport errors,
// 429 and 5xx are retried; any other 4xx is raised immediately with the
// status and raw body attached. On success the caller owns the body.
func (c *Client) doWithRetry(ctx context.Context, url string, payload apiRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Internal("failed to encode generation request").WithCause(err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.cfg.BaseDelay * (1 << (attempt - 1))
			log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("retrying generation request")
			c.sleep(delay)
		}
		if err := ctx.Err(); err != nil {
			return nil, apperrors.GenerationFailed("generation request cancelled", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, apperrors.Internal("failed to build generation request").WithCause(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.cfg.APIKey)

		res, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return res, nil
		}

		raw, _ := io.ReadAll(io.LimitReader(res.Body, 16<<10))
		res.Body.Close()

		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return nil, apperrors.GenerationRejected(res.StatusCode, string(raw))
		}

		lastErr = fmt.Errorf("status %d: %s", res.StatusCode, string(raw))
	}

	return nil, apperrors.GenerationFailed(
		fmt.Sprintf("max retries exceeded after %d attempts", c.cfg.MaxAttempts), lastErr)
}

// candidate mirrors the service response shape shared by both endpoints.
type candidate struct {
	Content *struct {
		Parts []Part `json:"parts"`
	} `json:"content"`
	FinishReason     string `json:"finishReason"`
	ThoughtSignature string `json:"thoughtSignature"`
}

type apiResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata UsageMetadata `json:"usageMetadata"`
}

func isSafetyBlocked(finishReason string) bool {
	return finishReason == "SAFETY" || finishReason == "BLOCKED"
}

// Generate performs a one-shot call, used for structured evaluation output.
// Empty candidates, a safety block, and an empty text body are all distinct
// failures, never valid empty results.
func (c *Client) Generate(ctx context.Context, genReq GenerateRequest) (*GenerateResult, error) {
	payload := buildAPIRequest(
		genReq.Contents, genReq.SystemInstruction, genReq.ThinkingLevel,
		"", genReq.ResponseMIMEType, genReq.ResponseSchema,
	)

	res, err := c.doWithRetry(ctx, c.endpoint(genReq.Model, false), payload)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.MalformedOutput(err)
	}

	if len(parsed.Candidates) == 0 {
		return nil, apperrors.EmptyResponse("candidates")
	}

	cand := parsed.Candidates[0]
	if isSafetyBlocked(cand.FinishReason) {
		return nil, apperrors.SafetyBlocked(cand.FinishReason)
	}

	var sb strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, apperrors.EmptyResponse("text content")
	}

	return &GenerateResult{
		Text:             sb.String(),
		Usage:            parsed.UsageMetadata,
		ThoughtSignature: cand.ThoughtSignature,
	}, nil
}

// StreamGenerate performs a streaming call and returns a lazy, single-pass
// event sequence. The channel is closed when the stream ends; a mid-stream
// decode or transport failure is delivered as a final Err event.
func (c *Client) StreamGenerate(ctx context.Context, streamReq StreamRequest) (<-chan StreamEvent, error) {
	payload := buildAPIRequest(
		streamReq.Contents, streamReq.SystemInstruction, streamReq.ThinkingLevel,
		streamReq.ThoughtSignature, "", nil,
	)

	res, err := c.doWithRetry(ctx, c.endpoint(streamReq.Model, true), payload)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer res.Body.Close()
		decodeSSEStream(ctx, res.Body, events)
	}()
	return events, nil
}
