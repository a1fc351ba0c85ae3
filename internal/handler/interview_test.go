package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiverse/interview-server/internal/config"
	"github.com/voiverse/interview-server/internal/evaluation"
	"github.com/voiverse/interview-server/internal/gemini"
	"github.com/voiverse/interview-server/internal/interview"
	"github.com/voiverse/interview-server/internal/model"
	"github.com/voiverse/interview-server/internal/ratelimit"
	"github.com/voiverse/interview-server/internal/store"
)

const evaluationJSON = `{
	"candidate_name": "Ada",
	"total_score": 88,
	"decision_tier": "A",
	"is_pass": true,
	"skill_match_score": 90,
	"communication_score": 85,
	"remote_readiness_score": 84,
	"key_strengths": ["clear communication"],
	"red_flags": [],
	"summary": "Strong candidate.",
	"notification_text": "Thank you, we will be in touch."
}`

func newTestHandler(t *testing.T, gen *gemini.MockGenerator, mutate func(cfg *config.Config)) (*InterviewHandler, chi.Router, store.Store) {
	t.Helper()

	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		MaxInterviewTurns: 50,
		TestModeEscape:    "/stop",
		RateLimitRequests: 100,
		RateLimitWindow:   60,
		STierThreshold:    90,
		ATierThreshold:    80,
		BTierThreshold:    60,
		AppBaseURL:        "https://hire.example.com",
	}
	if mutate != nil {
		mutate(cfg)
	}

	evaluator := evaluation.NewEngine(gen, evaluation.Options{
		Timeout:     time.Second,
		MaxAttempts: 1,
	})
	h := NewInterviewHandler(cfg, st, gen, evaluator, ratelimit.NewAdmission(cfg))

	r := chi.NewRouter()
	r.Mount("/v1/interviews", h.Routes())
	return h, r, st
}

func doRequest(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:53211"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, router chi.Router, extra map[string]string) string {
	t.Helper()

	body := map[string]string{"jobDescription": "Senior Go engineer, remote"}
	for k, v := range extra {
		body[k] = v
	}
	rec := doRequest(t, router, http.MethodPost, "/v1/interviews", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp createInterviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.SessionID, 36)
	return resp.SessionID
}

type sseEvent struct {
	Name string
	Data map[string]any
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()

	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			if name, ok := strings.CutPrefix(line, "event: "); ok {
				ev.Name = name
			}
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				require.NoError(t, json.Unmarshal([]byte(data), &ev.Data))
			}
		}
		events = append(events, ev)
	}
	return events
}

func deltaText(events []sseEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Name == "delta" {
			b.WriteString(ev.Data["text"].(string))
		}
	}
	return b.String()
}

func lastEvent(t *testing.T, events []sseEvent, name string) sseEvent {
	t.Helper()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Name == name {
			return events[i]
		}
	}
	t.Fatalf("no %q event in stream", name)
	return sseEvent{}
}

func TestCreateInterview(t *testing.T) {
	t.Run("creates pending session", func(t *testing.T) {
		_, router, st := newTestHandler(t, &gemini.MockGenerator{}, nil)

		id := createSession(t, router, map[string]string{"candidateName": "Ada"})

		session, err := st.LoadSession(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, session.Status)
		assert.Equal(t, "Ada", session.CandidateName)
		assert.Empty(t, session.Messages)
	})

	t.Run("rejects missing job description", func(t *testing.T) {
		_, router, _ := newTestHandler(t, &gemini.MockGenerator{}, nil)

		rec := doRequest(t, router, http.MethodPost, "/v1/interviews", map[string]string{
			"candidateName": "Ada",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "MISSING_REQUIRED")
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		_, router, _ := newTestHandler(t, &gemini.MockGenerator{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/v1/interviews", strings.NewReader("{nope"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStartInterview(t *testing.T) {
	t.Run("streams greeting and persists it", func(t *testing.T) {
		gen := &gemini.MockGenerator{Replies: []gemini.MockReply{
			{Chunks: []string{"Hello Ada, ", "welcome."}, Signature: "sig-1"},
		}}
		_, router, st := newTestHandler(t, gen, nil)
		id := createSession(t, router, nil)

		rec := doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/start", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

		events := parseSSE(t, rec.Body.String())
		assert.Equal(t, "Hello Ada, welcome.", deltaText(events))

		done := lastEvent(t, events, "done")
		assert.Equal(t, string(model.StatusInProgress), done.Data["status"])
		assert.Equal(t, float64(0), done.Data["turnCount"])

		session, err := st.LoadSession(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, session.Messages, 1)
		assert.Equal(t, model.RoleModel, session.Messages[0].Role)
		assert.Equal(t, "sig-1", session.ThoughtSignature)
	})

	t.Run("second start conflicts", func(t *testing.T) {
		gen := &gemini.MockGenerator{Replies: []gemini.MockReply{{Chunks: []string{"Hi."}}}}
		_, router, _ := newTestHandler(t, gen, nil)
		id := createSession(t, router, nil)

		doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/start", nil)
		rec := doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/start", nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "PRECONDITION")
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		_, router, _ := newTestHandler(t, &gemini.MockGenerator{}, nil)

		rec := doRequest(t, router, http.MethodPost,
			"/v1/interviews/00000000-0000-0000-0000-000000000000/start", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestChat(t *testing.T) {
	t.Run("streams reply and persists the turn", func(t *testing.T) {
		gen := &gemini.MockGenerator{Replies: []gemini.MockReply{
			{Chunks: []string{"Welcome."}, Signature: "sig-1"},
			{Chunks: []string{"Tell me about ", "your last project."}, Signature: "sig-2"},
		}}
		_, router, st := newTestHandler(t, gen, nil)
		id := createSession(t, router, nil)
		doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/start", nil)

		rec := doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/chat",
			map[string]string{"message": "I have five years of Go experience."})
		require.Equal(t, http.StatusOK, rec.Code)

		events := parseSSE(t, rec.Body.String())
		assert.Equal(t, "Tell me about your last project.", deltaText(events))

		done := lastEvent(t, events, "done")
		assert.Equal(t, string(model.StatusInProgress), done.Data["status"])
		assert.Equal(t, float64(1), done.Data["turnCount"])
		assert.Equal(t, false, done.Data["evaluating"])

		session, err := st.LoadSession(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, session.Messages, 3)
		assert.Equal(t, "sig-2", session.ThoughtSignature)
	})

	t.Run("rejects empty message", func(t *testing.T) {
		gen := &gemini.MockGenerator{Replies: []gemini.MockReply{{Chunks: []string{"Hi."}}}}
		_, router, _ := newTestHandler(t, gen, nil)
		id := createSession(t, router, nil)
		doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/start", nil)

		rec := doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/chat",
			map[string]string{"message": "   "})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "MISSING_REQUIRED")
	})

	t.Run("chat before start conflicts", func(t *testing.T) {
		_, router, _ := newTestHandler(t, &gemini.MockGenerator{}, nil)
		id := createSession(t, router, nil)

		rec := doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/chat",
			map[string]string{"message": "hello"})
		require.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestChatTerminationTriggersEvaluation(t *testing.T) {
	gen := &gemini.MockGenerator{
		Replies: []gemini.MockReply{
			{Chunks: []string{"Welcome."}, Signature: "sig-1"},
			{Chunks: []string{"This concludes our interview. Goodbye."}},
		},
		GenerateFunc: func(_ context.Context, _ gemini.GenerateRequest) (*gemini.GenerateResult, error) {
			return &gemini.GenerateResult{Text: evaluationJSON}, nil
		},
	}
	_, router, st := newTestHandler(t, gen, nil)
	id := createSession(t, router, nil)
	doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/start", nil)

	rec := doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/chat",
		map[string]string{"message": "That is everything from my side."})
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseSSE(t, rec.Body.String())
	done := lastEvent(t, events, "done")
	assert.Equal(t, string(model.StatusCompleted), done.Data["status"])
	assert.Equal(t, true, done.Data["evaluating"])

	require.Eventually(t, func() bool {
		_, err := st.LoadEvaluation(context.Background(), id)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "evaluation was never persisted")

	result, err := st.LoadEvaluation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 88, result.TotalScore)
	assert.Equal(t, model.TierA, result.DecisionTier)
	assert.Equal(t, "Ada", result.CandidateName)
	assert.Equal(t, 1, gen.GenerateCallCount())

	// Chatting after the end returns the fixed closing line without
	// another generation call or a second evaluation.
	rec = doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/chat",
		map[string]string{"message": "one more thing"})
	require.Equal(t, http.StatusOK, rec.Code)
	events = parseSSE(t, rec.Body.String())
	assert.Equal(t, interview.ClosingAlreadyEnded, deltaText(events))
	assert.Equal(t, 2, gen.StreamCallCount())
	assert.Equal(t, 1, gen.GenerateCallCount())
}

func TestChatRateLimited(t *testing.T) {
	gen := &gemini.MockGenerator{Replies: []gemini.MockReply{
		{Chunks: []string{"Welcome."}},
		{Chunks: []string{"Go on."}},
	}}
	_, router, _ := newTestHandler(t, gen, func(cfg *config.Config) {
		cfg.RateLimitRequests = 2
	})
	id := createSession(t, router, nil)
	doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/start", nil)

	for i := 0; i < 2; i++ {
		rec := doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/chat",
			map[string]string{"message": fmt.Sprintf("answer %d", i)})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/chat",
		map[string]string{"message": "one too many"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Contains(t, rec.Body.String(), ratelimit.ScopeAddress)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 3, gen.StreamCallCount())
}

func TestGetInterview(t *testing.T) {
	gen := &gemini.MockGenerator{Replies: []gemini.MockReply{{Chunks: []string{"Welcome."}}}}
	_, router, _ := newTestHandler(t, gen, nil)
	id := createSession(t, router, map[string]string{"candidateName": "Ada"})
	doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/start", nil)

	t.Run("by full id", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/v1/interviews/"+id, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp getInterviewResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, id, resp.Session.ID)
		assert.Nil(t, resp.Evaluation)
	})

	t.Run("by prefix", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/v1/interviews/"+id[:12], nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp getInterviewResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, id, resp.Session.ID)
	})

	t.Run("short prefix rejected", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/v1/interviews/"+id[:4], nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet,
			"/v1/interviews/00000000-0000-0000-0000-000000000000", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestEndInterview(t *testing.T) {
	gen := &gemini.MockGenerator{
		Replies: []gemini.MockReply{{Chunks: []string{"Welcome."}}},
		GenerateFunc: func(_ context.Context, _ gemini.GenerateRequest) (*gemini.GenerateResult, error) {
			return &gemini.GenerateResult{Text: evaluationJSON}, nil
		},
	}
	_, router, st := newTestHandler(t, gen, nil)
	id := createSession(t, router, nil)
	doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/start", nil)

	rec := doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/end",
		map[string]string{"reason": "security"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp endInterviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.StatusTerminated, resp.Status)
	assert.Equal(t, interview.SecurityResponse, resp.Message)

	session, err := st.LoadSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTerminated, session.Status)

	require.Eventually(t, func() bool {
		_, err := st.LoadEvaluation(context.Background(), id)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSTierNotificationUsesInvitation(t *testing.T) {
	sTierJSON := strings.Replace(evaluationJSON, `"total_score": 88`, `"total_score": 96`, 1)
	gen := &gemini.MockGenerator{
		Replies: []gemini.MockReply{{Chunks: []string{"Welcome."}}},
		GenerateFunc: func(_ context.Context, _ gemini.GenerateRequest) (*gemini.GenerateResult, error) {
			return &gemini.GenerateResult{Text: sTierJSON}, nil
		},
	}
	_, router, st := newTestHandler(t, gen, nil)
	id := createSession(t, router, map[string]string{
		"sTierInvitation": "Our CTO would love to meet you this week.",
		"sTierLink":       "https://cal.example.com/cto",
	})
	doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/start", nil)

	rec := doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/end",
		map[string]string{"reason": "manual"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		_, err := st.LoadEvaluation(context.Background(), id)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	result, err := st.LoadEvaluation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.TierS, result.DecisionTier)
	assert.Contains(t, result.NotificationText, "Our CTO would love to meet you this week.")
	assert.Contains(t, result.NotificationText, "https://cal.example.com/cto")
}

func TestDeleteInterview(t *testing.T) {
	_, router, _ := newTestHandler(t, &gemini.MockGenerator{}, nil)
	id := createSession(t, router, nil)

	rec := doRequest(t, router, http.MethodDelete, "/v1/interviews/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/v1/interviews/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListInterviews(t *testing.T) {
	gen := &gemini.MockGenerator{Replies: []gemini.MockReply{{Chunks: []string{"Welcome."}}}}
	_, router, _ := newTestHandler(t, gen, nil)
	first := createSession(t, router, map[string]string{"candidateName": "Ada"})
	second := createSession(t, router, map[string]string{"candidateName": "Grace"})

	rec := doRequest(t, router, http.MethodGet, "/v1/interviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listInterviewsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Days)
	require.Len(t, resp.Sessions, 2)

	ids := []string{resp.Sessions[0].SessionID, resp.Sessions[1].SessionID}
	assert.ElementsMatch(t, []string{first, second}, ids)

	rec = doRequest(t, router, http.MethodGet, "/v1/interviews?days=nope", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEngineRestoredFromStore(t *testing.T) {
	gen := &gemini.MockGenerator{Replies: []gemini.MockReply{
		{Chunks: []string{"Welcome."}, Signature: "sig-1"},
		{Chunks: []string{"Go on."}, Signature: "sig-2"},
	}}
	h, router, st := newTestHandler(t, gen, nil)
	id := createSession(t, router, nil)
	doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/start", nil)

	// Simulate a restart by dropping the in-process registry.
	h.mu.Lock()
	h.engines = make(map[string]*engineEntry)
	h.mu.Unlock()

	rec := doRequest(t, router, http.MethodPost, "/v1/interviews/"+id+"/chat",
		map[string]string{"message": "Picking up where we left off."})
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseSSE(t, rec.Body.String())
	assert.Equal(t, "Go on.", deltaText(events))

	session, err := st.LoadSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, session.TurnCount)
	assert.Equal(t, "sig-2", session.ThoughtSignature)

	// The restored engine forwarded the persisted continuation token.
	require.Equal(t, 2, gen.StreamCallCount())
	assert.Equal(t, "sig-1", gen.StreamCalls[1].ThoughtSignature)
}
