package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/voiverse/interview-server/internal/audit"
	"github.com/voiverse/interview-server/internal/config"
	apperrors "github.com/voiverse/interview-server/internal/errors"
	"github.com/voiverse/interview-server/internal/evaluation"
	"github.com/voiverse/interview-server/internal/gemini"
	"github.com/voiverse/interview-server/internal/interview"
	"github.com/voiverse/interview-server/internal/model"
	"github.com/voiverse/interview-server/internal/notify"
	"github.com/voiverse/interview-server/internal/ratelimit"
	"github.com/voiverse/interview-server/internal/store"
	"github.com/voiverse/interview-server/internal/util"
)

var endReasons = []string{"manual", "security"}

// InterviewHandler exposes the interview lifecycle over HTTP. Live engines
// are kept in an in-process registry keyed by session ID; sessions not in
// the registry (after a restart, or when addressed by prefix) are restored
// from the store on demand.
type InterviewHandler struct {
	cfg       *config.Config
	store     store.Store
	gen       gemini.Generator
	evaluator *evaluation.Engine
	admission *ratelimit.Admission

	mu      sync.Mutex
	engines map[string]*engineEntry
}

// engineEntry holds one live engine plus the once-gate that keeps the
// evaluation pass from running twice in this process.
type engineEntry struct {
	engine   *interview.Engine
	evalOnce sync.Once
}

func NewInterviewHandler(
	cfg *config.Config,
	st store.Store,
	gen gemini.Generator,
	evaluator *evaluation.Engine,
	admission *ratelimit.Admission,
) *InterviewHandler {
	return &InterviewHandler{
		cfg:       cfg,
		store:     st,
		gen:       gen,
		evaluator: evaluator,
		admission: admission,
		engines:   make(map[string]*engineEntry),
	}
}

func (h *InterviewHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateInterview)
	r.Get("/", h.ListInterviews)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetInterview)
		r.Delete("/", h.DeleteInterview)
		r.Post("/start", h.StartInterview)
		r.Post("/chat", h.Chat)
		r.Post("/end", h.EndInterview)
	})

	return r
}

func (h *InterviewHandler) options(customGreeting, companyBackground string) interview.Options {
	return interview.Options{
		MaxTurns:           h.cfg.MaxInterviewTurns,
		TestMode:           h.cfg.TestMode,
		TestModeEscape:     h.cfg.TestModeEscape,
		TerminationPhrases: h.cfg.TerminationPhrases,
		CustomGreeting:     customGreeting,
		CompanyBackground:  companyBackground,
	}
}

type createInterviewRequest struct {
	JobDescription    string `json:"jobDescription"`
	CandidateName     string `json:"candidateName"`
	CandidateEmail    string `json:"candidateEmail"`
	CandidatePhone    string `json:"candidatePhone"`
	CandidateResume   string `json:"candidateResume"`
	STierInvitation   string `json:"sTierInvitation"`
	STierLink         string `json:"sTierLink"`
	CustomGreeting    string `json:"customGreeting"`
	CompanyBackground string `json:"companyBackground"`
}

type createInterviewResponse struct {
	SessionID string              `json:"sessionId"`
	Status    model.SessionStatus `json:"status"`
	CreatedAt time.Time           `json:"createdAt"`
}

// POST /v1/interviews
func (h *InterviewHandler) CreateInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		writeError(w, apperrors.MissingRequired("jobDescription"))
		return
	}
	if req.CandidateEmail != "" && !util.IsValidEmail(req.CandidateEmail) {
		writeError(w, apperrors.InvalidInput("candidateEmail", "must be a valid email address"))
		return
	}

	session := model.NewSession(model.CreateSessionParams{
		JobDescription:  req.JobDescription,
		STierInvitation: req.STierInvitation,
		STierLink:       req.STierLink,
		CandidateName:   req.CandidateName,
		CandidateEmail:  req.CandidateEmail,
		CandidatePhone:  req.CandidatePhone,
		CandidateResume: req.CandidateResume,
	})

	engine := interview.NewEngine(h.gen, session, h.options(req.CustomGreeting, req.CompanyBackground))
	h.mu.Lock()
	h.engines[session.ID] = &engineEntry{engine: engine}
	h.mu.Unlock()

	if err := h.store.SaveSession(ctx, session); err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to persist new session")
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionCreate,
		SessionID: session.ID,
		Details:   map[string]interface{}{"candidate": session.CandidateName},
	})

	writeJSON(w, http.StatusCreated, createInterviewResponse{
		SessionID: session.ID,
		Status:    session.Status,
		CreatedAt: session.CreatedAt,
	})
}

// POST /v1/interviews/{id}/start
func (h *InterviewHandler) StartInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entry, err := h.engineFor(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	stream, err := entry.engine.Start(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventInterviewStart,
		SessionID: entry.engine.Session().ID,
	})

	h.streamReply(w, r, entry, stream, false)
}

type chatRequest struct {
	Message string `json:"message"`
}

// POST /v1/interviews/{id}/chat
func (h *InterviewHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entry, err := h.engineFor(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	session := entry.engine.Session()

	if ok, retryAfter, scope := h.admission.Check(ctx, session.ID, r.RemoteAddr); !ok {
		audit.LogFromRequest(r, audit.Event{
			Type:      audit.EventRateLimitExceed,
			SessionID: session.ID,
			Details:   map[string]interface{}{"scope": scope},
		})
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		writeError(w, apperrors.RateLimitExceeded(scope))
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, apperrors.MissingRequired("message"))
		return
	}

	stream, err := entry.engine.Chat(ctx, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	h.streamReply(w, r, entry, stream, true)
}

// streamReply relays one model reply over SSE, persists the session once
// the reply is complete, and kicks off evaluation when the conversation has
// reached a terminal state.
func (h *InterviewHandler) streamReply(w http.ResponseWriter, r *http.Request, entry *engineEntry, stream *interview.Stream, evaluate bool) {
	session := entry.engine.Session()

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}

	// Keep draining after a failed write so the engine can finish the turn
	// and commit the reply even when the client has gone away.
	clientGone := false
	for chunk := range stream.Chunks() {
		if clientGone {
			continue
		}
		if err := sse.send("delta", map[string]string{"text": chunk}); err != nil {
			log.Debug().Err(err).Str("sessionId", session.ID).Msg("client disconnected mid-stream")
			clientGone = true
		}
	}

	_, streamErr := stream.Wait()
	if streamErr != nil {
		sse.send("error", errorPayload(streamErr))
	}

	if err := h.store.SaveSession(context.WithoutCancel(r.Context()), session); err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to persist session after turn")
	}

	evaluating := false
	if evaluate && streamErr == nil && entry.engine.ShouldEvaluate() {
		evaluating = true
		entry.evalOnce.Do(func() {
			go h.runEvaluation(entry.engine)
		})
	}

	sse.send("done", map[string]any{
		"sessionId":  session.ID,
		"status":     session.Status,
		"turnCount":  session.TurnCount,
		"evaluating": evaluating,
	})
}

func errorPayload(err error) map[string]any {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}
	return map[string]any{"error": appErr.Message, "code": appErr.Code}
}

type getInterviewResponse struct {
	Session    *model.Session          `json:"session"`
	Evaluation *model.EvaluationResult `json:"evaluation,omitempty"`
}

// GET /v1/interviews/{id}
//
// Accepts a full session ID or a prefix of at least eight characters, for
// recovery from truncated operator links.
func (h *InterviewHandler) GetInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := h.resolve(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := getInterviewResponse{Session: session}
	if result, err := h.store.LoadEvaluation(ctx, session.ID); err == nil {
		resp.Evaluation = result
	} else if !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to load evaluation")
	}

	writeJSON(w, http.StatusOK, resp)
}

type listInterviewsResponse struct {
	Sessions []store.SessionSummary `json:"sessions"`
	Days     int                    `json:"days"`
}

// GET /v1/interviews?days=7
func (h *InterviewHandler) ListInterviews(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > config.PrefixSearchDays {
			writeError(w, apperrors.InvalidInput("days", fmt.Sprintf("must be an integer between 1 and %d", config.PrefixSearchDays)))
			return
		}
		days = parsed
	}

	summaries, err := h.store.RecentSummaries(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listInterviewsResponse{Sessions: summaries, Days: days})
}

// DELETE /v1/interviews/{id}
func (h *InterviewHandler) DeleteInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := h.resolve(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.DeleteSession(ctx, session.ID); err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	delete(h.engines, session.ID)
	h.mu.Unlock()

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionDelete,
		SessionID: session.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

type endInterviewRequest struct {
	Reason string `json:"reason"`
}

type endInterviewResponse struct {
	SessionID string              `json:"sessionId"`
	Status    model.SessionStatus `json:"status"`
	Message   string              `json:"message"`
}

// POST /v1/interviews/{id}/end
//
// Operator-initiated termination. The interview ends immediately and the
// evaluation pass runs in the background as for a natural ending.
func (h *InterviewHandler) EndInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entry, err := h.engineFor(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req endInterviewRequest
	if r.Body != nil {
		// Reason is optional; an empty or absent body means manual.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if !util.IsValidEnum(req.Reason, endReasons) {
		writeError(w, apperrors.InvalidInput("reason", "must be one of: "+strings.Join(endReasons, ", ")))
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	closing := entry.engine.ForceEnd(req.Reason)
	session := entry.engine.Session()

	if err := h.store.SaveSession(ctx, session); err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to persist terminated session")
		writeError(w, err)
		return
	}

	if entry.engine.ShouldEvaluate() {
		entry.evalOnce.Do(func() {
			go h.runEvaluation(entry.engine)
		})
	}

	eventType := audit.EventForceEnd
	if req.Reason == "security" {
		eventType = audit.EventSecurityTermination
	}
	audit.LogFromRequest(r, audit.Event{
		Type:      eventType,
		SessionID: session.ID,
		Details:   map[string]interface{}{"reason": req.Reason},
	})

	writeJSON(w, http.StatusOK, endInterviewResponse{
		SessionID: session.ID,
		Status:    session.Status,
		Message:   closing,
	})
}

// resolve loads a session by full ID or by prefix.
func (h *InterviewHandler) resolve(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, apperrors.MissingRequired("session id")
	}
	if util.IsValidUUID(id) {
		return h.store.LoadSession(ctx, id)
	}
	return h.store.FindByPrefix(ctx, id, config.PrefixSearchDays)
}

// engineFor returns the live engine for a session, restoring one from the
// store when the process has no engine in memory (restart, prefix lookup).
// Restored engines run with server-default options; request-scoped greeting
// and company background do not survive a restart.
func (h *InterviewHandler) engineFor(ctx context.Context, id string) (*engineEntry, error) {
	h.mu.Lock()
	if entry, ok := h.engines[id]; ok {
		h.mu.Unlock()
		return entry, nil
	}
	h.mu.Unlock()

	session, err := h.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.engines[session.ID]; ok {
		return entry, nil
	}

	engine := interview.Restore(h.gen, session, h.options("", ""))
	entry := &engineEntry{engine: engine}
	h.engines[session.ID] = entry

	log.Info().
		Str("sessionId", session.ID).
		Str("status", string(session.Status)).
		Msg("interview engine restored from store")

	return entry, nil
}

// runEvaluation executes the post-interview evaluation pass off the request
// path, persists the result and emits the operator notification. Evaluation
// never runs twice for a session: the engine entry gates in-process repeats
// and the store is checked for a result written by a previous process.
func (h *InterviewHandler) runEvaluation(engine *interview.Engine) {
	ctx := context.Background()
	session := engine.Session()

	if _, err := h.store.LoadEvaluation(ctx, session.ID); err == nil {
		log.Debug().Str("sessionId", session.ID).Msg("evaluation already exists, skipping")
		return
	}

	var result *model.EvaluationResult
	if engine.TestModeTriggered() {
		result = h.evaluator.TestModeEvaluation(session)
	} else {
		var err error
		result, err = h.evaluator.Evaluate(ctx, session)
		if err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("evaluation rejected")
			return
		}
	}

	// S-tier candidates with a configured invitation get the personalized
	// top-tier message instead of the template text.
	if result.IsSTier() && (session.STierInvitation != "" || session.STierLink != "") {
		result.NotificationText = interview.STierResponse(session.STierInvitation, session.STierLink)
	}

	if err := h.store.SaveEvaluation(ctx, result); err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to persist evaluation result")
		return
	}

	notify.Emit(notify.FromEvaluation(session, result, "", h.cfg.AppBaseURL))

	audit.Log(audit.Event{
		Type:      audit.EventEvaluationComplete,
		SessionID: session.ID,
		Details: map[string]interface{}{
			"score":       result.TotalScore,
			"tier":        string(result.DecisionTier),
			"needsReview": result.NeedsReview,
		},
	})
}
