package interview

import (
	"context"
	"strings"
	"sync"

	"github.com/voiverse/interview-server/internal/config"
	apperrors "github.com/voiverse/interview-server/internal/errors"
	"github.com/voiverse/interview-server/internal/gemini"
	"github.com/voiverse/interview-server/internal/model"
)

// startTrigger is the internal non-conversational message that elicits the
// greeting. It is never recorded in the session history.
const startTrigger = "Please begin the interview."

// Options configures one engine instance.
type Options struct {
	MaxTurns           int
	TestMode           bool
	TestModeEscape     string
	TerminationPhrases []string
	CustomGreeting     string
	CompanyBackground  string
}

func (o Options) withDefaults() Options {
	if o.MaxTurns <= 0 {
		o.MaxTurns = 50
	}
	if o.TestModeEscape == "" {
		o.TestModeEscape = "/stop"
	}
	if len(o.TerminationPhrases) == 0 {
		o.TerminationPhrases = config.DefaultTerminationPhrases
	}
	return o
}

// Engine drives one interview conversation. Turns are strictly sequential
// per session; the mutex only guards state flags against misuse, it is not a
// concurrency feature.
type Engine struct {
	gen     gemini.Generator
	session *model.Session
	opts    Options

	mu                sync.Mutex
	started           bool
	ended             bool
	testModeTriggered bool
}

func NewEngine(gen gemini.Generator, session *model.Session, opts Options) *Engine {
	return &Engine{
		gen:     gen,
		session: session,
		opts:    opts.withDefaults(),
	}
}

// Restore rebuilds an engine around a persisted session, for recovery after
// a client reconnect. State flags are derived from the session status.
func Restore(gen gemini.Generator, session *model.Session, opts Options) *Engine {
	e := NewEngine(gen, session, opts)
	e.started = session.Status != model.StatusPending
	e.ended = session.Status.Terminal()
	return e
}

func (e *Engine) Session() *model.Session { return e.session }

// Stream delivers one model reply chunk by chunk. Drain Chunks, then call
// Wait for the assembled text; by the time Wait returns the engine has
// already appended the reply to the session and updated the continuation
// token.
type Stream struct {
	chunks chan string
	done   chan struct{}

	text string
	err  error
}

func (s *Stream) Chunks() <-chan string { return s.chunks }

// Wait blocks until the stream is fully consumed and returns the assembled
// reply text, or the transport error that cut the stream short.
func (s *Stream) Wait() (string, error) {
	<-s.done
	return s.text, s.err
}

func staticStream(text string) *Stream {
	s := &Stream{
		chunks: make(chan string, 1),
		done:   make(chan struct{}),
		text:   text,
	}
	s.chunks <- text
	close(s.chunks)
	close(s.done)
	return s
}

// Start issues the greeting call. Callable exactly once; the trigger message
// is not recorded, only the model's greeting is.
func (e *Engine) Start(ctx context.Context) (*Stream, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, apperrors.Precondition("interview already started")
	}
	e.started = true
	e.session.Status = model.StatusInProgress
	prompt := systemPrompt(e.session, e.opts, e.session.TurnCount)
	e.mu.Unlock()

	events, err := e.gen.StreamGenerate(ctx, gemini.StreamRequest{
		Model:             gemini.ModelInterviewer,
		Contents:          []gemini.Content{gemini.UserContent(startTrigger)},
		SystemInstruction: prompt,
		ThinkingLevel:     gemini.ThinkingMedium,
	})
	if err != nil {
		return nil, err
	}
	return e.consume(events, false), nil
}

// Chat processes one candidate turn. The order below is load-bearing: the
// test escape is checked first, the candidate message is always appended
// before the budget check so the final statement reaches the evaluator, and
// no generation call is made on a budget-exhausted turn.
func (e *Engine) Chat(ctx context.Context, candidateText string) (*Stream, error) {
	e.mu.Lock()

	if !e.started {
		e.mu.Unlock()
		return nil, apperrors.Precondition("interview not started")
	}
	if e.ended {
		e.mu.Unlock()
		return staticStream(ClosingAlreadyEnded), nil
	}

	if e.opts.TestMode && strings.EqualFold(strings.TrimSpace(candidateText), e.opts.TestModeEscape) {
		e.session.AddMessage(model.RoleCandidate, candidateText)
		e.endLocked(model.StatusCompleted)
		e.testModeTriggered = true
		e.mu.Unlock()
		return staticStream(ClosingTestMode), nil
	}

	e.session.AddMessage(model.RoleCandidate, candidateText)

	if e.session.TurnCount >= e.opts.MaxTurns {
		e.endLocked(model.StatusCompleted)
		e.mu.Unlock()
		return staticStream(ClosingTurnBudget), nil
	}

	prompt := systemPrompt(e.session, e.opts, e.session.TurnCount)
	contents := historyContents(e.session.Messages)
	signature := e.session.ThoughtSignature
	e.mu.Unlock()

	events, err := e.gen.StreamGenerate(ctx, gemini.StreamRequest{
		Model:             gemini.ModelInterviewer,
		Contents:          contents,
		SystemInstruction: prompt,
		ThinkingLevel:     gemini.ThinkingMedium,
		ThoughtSignature:  signature,
	})
	if err != nil {
		return nil, err
	}
	return e.consume(events, true), nil
}

// consume forwards text events to the stream and, on clean completion,
// commits the assembled reply to the session. A mid-stream transport error
// surfaces through Wait without committing the partial reply; the candidate
// message appended earlier stays.
func (e *Engine) consume(events <-chan gemini.StreamEvent, scanTermination bool) *Stream {
	s := &Stream{
		chunks: make(chan string),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)

		var full strings.Builder
		var signature string

		for ev := range events {
			switch {
			case ev.Err != nil:
				s.err = apperrors.GenerationFailed("stream interrupted", ev.Err)
			case ev.Signature != "":
				signature = ev.Signature
			case ev.Text != "":
				full.WriteString(ev.Text)
				s.chunks <- ev.Text
			}
		}
		close(s.chunks)

		if s.err != nil {
			return
		}
		s.text = full.String()

		e.mu.Lock()
		defer e.mu.Unlock()

		e.session.AddMessage(model.RoleModel, s.text)
		if signature != "" {
			e.session.ThoughtSignature = signature
		}
		if scanTermination && e.matchesTermination(s.text) {
			e.endLocked(model.StatusCompleted)
		}
	}()

	return s
}

func (e *Engine) matchesTermination(reply string) bool {
	for _, phrase := range e.opts.TerminationPhrases {
		if strings.Contains(reply, phrase) {
			return true
		}
	}
	return false
}

// endLocked marks the engine and session terminal. Caller holds the mutex.
func (e *Engine) endLocked(status model.SessionStatus) {
	e.ended = true
	e.session.End(status)
}

// ForceEnd terminates the interview from outside the conversation, for
// operator intervention or detected abuse. Returns the candidate-facing
// closing line.
func (e *Engine) ForceEnd(reason string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ended {
		e.endLocked(model.StatusTerminated)
	}
	if reason == "security" {
		return SecurityResponse
	}
	return ClosingAlreadyEnded
}

// CanContinue reports whether another candidate turn is acceptable.
func (e *Engine) CanContinue() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started && !e.ended && e.session.TurnCount < e.opts.MaxTurns
}

// ShouldEvaluate reports whether the session is ready for its evaluation
// pass.
func (e *Engine) ShouldEvaluate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended && e.session.Status.Terminal()
}

// TestModeTriggered reports whether the escape command ended the interview,
// which routes evaluation through the scripted fast path.
func (e *Engine) TestModeTriggered() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.testModeTriggered
}

func historyContents(messages []model.Message) []gemini.Content {
	contents := make([]gemini.Content, 0, len(messages))
	for _, msg := range messages {
		contents = append(contents, gemini.Content{
			Role:  string(msg.Role),
			Parts: []gemini.Part{{Text: msg.Content}},
		})
	}
	return contents
}
