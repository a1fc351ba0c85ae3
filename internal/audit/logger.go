package audit

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventSessionCreate       EventType = "session_create"
	EventSessionDelete       EventType = "session_delete"
	EventInterviewStart      EventType = "interview_start"
	EventForceEnd            EventType = "force_end"
	EventSecurityTermination EventType = "security_termination"
	EventRateLimitExceed     EventType = "rate_limit_exceeded"
	EventEvaluationComplete  EventType = "evaluation_complete"
)

type Event struct {
	Type      EventType
	SessionID string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

func Log(event Event) {
	logger := log.With().
		Str("audit", "interview").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = r.RemoteAddr
	event.UserAgent = r.UserAgent()
	Log(event)
}
