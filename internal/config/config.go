package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	AppBaseURL  string `env:"APP_BASE_URL"`
	DataDir     string `env:"DATA_DIR" envDefault:"data/interviews"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Generation service
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiBaseURL    string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	InterviewerModel string `env:"INTERVIEWER_MODEL" envDefault:"gemini-3-flash-preview"`
	EvaluatorModel   string `env:"EVALUATOR_MODEL" envDefault:"gemini-3-pro-preview"`
	APITimeoutSecs   int    `env:"API_TIMEOUT" envDefault:"120"`

	// Interview flow
	MaxInterviewTurns  int      `env:"MAX_INTERVIEW_TURNS" envDefault:"50"`
	EvalTimeoutSecs    int      `env:"EVALUATION_TIMEOUT" envDefault:"120"`
	TestMode           bool     `env:"TEST_MODE" envDefault:"false"`
	TestModeEscape     string   `env:"TEST_MODE_ESCAPE" envDefault:"/stop"`
	TerminationPhrases []string `env:"TERMINATION_PHRASES" envSeparator:"|"`

	// Scoring thresholds
	STierThreshold int `env:"S_TIER_THRESHOLD" envDefault:"90"`
	ATierThreshold int `env:"A_TIER_THRESHOLD" envDefault:"80"`
	BTierThreshold int `env:"B_TIER_THRESHOLD" envDefault:"60"`

	// Candidate-facing notification templates
	STierNotification   string `env:"S_TIER_NOTIFICATION" envDefault:"Congratulations! Your performance was outstanding and a perfect fit for our needs. We would like to invite you to speak directly with our CTO to explore the opportunity further."`
	DefaultNotification string `env:"DEFAULT_NOTIFICATION" envDefault:"Thank you for your time. Your interview has been recorded and HR will be in touch with you shortly."`

	// Admission control
	RateLimitRequests int `env:"RATE_LIMIT_REQUESTS" envDefault:"20"`
	RateLimitWindow   int `env:"RATE_LIMIT_WINDOW" envDefault:"60"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSecs) * time.Second
}

func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutSecs) * time.Second
}

func (c *Config) AddressWindow() time.Duration {
	return time.Duration(c.RateLimitWindow) * time.Second
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.MaxInterviewTurns <= 0 {
		return fmt.Errorf("MAX_INTERVIEW_TURNS must be positive")
	}
	if c.BTierThreshold > c.ATierThreshold || c.ATierThreshold > c.STierThreshold {
		return fmt.Errorf("tier thresholds must be ordered B <= A <= S (got B=%d A=%d S=%d)",
			c.BTierThreshold, c.ATierThreshold, c.STierThreshold)
	}
	if c.DatabaseURL == "" {
		log.Info().Str("dataDir", c.DataDir).Msg("DATABASE_URL not set: using file-based session store")
	}
	if c.RedisURL == "" {
		log.Debug().Msg("REDIS_URL not set: rate limits are per-process, effective limit scales with instance count")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.TerminationPhrases) == 0 {
		cfg.TerminationPhrases = DefaultTerminationPhrases
	}
	return &cfg, nil
}
