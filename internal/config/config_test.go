package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("EvalTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{EvalTimeoutSecs: 120}
		assert.Equal(t, 120*time.Second, cfg.EvalTimeout())
	})

	t.Run("APITimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{APITimeoutSecs: 90}
		assert.Equal(t, 90*time.Second, cfg.APITimeout())
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			GeminiAPIKey:      "test-key",
			MaxInterviewTurns: 50,
			STierThreshold:    90,
			ATierThreshold:    80,
			BTierThreshold:    60,
		}
	}

	t.Run("accepts valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects missing API key", func(t *testing.T) {
		cfg := valid()
		cfg.GeminiAPIKey = "  "
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive turn budget", func(t *testing.T) {
		cfg := valid()
		cfg.MaxInterviewTurns = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unordered tier thresholds", func(t *testing.T) {
		cfg := valid()
		cfg.BTierThreshold = 95
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"PORT":                os.Getenv("PORT"),
		"GEMINI_API_KEY":      os.Getenv("GEMINI_API_KEY"),
		"MAX_INTERVIEW_TURNS": os.Getenv("MAX_INTERVIEW_TURNS"),
		"TEST_MODE":           os.Getenv("TEST_MODE"),
		"TERMINATION_PHRASES": os.Getenv("TERMINATION_PHRASES"),
		"LOG_LEVEL":           os.Getenv("LOG_LEVEL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Unsetenv("PORT")
		os.Unsetenv("MAX_INTERVIEW_TURNS")
		os.Unsetenv("TEST_MODE")
		os.Unsetenv("TERMINATION_PHRASES")
		os.Unsetenv("LOG_LEVEL")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, 50, cfg.MaxInterviewTurns)
		assert.Equal(t, "gemini-3-flash-preview", cfg.InterviewerModel)
		assert.Equal(t, "gemini-3-pro-preview", cfg.EvaluatorModel)
		assert.Equal(t, "/stop", cfg.TestModeEscape)
		assert.False(t, cfg.TestMode)
		assert.Equal(t, DefaultTerminationPhrases, cfg.TerminationPhrases)
	})

	t.Run("parses custom termination phrases", func(t *testing.T) {
		os.Setenv("TERMINATION_PHRASES", "goodbye|that is all")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"goodbye", "that is all"}, cfg.TerminationPhrases)
	})
}
