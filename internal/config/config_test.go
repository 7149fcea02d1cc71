package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTOFILL_AI_ENABLED", "false")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.AI.Threshold)
	assert.Equal(t, 5*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Detect.PollInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Detect.Debounce)
	assert.Equal(t, 100*time.Millisecond, cfg.Fill.BlurDelay)
	assert.Equal(t, 3, cfg.Detect.MaxDepth)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTOFILL_AI_CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("AUTOFILL_DEBOUNCE", "1s")
	t.Setenv("AUTOFILL_API_URL", "https://app.example.com")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.85, cfg.AI.Threshold)
	assert.Equal(t, time.Second, cfg.Detect.Debounce)
	assert.True(t, cfg.RemoteEnabled())
}

func TestValidate(t *testing.T) {
	t.Setenv("AUTOFILL_AI_CONFIDENCE_THRESHOLD", "1.5")
	t.Setenv("LOG_FORMAT", "console")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTOFILL_AI_CONFIDENCE_THRESHOLD")
}

func TestLLM(t *testing.T) {
	cfg := &Config{AI: AIConfig{Enabled: true, Provider: "Gemini"}, Provider: ProviderKeys{GeminiKey: "g", GeminiModel: "m"}}
	lc, err := cfg.LLM()
	require.NoError(t, err)
	assert.Equal(t, "gemini", lc.Provider)
	assert.Equal(t, "g", lc.APIKey)
	assert.Equal(t, "m", lc.Model)

	cfg.AI.Provider = "openai"
	_, err = cfg.LLM()
	assert.ErrorContains(t, err, "OPENAI_API_KEY")

	cfg.AI.Provider = ""
	cfg.Provider.AnthropicKey = "a"
	lc, err = cfg.LLM()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", lc.Provider)
}
