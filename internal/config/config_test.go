package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemini-chat/backend/internal/model/chat"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "AI_PROVIDER", "GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL",
		"AI_TEMPERATURE", "AI_TOP_K", "AI_TOP_P", "AI_MAX_OUTPUT_TOKENS", "AI_TIMEOUT",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "ARK_MODEL", "CHAT_GREETING",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, chat.DefaultGreeting, cfg.Session.Greeting)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, DefaultGeminiModel, cfg.AI.Gemini.Model)
	assert.Equal(t, DefaultGeminiBaseURL, cfg.AI.Gemini.BaseURL)
	assert.Equal(t, float32(0.9), cfg.AI.Temperature)
	assert.Equal(t, 1, cfg.AI.TopK)
	assert.Equal(t, float32(1), cfg.AI.TopP)
	assert.Equal(t, 2048, cfg.AI.MaxOutputTokens)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.False(t, cfg.AI.Enabled(), "no api key configured")
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("GEMINI_API_KEY", " secret ")
	t.Setenv("GEMINI_BASE_URL", "http://localhost:1234/")
	t.Setenv("AI_TEMPERATURE", "0.2")
	t.Setenv("AI_TOP_K", "40")
	t.Setenv("AI_MAX_OUTPUT_TOKENS", "512")
	t.Setenv("AI_TIMEOUT", "15")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.AI.Gemini.APIKey)
	assert.Equal(t, "http://localhost:1234", cfg.AI.Gemini.BaseURL)
	assert.Equal(t, float32(0.2), cfg.AI.Temperature)
	assert.Equal(t, 40, cfg.AI.TopK)
	assert.Equal(t, 512, cfg.AI.MaxOutputTokens)
	assert.Equal(t, 15*time.Second, cfg.AI.Timeout)
	assert.True(t, cfg.AI.Enabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"AI_TEMPERATURE":       "warm",
		"AI_TOP_K":             "one",
		"AI_MAX_OUTPUT_TOKENS": "0",
		"AI_TIMEOUT":           "soon",
		"AI_PROVIDER":          "openai",
		"PORT":                 "80 80",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestArkEnabledNeedsModelAndCredentials(t *testing.T) {
	cfg := AIConfig{Provider: ProviderArk, Ark: ArkConfig{Model: "doubao"}}
	assert.False(t, cfg.Enabled())

	cfg.Ark.AccessKey = "ak"
	assert.False(t, cfg.Enabled())

	cfg.Ark.SecretKey = "sk"
	assert.True(t, cfg.Enabled())
}

func TestStringDoesNotLeakKey(t *testing.T) {
	cfg := AIConfig{Provider: ProviderGemini, Gemini: GeminiConfig{APIKey: "AIza-secret", Model: "m"}}
	assert.NotContains(t, cfg.String(), "AIza-secret")
}
