package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, 7, cfg.MaxResults)
	assert.InDelta(t, 0.7, cfg.RelevanceThreshold, 1e-9)
	assert.InDelta(t, 0.5, cfg.MinSimilarity, 1e-9)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionDeactivateAfter)
	assert.NotEmpty(t, cfg.Countries)
	assert.NotEmpty(t, cfg.ServiceTypes)
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("LLM_MODEL", "gpt-4o")
	t.Setenv("MAX_RESULTS", "12")
	t.Setenv("RELEVANCE_THRESHOLD", "0.85")
	t.Setenv("SESSION_DEACTIVATE_AFTER", "48h")
	t.Setenv("COUNTRY_LIST", "UAE, Qatar")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLMModel)
	assert.Equal(t, 12, cfg.MaxResults)
	assert.InDelta(t, 0.85, cfg.RelevanceThreshold, 1e-9)
	assert.Equal(t, 48*time.Hour, cfg.SessionDeactivateAfter)
	assert.Equal(t, []string{"UAE", "Qatar"}, cfg.Countries)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad max results", "MAX_RESULTS", "seven"},
		{"bad threshold", "RELEVANCE_THRESHOLD", "high"},
		{"bad duration", "SESSION_DEACTIVATE_AFTER", "7 days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LLM_API_KEY", "test-key")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestAllowedValues(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.AllowedCountry("UAE"))
	assert.True(t, cfg.AllowedCountry("uae")) // case-insensitive
	assert.False(t, cfg.AllowedCountry("Atlantis"))
	assert.True(t, cfg.AllowedServiceType("Tax Services"))
	assert.False(t, cfg.AllowedServiceType("Dragon Taming"))
}
