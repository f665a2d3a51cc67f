// Package config loads runtime configuration from the environment.
// All values have working defaults except the LLM API key.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime settings for the discovery service.
type Config struct {
	// LLM provider
	LLMModel   string
	LLMAPIKey  string
	LLMBaseURL string // optional override for self-hosted gateways

	// Pipeline tuning
	MaxResults         int
	RelevanceThreshold float64
	MinSimilarity      float64
	SummaryStyle       string

	// Session lifecycle
	SessionDeactivateAfter time.Duration
	SweepInterval          time.Duration

	// UI value lists
	Countries    []string
	ServiceTypes []string

	// Weaviate profile index
	WeaviateScheme string
	WeaviateHost   string
	WeaviateClass  string

	// HTTP
	HTTPPort      string
	CookieSecret  string
	GrowbalPortal string // base URL for provider deep-links

	// AuthUsers is the credential list, "email:password:owner_id" entries
	// separated by commas. A real deployment points this at a secret.
	AuthUsers string
}

// Default value lists shown in the country / service-type dropdowns.
var (
	defaultCountries = []string{
		"UAE", "Saudi Arabia", "Qatar", "Bahrain", "Kuwait", "Oman",
	}
	defaultServiceTypes = []string{
		"Tax Services", "Legal Services", "Accounting", "Business Setup",
		"Visa Services", "Marketing",
	}
)

// Load reads configuration from environment variables.
// Returns an error only for values that cannot be defaulted.
func Load() (*Config, error) {
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}

	maxResults, err := intEnv("MAX_RESULTS", 7)
	if err != nil {
		return nil, err
	}
	threshold, err := floatEnv("RELEVANCE_THRESHOLD", 0.7)
	if err != nil {
		return nil, err
	}
	minSim, err := floatEnv("MIN_SIMILARITY", 0.5)
	if err != nil {
		return nil, err
	}
	deactivateAfter, err := durationEnv("SESSION_DEACTIVATE_AFTER", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := durationEnv("SWEEP_INTERVAL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		LLMModel:   getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:  apiKey,
		LLMBaseURL: os.Getenv("LLM_BASE_URL"),

		MaxResults:         maxResults,
		RelevanceThreshold: threshold,
		MinSimilarity:      minSim,
		SummaryStyle:       getEnvOrDefault("SUMMARY_STYLE", "comprehensive"),

		SessionDeactivateAfter: deactivateAfter,
		SweepInterval:          sweepInterval,

		Countries:    listEnv("COUNTRY_LIST", defaultCountries),
		ServiceTypes: listEnv("SERVICE_TYPE_LIST", defaultServiceTypes),

		WeaviateScheme: getEnvOrDefault("WEAVIATE_SCHEME", "http"),
		WeaviateHost:   getEnvOrDefault("WEAVIATE_HOST", "localhost:8080"),
		WeaviateClass:  getEnvOrDefault("WEAVIATE_CLASS", "ProviderProfile"),

		HTTPPort:      getEnvOrDefault("HTTP_PORT", "8000"),
		CookieSecret:  getEnvOrDefault("COOKIE_SECRET", "dev-only-secret"),
		GrowbalPortal: getEnvOrDefault("GROWBAL_PORTAL_URL", "https://growbal.io"),

		AuthUsers: getEnvOrDefault("AUTH_USERS", "demo@growbal.io:demo:1"),
	}, nil
}

// AllowedCountry reports whether the country is in the configured list.
func (c *Config) AllowedCountry(country string) bool {
	return contains(c.Countries, country)
}

// AllowedServiceType reports whether the service type is in the configured list.
func (c *Config) AllowedServiceType(serviceType string) bool {
	return contains(c.ServiceTypes, serviceType)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intEnv(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func durationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func listEnv(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
