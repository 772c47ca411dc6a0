package models

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Store    StoreConfig    `json:"store"`
	OpenAI   OpenAIConfig   `json:"openai"`
	Twilio   TwilioConfig   `json:"twilio"`
	Session  SessionConfig  `json:"session"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          string `json:"port"`
	AdminPassword string `json:"admin_password"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	// Backend is "sqlite" or "s3".
	Backend string `json:"backend"`
	Path    string `json:"path"`
	Bucket  string `json:"bucket"`
	Prefix  string `json:"prefix"`
	Region  string `json:"region"`
	// Endpoint overrides the S3 endpoint for S3-compatible stores.
	Endpoint string `json:"endpoint"`
}

// OpenAIConfig holds LLM gateway settings.
type OpenAIConfig struct {
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	DefaultModel string `json:"default_model"`
	TimeoutSec   int    `json:"timeout_sec"`
}

// TwilioConfig holds messaging transport credentials.
type TwilioConfig struct {
	AccountSID  string `json:"account_sid"`
	AuthToken   string `json:"auth_token"`
	PhoneNumber string `json:"phone_number"`
}

// SessionConfig tunes session lifecycle behavior.
type SessionConfig struct {
	InactivityTimeoutMin int `json:"inactivity_timeout_min"`
	CleanupAfterDays     int `json:"cleanup_after_days"`
	HistoryLimit         int `json:"history_limit"`
	ContextWindow        int `json:"context_window"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

// ConfigError reports an invalid or incomplete configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
