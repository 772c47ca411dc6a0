package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/klappy/obt-helper-gpt/internal/models"
)

var (
	ErrMissingOpenAIKey = models.ConfigError{Message: "missing OpenAI API key"}
	ErrMissingStorePath = models.ConfigError{Message: "missing sqlite store path"}
	ErrMissingBucket    = models.ConfigError{Message: "missing S3 bucket"}
)

// LoadConfig reads the JSON config file, applies defaults, environment
// overrides, and validation. Secrets come from the environment and never
// need to live in the file.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port == "" {
		c.Server.Port = "8082"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Store.Prefix == "" {
		c.Store.Prefix = "obt-helper"
	}
	if c.OpenAI.DefaultModel == "" {
		c.OpenAI.DefaultModel = "gpt-4o-mini"
	}
	if c.OpenAI.TimeoutSec <= 0 {
		c.OpenAI.TimeoutSec = 60
	}
	if c.Session.InactivityTimeoutMin <= 0 {
		c.Session.InactivityTimeoutMin = 30
	}
	if c.Session.CleanupAfterDays <= 0 {
		c.Session.CleanupAfterDays = 7
	}
	if c.Session.HistoryLimit <= 0 {
		c.Session.HistoryLimit = 20
	}
	if c.Session.ContextWindow <= 0 {
		c.Session.ContextWindow = 10
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "obt-helper"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 0.1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.OpenAI.APIKey = key
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.OpenAI.BaseURL = url
	}
	if sid := os.Getenv("TWILIO_ACCOUNT_SID"); sid != "" {
		c.Twilio.AccountSID = sid
	}
	if token := os.Getenv("TWILIO_AUTH_TOKEN"); token != "" {
		c.Twilio.AuthToken = token
	}
	if number := os.Getenv("TWILIO_PHONE_NUMBER"); number != "" {
		c.Twilio.PhoneNumber = number
	}
	if password := os.Getenv("OBT_ADMIN_PASSWORD"); password != "" {
		c.Server.AdminPassword = password
	}
	if path := os.Getenv("OBT_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if bucket := os.Getenv("OBT_STORE_BUCKET"); bucket != "" {
		c.Store.Bucket = bucket
	}
	if region := os.Getenv("AWS_REGION"); region != "" && c.Store.Region == "" {
		c.Store.Region = region
	}
	if level := os.Getenv("OBT_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

func validate(c *models.Config) error {
	if c.OpenAI.APIKey == "" {
		return ErrMissingOpenAIKey
	}

	switch strings.ToLower(c.Store.Backend) {
	case "sqlite":
		if c.Store.Path == "" {
			return ErrMissingStorePath
		}
	case "s3":
		if c.Store.Bucket == "" {
			return ErrMissingBucket
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown store backend: %s", c.Store.Backend)}
	}

	if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
		fmt.Fprintf(os.Stderr, "WARNING: Twilio credentials not set. WhatsApp channel will be unavailable.\n")
	}
	if c.Server.AdminPassword == "" {
		fmt.Fprintf(os.Stderr, "WARNING: admin password not set. Admin endpoints will reject all requests.\n")
	}

	if os.Getenv("OBT_ENV") == "production" && c.LogLevel == "debug" {
		return models.ConfigError{Message: "debug logging should not be used in production"}
	}

	return nil
}
