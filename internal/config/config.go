package config

import (
	"fmt"
	"os"
)

// Config models config.yaml.
type Config struct {
	Server struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Timezone string `yaml:"timezone"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Provider string       `yaml:"provider"`
	Twilio   TwilioConfig `yaml:"twilio"`
}

type TwilioConfig struct {
	AccountSid string           `yaml:"account_sid"`
	AuthToken  string           `yaml:"auth_token"`
	Validation ValidationConfig `yaml:"validation"`

	// DefaultBehavior decides the outcome for numbers in neither list.
	DefaultBehavior    string   `yaml:"default_behavior"`
	RegisteredNumbers  []string `yaml:"registered_numbers"`
	AllowedFromNumbers []string `yaml:"allowed_from_numbers"`
	FailureNumbers     []string `yaml:"failure_numbers"`

	Callbacks CallbackConfig `yaml:"callbacks"`
}

type ValidationConfig struct {
	RequireAuth         *bool `yaml:"require_auth"`
	ValidatePhoneFormat *bool `yaml:"validate_phone_format"`
	CheckFromNumbers    *bool `yaml:"check_from_numbers"`
	RequireParameters   *bool `yaml:"require_parameters"`
}

// CallbackConfig uses pointer fields so an explicit 0 is distinct from
// an absent key; retry_attempts: 0 means one attempt, no retries.
type CallbackConfig struct {
	Enabled           *bool `yaml:"enabled"`
	DelaySeconds      *int  `yaml:"delay_seconds"`
	RetryAttempts     *int  `yaml:"retry_attempts"`
	RetryDelaySeconds *int  `yaml:"retry_delay_seconds"`
}

const (
	defaultDelaySeconds      = 2
	defaultRetryAttempts     = 3
	defaultRetryDelaySeconds = 5
)

func enabled(v *bool) bool { return v == nil || *v }

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

func (v ValidationConfig) RequireAuthEnabled() bool         { return enabled(v.RequireAuth) }
func (v ValidationConfig) ValidatePhoneFormatEnabled() bool { return enabled(v.ValidatePhoneFormat) }
func (v ValidationConfig) CheckFromNumbersEnabled() bool    { return enabled(v.CheckFromNumbers) }
func (v ValidationConfig) RequireParametersEnabled() bool   { return enabled(v.RequireParameters) }

func (c CallbackConfig) CallbacksEnabled() bool { return enabled(c.Enabled) }

func (c CallbackConfig) DelaySecondsOrDefault() int {
	return intOr(c.DelaySeconds, defaultDelaySeconds)
}

func (c CallbackConfig) RetryAttemptsOrDefault() int {
	return intOr(c.RetryAttempts, defaultRetryAttempts)
}

func (c CallbackConfig) RetryDelaySecondsOrDefault() int {
	return intOr(c.RetryDelaySeconds, defaultRetryDelaySeconds)
}

// Validate ensures the config meets required structure. Configuration
// errors are fatal at startup, never during entity processing.
func (c *Config) Validate() error {
	if c.Provider != "twilio" {
		return fmt.Errorf("unsupported provider: %s (only 'twilio' is supported)", c.Provider)
	}
	if c.Twilio.DefaultBehavior != "success" && c.Twilio.DefaultBehavior != "failure" {
		return fmt.Errorf("twilio.default_behavior must be 'success' or 'failure', got: %s", c.Twilio.DefaultBehavior)
	}
	if c.Twilio.Validation.RequireAuthEnabled() {
		if c.Twilio.AccountSid == "" || c.Twilio.AccountSid == "ACXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX" {
			return fmt.Errorf("twilio.account_sid must be set when require_auth is enabled")
		}
		if c.Twilio.AuthToken == "" || c.Twilio.AuthToken == "your_auth_token_here" {
			return fmt.Errorf("twilio.auth_token must be set when require_auth is enabled")
		}
	}
	if c.Twilio.Callbacks.DelaySecondsOrDefault() < 0 {
		return fmt.Errorf("twilio.callbacks.delay_seconds must not be negative")
	}
	if c.Twilio.Callbacks.RetryAttemptsOrDefault() < 0 {
		return fmt.Errorf("twilio.callbacks.retry_attempts must not be negative")
	}
	if c.Twilio.Callbacks.RetryDelaySecondsOrDefault() < 0 {
		return fmt.Errorf("twilio.callbacks.retry_delay_seconds must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// Load reads and validates config from path, falling back to
// $SMSMOCK_CONFIG then ./config.yaml.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SMSMOCK_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with smsmock config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  host: 0.0.0.0
  port: 8080
  timezone: UTC

database:
  path: ./data/smsmock.db

provider: twilio

twilio:
  account_sid: AC00000000000000000000000000000000
  auth_token: test_auth_token

  validation:
    require_auth: true
    validate_phone_format: true
    check_from_numbers: true
    require_parameters: true

  # Outcome for numbers in neither list below.
  default_behavior: success

  # Numbers that always progress to a successful terminal status.
  registered_numbers:
    - "+15005550006"

  # Numbers allowed as From.
  allowed_from_numbers:
    - "+15005550001"

  # Numbers that always fail. Takes precedence over registered_numbers.
  failure_numbers:
    - "+15005550009"

  callbacks:
    enabled: true
    delay_seconds: 2
    retry_attempts: 3
    retry_delay_seconds: 5
`

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}
