// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or /etc/poping/config.yaml)
//  3. Default values
//
// Main categories:
//   - Server: listen address, CORS, proxy trust
//   - Storage: PostgreSQL connection
//   - OpenAI: completion provider (model, temperature, token budget, timeout)
//   - AIGents: streaming provider (base URL, timeout)
//   - Auth: JWT secret and token lifetime
//
// Sensitive values (API key, JWT secret, database password) are masked in
// MarshalJSON and String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	ErrMissingAPIKey      = errors.New("missing OpenAI API key")
	ErrInvalidBaseURL     = errors.New("invalid base URL")
	ErrInvalidTemperature = errors.New("invalid temperature")
	ErrInvalidMaxTokens   = errors.New("invalid max tokens")
	ErrInvalidPostgres    = errors.New("invalid PostgreSQL configuration")
	ErrMissingJWTSecret   = errors.New("missing JWT secret")
	ErrInvalidJWTSecret   = errors.New("JWT secret too short")
)

// DefaultHistoryWindow is the number of transcript messages loaded as model
// context for each send.
const DefaultHistoryWindow = 10

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets, update MarshalJSON.
type Config struct {
	// Server configuration
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// PostgreSQL
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// OpenAI completion provider
	OpenAI OpenAIConfig `mapstructure:"openai" json:"openai"`

	// AIGents streaming provider
	AIGents AIGentsConfig `mapstructure:"aigents" json:"aigents"`

	// Auth
	JWTSecret       string        `mapstructure:"jwt_secret" json:"jwt_secret"` // SENSITIVE
	TokenTTL        time.Duration `mapstructure:"token_ttl" json:"token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl" json:"refresh_token_ttl"`

	// Dataset upload storage
	UploadDir string `mapstructure:"upload_dir" json:"upload_dir"`

	// Conversation context window (messages)
	HistoryWindow int `mapstructure:"history_window" json:"history_window"`
}

// OpenAIConfig configures the stateless chat-completion provider.
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key" json:"api_key"` // SENSITIVE
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Model       string        `mapstructure:"model" json:"model"`
	MaxTokens   int           `mapstructure:"max_tokens" json:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" json:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
}

// AIGentsConfig configures the session-based streaming provider.
type AIGentsConfig struct {
	BaseURL string        `mapstructure:"base_url" json:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/poping")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 60)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "poping")
	v.SetDefault("postgres_password", "poping_dev_password")
	v.SetDefault("postgres_db_name", "poping")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 2048)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.timeout", 30*time.Second)

	v.SetDefault("aigents.base_url", "http://localhost:9300")
	v.SetDefault("aigents.timeout", 60*time.Second)

	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("history_window", DefaultHistoryWindow)
}

// bindEnvVariables binds secrets and deploy-time overrides explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai.api_key", "OPENAI_API_KEY")
	mustBind("openai.base_url", "OPENAI_BASE_URL")
	mustBind("aigents.base_url", "AIGENTS_BASE_URL")
	mustBind("jwt_secret", "POPING_JWT_SECRET")
	mustBind("postgres_password", "POPING_POSTGRES_PASSWORD")
	mustBind("listen_addr", "POPING_LISTEN_ADDR")
	mustBind("cors_origins", "POPING_CORS_ORIGINS")
	mustBind("trust_proxy", "POPING_TRUST_PROXY")
}

// Validate performs fail-fast validation of the loaded configuration.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return ErrMissingAPIKey
	}
	if _, err := url.ParseRequestURI(c.OpenAI.BaseURL); err != nil {
		return fmt.Errorf("%w: openai.base_url %q", ErrInvalidBaseURL, c.OpenAI.BaseURL)
	}
	if _, err := url.ParseRequestURI(c.AIGents.BaseURL); err != nil {
		return fmt.Errorf("%w: aigents.base_url %q", ErrInvalidBaseURL, c.AIGents.BaseURL)
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("%w: %v (want 0..2)", ErrInvalidTemperature, c.OpenAI.Temperature)
	}
	if c.OpenAI.MaxTokens <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTokens, c.OpenAI.MaxTokens)
	}
	if c.PostgresHost == "" || c.PostgresDBName == "" {
		return ErrInvalidPostgres
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < 32 {
		return ErrInvalidJWTSecret
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	return nil
}

// DatabaseURL returns the postgres:// connection URL assembled from the
// individual settings.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.JWTSecret = maskSecret(a.JWTSecret)
	a.OpenAI.APIKey = maskSecret(a.OpenAI.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
