// Package config loads service configuration from defaults, an optional YAML
// file and AMBER_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys are separated by a double underscore, e.g. AMBER_DATABASE__URL.
const EnvPrefix = "AMBER_"

// Config is the root configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Log          LogConfig          `koanf:"log"`
	CORS         CORSConfig         `koanf:"cors"`
	Auth         AuthConfig         `koanf:"auth"`
	Distribution DistributionConfig `koanf:"distribution"`
	Email        EmailConfig        `koanf:"email"`
	SMS          SMSConfig          `koanf:"sms"`
	Push         PushConfig         `koanf:"push"`
	Social       SocialConfig       `koanf:"social"`
	Webhook      WebhookConfig      `koanf:"webhook"`
	Redis        RedisConfig        `koanf:"redis"`
	Kafka        KafkaConfig        `koanf:"kafka"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSecret     string        `koanf:"jwt_secret"`
	Issuer        string        `koanf:"issuer"`
	TokenDuration time.Duration `koanf:"token_duration"`
}

// DistributionConfig tunes the distribution worker.
type DistributionConfig struct {
	PollInterval   time.Duration `koanf:"poll_interval"`
	BatchSize      int           `koanf:"batch_size"`
	Concurrency    int           `koanf:"concurrency"`
	MaxRetries     int           `koanf:"max_retries"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	StaleAfter     time.Duration `koanf:"stale_after"`
	DefaultTimeout time.Duration `koanf:"default_timeout"`
	// Timeouts overrides DefaultTimeout per channel, keyed by channel name.
	Timeouts map[string]time.Duration `koanf:"timeouts"`
}

// EmailConfig configures the SMTP relay used by the email and media channels.
type EmailConfig struct {
	Enabled      bool          `koanf:"enabled"`
	SMTPHost     string        `koanf:"smtp_host"`
	SMTPPort     int           `koanf:"smtp_port"`
	SMTPUser     string        `koanf:"smtp_user"`
	SMTPPassword string        `koanf:"smtp_password"`
	FromAddress  string        `koanf:"from_address"`
	BatchSize    int           `koanf:"batch_size"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
}

// SMSConfig configures the SMS gateway.
type SMSConfig struct {
	Enabled    bool          `koanf:"enabled"`
	GatewayURL string        `koanf:"gateway_url"`
	APIKey     string        `koanf:"api_key"`
	From       string        `koanf:"from"`
	RateLimit  float64       `koanf:"rate_limit"`
	Timeout    time.Duration `koanf:"timeout"`
}

// PushConfig configures the push notification gateway.
type PushConfig struct {
	Enabled    bool          `koanf:"enabled"`
	GatewayURL string        `koanf:"gateway_url"`
	APIKey     string        `koanf:"api_key"`
	BatchSize  int           `koanf:"batch_size"`
	Timeout    time.Duration `koanf:"timeout"`
}

// SocialConfig configures the social media publishing API.
type SocialConfig struct {
	Enabled     bool          `koanf:"enabled"`
	APIURL      string        `koanf:"api_url"`
	APIKey      string        `koanf:"api_key"`
	LinkBaseURL string        `koanf:"link_base_url"`
	RateLimit   float64       `koanf:"rate_limit"`
	Timeout     time.Duration `koanf:"timeout"`
}

// WebhookConfig configures outbound partner webhooks.
type WebhookConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"user_agent"`
}

// RedisConfig configures the subscriber list cache.
type RedisConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
}

// KafkaConfig configures the audit event mirror.
type KafkaConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	ClientID string   `koanf:"client_id"`
}

// Default returns the configuration used when nothing overrides a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectAttempts: 5,
			ConnectTimeout:  30 * time.Second,
			AutoMigrate:     true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			Issuer:        "amber-relay",
			TokenDuration: time.Hour,
		},
		Distribution: DistributionConfig{
			PollInterval:   time.Minute,
			BatchSize:      50,
			Concurrency:    10,
			MaxRetries:     3,
			RetryBaseDelay: time.Minute,
			StaleAfter:     15 * time.Minute,
			DefaultTimeout: time.Minute,
			Timeouts: map[string]time.Duration{
				"webhook": 30 * time.Second,
				"email":   5 * time.Minute,
				"sms":     5 * time.Minute,
				"push":    5 * time.Minute,
			},
		},
		Email: EmailConfig{
			SMTPPort:    587,
			BatchSize:   50,
			DialTimeout: 10 * time.Second,
		},
		SMS: SMSConfig{
			RateLimit: 10,
			Timeout:   10 * time.Second,
		},
		Push: PushConfig{
			BatchSize: 500,
			Timeout:   10 * time.Second,
		},
		Social: SocialConfig{
			RateLimit: 1,
			Timeout:   10 * time.Second,
		},
		Webhook: WebhookConfig{
			Timeout:   30 * time.Second,
			UserAgent: "AmberRelay/1.0",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  30 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:    "amber.distribution.events",
			ClientID: "amber-relay",
		},
	}
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment are used.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps AMBER_DISTRIBUTION__BATCH_SIZE to distribution.batch_size.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 characters"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	d := c.Distribution
	if d.PollInterval <= 0 {
		errs = append(errs, errors.New("distribution.poll_interval must be positive"))
	}
	if d.BatchSize <= 0 {
		errs = append(errs, errors.New("distribution.batch_size must be positive"))
	}
	if d.Concurrency <= 0 {
		errs = append(errs, errors.New("distribution.concurrency must be positive"))
	}
	if d.MaxRetries < 0 {
		errs = append(errs, errors.New("distribution.max_retries must not be negative"))
	}
	if d.RetryBaseDelay <= 0 {
		errs = append(errs, errors.New("distribution.retry_base_delay must be positive"))
	}
	if longest := d.longestSend(); d.StaleAfter < longest+staleMargin {
		errs = append(errs, fmt.Errorf("distribution.stale_after %s must be at least %s (longest send timeout %s plus %s)",
			d.StaleAfter, longest+staleMargin, longest, staleMargin))
	}

	if c.Email.Enabled && (c.Email.SMTPHost == "" || c.Email.FromAddress == "") {
		errs = append(errs, errors.New("email.smtp_host and email.from_address are required when email is enabled"))
	}
	if c.SMS.Enabled && c.SMS.GatewayURL == "" {
		errs = append(errs, errors.New("sms.gateway_url is required when sms is enabled"))
	}
	if c.Push.Enabled && c.Push.GatewayURL == "" {
		errs = append(errs, errors.New("push.gateway_url is required when push is enabled"))
	}
	if c.Social.Enabled && c.Social.APIURL == "" {
		errs = append(errs, errors.New("social.api_url is required when social is enabled"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.topic are required when kafka is enabled"))
	}

	return errors.Join(errs...)
}

// staleMargin leaves room to record a send outcome before the unit counts as stale.
const staleMargin = time.Minute

func (d DistributionConfig) longestSend() time.Duration {
	longest := d.DefaultTimeout
	for _, t := range d.Timeouts {
		longest = max(longest, t)
	}
	return longest
}
