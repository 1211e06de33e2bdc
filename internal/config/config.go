package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	TextGen   TextGenConfig   `mapstructure:",squash"`
	Channel   ChannelConfig   `mapstructure:",squash"`
	Mail      MailConfig      `mapstructure:",squash"`
	Business  BusinessConfig  `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
}

type ServerConfig struct {
	Port string `mapstructure:"SERVER_PORT"`
	Host string `mapstructure:"SERVER_HOST"`
	Env  string `mapstructure:"ENV"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"STORE_DRIVER"`
	URL             string `mapstructure:"DATABASE_URL"`
	MaxOpenConns    int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime string `mapstructure:"DB_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	URL        string `mapstructure:"REDIS_URL"`
	LockDriver string `mapstructure:"LOCK_DRIVER"`
}

type SchedulerConfig struct {
	Timezone   string `mapstructure:"SCHEDULER_TIMEZONE"`
	SweepAt    string `mapstructure:"SWEEP_AT"`
	ReminderAt string `mapstructure:"REMINDER_AT"`
	JobTimeout string `mapstructure:"JOB_TIMEOUT"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type TextGenConfig struct {
	Provider      string `mapstructure:"TEXTGEN_PROVIDER"`
	Timeout       string `mapstructure:"TEXTGEN_TIMEOUT"`
	OllamaBaseURL string `mapstructure:"OLLAMA_BASE_URL"`
	OllamaModel   string `mapstructure:"OLLAMA_MODEL"`
	GeminiAPIKey  string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel   string `mapstructure:"GEMINI_MODEL"`
}

type ChannelConfig struct {
	Driver          string `mapstructure:"CHANNEL_DRIVER"`
	CredentialsPath string `mapstructure:"CHANNEL_CREDENTIALS_PATH"`
	TypingDelay     string `mapstructure:"CHANNEL_TYPING_DELAY"`
	SendsPerMinute  int    `mapstructure:"CHANNEL_SENDS_PER_MINUTE"`
}

type MailConfig struct {
	Driver       string `mapstructure:"MAIL_DRIVER"`
	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`
}

type BusinessConfig struct {
	Name string `mapstructure:"BUSINESS_NAME"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]any{
	"SERVER_PORT":              "8080",
	"SERVER_HOST":              "0.0.0.0",
	"ENV":                      "development",
	"STORE_DRIVER":             "postgres",
	"DATABASE_URL":             "",
	"DB_MAX_OPEN_CONNS":        25,
	"DB_MAX_IDLE_CONNS":        5,
	"DB_CONN_MAX_LIFETIME":     "5m",
	"REDIS_URL":                "",
	"LOCK_DRIVER":              "local",
	"SCHEDULER_TIMEZONE":       "America/Bogota",
	"SWEEP_AT":                 "01:00",
	"REMINDER_AT":              "08:00",
	"JOB_TIMEOUT":              "10m",
	"LOG_LEVEL":                "info",
	"LOG_FORMAT":               "json",
	"TEXTGEN_PROVIDER":         "none",
	"TEXTGEN_TIMEOUT":          "10s",
	"OLLAMA_BASE_URL":          "http://localhost:11434",
	"OLLAMA_MODEL":             "llama3",
	"GEMINI_API_KEY":           "",
	"GEMINI_MODEL":             "gemini-1.5-flash",
	"BUSINESS_NAME":            "Rapi-Credi",
	"CHANNEL_DRIVER":           "log",
	"CHANNEL_CREDENTIALS_PATH": "./data/channel-credentials",
	"CHANNEL_TYPING_DELAY":     "2s",
	"CHANNEL_SENDS_PER_MINUTE": 20,
	"MAIL_DRIVER":              "log",
	"AMQP_URL":                 "",
	"AMQP_EXCHANGE":            "collections.outbox",
	"HEALTH_CHECK_TIMEOUT":     "5s",
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// A missing .env is fine; real environment variables win over it.
	_ = godotenv.Load()
	_ = godotenv.Load("deployments/.env")

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}

func duration(key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", key)
	}
	return nil
}

func clock(key, value string) error {
	if _, err := time.Parse("15:04", value); err != nil {
		return fmt.Errorf("%s must be HH:MM: %w", key, err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if err := oneOf("STORE_DRIVER", c.Database.Driver, "postgres", "memory"); err != nil {
		return err
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
	}

	if err := oneOf("LOCK_DRIVER", c.Redis.LockDriver, "local", "redis"); err != nil {
		return err
	}
	if c.Redis.LockDriver == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when LOCK_DRIVER=redis")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA zone: %w", err)
	}
	if err := clock("SWEEP_AT", c.Scheduler.SweepAt); err != nil {
		return err
	}
	if err := clock("REMINDER_AT", c.Scheduler.ReminderAt); err != nil {
		return err
	}

	if err := oneOf("TEXTGEN_PROVIDER", c.TextGen.Provider, "none", "ollama", "gemini"); err != nil {
		return err
	}
	if c.TextGen.Provider == "gemini" && c.TextGen.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when TEXTGEN_PROVIDER=gemini")
	}

	if err := oneOf("CHANNEL_DRIVER", c.Channel.Driver, "whatsapp", "log"); err != nil {
		return err
	}
	if c.Channel.Driver == "whatsapp" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when CHANNEL_DRIVER=whatsapp")
	}
	if c.Channel.SendsPerMinute < 0 {
		return fmt.Errorf("CHANNEL_SENDS_PER_MINUTE must not be negative")
	}

	if err := oneOf("MAIL_DRIVER", c.Mail.Driver, "log", "amqp"); err != nil {
		return err
	}
	if c.Mail.Driver == "amqp" && c.Mail.AMQPURL == "" {
		return fmt.Errorf("AMQP_URL is required when MAIL_DRIVER=amqp")
	}

	for key, value := range map[string]string{
		"DB_CONN_MAX_LIFETIME": c.Database.ConnMaxLifetime,
		"JOB_TIMEOUT":          c.Scheduler.JobTimeout,
		"TEXTGEN_TIMEOUT":      c.TextGen.Timeout,
		"CHANNEL_TYPING_DELAY": c.Channel.TypingDelay,
		"HEALTH_CHECK_TIMEOUT": c.Health.Timeout,
	} {
		if err := duration(key, value); err != nil {
			return err
		}
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// Location returns the business timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c *Config) GetConnMaxLifetime() time.Duration { return mustDuration(c.Database.ConnMaxLifetime) }
func (c *Config) GetJobTimeout() time.Duration      { return mustDuration(c.Scheduler.JobTimeout) }
func (c *Config) GetTextGenTimeout() time.Duration  { return mustDuration(c.TextGen.Timeout) }
func (c *Config) GetTypingDelay() time.Duration     { return mustDuration(c.Channel.TypingDelay) }

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	return mustDuration(c.Health.Timeout)
}
