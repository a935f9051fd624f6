package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	NewsAPI   NewsAPIConfig   `mapstructure:"newsapi"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains the LLM provider configuration.
type LLMConfig struct {
	Type         string        `mapstructure:"type"` // openai (or any compatible endpoint)
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// NewsAPIConfig contains news-search API settings.
type NewsAPIConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	PageSize     int           `mapstructure:"page_size"`
	MaxPages     int           `mapstructure:"max_pages"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// SessionsConfig controls conversation storage and expiry.
type SessionsConfig struct {
	Backend   string         `mapstructure:"backend"` // inmemory, redis, postgres
	TTL       time.Duration  `mapstructure:"ttl"`
	SweepCron string         `mapstructure:"sweep_cron"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig contains postgres connection settings.
type PostgresConfig struct {
	URL     string `mapstructure:"url"`
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"password"`
	DBName  string `mapstructure:"dbname"`
	SSLMode string `mapstructure:"sslmode"`
}

// DSN assembles a postgres connection string from URL or discrete fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (sessions.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Pass, p.Host, port, p.DBName, ssl), nil
}

// AgentConfig bounds the orchestrator loop.
type AgentConfig struct {
	MaxIterations   int           `mapstructure:"max_iterations"`
	ToolConcurrency int           `mapstructure:"tool_concurrency"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// TelemetryConfig contains monitoring settings.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	LogFile string `mapstructure:"log_file"`
}

// LoadConfig reads configuration from file (optional) and environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("NEWSAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":10010")

	v.SetDefault("llm.type", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_backoff", "500ms")

	v.SetDefault("newsapi.base_url", "https://newsapi.org/v2")
	v.SetDefault("newsapi.page_size", 100)
	v.SetDefault("newsapi.max_pages", 5)
	v.SetDefault("newsapi.timeout", "30s")
	v.SetDefault("newsapi.max_retries", 2)
	v.SetDefault("newsapi.retry_backoff", "300ms")

	v.SetDefault("sessions.backend", "inmemory")
	v.SetDefault("sessions.ttl", "30m")
	v.SetDefault("sessions.sweep_cron", "@hourly")
	v.SetDefault("sessions.redis.addr", "localhost:6379")
	v.SetDefault("sessions.redis.db", 0)

	v.SetDefault("agent.max_iterations", 8)
	v.SetDefault("agent.tool_concurrency", 3)
	v.SetDefault("agent.request_timeout", "2m")

	v.SetDefault("telemetry.enabled", true)
}

// overrideFromEnv honors the bare provider env vars for sensitive keys.
func overrideFromEnv(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.NewsAPI.APIKey == "" {
		cfg.NewsAPI.APIKey = os.Getenv("NEWS_API_KEY")
	}
	if cfg.Sessions.Postgres.URL == "" {
		cfg.Sessions.Postgres.URL = os.Getenv("DATABASE_URL")
	}
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	switch c.Sessions.Backend {
	case "inmemory", "redis", "postgres":
	default:
		return fmt.Errorf("sessions.backend must be inmemory, redis or postgres, got %q", c.Sessions.Backend)
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	if c.Agent.ToolConcurrency <= 0 {
		return fmt.Errorf("agent.tool_concurrency must be positive")
	}
	if c.NewsAPI.PageSize <= 0 || c.NewsAPI.PageSize > 100 {
		return fmt.Errorf("newsapi.page_size must be in 1..100")
	}
	if c.NewsAPI.MaxPages <= 0 {
		return fmt.Errorf("newsapi.max_pages must be positive")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}
