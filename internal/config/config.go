// Package config loads the orchestrator configuration from prime.yaml
// with environment overrides. Every knob has a default so the service
// boots with no config file at all.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Research ResearchConfig `mapstructure:"research"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Tools    ToolsConfig    `mapstructure:"tools"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	HealthPort int    `mapstructure:"health_port"`
	AuthToken  string `mapstructure:"auth_token"` // empty disables the bearer gate
}

type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	APIKeyEnv   string        `mapstructure:"api_key_env"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// Client-side request rate limit; zero disables.
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
}

type ResearchConfig struct {
	// SynthesisPreviewChars bounds how much of each finding's answer is
	// quoted into the synthesis prompt. Token-budget control, not a
	// correctness knob.
	SynthesisPreviewChars int           `mapstructure:"synthesis_preview_chars"`
	TaskStatusTTL         time.Duration `mapstructure:"task_status_ttl"`
	PersistReports        bool          `mapstructure:"persist_reports"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type ToolsConfig struct {
	ProjectRoot string `mapstructure:"project_root"`
}

// Load reads prime.yaml from CONFIG_PATH (or ./config/prime.yaml) and
// applies PRIME_* environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PRIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/prime.yaml"
	}
	v.SetConfigFile(cfgPath)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.auth_token", "")

	v.SetDefault("llm.base_url", "https://api.deepseek.com")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.api_key_env", "DEEPSEEK_API_KEY")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.85)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.rate_limit_per_second", 0)
	v.SetDefault("llm.rate_limit_burst", 1)

	v.SetDefault("research.synthesis_preview_chars", 800)
	v.SetDefault("research.task_status_ttl", 24*time.Hour)
	v.SetDefault("research.persist_reports", true)

	v.SetDefault("redis.url", "redis://redis:6379")

	v.SetDefault("postgres.host", "postgres")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "prime")
	v.SetDefault("postgres.password", "prime")
	v.SetDefault("postgres.database", "prime")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("temporal.host_port", "temporal:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "prime-research")

	v.SetDefault("tools.project_root", ".")
}
