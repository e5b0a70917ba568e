package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Log        LogConfig
	Proxy      ProxyConfig
	Retry      RetryConfig
	Registry   RegistryConfig
	Agent      AgentConfig
	Tools      ToolsConfig
	Notify     NotifyConfig
	Backup     BackupConfig
	Attachment AttachmentConfig
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

// ProxyConfig describes the OpenAI-compatible gateway the bridge talks to.
// Temperature and TopP are passed through when non-zero.
type ProxyConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Temperature    float64       `mapstructure:"temperature"`
	TopP           float64       `mapstructure:"top_p"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	ThinkingBudget int           `mapstructure:"thinking_budget"` // reasoning token budget, 0 disables
}

type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Delay      time.Duration `mapstructure:"delay"`
}

type RegistryConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type AgentConfig struct {
	SystemPrompt       string          `mapstructure:"system_prompt"`
	MaxToolRounds      int             `mapstructure:"max_tool_rounds"`
	ContextTokenBudget int             `mapstructure:"context_token_budget"`
	StripFields        []string        `mapstructure:"strip_fields"` // removed from prior tool-result payloads
	CachePrompt        bool            `mapstructure:"cache_prompt"` // attach a cache hint to the system prompt
	Guardrail          GuardrailConfig `mapstructure:"guardrail"`
}

type GuardrailConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Identifier string        `mapstructure:"identifier"`
	Version    string        `mapstructure:"version"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ToolsConfig declares the tools offered to the model and the commands that
// execute them.
type ToolsConfig struct {
	Timeout     time.Duration    `mapstructure:"timeout"`
	Definitions []ToolDefinition `mapstructure:"definitions"`
}

// ToolDefinition binds one advertised tool to an executable. Parameters is
// the JSON-schema properties map for the tool's input; a definition without
// parameters is advertised with an empty object schema.
type ToolDefinition struct {
	Name        string         `mapstructure:"name"`
	Description string         `mapstructure:"description"`
	Command     []string       `mapstructure:"command"`
	Parameters  map[string]any `mapstructure:"parameters"`
	Required    []string       `mapstructure:"required"`
}

type NotifyConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Backend string      `mapstructure:"backend"` // log, email
	Email   EmailConfig `mapstructure:"email"`
}

type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type BackupConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

type AttachmentConfig struct {
	MaxPDFPages int `mapstructure:"max_pdf_pages"`
	MaxSizeMB   int `mapstructure:"max_size_mb"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "console")

	viper.SetDefault("proxy.timeout", 30*time.Second)

	viper.SetDefault("retry.max_retries", 3)
	viper.SetDefault("retry.delay", 2*time.Second)

	viper.SetDefault("registry.ttl", time.Minute)

	viper.SetDefault("agent.max_tool_rounds", 10)
	viper.SetDefault("agent.context_token_budget", 64000)
	viper.SetDefault("agent.strip_fields", []string{"trace"})
	viper.SetDefault("agent.guardrail.timeout", 10*time.Second)

	viper.SetDefault("tools.timeout", 60*time.Second)

	viper.SetDefault("notify.backend", "log")

	viper.SetDefault("attachment.max_pdf_pages", 20)
	viper.SetDefault("attachment.max_size_mb", 32)
}

// Validate rejects configurations the bridge cannot start with. Model may be
// empty here; submissions without a model are rejected at call time instead.
func (c *Config) Validate() error {
	if c.Proxy.BaseURL == "" {
		return fmt.Errorf("proxy.base_url is required")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay must not be negative")
	}
	if c.Agent.MaxToolRounds <= 0 {
		return fmt.Errorf("agent.max_tool_rounds must be greater than 0")
	}
	if c.Agent.Guardrail.Enabled {
		if c.Agent.Guardrail.Endpoint == "" {
			return fmt.Errorf("agent.guardrail.endpoint is required when the guardrail is enabled")
		}
		if c.Agent.Guardrail.Identifier == "" || c.Agent.Guardrail.Version == "" {
			return fmt.Errorf("agent.guardrail.identifier and version are required when the guardrail is enabled")
		}
	}
	if c.Notify.Enabled && c.Notify.Backend == "email" {
		if c.Notify.Email.Host == "" || c.Notify.Email.From == "" || len(c.Notify.Email.To) == 0 {
			return fmt.Errorf("notify.email.host, from and to are required for the email backend")
		}
	}
	if c.Backup.Enabled {
		if c.Backup.Endpoint == "" || c.Backup.Bucket == "" {
			return fmt.Errorf("backup.endpoint and bucket are required when backup is enabled")
		}
	}
	return nil
}
