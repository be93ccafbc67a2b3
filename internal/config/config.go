package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config contains all configuration for the research assistant
type Config struct {
	Model     ModelConfig     `mapstructure:"model" yaml:"model" toml:"model" json:"model"`
	Email     EmailConfig     `mapstructure:"email" yaml:"email" toml:"email" json:"email"`
	GitHub    GitHubConfig    `mapstructure:"github" yaml:"github" toml:"github" json:"github"`
	Team      TeamConfig      `mapstructure:"team" yaml:"team" toml:"team" json:"team"`
	Memory    MemoryConfig    `mapstructure:"memory" yaml:"memory" toml:"memory" json:"memory"`
	Crawler   CrawlerConfig   `mapstructure:"crawler" yaml:"crawler" toml:"crawler" json:"crawler"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport" toml:"transport" json:"transport"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server" toml:"server" json:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" toml:"log" json:"log"`
}

// ModelConfig configures the shared language model backend
type ModelConfig struct {
	Provider     string  `mapstructure:"provider" yaml:"provider" toml:"provider" json:"provider" validate:"required,oneof=openai gemini ollama"`
	Name         string  `mapstructure:"name" yaml:"name" toml:"name" json:"name" validate:"required"`
	APIKey       string  `mapstructure:"api_key" yaml:"api_key,omitempty" toml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL      string  `mapstructure:"base_url" yaml:"base_url,omitempty" toml:"base_url,omitempty" json:"base_url,omitempty" validate:"omitempty,url"`
	GeminiAPIKey string  `mapstructure:"gemini_api_key" yaml:"gemini_api_key,omitempty" toml:"gemini_api_key,omitempty" json:"gemini_api_key,omitempty"`
	Temperature  float32 `mapstructure:"temperature" yaml:"temperature" toml:"temperature" json:"temperature" validate:"min=0,max=2"`
	MaxTokens    int     `mapstructure:"max_tokens" yaml:"max_tokens" toml:"max_tokens" json:"max_tokens" validate:"min=0"`
}

// EmailConfig configures the Resend email capability
type EmailConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key" yaml:"resend_api_key,omitempty" toml:"resend_api_key,omitempty" json:"resend_api_key,omitempty"`
	From         string `mapstructure:"from" yaml:"from" toml:"from" json:"from"`
	To           string `mapstructure:"to" yaml:"to" toml:"to" json:"to"`
	BaseURL      string `mapstructure:"base_url" yaml:"base_url" toml:"base_url" json:"base_url" validate:"required,url"`
}

// GitHubConfig configures the GitHub capability
type GitHubConfig struct {
	AccessToken string `mapstructure:"access_token" yaml:"access_token,omitempty" toml:"access_token,omitempty" json:"access_token,omitempty"`
	BaseURL     string `mapstructure:"base_url" yaml:"base_url" toml:"base_url" json:"base_url" validate:"required,url"`
}

// TeamConfig configures the coordinator and its members
type TeamConfig struct {
	Routing               string `mapstructure:"routing" yaml:"routing" toml:"routing" json:"routing" validate:"required,oneof=model rules"`
	HistoryRuns           int    `mapstructure:"history_runs" yaml:"history_runs" toml:"history_runs" json:"history_runs" validate:"min=0,max=50"`
	MemberHistoryRuns     int    `mapstructure:"member_history_runs" yaml:"member_history_runs" toml:"member_history_runs" json:"member_history_runs" validate:"min=0,max=50"`
	GeneralHistoryRuns    int    `mapstructure:"general_history_runs" yaml:"general_history_runs" toml:"general_history_runs" json:"general_history_runs" validate:"min=0,max=50"`
	MaxToolRounds         int    `mapstructure:"max_tool_rounds" yaml:"max_tool_rounds" toml:"max_tool_rounds" json:"max_tool_rounds" validate:"min=1,max=20"`
	DelegationConcurrency int    `mapstructure:"delegation_concurrency" yaml:"delegation_concurrency" toml:"delegation_concurrency" json:"delegation_concurrency" validate:"min=1,max=16"`
	ShowMemberResponses   bool   `mapstructure:"show_member_responses" yaml:"show_member_responses" toml:"show_member_responses" json:"show_member_responses"`
}

// MemoryConfig selects and configures the conversation memory backend
type MemoryConfig struct {
	Backend            string       `mapstructure:"backend" yaml:"backend" toml:"backend" json:"backend" validate:"required,oneof=memory sqlite milvus"`
	SQLitePath         string       `mapstructure:"sqlite_path" yaml:"sqlite_path" toml:"sqlite_path" json:"sqlite_path" validate:"required_if=Backend sqlite"`
	Milvus             MilvusConfig `mapstructure:"milvus" yaml:"milvus" toml:"milvus" json:"milvus"`
	EmbeddingModel     string       `mapstructure:"embedding_model" yaml:"embedding_model" toml:"embedding_model" json:"embedding_model"`
	EmbeddingDimension int          `mapstructure:"embedding_dimension" yaml:"embedding_dimension" toml:"embedding_dimension" json:"embedding_dimension" validate:"min=1,max=4096"`
}

// MilvusConfig configures the semantic memory index
type MilvusConfig struct {
	Address    string `mapstructure:"address" yaml:"address" toml:"address" json:"address"`
	Collection string `mapstructure:"collection" yaml:"collection" toml:"collection" json:"collection"`
	Recreate   bool   `mapstructure:"recreate" yaml:"recreate" toml:"recreate" json:"recreate"`
}

// CrawlerConfig configures the web crawler capability
type CrawlerConfig struct {
	Mode              string        `mapstructure:"mode" yaml:"mode" toml:"mode" json:"mode" validate:"required,oneof=http browser"`
	MaxLength         int           `mapstructure:"max_length" yaml:"max_length" toml:"max_length" json:"max_length" validate:"min=0"`
	BrowserControlURL string        `mapstructure:"browser_control_url" yaml:"browser_control_url,omitempty" toml:"browser_control_url,omitempty" json:"browser_control_url,omitempty"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout" toml:"timeout" json:"timeout"`
}

// TransportConfig configures retries and pacing of outbound requests
type TransportConfig struct {
	RetryMax          int           `mapstructure:"retry_max" yaml:"retry_max" toml:"retry_max" json:"retry_max" validate:"min=0,max=10"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff" toml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff" yaml:"max_backoff" toml:"max_backoff" json:"max_backoff"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second" validate:"min=0"`
	Burst             int           `mapstructure:"burst" yaml:"burst" toml:"burst" json:"burst" validate:"min=1"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout" toml:"timeout" json:"timeout"`
}

// ServerConfig configures the web interaction shell
type ServerConfig struct {
	Address      string        `mapstructure:"address" yaml:"address" toml:"address" json:"address" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" toml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" toml:"write_timeout" json:"write_timeout"`
}

// LogConfig configures the zerolog logger
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" toml:"level" json:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" toml:"format" json:"format" validate:"required,oneof=json console"`
}

// envBindings maps config keys to the environment variables that feed them.
var envBindings = map[string]string{
	"model.name":           "MODEL_NAME",
	"model.api_key":        "OPENAI_API_KEY",
	"model.base_url":       "OPENAI_BASE_URL",
	"model.provider":       "MODEL_PROVIDER",
	"model.gemini_api_key": "GEMINI_API_KEY",
	"email.resend_api_key": "RESEND_API_KEY",
	"email.from":           "EMAIL_FROM",
	"email.to":             "EMAIL_TO",
	"github.access_token":  "GITHUB_ACCESS_TOKEN",
	"team.routing":         "TEAM_ROUTING",
	"memory.backend":       "MEMORY_BACKEND",
	"server.address":       "SERVER_ADDRESS",
	"log.level":            "LOG_LEVEL",
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    "openai",
			Name:        "gpt-4o-mini",
			Temperature: 0.3,
		},
		Email: EmailConfig{
			BaseURL: "https://api.resend.com",
		},
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com",
		},
		Team: TeamConfig{
			Routing:               "model",
			HistoryRuns:           5,
			MemberHistoryRuns:     3,
			GeneralHistoryRuns:    5,
			MaxToolRounds:         6,
			DelegationConcurrency: 4,
			ShowMemberResponses:   false,
		},
		Memory: MemoryConfig{
			Backend:    "memory",
			SQLitePath: "research-assistant.db",
			Milvus: MilvusConfig{
				Address:    "localhost:19530",
				Collection: "team_memories",
			},
			EmbeddingModel:     "text-embedding-3-small",
			EmbeddingDimension: 1536,
		},
		Crawler: CrawlerConfig{
			Mode:      "http",
			MaxLength: 0,
			Timeout:   30 * time.Second,
		},
		Transport: TransportConfig{
			RetryMax:          3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			Timeout:           120 * time.Second,
		},
		Server: ServerConfig{
			Address:      "localhost:8501",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, an optional config file and the
// environment. A .env file in the working directory is applied first and
// overrides variables already present in the process environment.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := DefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadDotEnv copies the variables of a dotenv file into the process
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	for _, key := range v.AllKeys() {
		if err := os.Setenv(strings.ToUpper(key), v.GetString(key)); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// Validate validates the configuration. Credentials are not checked here;
// a capability without its credential fails when it is first used.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Memory.Backend == "milvus" {
		if c.Memory.Milvus.Address == "" {
			return fmt.Errorf("memory.milvus.address is required for the milvus backend")
		}
		if c.Memory.Milvus.Collection == "" {
			return fmt.Errorf("memory.milvus.collection is required for the milvus backend")
		}
	}

	if c.Transport.MaxBackoff < c.Transport.InitialBackoff {
		return fmt.Errorf("transport.max_backoff must be >= transport.initial_backoff")
	}
	return nil
}

// MissingCredentials lists the environment variables of capabilities that
// will fail on first use.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.Model.Provider == "openai" && c.Model.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Model.Provider == "gemini" && c.Model.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.Email.ResendAPIKey == "" {
		missing = append(missing, "RESEND_API_KEY")
	}
	if c.Email.From == "" {
		missing = append(missing, "EMAIL_FROM")
	}
	if c.GitHub.AccessToken == "" {
		missing = append(missing, "GITHUB_ACCESS_TOKEN")
	}
	return missing
}

// SaveToFile saves the configuration. The extension picks the format: .toml
// and .json are honored, anything else is written as YAML.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		data, err = toml.Marshal(c)
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// String returns a string representation of the config (with sensitive data masked)
func (c *Config) String() string {
	configCopy := *c

	configCopy.Model.APIKey = mask(configCopy.Model.APIKey)
	configCopy.Model.GeminiAPIKey = mask(configCopy.Model.GeminiAPIKey)
	configCopy.Email.ResendAPIKey = mask(configCopy.Email.ResendAPIKey)
	configCopy.GitHub.AccessToken = mask(configCopy.GitHub.AccessToken)

	data, _ := json.MarshalIndent(configCopy, "", "  ")
	return string(data)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", len(s))
}
