package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
)

// Config represents the application configuration.
type Config struct {
	Storage     StorageConfig               `yaml:"storage"`
	Git         GitConfig                   `yaml:"git"`
	Credentials map[string]CredentialConfig `yaml:"credentials,omitempty"`
	Catalogue   CatalogueConfig             `yaml:"catalogue"`
	LLM         LLMConfig                   `yaml:"llm"`
	Generation  GenerationConfig            `yaml:"generation"`
	Scheduler   SchedulerConfig             `yaml:"scheduler"`
	Notify      NotifyConfig                `yaml:"notify"`
	Metrics     MetricsConfig               `yaml:"metrics"`
	Logging     LoggingConfig               `yaml:"logging"`
}

// StorageConfig selects where jobs, documents and catalogue nodes are kept.
type StorageConfig struct {
	Path string `yaml:"path"` // SQLite database file; ":memory:" for ephemeral runs
}

// GitConfig controls source acquisition.
type GitConfig struct {
	Workspace    string `yaml:"workspace"`
	ShallowDepth int    `yaml:"shallow_depth,omitempty"`
}

// CredentialConfig is resolved by handle from a job's source descriptor.
type CredentialConfig struct {
	Type     AuthType `yaml:"type"` // "token", "basic", "ssh"
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Token    string   `yaml:"token,omitempty"`
	KeyPath  string   `yaml:"key_path,omitempty"`
}

// AuthType enumerates supported credential kinds.
type AuthType string

const (
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
	AuthTypeSSH   AuthType = "ssh"
)

// CatalogueConfig controls the filesystem scan and its rendering.
type CatalogueConfig struct {
	Format       CatalogueFormat `yaml:"format"`
	Ignore       []string        `yaml:"ignore,omitempty"`
	MaxDepth     int             `yaml:"max_depth,omitempty"`
	MaxEntries   int             `yaml:"max_entries,omitempty"`
	SummaryLimit int             `yaml:"summary_limit,omitempty"` // bytes of README used as repository summary
}

// LLMConfig selects the text-generation backend.
type LLMConfig struct {
	Provider          string     `yaml:"provider"` // openai | anthropic | ollama
	Model             string     `yaml:"model"`
	Endpoint          string     `yaml:"endpoint,omitempty"`
	APIKey            string     `yaml:"api_key,omitempty"`
	RequestsPerSecond float64    `yaml:"requests_per_second,omitempty"`
	Burst             int        `yaml:"burst,omitempty"`
	RegistrySize      int        `yaml:"registry_size,omitempty"`
	Options           LLMOptions `yaml:"options"`
}

// LLMOptions are the recognized per-call options.
type LLMOptions struct {
	MaxTokens   int      `yaml:"max_tokens,omitempty"` // 0 = per-model default
	Temperature float64  `yaml:"temperature,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
}

// GenerationConfig controls the content generation engine.
type GenerationConfig struct {
	Concurrency    int              `yaml:"concurrency"`
	MaxAttempts    int              `yaml:"max_attempts"`
	RetryBackoff   RetryBackoffMode `yaml:"retry_backoff"`
	RetryBaseDelay Duration         `yaml:"retry_base_delay"`
	RetryMaxDelay  Duration         `yaml:"retry_max_delay"`
	Refine         bool             `yaml:"refine"`
	Language       string           `yaml:"language,omitempty"`
}

// SchedulerConfig controls job pick-up and the incremental-update sweep.
type SchedulerConfig struct {
	Workers       int      `yaml:"workers"`
	IdleBackoff   Duration `yaml:"idle_backoff"`
	Lease         Duration `yaml:"lease"` // claim lease; an expired lease lets another worker resume the job
	StaleAfter    Duration `yaml:"stale_after"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// NotifyConfig enables lifecycle event publishing.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig exposes Prometheus metrics when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// LoggingConfig controls log level, format and optional JSON file output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
	File   string    `yaml:"file,omitempty"`
}

// Load loads configuration from the specified file, applies defaults and validates it.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, derrors.ConfigNotFound(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML (after environment expansion), applies defaults and validates.
// Unknown keys are rejected rather than silently ignored.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	_ = applyDefaults(&cfg)
	return &cfg
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Default()
	example.LLM.APIKey = "${OPENAI_API_KEY}"
	example.Credentials = map[string]CredentialConfig{
		"github": {Type: AuthTypeToken, Token: "${GITHUB_TOKEN}"},
	}
	example.Metrics.Listen = ":9464"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
