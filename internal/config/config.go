package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Detection DetectionConfig `yaml:"detection"`
	Filter    FilterConfig    `yaml:"filter,omitempty"`
	Input     InputConfig     `yaml:"input,omitempty"`
	Output    OutputConfig    `yaml:"output,omitempty"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "hash" | "openai" | "volcengine"

	APIKey    string `yaml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"` // read the key from this variable when api_key is empty
	Endpoint  string `yaml:"endpoint,omitempty"`
	Model     string `yaml:"model,omitempty"`

	Dimensions        int     `yaml:"dimensions"`
	BatchSize         int     `yaml:"batch_size"`
	TimeoutSecs       int     `yaml:"timeout_secs,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	MaxRetries        int     `yaml:"max_retries,omitempty"`
}

// DetectionConfig holds duplicate detection settings
type DetectionConfig struct {
	Threshold float64 `yaml:"threshold"`
	Metric    string  `yaml:"metric"`
	Workers   int     `yaml:"workers,omitempty"`
	BatchSize int     `yaml:"batch_size,omitempty"` // rows per comparison batch
}

// FilterConfig holds the optional SimHash blocking filter settings
type FilterConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Bands       int    `yaml:"bands,omitempty"`
	Rows        int    `yaml:"rows,omitempty"`
	Seed        uint64 `yaml:"seed,omitempty"`
	AuditSample int    `yaml:"audit_sample,omitempty"`
}

// InputConfig describes how records are read from files
type InputConfig struct {
	Format      string `yaml:"format,omitempty"` // "auto" | "csv" | "jsonl" | "text"
	IDColumn    string `yaml:"id_column,omitempty"`
	TextColumn  string `yaml:"text_column,omitempty"`
	LabelColumn string `yaml:"label_column,omitempty"`
}

// OutputConfig controls reports and run history
type OutputConfig struct {
	Format      string `yaml:"format,omitempty"` // "text" | "json" | "csv"
	History     bool   `yaml:"history"`
	HistoryPath string `yaml:"history_path,omitempty"`
}

// Defaults used by applyDefaults.
const (
	DefaultThreshold   = 0.85
	DefaultWorkers     = 4
	DefaultBatchSize   = 64
	DefaultBands       = 24
	DefaultRows        = 6
	DefaultSeed        = 0x5eed
	DefaultAuditSample = 1000
	DefaultDimensions  = 256
)

// DefaultPath returns ~/.doubles/config/doubles.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".doubles", "config", "doubles.yaml"), nil
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	configPath, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromFile(configPath)
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			defaultPath, _ := DefaultPath()
			return nil, &ConfigNotFoundError{
				RequestedPath: path,
				DefaultPath:   defaultPath,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied. It is used
// when no config file exists and the offline hash provider is enough.
func Default() *Config {
	cfg := &Config{Output: OutputConfig{History: true}}
	_ = cfg.applyDefaults()
	return cfg
}

// ConfigNotFoundError is returned when config file is not found
type ConfigNotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Create the config file at the default location\n"+
		"  2. Specify a custom path with -config flag\n"+
		"  3. Run 'doubles init' to write a template",
		e.RequestedPath, e.DefaultPath)
}

// IsConfigNotFound checks if error is config not found
func IsConfigNotFound(err error) bool {
	var target *ConfigNotFoundError
	return errors.As(err, &target)
}

// expandPath expands ~ and $HOME to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() error {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "hash"
	}
	c.Embedding.Provider = strings.ToLower(c.Embedding.Provider)

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.Model == "" {
			c.Embedding.Model = "text-embedding-3-small"
		}
		if c.Embedding.Endpoint == "" {
			c.Embedding.Endpoint = "https://api.openai.com/v1/embeddings"
		}
		if c.Embedding.APIKeyEnv == "" {
			c.Embedding.APIKeyEnv = "OPENAI_API_KEY"
		}
	case "volcengine":
		if c.Embedding.Model == "" {
			c.Embedding.Model = "doubao-embedding-vision-250615"
		}
		if c.Embedding.Endpoint == "" {
			c.Embedding.Endpoint = "https://ark.cn-beijing.volces.com/api/v3/embeddings/multimodal"
		}
		if c.Embedding.APIKeyEnv == "" {
			c.Embedding.APIKeyEnv = "ARK_API_KEY"
		}
		if c.Embedding.Dimensions == 0 {
			c.Embedding.Dimensions = 2048
		}
	case "hash":
		if c.Embedding.Dimensions == 0 {
			c.Embedding.Dimensions = DefaultDimensions
		}
	}

	if c.Embedding.APIKey == "" && c.Embedding.APIKeyEnv != "" {
		c.Embedding.APIKey = os.Getenv(c.Embedding.APIKeyEnv)
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 10
	}
	if c.Embedding.TimeoutSecs == 0 {
		c.Embedding.TimeoutSecs = 30
	}
	if c.Embedding.MaxRetries == 0 {
		c.Embedding.MaxRetries = 3
	}

	if c.Detection.Threshold == 0 {
		c.Detection.Threshold = DefaultThreshold
	}
	if c.Detection.Metric == "" {
		c.Detection.Metric = "cosine"
	}
	if c.Detection.Workers == 0 {
		c.Detection.Workers = DefaultWorkers
	}
	if c.Detection.BatchSize == 0 {
		c.Detection.BatchSize = DefaultBatchSize
	}

	if c.Filter.Bands == 0 {
		c.Filter.Bands = DefaultBands
	}
	if c.Filter.Rows == 0 {
		c.Filter.Rows = DefaultRows
	}
	if c.Filter.Seed == 0 {
		c.Filter.Seed = DefaultSeed
	}
	if c.Filter.AuditSample == 0 {
		c.Filter.AuditSample = DefaultAuditSample
	}

	if c.Input.Format == "" {
		c.Input.Format = "auto"
	}

	if c.Output.Format == "" {
		c.Output.Format = "text"
	}
	if c.Output.HistoryPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.Output.HistoryPath = filepath.Join(homeDir, ".doubles", "data", "history.db")
	} else {
		c.Output.HistoryPath = expandPath(c.Output.HistoryPath)
	}

	return nil
}

// Validate validates the configuration. The threshold is only checked for
// being a number here; its range belongs to the metric and is enforced when
// the run is built.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "hash":
	case "openai", "volcengine":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("%s provider requires api_key (or %s in the environment)",
				c.Embedding.Provider, c.Embedding.APIKeyEnv)
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("dimensions must not be negative, got: %d", c.Embedding.Dimensions)
	}
	if c.Embedding.Provider == "hash" && c.Embedding.Dimensions < 8 {
		return fmt.Errorf("hash provider needs at least 8 dimensions, got: %d", c.Embedding.Dimensions)
	}

	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 2048 {
		return fmt.Errorf("batch_size must be between 1 and 2048, got: %d", c.Embedding.BatchSize)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative, got: %v", c.Embedding.RequestsPerSecond)
	}
	if c.Embedding.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got: %d", c.Embedding.MaxRetries)
	}

	if c.Detection.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got: %d", c.Detection.Workers)
	}
	if c.Detection.BatchSize < 0 {
		return fmt.Errorf("detection batch_size must not be negative, got: %d", c.Detection.BatchSize)
	}

	if c.Filter.Enabled {
		if c.Filter.Bands <= 0 {
			return fmt.Errorf("filter bands must be positive, got: %d", c.Filter.Bands)
		}
		if c.Filter.Rows <= 0 || c.Filter.Rows > 64 {
			return fmt.Errorf("filter rows must be between 1 and 64, got: %d", c.Filter.Rows)
		}
	}

	switch c.Input.Format {
	case "auto", "csv", "jsonl", "text":
	default:
		return fmt.Errorf("unsupported input format: %s", c.Input.Format)
	}

	switch c.Output.Format {
	case "text", "json", "csv":
	default:
		return fmt.Errorf("unsupported output format: %s", c.Output.Format)
	}

	return nil
}

// Save saves the configuration to the default location
func (c *Config) Save() error {
	configPath, err := DefaultPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return c.SaveToFile(configPath)
}

// SaveToFile saves the configuration to a specific file. A key loaded from
// api_key_env is not written back.
func (c *Config) SaveToFile(path string) error {
	out := *c
	if out.Embedding.APIKeyEnv != "" && out.Embedding.APIKey == os.Getenv(out.Embedding.APIKeyEnv) {
		out.Embedding.APIKey = ""
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

const defaultConfigTemplate = `# doubles configuration
#
# Default location: $HOME/.doubles/config/doubles.yaml

embedding:
  # Provider: "hash" (offline, lexical), "openai" or "volcengine"
  provider: hash
  dimensions: 256
  batch_size: 10

  # OpenAI-compatible endpoint (alternative)
  # provider: openai
  # api_key_env: OPENAI_API_KEY
  # model: text-embedding-3-small
  # endpoint: https://api.openai.com/v1/embeddings
  # dimensions: 1536
  # batch_size: 100
  # requests_per_second: 5
  # max_retries: 3

  # VolcEngine (alternative)
  # provider: volcengine
  # api_key_env: ARK_API_KEY
  # model: doubao-embedding-vision-250615
  # dimensions: 2048

detection:
  # Pairs scoring at or above the threshold are duplicates.
  threshold: 0.85
  metric: cosine
  workers: 4
  batch_size: 64

# Optional SimHash blocking. Skipped pairs are never compared, so recall
# can drop; the report shows the miss bound and an audit of skipped pairs.
filter:
  enabled: false
  bands: 24
  rows: 6
  audit_sample: 1000

input:
  format: auto
  # Empty columns fall back to id, text|question and label|answer.
  # id_column: id
  # text_column: text
  # label_column: answer

output:
  format: text
  history: true
  # history_path: ~/.doubles/data/history.db
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
