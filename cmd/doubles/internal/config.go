package internal

import (
	"fmt"
	"os"

	"github.com/DreamCats/doubles/internal/config"
)

// LoadConfig reads the YAML config. Without an explicit path a missing
// default file is not an error: the offline defaults are returned instead.
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	cfg, err := config.Load()
	if config.IsConfigNotFound(err) {
		return config.Default(), nil
	}
	return cfg, err
}

// ConfigPath returns the path init writes to.
func ConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

// PrintConfigHint tells the user where the config lives.
func PrintConfigHint(path string) {
	fmt.Fprintf(os.Stderr, `Edit %s to choose an embedding provider.

The default provider "hash" works offline and catches near-identical
wording. For paraphrases use a model provider:

embedding:
  provider: openai
  api_key_env: OPENAI_API_KEY
  model: text-embedding-3-small
  dimensions: 1536

Keys may also live in a .env file in the working directory.
`, path)
}
