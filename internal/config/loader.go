package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by defaults in main.
type Config struct {
	Addr                string   `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir           string   `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	CatalogURL          string   `json:"catalog_url" yaml:"catalog_url" toml:"catalog_url"`
	DownloadConcurrency int      `json:"download_concurrency" yaml:"download_concurrency" toml:"download_concurrency"`
	DownloadRetries     int      `json:"download_retries" yaml:"download_retries" toml:"download_retries"`
	MemoryMarginMB      int      `json:"memory_margin_mb" yaml:"memory_margin_mb" toml:"memory_margin_mb"`
	Engine              string   `json:"engine" yaml:"engine" toml:"engine"`
	CORSEnabled         bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins         []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
