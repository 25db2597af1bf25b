package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// configNames are the file names probed, in order, in each config location.
var configNames = []string{"config.json", "config.toml", "config.yaml", "config.yml"}

// projectNames are the project-level file names probed in the working directory.
var projectNames = []string{"assetpipe.json", "assetpipe.toml", "assetpipe.yaml", "assetpipe.yml"}

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed files return an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: $XDG_CONFIG_HOME/assetpipe/config.{json,toml,yaml,yml}
// Project: assetpipe.{json,toml,yaml,yml} in the working directory, unless
// projectPath is non-empty.
func LoadDefault(projectPath string) (*Config, error) {
	globalPath := GlobalPath()
	if projectPath == "" {
		projectPath = firstExisting(".", projectNames)
	}
	return Load(globalPath, projectPath)
}

// GlobalPath returns the first existing global config file, or the JSON
// location when none exists yet.
func GlobalPath() string {
	dir := filepath.Join(xdg.ConfigHome, "assetpipe")
	if p := firstExisting(dir, configNames); p != "" {
		return p
	}
	return filepath.Join(dir, configNames[0])
}

func firstExisting(dir string, names []string) string {
	for _, name := range names {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// mergeConfigFile decodes a config file on top of base. Fields absent from the
// file keep their current value; map entries present in the file replace the
// existing entry. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := decode(path, data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// decode picks the format from the file extension.
func decode(path string, data []byte, into *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, into)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, into)
	case ".json", "":
		return json.Unmarshal(data, into)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}
