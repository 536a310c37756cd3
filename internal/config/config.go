package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is read when Load is given no path.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	DatabasePath  string `yaml:"databasePath"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	LoanDays      int    `yaml:"loanDays"`
	ExtensionDays int    `yaml:"extensionDays"`
}

// Defaults is the configuration used for anything the file and the
// environment leave unset.
func Defaults() FileConfig {
	return FileConfig{
		DatabasePath:  "library.db",
		LogLevel:      "info",
		LogFormat:     "json",
		LoanDays:      7,
		ExtensionDays: 1,
	}
}

// Load reads config from path (defaults to config.yaml). A missing file is
// not an error: defaults and environment overrides still apply.
func Load(path string) (FileConfig, error) {
	cfg := Defaults()
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Override with environment variables
	if v := os.Getenv("LIBRARY_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("LIBRARY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LIBRARY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("LIBRARY_LOAN_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoanDays = n
		}
	}
	if v := os.Getenv("LIBRARY_EXTENSION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExtensionDays = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return errors.New("config: databasePath is required (set in config.yaml or LIBRARY_DB_PATH)")
	}
	if cfg.LoanDays <= 0 {
		return errors.New("config: loanDays must be > 0 (set in config.yaml or LIBRARY_LOAN_DAYS)")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: logFormat must be json or text, got %q", cfg.LogFormat)
	}
	return nil
}
