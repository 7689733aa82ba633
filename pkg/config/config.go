package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the bookmark fetcher
type Config struct {
	// Browser automation settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Persistent storage settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// BrowserConfig holds the driven-browser settings: which automation driver
// to resolve, where the upstream service lives and how its post-login
// locations are classified.
type BrowserConfig struct {
	Driver  string `yaml:"driver" json:"driver"`
	BaseURL string `yaml:"base_url" json:"base_url"`

	LoginPath     string `yaml:"login_path" json:"login_path"`
	BookmarksPath string `yaml:"bookmarks_path" json:"bookmarks_path"`

	// URL substrings used to classify the page location after login or a
	// step-up code submission. The upstream service has no typed error
	// responses for login outcomes, only redirect targets.
	HomePattern         string `yaml:"home_pattern" json:"home_pattern"`
	ConfirmationPattern string `yaml:"confirmation_pattern" json:"confirmation_pattern"`
	TwoFactorPattern    string `yaml:"two_factor_pattern" json:"two_factor_pattern"`

	// URL substring matched against in-flight requests to capture the
	// bookmarks timeline API exchange.
	BookmarksAPIPattern string `yaml:"bookmarks_api_pattern" json:"bookmarks_api_pattern"`

	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	CaptureTimeout    time.Duration `yaml:"capture_timeout" json:"capture_timeout"`
}

// StorageConfig holds persistent store configuration
type StorageConfig struct {
	// DatabasePath is the SQLite file location; InMemory overrides it for
	// ephemeral runs.
	DatabasePath string `yaml:"database_path" json:"database_path"`
	InMemory     bool   `yaml:"in_memory" json:"in_memory"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Driver:              "chromium",
			BaseURL:             "https://x.com",
			LoginPath:           "/i/flow/login",
			BookmarksPath:       "/i/bookmarks",
			HomePattern:         "/home",
			ConfirmationPattern: "/account/access",
			TwoFactorPattern:    "/account/login_challenge",
			BookmarksAPIPattern: "/i/api/graphql/",
			NavigationTimeout:   30 * time.Second,
			CaptureTimeout:      30 * time.Second,
		},
		Storage: StorageConfig{
			DatabasePath: "./bookmarks.db",
			InMemory:     false,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if driver := os.Getenv("XBOOKMARKS_DRIVER"); driver != "" {
		c.Browser.Driver = driver
	}
	if baseURL := os.Getenv("XBOOKMARKS_BASE_URL"); baseURL != "" {
		c.Browser.BaseURL = baseURL
	}
	if dbPath := os.Getenv("XBOOKMARKS_DATABASE_PATH"); dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}
	if inMemory := os.Getenv("XBOOKMARKS_IN_MEMORY"); inMemory != "" {
		c.Storage.InMemory = strings.ToLower(inMemory) == "true"
	}
	if captureTimeout := os.Getenv("XBOOKMARKS_CAPTURE_TIMEOUT"); captureTimeout != "" {
		d, err := time.ParseDuration(captureTimeout)
		if err != nil {
			return fmt.Errorf("invalid XBOOKMARKS_CAPTURE_TIMEOUT: %w", err)
		}
		c.Browser.CaptureTimeout = d
	}
	if logLevel := os.Getenv("XBOOKMARKS_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("XBOOKMARKS_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".xbookmarks.yaml",
		".xbookmarks.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "xbookmarks", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "xbookmarks", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".xbookmarks.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Browser.Driver == "" {
		errs = append(errs, errors.New("browser driver name is required"))
	}
	if c.Browser.BaseURL == "" {
		errs = append(errs, errors.New("base URL is required"))
	}
	if !strings.HasPrefix(c.Browser.BaseURL, "http://") && !strings.HasPrefix(c.Browser.BaseURL, "https://") {
		errs = append(errs, errors.New("base URL must start with http:// or https://"))
	}
	if c.Browser.HomePattern == "" || c.Browser.ConfirmationPattern == "" || c.Browser.TwoFactorPattern == "" {
		errs = append(errs, errors.New("all location classification patterns are required"))
	}
	if c.Browser.BookmarksAPIPattern == "" {
		errs = append(errs, errors.New("bookmarks API pattern is required"))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}
	if c.Browser.CaptureTimeout <= 0 {
		errs = append(errs, errors.New("capture timeout must be positive"))
	}

	if !c.Storage.InMemory && c.Storage.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required unless in-memory mode is set"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if driver, ok := flags["driver"].(string); ok && driver != "" {
		c.Browser.Driver = driver
	}
	if dbPath, ok := flags["database"].(string); ok && dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}
	if inMemory, ok := flags["in-memory"].(bool); ok {
		c.Storage.InMemory = inMemory
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".xbookmarks.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
