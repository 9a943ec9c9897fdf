package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muaviaUsmani/opsconsole/internal/logger"
	"github.com/muaviaUsmani/opsconsole/internal/model"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML config file
const ConfigFileEnv = "CONSOLE_CONFIG"

// Config holds all configuration for the console and the reference API backend
type Config struct {
	// APIBaseURL is where the console reaches the Task/Schedule API
	APIBaseURL string `yaml:"api_base_url"`
	// APIPort is the port the reference API backend listens on
	APIPort string `yaml:"api_port"`
	// RedisURL is the connection URL for the backend's Redis store
	RedisURL string `yaml:"redis_url"`
	// RequestTimeout bounds each HTTP request made by the console client
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// DetailPollInterval is the refresh period of an open detail view
	DetailPollInterval time.Duration `yaml:"detail_poll_interval"`
	// ListPollInterval is the refresh period of a sub-task list
	ListPollInterval time.Duration `yaml:"list_poll_interval"`
	// Viewer is the identity the console acts as
	Viewer model.Viewer `yaml:"viewer"`
	// Logging configuration
	Logging *logger.Config `yaml:"logging"`
}

// defaults returns the configuration used when neither file nor env sets a value
func defaults() *Config {
	return &Config{
		APIBaseURL:         "http://localhost:8080",
		APIPort:            "8080",
		RedisURL:           "redis://localhost:6379",
		RequestTimeout:     10 * time.Second,
		DetailPollInterval: 5 * time.Second,
		ListPollInterval:   10 * time.Second,
		Viewer:             model.Viewer{ID: 1},
		Logging:            logger.DefaultConfig(),
	}
}

// LoadConfig loads configuration: defaults, then the optional YAML file named by
// CONSOLE_CONFIG, then environment variable overrides.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.APIBaseURL = getEnv("API_BASE_URL", cfg.APIBaseURL)
	cfg.APIPort = getEnv("API_PORT", cfg.APIPort)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.DetailPollInterval = getEnvAsDuration("DETAIL_POLL_INTERVAL", cfg.DetailPollInterval)
	cfg.ListPollInterval = getEnvAsDuration("LIST_POLL_INTERVAL", cfg.ListPollInterval)
	cfg.Viewer.ID = int64(getEnvAsInt("VIEWER_ID", int(cfg.Viewer.ID)))
	cfg.Viewer.Name = getEnv("VIEWER_NAME", cfg.Viewer.Name)

	if roles := getEnvAsStringSlice("VIEWER_PROJECT_ROLES", nil); roles != nil {
		projects, err := parseProjectRoles(roles)
		if err != nil {
			return nil, fmt.Errorf("VIEWER_PROJECT_ROLES: %w", err)
		}
		cfg.Viewer.Projects = projects
	}

	loadLoggingConfig(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and ranges
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL cannot be empty")
	}
	if c.APIPort == "" {
		return fmt.Errorf("API_PORT cannot be empty")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.DetailPollInterval <= 0 {
		return fmt.Errorf("DETAIL_POLL_INTERVAL must be positive")
	}
	if c.ListPollInterval <= 0 {
		return fmt.Errorf("LIST_POLL_INTERVAL must be positive")
	}
	if err := c.Viewer.Validate(); err != nil {
		return fmt.Errorf("invalid viewer: %w", err)
	}
	if c.Logging == nil {
		return fmt.Errorf("logging config is missing")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	return nil
}

// loadFile merges a YAML file into cfg; keys absent from the file keep their current value
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// parseProjectRoles parses entries of the form "projectID:ROLE", e.g. "3:OWNER,3:DBA,9:DBA"
func parseProjectRoles(entries []string) (map[int64][]model.ProjectRole, error) {
	projects := make(map[int64][]model.ProjectRole)
	for _, entry := range entries {
		idStr, roleStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("entry %q is not projectID:ROLE", entry)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: invalid project ID: %w", entry, err)
		}
		role := model.ProjectRole(strings.ToUpper(strings.TrimSpace(roleStr)))
		if !role.Valid() {
			return nil, fmt.Errorf("entry %q: unknown role %q", entry, role)
		}
		projects[id] = append(projects[id], role)
	}
	return projects, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringSlice retrieves an environment variable as a comma-separated list
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// loadLoggingConfig applies LOG_* environment overrides on top of cfg
func loadLoggingConfig(cfg *logger.Config) {
	// Global settings
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Level = logger.LogLevel(level)
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Format = logger.LogFormat(format)
	}

	// Tier 1: Console
	cfg.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", cfg.Console.Enabled)
	cfg.Console.Color = getEnvAsBool("LOG_COLOR", cfg.Console.Color)
	cfg.Console.Output = getEnv("LOG_CONSOLE_OUTPUT", cfg.Console.Output)
	cfg.Console.BufferSize = getEnvAsInt("LOG_CONSOLE_BUFFER_SIZE", cfg.Console.BufferSize)
	cfg.Console.FlushInterval = getEnvAsDuration("LOG_CONSOLE_FLUSH_INTERVAL", cfg.Console.FlushInterval)

	// Tier 2: File
	cfg.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", cfg.File.Enabled)
	cfg.File.Path = getEnv("LOG_FILE_PATH", cfg.File.Path)
	cfg.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", cfg.File.MaxSizeMB)
	cfg.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", cfg.File.MaxBackups)
	cfg.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", cfg.File.MaxAgeDays)
	cfg.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", cfg.File.Compress)
	cfg.File.BufferSize = getEnvAsInt("LOG_FILE_BUFFER_SIZE", cfg.File.BufferSize)
	cfg.File.BatchSize = getEnvAsInt("LOG_FILE_BATCH_SIZE", cfg.File.BatchSize)
	cfg.File.BatchInterval = getEnvAsDuration("LOG_FILE_BATCH_INTERVAL", cfg.File.BatchInterval)
}
