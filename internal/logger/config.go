package logger

import (
	"fmt"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// LogSource separates internal diagnostics from the operator audit trail
type LogSource string

const (
	LogSourceInternal LogSource = "console_internal" // Internal system logs
	LogSourceAudit    LogSource = "console_audit"    // Operator actions (stop, approve, ...)
)

// Component identifies which part of the system generated the log
type Component string

const (
	ComponentAPI     Component = "api"
	ComponentStore   Component = "store"
	ComponentPoller  Component = "poller"
	ComponentDetail  Component = "detail"
	ComponentConsole Component = "console"
	ComponentClient  Component = "client"
	ComponentCLI     Component = "cli"
)

// Config holds the logging configuration for all tiers
type Config struct {
	// Global settings
	Level  LogLevel  `json:"level" yaml:"level"`
	Format LogFormat `json:"format" yaml:"format"`

	// Tier 1: Console
	Console ConsoleConfig `json:"console" yaml:"console"`

	// Tier 2: File (optional)
	File FileConfig `json:"file" yaml:"file"`
}

// ConsoleConfig configures terminal logging (Tier 1)
type ConsoleConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Color   bool `json:"color" yaml:"color"` // Colored level names (text mode only)
	// Output is "stdout" or "stderr". The CLI renders views on stdout, so it logs to stderr.
	Output        string        `json:"output" yaml:"output"`
	BufferSize    int           `json:"buffer_size" yaml:"buffer_size"`       // Async buffer size in bytes
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"` // Flush interval
}

// FileConfig configures file-based logging (Tier 2)
type FileConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`                 // Log file path
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`   // Max size before rotation
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`   // Max number of old log files
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"` // Max age in days
	Compress   bool   `json:"compress" yaml:"compress"`         // Compress rotated files

	BufferSize    int           `json:"buffer_size" yaml:"buffer_size"`
	BatchSize     int           `json:"batch_size" yaml:"batch_size"`
	BatchInterval time.Duration `json:"batch_interval" yaml:"batch_interval"`
}

// DefaultConfig returns a default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Console: ConsoleConfig{
			Enabled:       true,
			Color:         true,
			Output:        "stdout",
			BufferSize:    65536, // 64KB
			FlushInterval: 100 * time.Millisecond,
		},
		File: FileConfig{
			Enabled:       false,
			Path:          "/var/log/opsconsole/opsconsole.log",
			MaxSizeMB:     100,
			MaxBackups:    5,
			MaxAgeDays:    30,
			Compress:      true,
			BufferSize:    10000,
			BatchSize:     100,
			BatchInterval: 100 * time.Millisecond,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}

	switch c.Format {
	case FormatJSON, FormatText:
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}

	if c.Console.Enabled {
		switch c.Console.Output {
		case "", "stdout", "stderr":
		default:
			return fmt.Errorf("invalid console output %q (must be 'stdout' or 'stderr')", c.Console.Output)
		}
	}

	if c.File.Enabled {
		if c.File.Path == "" {
			return fmt.Errorf("file logging enabled but path is empty")
		}
		if c.File.MaxSizeMB <= 0 {
			return fmt.Errorf("file max size must be > 0")
		}
		if c.File.BatchSize <= 0 {
			return fmt.Errorf("file batch size must be > 0")
		}
		if c.File.BatchInterval <= 0 {
			return fmt.Errorf("file batch interval must be > 0")
		}
	}

	return nil
}
