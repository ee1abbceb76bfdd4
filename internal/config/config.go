// Package config handles configuration loading, validation, and hot reload
// for kboverlay.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"kboverlay/internal/logging"
	"kboverlay/internal/overlay"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete input method configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Overlay holds controller timing.
	Overlay OverlayConfig `toml:"overlay" json:"overlay" yaml:"overlay"`

	// Diacritics configures the long-press trigger.
	Diacritics DiacriticsConfig `toml:"diacritics" json:"diacritics" yaml:"diacritics"`

	// Emoji configures the prefix-query trigger.
	Emoji EmojiConfig `toml:"emoji" json:"emoji" yaml:"emoji"`

	// Expansion configures the abbreviation trigger.
	Expansion ExpansionConfig `toml:"expansion" json:"expansion" yaml:"expansion"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IBus holds D-Bus and component settings.
	IBus IBusConfig `toml:"ibus" json:"ibus" yaml:"ibus"`
}

// OverlayConfig holds controller timing.
type OverlayConfig struct {
	// HoldThresholdMs is how long a letter must be held to open the overlay.
	HoldThresholdMs int `toml:"hold_threshold_ms" json:"hold_threshold_ms" yaml:"hold_threshold_ms"`

	// SettleDelayMs is the window after a commit in which extra
	// surrounding-text updates are treated as echoes.
	SettleDelayMs int `toml:"settle_delay_ms" json:"settle_delay_ms" yaml:"settle_delay_ms"`
}

// HoldThreshold returns HoldThresholdMs as a duration.
func (o OverlayConfig) HoldThreshold() time.Duration {
	return time.Duration(o.HoldThresholdMs) * time.Millisecond
}

// SettleDelay returns SettleDelayMs as a duration.
func (o OverlayConfig) SettleDelay() time.Duration {
	return time.Duration(o.SettleDelayMs) * time.Millisecond
}

// DiacriticsConfig configures the long-press trigger.
type DiacriticsConfig struct {
	// Enabled switches the trigger on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// TablePath is an optional JSON locale table.
	TablePath string `toml:"table_path" json:"table_path" yaml:"table_path"`

	// Merge layers the locale table over the built-in one instead of
	// replacing it.
	Merge bool `toml:"merge" json:"merge" yaml:"merge"`
}

// EmojiConfig configures the prefix-query trigger.
type EmojiConfig struct {
	// Enabled switches the trigger on. It only activates once a candidate
	// source is available.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Prefix is the character that starts a query.
	Prefix string `toml:"prefix" json:"prefix" yaml:"prefix"`

	// MinQueryLength is the number of characters needed after the prefix.
	MinQueryLength int `toml:"min_query_length" json:"min_query_length" yaml:"min_query_length"`

	// DataPath is a user-supplied YAML emoji index. Nothing ships by default.
	DataPath string `toml:"data_path" json:"data_path" yaml:"data_path"`
}

// ExpansionConfig configures the abbreviation trigger.
type ExpansionConfig struct {
	// Enabled switches the trigger on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// RequireTriggerKey defers expansion until TriggerKey is pressed.
	RequireTriggerKey bool `toml:"require_trigger_key" json:"require_trigger_key" yaml:"require_trigger_key"`

	// TriggerKey names the confirmation key ("Tab", "Return", "Space", ...).
	TriggerKey string `toml:"trigger_key" json:"trigger_key" yaml:"trigger_key"`

	// DatabasePath is the SQLite snippet store.
	DatabasePath string `toml:"database_path" json:"database_path" yaml:"database_path"`

	// Abbreviations are inline expansions, applied over the store.
	Abbreviations map[string]string `toml:"abbreviations" json:"abbreviations" yaml:"abbreviations"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format (text, json).
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output (stdout, stderr, file, both).
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of rotated files.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`

	// LogInput writes typed text to the log. Debugging only.
	LogInput bool `toml:"log_input" json:"log_input" yaml:"log_input"`
}

// IBusConfig holds D-Bus and component settings.
type IBusConfig struct {
	// BusName is the well-known name requested on the session bus.
	BusName string `toml:"bus_name" json:"bus_name" yaml:"bus_name"`

	// EngineName is the engine name listed in the component file.
	EngineName string `toml:"engine_name" json:"engine_name" yaml:"engine_name"`

	// Layout is the keyboard layout the engine advertises.
	Layout string `toml:"layout" json:"layout" yaml:"layout"`

	// ComponentDir is where the IBus component XML is installed.
	ComponentDir string `toml:"component_dir" json:"component_dir" yaml:"component_dir"`

	// LockPath is the single-instance lock file.
	LockPath string `toml:"lock_path" json:"lock_path" yaml:"lock_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Overlay: OverlayConfig{
			HoldThresholdMs: int(overlay.DefaultHoldThreshold / time.Millisecond),
			SettleDelayMs:   int(overlay.DefaultSettleDelay / time.Millisecond),
		},
		Diacritics: DiacriticsConfig{
			Enabled: true,
			Merge:   true,
		},
		Emoji: EmojiConfig{
			Enabled:        false,
			Prefix:         overlay.DefaultPrefix,
			MinQueryLength: overlay.DefaultMinQueryLength,
		},
		Expansion: ExpansionConfig{
			Enabled:           false,
			RequireTriggerKey: true,
			TriggerKey:        "Tab",
			DatabasePath:      filepath.Join(PlatformDataDir(), "snippets.db"),
			Abbreviations:     map[string]string{},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		IBus: IBusConfig{
			BusName:      "org.freedesktop.IBus.KbOverlay",
			EngineName:   "kboverlay",
			Layout:       "default",
			ComponentDir: IBusComponentDir(),
			LockPath:     filepath.Join(PlatformRuntimeDir(), "kboverlay.lock"),
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if v := os.Getenv("KBOVERLAY_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads, overrides and validates the configuration at path. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate checks the configuration and returns only hard errors.
func (c *Config) Validate() error {
	errs := ValidateConfig(c).Errors()
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Expansion.DatabasePath),
		filepath.Dir(c.IBus.LockPath),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Variables are prefixed with KBOVERLAY_.
func (c *Config) ApplyEnvOverrides() {
	if v, ok := envInt("KBOVERLAY_HOLD_THRESHOLD_MS"); ok {
		c.Overlay.HoldThresholdMs = v
	}
	if v, ok := envInt("KBOVERLAY_SETTLE_DELAY_MS"); ok {
		c.Overlay.SettleDelayMs = v
	}
	if v := os.Getenv("KBOVERLAY_DIACRITICS_TABLE"); v != "" {
		c.Diacritics.TablePath = v
	}
	if v, ok := envBool("KBOVERLAY_EMOJI_ENABLED"); ok {
		c.Emoji.Enabled = v
	}
	if v := os.Getenv("KBOVERLAY_EMOJI_DATA"); v != "" {
		c.Emoji.DataPath = v
	}
	if v, ok := envBool("KBOVERLAY_EXPANSION_ENABLED"); ok {
		c.Expansion.Enabled = v
	}
	if v := os.Getenv("KBOVERLAY_EXPANSION_DB"); v != "" {
		c.Expansion.DatabasePath = v
	}
	if v := os.Getenv("KBOVERLAY_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("KBOVERLAY_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("KBOVERLAY_LOG_OUTPUT"); v != "" {
		c.Logging.Output = strings.ToLower(v)
	}
	if v := os.Getenv("KBOVERLAY_LOCK_PATH"); v != "" {
		c.IBus.LockPath = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Expansion.Abbreviations = make(map[string]string, len(c.Expansion.Abbreviations))
	for k, v := range c.Expansion.Abbreviations {
		clone.Expansion.Abbreviations[k] = v
	}
	return &clone
}

// Logging builds the logging configuration.
func (l LoggingConfig) Logging(component string) (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     l.Output,
		FilePath:   expandPath(l.FilePath),
		MaxSize:    int64(l.MaxSizeMB),
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAgeDays,
		Compress:   l.Compress,
		LogInput:   l.LogInput,
		Component:  component,
	}, nil
}

// ParsedTriggerKey parses TriggerKey.
func (e ExpansionConfig) ParsedTriggerKey() (overlay.Key, error) {
	return overlay.ParseKey(e.TriggerKey)
}

// SaveConfig writes the configuration in the format implied by the file
// extension (TOML by default).
func SaveConfig(c *Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
