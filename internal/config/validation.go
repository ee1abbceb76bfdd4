package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"kboverlay/internal/overlay"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Timing bounds, in milliseconds.
const (
	MinHoldThresholdMs = 100
	MaxHoldThresholdMs = 5000
	MinSettleDelayMs   = 10
	MaxSettleDelayMs   = 1000
	MaxMinQueryLength  = 32
)

// ValidateConfig checks every section and returns both errors and warnings.
func ValidateConfig(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateOverlay(&c.Overlay)...)
	errs = append(errs, validateDiacritics(&c.Diacritics)...)
	errs = append(errs, validateEmoji(&c.Emoji)...)
	errs = append(errs, validateExpansion(&c.Expansion)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIBus(&c.IBus)...)

	return errs
}

func validateOverlay(o *OverlayConfig) ValidationErrors {
	var errs ValidationErrors

	holdOK := o.HoldThresholdMs >= MinHoldThresholdMs && o.HoldThresholdMs <= MaxHoldThresholdMs
	if !holdOK {
		errs = append(errs, *RangeError("overlay.hold_threshold_ms", MinHoldThresholdMs, MaxHoldThresholdMs))
	}
	if o.SettleDelayMs < MinSettleDelayMs || o.SettleDelayMs > MaxSettleDelayMs {
		errs = append(errs, *RangeError("overlay.settle_delay_ms", MinSettleDelayMs, MaxSettleDelayMs))
	} else if holdOK && o.SettleDelayMs >= o.HoldThresholdMs {
		errs = append(errs, ValidationError{
			Field:   "overlay.settle_delay_ms",
			Message: "settle delay must be shorter than the hold threshold",
		})
	}

	return errs
}

func validateDiacritics(d *DiacriticsConfig) ValidationErrors {
	var errs ValidationErrors

	if d.TablePath != "" {
		if _, err := os.Stat(expandPath(d.TablePath)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "diacritics.table_path",
				Message: fmt.Sprintf("table not readable, using built-in: %v", err),
			})
		}
	}

	return errs
}

func validateEmoji(e *EmojiConfig) ValidationErrors {
	var errs ValidationErrors

	r, size := utf8.DecodeRuneInString(e.Prefix)
	switch {
	case e.Prefix == "":
		errs = append(errs, *RequiredFieldError("emoji.prefix"))
	case size != len(e.Prefix) || r == utf8.RuneError:
		errs = append(errs, ValidationError{
			Field:   "emoji.prefix",
			Message: fmt.Sprintf("prefix must be a single character, got %q", e.Prefix),
		})
	case unicode.IsSpace(r) || !unicode.IsPrint(r):
		errs = append(errs, ValidationError{
			Field:   "emoji.prefix",
			Message: "prefix must be a printable non-space character",
		})
	}

	if e.MinQueryLength < 1 || e.MinQueryLength > MaxMinQueryLength {
		errs = append(errs, *RangeError("emoji.min_query_length", 1, MaxMinQueryLength))
	}

	switch {
	case e.DataPath != "":
		if _, err := os.Stat(expandPath(e.DataPath)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "emoji.data_path",
				Message: fmt.Sprintf("emoji index not readable: %v", err),
			})
		}
	case e.Enabled:
		errs = append(errs, ValidationError{
			Field:   "emoji.data_path",
			Message: "no emoji index configured, the trigger stays idle",
		})
	}

	return errs
}

func validateExpansion(e *ExpansionConfig) ValidationErrors {
	var errs ValidationErrors

	if e.RequireTriggerKey {
		if _, err := overlay.ParseKey(e.TriggerKey); err != nil {
			errs = append(errs, ValidationError{
				Field:   "expansion.trigger_key",
				Message: err.Error(),
			})
		}
	}

	if e.Enabled && e.DatabasePath == "" && len(e.Abbreviations) == 0 {
		errs = append(errs, ValidationError{
			Field:   "expansion.database_path",
			Message: "no database and no inline abbreviations, nothing will expand",
		})
	}

	for abbrev := range e.Abbreviations {
		field := fmt.Sprintf("expansion.abbreviations[%q]", abbrev)
		if abbrev == "" {
			errs = append(errs, ValidationError{Field: field, Message: "abbreviation is empty"})
			continue
		}
		if strings.IndexFunc(abbrev, unicode.IsSpace) >= 0 {
			errs = append(errs, ValidationError{Field: field, Message: "abbreviation contains whitespace"})
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %q (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateIBus(i *IBusConfig) ValidationErrors {
	var errs ValidationErrors

	if i.BusName == "" {
		errs = append(errs, *RequiredFieldError("ibus.bus_name"))
	} else if !validBusName(i.BusName) {
		errs = append(errs, ValidationError{
			Field:   "ibus.bus_name",
			Message: fmt.Sprintf("invalid D-Bus name: %s", i.BusName),
		})
	}

	if i.EngineName == "" {
		errs = append(errs, *RequiredFieldError("ibus.engine_name"))
	} else if strings.ContainsAny(i.EngineName, " /:") {
		errs = append(errs, ValidationError{
			Field:   "ibus.engine_name",
			Message: "engine name must not contain spaces, slashes or colons",
		})
	}

	if i.LockPath == "" {
		errs = append(errs, *RequiredFieldError("ibus.lock_path"))
	}

	return errs
}

// validBusName checks a well-known D-Bus name: at least two dot-separated
// elements of [A-Za-z0-9_-], none starting with a digit.
func validBusName(name string) bool {
	if len(name) > 255 {
		return false
	}
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if p == "" || (p[0] >= '0' && p[0] <= '9') {
			return false
		}
		for _, c := range p {
			ok := c == '_' || c == '-' ||
				(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
			if !ok {
				return false
			}
		}
	}
	return true
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	warningFields := []string{
		"diacritics.table_path",   // falls back to the built-in table
		"emoji.data_path",         // trigger stays idle
		"expansion.database_path", // trigger stays idle
	}
	for _, f := range warningFields {
		if strings.HasPrefix(e.Field, f) {
			return true
		}
	}
	return false
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")
