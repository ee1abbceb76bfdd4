package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kboverlay/internal/logging"
	"kboverlay/internal/overlay"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Overlay.HoldThreshold() != overlay.DefaultHoldThreshold {
		t.Errorf("expected hold threshold %v, got %v", overlay.DefaultHoldThreshold, cfg.Overlay.HoldThreshold())
	}
	if cfg.Overlay.SettleDelay() != 100*time.Millisecond {
		t.Errorf("expected settle delay 100ms, got %v", cfg.Overlay.SettleDelay())
	}
	if !cfg.Diacritics.Enabled {
		t.Error("diacritics should be enabled by default")
	}
	if cfg.Emoji.Enabled || cfg.Expansion.Enabled {
		t.Error("emoji and expansion should be disabled by default")
	}
	if cfg.Emoji.Prefix != ":" {
		t.Errorf("expected prefix ':', got %q", cfg.Emoji.Prefix)
	}
	if !strings.HasSuffix(cfg.Expansion.DatabasePath, "snippets.db") {
		t.Errorf("unexpected database path: %s", cfg.Expansion.DatabasePath)
	}

	if errs := ValidateConfig(cfg); errs.HasErrors() {
		t.Errorf("default config should be valid: %v", errs)
	}
}

func TestPlatformDirs(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	t.Setenv("KBOVERLAY_CONFIG", "")

	if got := ConfigPath(); got != "/xdg/config/kboverlay/config.toml" {
		t.Errorf("ConfigPath = %s", got)
	}
	if got := PlatformDataDir(); got != "/xdg/data/kboverlay" {
		t.Errorf("PlatformDataDir = %s", got)
	}
	if got := IBusComponentDir(); got != "/xdg/data/ibus/component" {
		t.Errorf("IBusComponentDir = %s", got)
	}

	paths := GetDefaultPaths()
	if paths.LockFile != "/run/user/1000/kboverlay/kboverlay.lock" {
		t.Errorf("LockFile = %s", paths.LockFile)
	}
	if paths.SnippetDB != "/xdg/data/kboverlay/snippets.db" {
		t.Errorf("SnippetDB = %s", paths.SnippetDB)
	}

	t.Setenv("KBOVERLAY_CONFIG", "/etc/kbo.yaml")
	if got := ConfigPath(); got != "/etc/kbo.yaml" {
		t.Errorf("ConfigPath with override = %s", got)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Overlay.HoldThresholdMs != 500 {
		t.Errorf("expected defaults, got hold %d", cfg.Overlay.HoldThresholdMs)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "config.toml",
			content: `
[overlay]
hold_threshold_ms = 650

[expansion]
enabled = true
trigger_key = "Return"

[expansion.abbreviations]
btw = "by the way"
`,
		},
		{
			name: "json",
			file: "config.json",
			content: `{"overlay": {"hold_threshold_ms": 650},
"expansion": {"enabled": true, "trigger_key": "Return", "abbreviations": {"btw": "by the way"}}}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `
overlay:
  hold_threshold_ms: 650
expansion:
  enabled: true
  trigger_key: Return
  abbreviations:
    btw: by the way
`,
		},
		{
			name: "autodetect",
			file: "kboverlayrc",
			content: `
[overlay]
hold_threshold_ms = 650
[expansion]
enabled = true
trigger_key = "Return"
abbreviations = { btw = "by the way" }
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Overlay.HoldThresholdMs != 650 {
				t.Errorf("hold threshold = %d", cfg.Overlay.HoldThresholdMs)
			}
			if cfg.Overlay.SettleDelayMs != 100 {
				t.Errorf("unset fields should keep defaults, settle = %d", cfg.Overlay.SettleDelayMs)
			}
			if !cfg.Expansion.Enabled {
				t.Error("expansion should be enabled")
			}
			if cfg.Expansion.Abbreviations["btw"] != "by the way" {
				t.Errorf("abbreviations = %v", cfg.Expansion.Abbreviations)
			}
			key, err := cfg.Expansion.ParsedTriggerKey()
			if err != nil || key != overlay.KeyReturn {
				t.Errorf("trigger key = %v, %v", key, err)
			}
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[overlay]
hold_threshold_ms = 20
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors in chain, got %T", err)
	}
	if verrs[0].Field != "overlay.hold_threshold_ms" {
		t.Errorf("unexpected field %s", verrs[0].Field)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[overlay\nhold ="), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KBOVERLAY_HOLD_THRESHOLD_MS", "800")
	t.Setenv("KBOVERLAY_SETTLE_DELAY_MS", "not-a-number")
	t.Setenv("KBOVERLAY_EMOJI_ENABLED", "true")
	t.Setenv("KBOVERLAY_LOG_LEVEL", "DEBUG")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Overlay.HoldThresholdMs != 800 {
		t.Errorf("hold threshold = %d", cfg.Overlay.HoldThresholdMs)
	}
	if cfg.Overlay.SettleDelayMs != 100 {
		t.Errorf("malformed override should be ignored, settle = %d", cfg.Overlay.SettleDelayMs)
	}
	if !cfg.Emoji.Enabled {
		t.Error("emoji should be enabled")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s", cfg.Logging.Level)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		warning bool
	}{
		{"version", func(c *Config) { c.Version = 2 }, "version", false},
		{"hold too short", func(c *Config) { c.Overlay.HoldThresholdMs = 50 }, "overlay.hold_threshold_ms", false},
		{"settle too long", func(c *Config) { c.Overlay.SettleDelayMs = 2000 }, "overlay.settle_delay_ms", false},
		{"settle not below hold", func(c *Config) {
			c.Overlay.HoldThresholdMs = 200
			c.Overlay.SettleDelayMs = 200
		}, "overlay.settle_delay_ms", false},
		{"empty prefix", func(c *Config) { c.Emoji.Prefix = "" }, "emoji.prefix", false},
		{"two-char prefix", func(c *Config) { c.Emoji.Prefix = "::" }, "emoji.prefix", false},
		{"space prefix", func(c *Config) { c.Emoji.Prefix = " " }, "emoji.prefix", false},
		{"min query", func(c *Config) { c.Emoji.MinQueryLength = 0 }, "emoji.min_query_length", false},
		{"trigger key", func(c *Config) { c.Expansion.TriggerKey = "Hyper" }, "expansion.trigger_key", false},
		{"abbreviation whitespace", func(c *Config) {
			c.Expansion.Abbreviations = map[string]string{"a b": "x"}
		}, `expansion.abbreviations["a b"]`, false},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level", false},
		{"log output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output", false},
		{"file output needs path", func(c *Config) {
			c.Logging.Output = "file"
			c.Logging.FilePath = ""
		}, "logging.file_path", false},
		{"bus name", func(c *Config) { c.IBus.BusName = "nodots" }, "ibus.bus_name", false},
		{"engine name", func(c *Config) { c.IBus.EngineName = "a b" }, "ibus.engine_name", false},
		{"missing table", func(c *Config) { c.Diacritics.TablePath = "/nonexistent/table.json" }, "diacritics.table_path", true},
		{"emoji without index", func(c *Config) { c.Emoji.Enabled = true }, "emoji.data_path", true},
		{"missing emoji index", func(c *Config) { c.Emoji.DataPath = "/nonexistent/emoji.yaml" }, "emoji.data_path", true},
		{"nothing to expand", func(c *Config) {
			c.Expansion.Enabled = true
			c.Expansion.DatabasePath = ""
		}, "expansion.database_path", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			errs := ValidateConfig(cfg)
			if len(errs) != 1 {
				t.Fatalf("expected one issue, got %v", errs)
			}
			if errs[0].Field != tt.field {
				t.Errorf("field = %s, want %s", errs[0].Field, tt.field)
			}
			if errs[0].IsWarning() != tt.warning {
				t.Errorf("IsWarning = %v, want %v", errs[0].IsWarning(), tt.warning)
			}
			if (cfg.Validate() == nil) != tt.warning {
				t.Errorf("Validate should only fail on errors")
			}
		})
	}
}

func TestValidationErrorsFormat(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}
	if got := errs.Error(); got != "config: a: bad; config: b: worse" {
		t.Errorf("Error() = %q", got)
	}
	if (ValidationErrors{}).Error() != "" {
		t.Error("empty errors should format as empty string")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	for _, ext := range []string{".toml", ".json", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "config"+ext)

			cfg := DefaultConfig()
			cfg.Emoji.Prefix = ";"
			cfg.Expansion.Abbreviations["omw"] = "on my way"
			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("config mode = %v", info.Mode().Perm())
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Emoji.Prefix != ";" || loaded.Expansion.Abbreviations["omw"] != "on my way" {
				t.Errorf("round trip lost values: %+v", loaded)
			}
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected file to be created")
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected existing file to be loaded")
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Expansion.Abbreviations["a"] = "b"

	clone := cfg.Clone()
	clone.Expansion.Abbreviations["a"] = "c"
	clone.Overlay.HoldThresholdMs = 900

	if cfg.Expansion.Abbreviations["a"] != "b" || cfg.Overlay.HoldThresholdMs != 500 {
		t.Error("Clone shares state with the original")
	}
}

func TestLoggingConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Logging.LogInput = true

	lc, err := cfg.Logging.Logging("engine")
	if err != nil {
		t.Fatalf("Logging failed: %v", err)
	}
	if lc.Format != logging.FormatJSON || !lc.LogInput || lc.Component != "engine" || lc.MaxSize != 10 {
		t.Errorf("unexpected logging config: %+v", lc)
	}

	cfg.Logging.Level = "loud"
	if _, err := cfg.Logging.Logging("engine"); err == nil {
		t.Error("expected error for bad level")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Expansion.DatabasePath = filepath.Join(dir, "data", "snippets.db")
	cfg.IBus.LockPath = filepath.Join(dir, "run", "kboverlay.lock")
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(dir, "log", "kboverlay.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, sub := range []string{"data", "run", "log"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("%s not created: %v", sub, err)
		}
	}
}

func TestLoaderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[overlay]\nhold_threshold_ms = 400\n"), 0600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	defer loader.Close()
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var oldHold, newHold int
	loader.OnChange(func(old, new *Config) {
		oldHold = old.Overlay.HoldThresholdMs
		newHold = new.Overlay.HoldThresholdMs
	})

	if err := os.WriteFile(path, []byte("[overlay]\nhold_threshold_ms = 20\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := loader.Reload(); err == nil {
		t.Fatal("expected invalid reload to fail")
	}
	if loader.Config().Overlay.HoldThresholdMs != 400 {
		t.Error("failed reload should keep the previous config")
	}

	if err := os.WriteFile(path, []byte("[overlay]\nhold_threshold_ms = 700\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if oldHold != 400 || newHold != 700 {
		t.Errorf("OnChange got old=%d new=%d", oldHold, newHold)
	}
}

func TestLoaderWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[overlay]\nhold_threshold_ms = 400\n"), 0600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	loader.debounce = 10 * time.Millisecond
	defer loader.Close()
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan int, 4)
	loader.OnChange(func(_, new *Config) {
		changed <- new.Overlay.HoldThresholdMs
	})
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[overlay]\nhold_threshold_ms = 900\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		if got != 900 {
			t.Errorf("reloaded hold = %d", got)
		}
	case err := <-loader.Errors():
		t.Fatalf("watch error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
