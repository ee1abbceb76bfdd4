package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const appName = "kboverlay"

// PlatformDataDir returns the data directory, following the XDG Base
// Directory Specification: $XDG_DATA_HOME/kboverlay or
// ~/.local/share/kboverlay.
func PlatformDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", appName)
}

// PlatformConfigDir returns $XDG_CONFIG_HOME/kboverlay or
// ~/.config/kboverlay.
func PlatformConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName)
}

// PlatformRuntimeDir returns the directory for the instance lock:
// $XDG_RUNTIME_DIR/kboverlay, or /tmp/kboverlay-$UID without one.
func PlatformRuntimeDir() string {
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		return filepath.Join(xdgRuntime, appName)
	}
	return filepath.Join(os.TempDir(), appName+"-"+getUserID())
}

// IBusComponentDir returns the per-user IBus component directory.
func IBusComponentDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "ibus", "component")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "ibus", "component")
}

func getUserID() string {
	return strconv.Itoa(os.Getuid())
}

// DefaultPaths holds every default path the daemon uses.
type DefaultPaths struct {
	ConfigDir    string
	ConfigFile   string
	DataDir      string
	SnippetDB    string
	LogFile      string
	LockFile     string
	ComponentDir string
}

// GetDefaultPaths returns the default paths for the current user.
func GetDefaultPaths() *DefaultPaths {
	cfg := DefaultConfig()
	return &DefaultPaths{
		ConfigDir:    PlatformConfigDir(),
		ConfigFile:   ConfigPath(),
		DataDir:      PlatformDataDir(),
		SnippetDB:    cfg.Expansion.DatabasePath,
		LogFile:      cfg.Logging.FilePath,
		LockFile:     cfg.IBus.LockPath,
		ComponentDir: cfg.IBus.ComponentDir,
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
