package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Version      string         `json:"version,omitempty"`
	Component    string         `json:"component,omitempty"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	GoVersion    string         `json:"go_version"`
	NumGoroutine int            `json:"num_goroutine"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandler writes crash reports for recovered panics. Reports never
// contain typed text; only the panic value and stack.
type CrashHandler struct {
	mu        sync.Mutex
	dir       string
	version   string
	component string
	logger    *Logger
}

// CrashHandlerConfig configures a CrashHandler.
type CrashHandlerConfig struct {
	// Dir is where crash-*.json reports are written.
	Dir string

	// Version is the application version.
	Version string

	// Component is the component name.
	Component string

	// Logger receives a one-line summary of every crash.
	Logger *Logger
}

// DefaultCrashDir returns $XDG_STATE_HOME/kboverlay/crashes.
func DefaultCrashDir() string {
	return filepath.Join(StateDir(), "crashes")
}

// NewCrashHandler creates a CrashHandler.
func NewCrashHandler(cfg CrashHandlerConfig) *CrashHandler {
	if cfg.Dir == "" {
		cfg.Dir = DefaultCrashDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = Default()
	}
	return &CrashHandler{
		dir:       cfg.Dir,
		version:   cfg.Version,
		component: cfg.Component,
		logger:    cfg.Logger,
	}
}

// Dir returns the report directory.
func (h *CrashHandler) Dir() string { return h.dir }

// HandlePanic records a panic. stack may be nil, in which case the current
// goroutine's stack is captured.
func (h *CrashHandler) HandlePanic(value any, stack []byte, contextInfo map[string]any) {
	if stack == nil {
		stack = debug.Stack()
	}

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Component:    h.component,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", value),
		StackTrace:   string(stack),
		Context:      contextInfo,
	}

	path, err := h.write(report)
	if err != nil {
		h.logger.Error("panic recovered; crash report not written", "panic", report.PanicValue, "error", err)
		return
	}
	h.logger.Error("panic recovered", "panic", report.PanicValue, "report", path)
}

// Recover runs fn and records any panic it raises.
func (h *CrashHandler) Recover(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.HandlePanic(r, debug.Stack(), nil)
		}
	}()
	fn()
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(h.dir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}

	name := fmt.Sprintf("crash-%s.json", report.Timestamp.Format("20060102-150405.000000000"))
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports returns the stored crash reports, oldest first.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Prune removes reports older than maxAge.
func (h *CrashHandler) Prune(maxAge time.Duration) error {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
