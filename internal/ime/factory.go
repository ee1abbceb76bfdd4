package ime

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Exporter publishes objects on the bus. *dbus.Conn satisfies it.
type Exporter interface {
	Export(v any, path dbus.ObjectPath, iface string) error
}

// EngineBuilder creates the engine for a freshly allocated object path.
type EngineBuilder func(path dbus.ObjectPath) *Engine

// Factory implements org.freedesktop.IBus.Factory. IBus asks it for one
// engine per input context.
type Factory struct {
	exporter   Exporter
	engineName string
	build      EngineBuilder
	log        *slog.Logger

	mu      sync.Mutex
	seq     uint32
	engines map[dbus.ObjectPath]*Engine
}

// NewFactory creates a factory serving engineName.
func NewFactory(exporter Exporter, engineName string, build EngineBuilder, log *slog.Logger) *Factory {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Factory{
		exporter:   exporter,
		engineName: engineName,
		build:      build,
		log:        log,
		engines:    make(map[dbus.ObjectPath]*Engine),
	}
}

// CreateEngine creates and exports a new engine instance.
func (f *Factory) CreateEngine(engineName string) (dbus.ObjectPath, *dbus.Error) {
	if engineName != f.engineName {
		f.log.Warn("unknown engine requested", "name", engineName)
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine",
			[]any{"Unknown engine: " + engineName})
	}

	f.mu.Lock()
	f.seq++
	path := dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/IBus/Engine/%d", f.seq))
	f.mu.Unlock()

	e := f.build(path)
	e.onDestroy = f.release
	if err := f.exporter.Export(e, path, IBusEngineInterface); err != nil {
		f.log.Error("export engine failed", "path", path, "error", err)
		return "", dbus.MakeFailedError(err)
	}

	f.mu.Lock()
	f.engines[path] = e
	f.mu.Unlock()

	f.log.Info("engine created", "path", path)
	return path, nil
}

// Engines returns the live engines ordered by path.
func (f *Factory) Engines() []*Engine {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*Engine, 0, len(f.engines))
	for _, e := range f.engines {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func (f *Factory) release(path dbus.ObjectPath) {
	f.mu.Lock()
	_, ok := f.engines[path]
	delete(f.engines, path)
	f.mu.Unlock()
	if !ok {
		return
	}

	if err := f.exporter.Export(nil, path, IBusEngineInterface); err != nil {
		f.log.Warn("unexport engine failed", "path", path, "error", err)
	}
	f.log.Info("engine destroyed", "path", path)
}
