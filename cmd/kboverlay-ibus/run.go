//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"kboverlay/internal/config"
	"kboverlay/internal/ime"
	"kboverlay/internal/logging"
	"kboverlay/internal/loop"
)

type runOptions struct {
	underIBus bool
}

func newRunCmd(opts *rootOptions, runOpts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd.Context(), opts, runOpts)
		},
	}
	cmd.Flags().BoolVar(&runOpts.underIBus, "ibus", false, "started by ibus-daemon; log to the log file instead of stderr")
	return cmd
}

func runService(ctx context.Context, opts *rootOptions, runOpts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	loader := config.NewLoader(opts.path())
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	defer loader.Close()

	logger, err := newLogger(cfg, opts, runOpts)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)
	log := logger.Slog("main")

	for _, w := range loader.Warnings() {
		log.Warn("configuration issue", "field", w.Field, "issue", w.Message)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	lock, err := acquireLock(cfg.IBus.LockPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	crash := logging.NewCrashHandler(logging.CrashHandlerConfig{
		Version:   version,
		Component: "kboverlay-ibus",
		Logger:    logger,
	})
	lp := loop.New(
		loop.WithLogger(logger.Slog("loop")),
		loop.WithPanicHandler(func(v any, stack []byte) { crash.HandlePanic(v, stack, nil) }),
	)
	loopErr := make(chan error, 1)
	go func() { loopErr <- lp.Run(ctx) }()

	conn, err := ime.Connect(log)
	if err != nil {
		return err
	}

	d := &daemon{
		loop:    lp,
		log:     log,
		engines: logger.Slog("engine"),
		current: resolve(cfg, log),
	}
	factory := ime.NewFactory(conn, cfg.IBus.EngineName, d.buildEngine(conn), logger.Slog("factory"))
	d.factory = factory
	defer func() {
		stop()
		<-lp.Done()
		d.logStats(lp.Stats())
	}()

	svc := ime.NewService(conn, cfg.IBus.BusName, factory, log)
	if err := svc.Start(); err != nil {
		conn.Close()
		return err
	}
	defer svc.Close()

	loader.OnChange(func(_, next *config.Config) { d.reload(next) })
	if err := loader.Watch(); err != nil {
		log.Warn("configuration hot reload disabled", "error", err)
	}
	go func() {
		for {
			select {
			case err := <-loader.Errors():
				log.Warn("configuration reload failed; keeping previous settings", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	log.Info("kboverlay started", "version", version, "engine", cfg.IBus.EngineName, "config", loader.Path())
	for {
		select {
		case <-hup:
			if err := logger.Rotate(); err != nil {
				log.Warn("log rotation failed", "error", err)
			}
		case <-conn.Context().Done():
			log.Warn("bus connection closed")
			return errors.New("bus connection closed")
		case err := <-loopErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("event loop: %w", err)
			}
			log.Info("shutting down")
			return nil
		}
	}
}

func newLogger(cfg *config.Config, opts *rootOptions, runOpts *runOptions) (*logging.Logger, error) {
	if opts.logLevel.value != "" {
		cfg.Logging.Level = opts.logLevel.value
	}
	if runOpts.underIBus && cfg.Logging.Output != "both" {
		cfg.Logging.Output = "file"
	}
	logCfg, err := cfg.Logging.Logging("kboverlay")
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return logger, nil
}

// daemon owns the settings shared by every engine. current is written on
// the loop and guarded by mu for builds that fall back to the caller's
// goroutine.
type daemon struct {
	loop    *loop.Loop
	log     *slog.Logger
	engines *slog.Logger
	factory *ime.Factory

	mu      sync.Mutex
	current resolved
}

func (d *daemon) settings() resolved {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// buildEngine constructs engines on the loop so they never observe a
// half-applied reload.
func (d *daemon) buildEngine(conn *dbus.Conn) ime.EngineBuilder {
	return func(path dbus.ObjectPath) *ime.Engine {
		var e *ime.Engine
		construct := func() {
			cur := d.settings()
			e = ime.NewEngine(path, conn, d.loop, d.loop,
				ime.WithLogger(d.engines),
				ime.WithSettings(cur.settings),
				ime.WithCandidateSource(cur.source),
			)
		}
		if err := d.loop.Call(context.Background(), construct); err != nil {
			d.log.Warn("building engine off the loop", "path", path, "error", err)
			construct()
		}
		return e
	}
}

// reload resolves next off the loop, then applies it to every engine on
// the loop.
func (d *daemon) reload(next *config.Config) {
	if !d.loop.IsRunning() {
		d.log.Debug("configuration change ignored during shutdown")
		return
	}
	r := resolve(next, d.log)
	err := d.loop.Post(func() {
		d.mu.Lock()
		d.current = r
		d.mu.Unlock()
		for _, e := range d.factory.Engines() {
			e.SetCandidateSource(r.source)
			e.Apply(r.settings)
		}
		d.log.Info("configuration applied", "engines", len(d.factory.Engines()))
	})
	if err != nil {
		d.log.Warn("configuration not applied", "error", err)
	}
}

// logStats logs the loop and per-engine counters. The loop must have
// stopped: engine counters are owned by the loop goroutine.
func (d *daemon) logStats(ls loop.Stats) {
	d.log.Info("event loop stats",
		"posted", ls.Posted,
		"executed", ls.Executed,
		"panicked", ls.Panicked,
		"dropped", ls.Dropped,
		"avg_task", ls.AvgDuration,
	)
	for _, e := range d.factory.Engines() {
		es := e.Stats()
		d.log.Info("engine stats",
			"path", e.Path(),
			"key_events", es.KeyEvents,
			"keys_consumed", es.KeysConsumed,
			"commits", es.Commits,
			"deletes", es.Deletes,
			"overlays", es.OverlaysShown,
		)
	}
}
