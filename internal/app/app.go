package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"csrelay/internal/config"
	"csrelay/internal/detector"
	"csrelay/internal/notifier"
	"csrelay/internal/observability/debug"
	"csrelay/internal/page"
	supervisor "csrelay/internal/runtime/supervisor"
	"csrelay/internal/storage"
	"csrelay/internal/task/scheduler"
	"csrelay/internal/transport"
	"csrelay/internal/transport/telegram"
	logx "csrelay/pkg/logx"
	"csrelay/pkg/systemd"
)

type Options struct {
	ConfigPath string
	// ConfigOptional allows a missing config file; defaults plus the
	// environment are used instead.
	ConfigOptional bool
	// Once forces a single cycle even when poll.run_once is false.
	Once bool
	// Sender replaces the Telegram client (tests).
	Sender transport.Sender
}

type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	once bool

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	det     *detector.Detector
	metrics *debug.Metrics
	dbg     *debug.Server
	sd      *systemd.Notifier

	mu      sync.Mutex
	sup     *supervisor.Supervisor
	looping atomic.Bool
}

// New loads the configuration and builds every component. Nothing runs
// until Run or RunOnce.
func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath, opts.ConfigOptional)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	comps, err := mapConfig(cfg)
	if err != nil {
		return nil, err
	}

	sender := opts.Sender
	if sender == nil {
		tg, err := telegram.New(comps.telegram, logx.Nop())
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = tg
	}

	logs, log := logx.New(comps.logging, sender)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(comps.storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	fetcher := page.NewFetcher(comps.fetcher, log.With(logx.String("comp", "fetch")))
	out := notifier.New(comps.notifier, sender, comps.target, comps.send, log.With(logx.String("comp", "notifier")))
	det, err := detector.New(comps.detector, fetcher, out, store, log.With(logx.String("comp", "detector")))
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}

	metrics := debug.NewMetrics()
	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		once:    opts.Once || cfg.Poll.RunOnce,
		log:     log,
		logs:    logs,
		store:   store,
		det:     det,
		metrics: metrics,
		sd:      systemd.NewNotifier(log.With(logx.String("comp", "systemd"))),
	}
	if comps.debug.Enabled {
		a.dbg = debug.New(comps.debug, metrics, log.With(logx.String("comp", "debug")))
	}

	log.Info("csrelay configured",
		logx.String("config", cfgm.Path()),
		logx.String("primary_url", comps.detector.PrimaryURL),
		logx.String("secondary_url", comps.detector.SecondaryURL),
		logx.String("schedule", cfg.Poll.Schedule),
		logx.Bool("once", a.once),
		logx.String("storage", comps.storage.Driver),
		logx.String("parse_mode", comps.send.ParseMode),
	)
	return a, nil
}

func (a *App) Logger() logx.Logger { return a.log }

// SingleShot reports whether Run performs one cycle and returns.
func (a *App) SingleShot() bool { return a.once }

func (a *App) newRunner(sup *supervisor.Supervisor) (*scheduler.Runner, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	return scheduler.NewRunner(a.cfg.Poll.Schedule, a.det, a.log.With(logx.String("comp", "scheduler")),
		scheduler.WithSupervisor(sup),
		scheduler.WithLocation(loc),
		scheduler.WithOnResult(a.onResult),
	)
}

func (a *App) onResult(res detector.Result) {
	a.metrics.Observe(res)
	if !a.once {
		a.sd.Status(fmt.Sprintf("last cycle %s at %s", res.Outcome, res.Started.Add(res.Took).Format(time.RFC3339)))
	}
}

// RunOnce performs exactly one cycle and returns its result.
func (a *App) RunOnce(ctx context.Context) detector.Result {
	sup := a.start(ctx)
	runner, err := a.newRunner(sup)
	if err != nil {
		return detector.Failure("", time.Now(), err)
	}
	return runner.Once(sup.Context())
}

// Run polls until ctx ends. In single-shot mode it runs one cycle and
// returns nil whatever the outcome. The returned error is non-nil only
// when the loop could not be started or a supervised task failed fatally.
func (a *App) Run(ctx context.Context) error {
	if a.once {
		a.RunOnce(ctx)
		return nil
	}

	sup := a.start(ctx)
	runner, err := a.newRunner(sup)
	if err != nil {
		return err
	}

	a.startReload(sup)
	if a.dbg != nil {
		dbg := a.dbg
		sup.GoRestart("debug.server", func(c context.Context) error {
			err := dbg.Run(c)
			if errors.Is(err, debug.ErrInsecureBind) {
				// Permanent; the relay keeps running without it.
				<-c.Done()
				return nil
			}
			return err
		}, supervisor.WithRestartBackoff(500*time.Millisecond, 30*time.Second))
	}
	sup.Go0("systemd.watchdog", func(c context.Context) {
		a.sd.Watchdog(c, a.looping.Load)
	})

	a.sd.Ready()
	a.looping.Store(true)
	err = runner.Loop(sup.Context())
	a.looping.Store(false)

	if ctx.Err() != nil {
		return nil
	}
	if serr := sup.Err(); serr != nil {
		return serr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) start(ctx context.Context) *supervisor.Supervisor {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup == nil {
		a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))
	}
	return a.sup
}

// startReload watches the config file and applies the logging section
// live. Other sections are reported as needing a restart.
func (a *App) startReload(sup *supervisor.Supervisor) {
	sub := a.cfgm.Subscribe(4)
	sup.Go("config.watch", a.cfgm.Watch)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyReload(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyReload(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)

	if slices.Contains(sections, "logging") {
		a.logs.Apply(mapLogging(newCfg))
	}
	if pending := config.RestartRequired(sections); len(pending) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(pending, ",")))
	}
}

// Stop cancels background work and releases resources. Each step is bounded
// so one component cannot stall shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup != nil {
		sup.Cancel()
	}
	if !a.once {
		a.sd.Stopping()
	}

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
				max = time.Until(dl)
			}
			if max > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("supervisor", 5*time.Second, func(c context.Context) error {
		if sup == nil {
			return nil
		}
		err := sup.Stop(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped", logx.String("reason", string(reason)))
	// Close the log service last so the lines above are flushed.
	if err := a.logs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("logs: %w", err))
	}
	return errors.Join(errs...)
}
