// Package core assembles the service: config, logging, storage, the
// Telegram adapter, the dispatch loop, the broadcaster, the scheduler,
// and the HTTP surface. It owns startup order, config hot-reload
// fan-out, and step-bounded shutdown.
package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"annobot/internal/bot"
	"annobot/internal/broadcast"
	"annobot/internal/config"
	"annobot/internal/dispatch"
	"annobot/internal/httpapi"
	"annobot/internal/relay"
	"annobot/internal/runtime/supervisor"
	"annobot/internal/scheduler"
	"annobot/internal/storage"
	"annobot/internal/transport/telegram"
	"annobot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store    storage.Store
	adapter  *telegram.Adapter
	loop     *dispatch.Loop
	bc       *broadcast.Broadcaster
	rel      *relay.Service
	handlers *bot.Handlers
	sched    *scheduler.Service
	httpSrv  *httpapi.Server

	// updatesRegistered guards against re-adding the announcement
	// triggers when updates are toggled via hot reload; the scheduler
	// re-registers existing definitions on Start.
	updatesRegistered bool
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	adapter, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token}, bootLog)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}, adapter)
	log = log.With(logx.String("comp", "app"))

	applyLogTarget(logs, cfg.Telegram.GroupLog)

	store, err := storage.Open(storageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("storage is required (set storage.driver)")
	}

	bcPause, err := config.ParseDurationOrDefault("broadcast.batch_pause", cfg.Broadcast.BatchPause, 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	bc := broadcast.New(broadcast.Config{
		BatchSize:  cfg.Broadcast.BatchSize,
		BatchPause: bcPause,
		RatePerSec: cfg.Broadcast.RatePerSec,
	}, adapter, store, log.With(logx.String("comp", "broadcast")))

	rel := relay.New(relay.Config{
		Enabled: cfg.Relay.Enabled,
		Token:   cfg.Relay.Token,
		ChatID:  cfg.Relay.ChatID,
	}, store, log.With(logx.String("comp", "relay")))

	handlers := bot.New(bot.Config{
		AdminIDs:        cfg.Telegram.AdminUserIDs,
		BroadcastMinLen: cfg.Broadcast.MinLen,
		AdminBatchSize:  cfg.Broadcast.BatchSize,
		AdminBatchPause: bcPause,
		Links:           menuLinks(cfg.Menu),
	}, store, rel, bc, log.With(logx.String("comp", "bot")))
	handlers.Register(adapter.Bot())

	loop := dispatch.New(dispatch.Config{}, log.With(logx.String("comp", "dispatch")))

	sched := scheduler.New(scheduler.Config{
		Enabled:  cfg.Updates.Enabled,
		Timezone: cfg.Updates.Timezone,
	}, log.With(logx.String("comp", "scheduler")))

	registerTimeout, err := config.ParseDurationOrDefault("http.register_timeout", cfg.HTTP.RegisterTimeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	httpSrv := httpapi.New(httpapi.Config{
		Addr:            cfg.HTTP.Addr,
		PublicHost:      cfg.HTTP.PublicHost,
		RegisterTimeout: registerTimeout,
	}, loop, adapter, log.With(logx.String("comp", "http")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logs,
		store:    store,
		adapter:  adapter,
		loop:     loop,
		bc:       bc,
		rel:      rel,
		handlers: handlers,
		sched:    sched,
		httpSrv:  httpSrv,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal
// error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	a.loop.Start(a.sup.Context())

	if cfg := a.cfgm.Get(); cfg != nil && cfg.Updates.Enabled {
		a.sched.Start()
		if err := a.registerUpdateJobs(cfg); err != nil {
			return err
		}
	}

	if err := a.httpSrv.Start(a.sup.Context()); err != nil {
		return err
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
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
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes one validated config revision into the running
// services. The Telegram token and storage shape are not hot-swapped;
// those changes need a restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    newCfg.Logging.Telegram.Enabled,
			MinLevel:   newCfg.Logging.Telegram.MinLevel,
			RatePerSec: newCfg.Logging.Telegram.RatePerSec,
		},
	})
	applyLogTarget(a.logs, newCfg.Telegram.GroupLog)

	a.handlers.SetAdmins(newCfg.Telegram.AdminUserIDs)

	bcPause, err := config.ParseDurationOrDefault("broadcast.batch_pause", newCfg.Broadcast.BatchPause, 500*time.Millisecond)
	if err != nil {
		a.log.Warn("invalid broadcast.batch_pause; keeping default", logx.Err(err))
		bcPause = 500 * time.Millisecond
	}
	a.bc.Apply(broadcast.Config{
		BatchSize:  newCfg.Broadcast.BatchSize,
		BatchPause: bcPause,
		RatePerSec: newCfg.Broadcast.RatePerSec,
	})

	prevEnabled := a.sched.Enabled()
	a.sched.Apply(scheduler.Config{
		Enabled:  newCfg.Updates.Enabled,
		Timezone: newCfg.Updates.Timezone,
	})
	if prevEnabled && !newCfg.Updates.Enabled {
		a.log.Info("scheduled updates disabled via config")
		a.sched.Stop()
	} else if !prevEnabled && newCfg.Updates.Enabled {
		a.log.Info("scheduled updates enabled via config")
		a.sched.Start()
		if !a.updatesRegistered {
			if err := a.registerUpdateJobs(newCfg); err != nil {
				a.log.Warn("scheduled update registration failed", logx.Err(err))
			}
		}
	}

	a.log.Info("config reloaded",
		append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

// registerUpdateJobs wires the daily and weekly announcement triggers.
// A trigger only submits the broadcast onto the dispatch loop; if the
// loop is unavailable the run is logged and skipped.
func (a *App) registerUpdateJobs(cfg *config.Config) error {
	dailyAt := strings.TrimSpace(cfg.Updates.DailyAt)
	if dailyAt == "" {
		dailyAt = "09:00"
	}
	weeklyAt := strings.TrimSpace(cfg.Updates.Weekly.At)
	if weeklyAt == "" {
		weeklyAt = "10:00"
	}
	weekday := time.Monday
	if d := strings.TrimSpace(cfg.Updates.Weekly.Day); d != "" {
		wd, err := scheduler.ParseWeekday(d)
		if err != nil {
			return err
		}
		weekday = wd
	}

	batch := cfg.Updates.BatchSize
	if batch <= 0 {
		batch = 25
	}
	pause, err := config.ParseDurationOrDefault("updates.batch_pause", cfg.Updates.BatchPause, 300*time.Millisecond)
	if err != nil {
		return err
	}
	opts := broadcast.Options{BatchSize: batch, Pause: pause, ParseMode: "HTML"}

	submit := func(name, text string) func() {
		return func() {
			if _, err := a.loop.Submit(name, func(ctx context.Context) error {
				_, err := a.bc.Broadcast(ctx, text, opts)
				return err
			}); err != nil {
				a.log.Warn("scheduled broadcast skipped", logx.String("job", name), logx.Err(err))
			}
		}
	}

	if err := a.sched.AddDaily("updates.daily", dailyAt, submit("updates.daily", bot.MsgDailyUpdate)); err != nil {
		return err
	}
	if err := a.sched.AddWeekly("updates.weekly", weekday, weeklyAt, submit("updates.weekly", bot.MsgWeeklyTip)); err != nil {
		return err
	}
	a.updatesRegistered = true
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
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
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("http", 3*time.Second, func(c context.Context) error { return a.httpSrv.Stop(c) })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(); return nil })
	step("dispatch", 3*time.Second, func(c context.Context) error { a.loop.Close(); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("logging", 1*time.Second, func(c context.Context) error { return a.logs.Close() })

	a.log.Info("stopped")
	return nil
}

func applyLogTarget(logs *logx.Service, groupLog string) {
	if s := strings.TrimSpace(groupLog); s != "" {
		if chatID, err := strconv.ParseInt(s, 10, 64); err == nil {
			logs.SetTelegramTarget(chatID)
			return
		}
	}
	logs.SetTelegramTarget(0)
}

func storageConfig(cfg *config.Config) storage.Config {
	s := cfg.Storage
	if s == nil {
		return storage.Config{Driver: "sqlite", Path: "./annobot.db"}
	}
	busy, _ := config.ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	out := storage.Config{Driver: s.Driver, Path: s.Path, BusyTimeout: busy}
	if strings.TrimSpace(out.Driver) == "" {
		out.Driver = "sqlite"
	}
	if strings.TrimSpace(out.Path) == "" {
		out.Path = "./annobot.db"
	}
	return out
}

func menuLinks(m config.MenuConfig) bot.Links {
	return bot.Links{
		Contact:      m.Contact,
		MaterialsBot: m.MaterialsBot,
		Guide:        m.Guide,
		Purchase:     links(m.Purchase),
		YouTube:      links(m.YouTube),
		Groups:       links(m.Groups),
	}
}

func links(in []config.MenuLink) []bot.Link {
	out := make([]bot.Link, 0, len(in))
	for _, l := range in {
		out = append(out, bot.Link{Name: l.Name, URL: l.URL})
	}
	return out
}
