// Package app wires the services together: config, logging, storage, the
// remote feed, the predictor, the Telegram transport, the refresh scheduler
// and the group announcer.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wingobot/internal/announce"
	"wingobot/internal/bot"
	"wingobot/internal/config"
	"wingobot/internal/eventbus"
	"wingobot/internal/game"
	"wingobot/internal/observability/pprof"
	"wingobot/internal/predict"
	"wingobot/internal/registry"
	rtsup "wingobot/internal/runtime/supervisor"
	"wingobot/internal/scheduler"
	"wingobot/internal/source"
	"wingobot/internal/storage"
	kit "wingobot/internal/transport"
	telegram "wingobot/internal/transport/telegram/adapter"
	"wingobot/internal/transport/telegram/router"
	"wingobot/internal/updater"
	logx "wingobot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	feed      *source.Client
	predictor *predict.Predictor
	reg       *registry.Registry
	botSvc    *bot.Service
	announcer *announce.Service
	sched     *scheduler.Service
	upd       *updater.Updater
	pprof     *pprof.Service
	routes    *router.Router

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New() applies immediately. Bootstrap with the Telegram sink
	// disabled, set the target chat, then apply the final config so the
	// first Apply() doesn't warn about a missing target.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    false,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if chatID, ok := parseChatID(cfg.Telegram.GroupLog); ok {
		logSvc.SetTelegramTarget(chatID)
	}
	finalLogCfg := baseLogCfg
	finalLogCfg.Telegram.Enabled = cfg.Logging.Telegram.Enabled
	logSvc.Apply(finalLogCfg)

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	srcCfg, err := mapSourceConfig(cfg)
	if err != nil {
		return nil, err
	}
	feed := source.New(srcCfg, log.With(logx.String("comp", "source")))

	predictor := predict.New(st, feed, predict.Config{
		TargetWinRate: cfg.Game.TargetWinRate,
		ResultsLength: cfg.Game.ResultsLength,
		Contact:       cfg.Game.Contact,
		SiteURL:       cfg.Game.SiteURL,
	}, bus, log.With(logx.String("comp", "predict")))

	regMaxAge, err := config.ParseDurationOrDefault("updater.registry_max_age", cfg.Updater.RegistryMaxAge, 0)
	if err != nil {
		return nil, err
	}
	reg := registry.New(registry.WithCap(cfg.Updater.RegistryCap), registry.WithMaxAge(regMaxAge))

	botSvc := bot.New(bot.Config{ChannelURL: cfg.Telegram.ChannelURL},
		predictor, reg, log.With(logx.String("comp", "bot")))

	annCfg, err := mapAnnouncerConfig(cfg)
	if err != nil {
		return nil, err
	}
	ann := announce.New(annCfg, ad, log.With(logx.String("comp", "announce")), bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")))

	updCfg, err := mapUpdaterConfig(cfg)
	if err != nil {
		return nil, err
	}
	upd := updater.New(updCfg, predictor, reg, ad, ann, bus, log.With(logx.String("comp", "updater")))
	upd.Options = botSvc.CardOptions

	pprofSvc := pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	routes := router.New(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     st,
		adapter:   ad,
		feed:      feed,
		predictor: predictor,
		reg:       reg,
		botSvc:    botSvc,
		announcer: ann,
		sched:     sched,
		upd:       upd,
		pprof:     pprofSvc,
		routes:    routes,
		updates:   make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
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
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	// A fresh database gets a believable backstory before the first card.
	rounds := 10
	if a.cfgm.Get() != nil && a.cfgm.Get().Game.ResultsLength > 0 {
		rounds = a.cfgm.Get().Game.ResultsLength
	}
	for _, cat := range game.Categories() {
		if err := storage.Seed(a.sup.Context(), a.store, cat, rounds); err != nil {
			return fmt.Errorf("seed %s: %w", cat, err)
		}
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.routes.SetRegistry(a.sup.Context(), a.botSvc.Commands(), a.botSvc.Callbacks())

	if a.announcer.Enabled() {
		a.announcer.Start(a.sup.Context())
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
		if err := a.upd.Register(a.sched); err != nil {
			return err
		}
	}
	if a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.routes.DispatchLoop(c, a.updates)
	})

	// Debug-level event trace; components can also subscribe themselves.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot-reload fan-out.
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
				sections, attrs := config.SummarizeChange(lastApplied, newCfg)
				lastApplied = newCfg
				if len(sections) == 0 {
					a.log.Info("config reloaded (no changes)")
					continue
				}
				a.applyReload(c, newCfg, sections)
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(ctx context.Context, cfg *config.Config, sections []string) {
	for _, s := range sections {
		switch s {
		case "storage", "source", "updater":
			// These are built once at startup.
			a.log.Warn("config changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	// Log target first, so Apply() doesn't warn when the sink is enabled.
	if chatID, ok := parseChatID(cfg.Telegram.GroupLog); ok {
		a.logs.SetTelegramTarget(chatID)
	} else {
		a.logs.SetTelegramTarget(0)
	}
	a.logs.Apply(logx.Config{
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
	})

	a.routes.SetOwners(cfg.Telegram.OwnerUserIDs)

	// Announcer: live apply plus enable/disable on the fly.
	if annCfg, err := mapAnnouncerConfig(cfg); err != nil {
		a.log.Warn("invalid announcer config; keeping previous", logx.Err(err))
	} else {
		prevEnabled := a.announcer.Enabled()
		a.announcer.Apply(annCfg)
		if prevEnabled && !annCfg.Enabled {
			a.log.Info("announcer disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.announcer.Stop(stopCtx)
			cancel()
		} else if !prevEnabled && annCfg.Enabled {
			a.log.Info("announcer enabled via config")
			a.announcer.Start(ctx)
		}
	}

	// Scheduler: live apply plus enable/disable on the fly.
	if schedCfg, err := mapSchedulerConfig(cfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		prevEnabled := a.sched.Enabled()
		a.sched.Apply(schedCfg)
		if prevEnabled && !schedCfg.Enabled {
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		} else if !prevEnabled && schedCfg.Enabled {
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
			if err := a.upd.Register(a.sched); err != nil {
				a.log.Warn("re-registering jobs failed", logx.Err(err))
			}
		}
	}

	a.pprof.Reconfigure(ctx, mapPprofConfig(cfg))
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
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
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
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("announcer", 3*time.Second, func(c context.Context) error { a.announcer.Stop(c); return nil })
	step("pprof", 1*time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func parseChatID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// parseGroupTarget resolves telegram.official_group into a chat target:
// numeric ids address the chat directly, anything else is a public @handle.
func parseGroupTarget(s string) kit.ChatTarget {
	s = strings.TrimSpace(s)
	if s == "" {
		return kit.ChatTarget{}
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return kit.ChatTarget{ChatID: id}
	}
	return kit.ChatTarget{Username: strings.TrimPrefix(s, "@")}
}
