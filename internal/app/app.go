package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"matchbot/internal/bonus"
	"matchbot/internal/bot"
	"matchbot/internal/cache"
	"matchbot/internal/config"
	"matchbot/internal/eventbus"
	"matchbot/internal/fixtures"
	"matchbot/internal/notifier"
	"matchbot/internal/observability/httpserver"
	"matchbot/internal/observability/metrics"
	"matchbot/internal/provider"
	"matchbot/internal/reminder"
	rtsup "matchbot/internal/runtime/supervisor"
	"matchbot/internal/storage"
	kit "matchbot/internal/transport"
	telegram "matchbot/internal/transport/telegram/adapter"
	logx "matchbot/pkg/logx"
	"matchbot/pkg/tgui"
)

type App struct {
	cfgPath string
	started time.Time

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log    logx.Logger
	logs   *logx.Service
	bus    eventbus.Bus
	latest *eventbus.Latest
	reg    *prometheus.Registry
	store  storage.Store
	rdb    *redis.Client

	adapter *telegram.Adapter
	gateway *provider.Gateway
	// memMatches is nil when matches are cached in redis.
	memMatches *cache.MemoryStore[provider.Match]
	source     *fixtures.Source

	notif     *notifier.Service
	reminders *reminder.Scheduler
	bonus     *bonus.Tracker
	http      *httpserver.Service
	router    *bot.Router

	remindersOn bool
	updates     chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, fmt.Errorf("telegram.token is required (or set %s)", config.EnvBotToken)
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

	// logx.New applies immediately; bootstrap with the Telegram sink off so a
	// missing target does not warn, then apply the final config.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	log = log.With(logx.String("comp", "app"))
	if chatID, ok, _ := groupLogTarget(cfg); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)

	a := &App{
		cfgPath: cfgPath,
		started: time.Now(),
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		latest:  eventbus.NewLatest(),
		reg:     prometheus.NewRegistry(),
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}
	if err := a.build(cfg); err != nil {
		a.closeResources()
		logSvc.Close()
		return nil, err
	}
	return a, nil
}

// build wires every component from cfg. Resources opened here are released
// by closeResources.
func (a *App) build(cfg *config.Config) error {
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	col := metrics.NewCollector(a.reg)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	st, err := storage.Open(sc, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	a.store = st
	a.log.Info("storage ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	pc, err := mapProviderConfig(cfg)
	if err != nil {
		return err
	}
	if pc.Token == "" {
		a.log.Warn("provider token not set; requests will be rejected", logx.String("env", config.EnvProviderKey))
	}
	a.gateway = provider.New(pc, a.log,
		provider.WithTransport(provider.NewFastHTTPTransport(pc.RequestTimeout)),
		provider.WithObserver(col),
	)

	matches, listings, err := a.buildCaches(cfg, col)
	if err != nil {
		return err
	}
	a.source = fixtures.NewSource(a.gateway, matches, listings, a.log,
		fixtures.WithDaysAhead(cfg.Provider.DaysAhead))
	subs := fixtures.NewService(a.source, a.store)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	a.notif = notifier.New(ncfg, a.adapter, a.log, a.bus, notifier.WithObserver(col))

	rcfg, err := mapRemindersConfig(cfg)
	if err != nil {
		return err
	}
	a.reminders = reminder.New(rcfg, a.store, a.source, a.notif, a.log,
		reminder.WithBus(a.bus),
		reminder.WithObserver(col),
		reminder.WithFailureHook(a.onPassFailed),
	)

	deps := bot.Deps{
		Fixtures:  a.source,
		Subs:      subs,
		Users:     a.store,
		Status:    a,
		DaysAhead: cfg.Provider.DaysAhead,
	}
	if cfg.Bonus.Enabled {
		bcfg, err := mapBonusConfig(cfg)
		if err != nil {
			return err
		}
		a.bonus = bonus.New(bcfg, a.store, a.notif, a.bus, a.log)
		deps.Bonus = a.bonus
		deps.BonusAmount = bcfg.Amount
		if deps.BonusAmount <= 0 {
			deps.BonusAmount = bonus.DefaultAmount
		}
	}

	a.router = bot.NewRouter(a.adapter, a.log, cfg.Telegram.OwnerUserIDs)
	a.router.Observe(col)
	bot.Register(a.router, deps)

	hcfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return err
	}
	a.http = httpserver.New(hcfg, httpserver.Deps{
		Latest:   a.latest,
		Gatherer: a.reg,
		Started:  a.started,
	}, a.log)
	return nil
}

func (a *App) buildCaches(cfg *config.Config, col *metrics.Collector) (*cache.Cache[provider.Match], *cache.Cache[[]provider.Match], error) {
	cs, err := mapCacheConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	clog := a.log.With(logx.String("comp", "cache"))

	var (
		mstore cache.Store[provider.Match]
		lstore cache.Store[[]provider.Match]
	)
	switch cs.driver {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := cache.NewRedisClient(ctx, cs.addr, cs.password, cs.db)
		cancel()
		if err != nil {
			return nil, nil, err
		}
		a.rdb = rdb
		mstore = cache.NewRedisStore[provider.Match](rdb, cache.WithPrefix(cs.prefix+":match"))
		lstore = cache.NewRedisStore[[]provider.Match](rdb, cache.WithPrefix(cs.prefix+":list"))
	default:
		a.memMatches = cache.NewMemoryStore[provider.Match]()
		mstore = a.memMatches
		lstore = cache.NewMemoryStore[[]provider.Match]()
	}
	clog.Info("match cache ready", logx.String("driver", cs.driver), logx.Duration("ttl", cs.ttl))

	matches := cache.New(mstore, cs.ttl,
		cache.WithObserver[provider.Match](col.Cache("match")),
		cache.WithLogger[provider.Match](clog))
	listings := cache.New(lstore, cs.ttl,
		cache.WithObserver[[]provider.Match](col.Cache("listing")),
		cache.WithLogger[[]provider.Match](clog))
	return matches, listings, nil
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
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.http.SetSupervisor(a.sup)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	a.sup.Go0("eventbus.latest", func(c context.Context) {
		a.latest.Run(c, a.bus, eventbus.TypeReminderPass, eventbus.TypeReminderFailed, eventbus.TypeConfigReloaded)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.notif.Start(a.sup.Context())

	cfg := a.cfgm.Get()
	if cfg.RemindersEnabled() {
		if err := a.reminders.Start(a.sup.Context()); err != nil {
			return err
		}
		a.remindersOn = true
	} else {
		a.log.Info("reminders disabled via config")
	}
	a.http.Start(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("commands.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.router.UpdateMenu(mctx); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})

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
				// Reminder passes run every minute; keep this at debug.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

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
				// Coalesce bursts: keep only the latest config in the channel.
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
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Bool("reminders", a.remindersOn),
		logx.Bool("bonus", a.bonus != nil),
		logx.Int("owners", len(cfg.Telegram.OwnerUserIDs)),
	)
	return nil
}

// applyConfig applies the hot-reloadable sections of newCfg. Sections that
// need a restart are only reported.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if config.RestartSections[s] {
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	// update log target first so Apply() doesn't warn when Telegram logging is enabled
	if chatID, ok, _ := groupLogTarget(newCfg); ok {
		a.logs.SetTelegramTarget(chatID, newCfg.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLoggingConfig(newCfg))

	a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)

	if ncfg, err := mapNotifierConfig(newCfg); err == nil {
		a.notif.Apply(ncfg)
	}

	if rcfg, err := mapRemindersConfig(newCfg); err != nil {
		a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
	} else if err := a.reminders.Apply(rcfg); err != nil {
		a.log.Warn("reminder reschedule failed", logx.Err(err))
	}
	switch on := newCfg.RemindersEnabled(); {
	case a.remindersOn && !on:
		a.log.Info("reminders disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.reminders.Stop(stopCtx)
		cancel()
		a.remindersOn = false
	case !a.remindersOn && on:
		a.log.Info("reminders enabled via config")
		if err := a.reminders.Start(ctx); err != nil {
			a.log.Warn("reminder start failed", logx.Err(err))
		} else {
			a.remindersOn = true
		}
	}

	if hcfg, err := mapHTTPConfig(newCfg); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else {
		a.http.Reconfigure(ctx, hcfg)
	}

	eventbus.Publish(a.bus, eventbus.TypeConfigReloaded, sections)
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// onPassFailed alerts the owners when a reminder pass aborts.
func (a *App) onPassFailed(ctx context.Context, r reminder.PassResult, err error) {
	if err == nil {
		return
	}
	owners := a.cfgm.Get().Telegram.OwnerUserIDs
	if len(owners) == 0 {
		return
	}
	text := tgui.New().
		Title("⚠️", "Reminder pass failed").
		KV("Pass", r.PassID).
		KV("Error", tgui.TruncRunes(err.Error(), 300)).
		Text()
	for _, id := range owners {
		n := notifier.Notification{
			Channel: eventbus.TypeReminderFailed,
			Target:  kit.ChatTarget{ChatID: id},
			Text:    text.String(),
			Options: &kit.SendOptions{ParseMode: kit.ParseHTML, DisablePreview: true},
		}
		if nerr := a.notif.Notify(ctx, n); nerr != nil {
			a.log.Debug("owner alert not queued", logx.Int64("owner", id), logx.Err(nerr))
		}
	}
}

// Status implements bot.StatusSource.
func (a *App) Status(ctx context.Context) bot.Status {
	st := bot.Status{
		Uptime:           time.Since(a.started),
		LastProviderCall: a.gateway.Pacer().LastCallAt(),
		ProviderWaiting:  int64(a.gateway.Pacer().Waiting()),
		CachedMatches:    -1,
		DroppedEvents:    a.bus.Dropped(),
	}
	if a.memMatches != nil {
		st.CachedMatches = a.memMatches.Len()
	}
	if a.bonus != nil {
		st.PendingBonuses = a.bonus.Pending()
	}
	if n, err := a.store.CountUsers(ctx); err != nil {
		a.log.Warn("count users failed", logx.Err(err))
	} else {
		st.Users = n
	}
	if r, ok := a.reminders.LastPass(); ok {
		st.LastPass = &r
	}
	return st
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	a.step(ctx, "reminders", 5*time.Second, func(c context.Context) error { a.reminders.Stop(c); return nil })
	a.step(ctx, "bonus", 2*time.Second, func(c context.Context) error {
		if a.bonus != nil {
			a.bonus.Stop(c)
		}
		return nil
	})
	a.step(ctx, "http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.closeResources() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max so one component can't stall the
// whole stop. The caller's deadline is never extended.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

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
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}
		}()
	}
}

func (a *App) closeResources() error {
	var first error
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			first = err
		}
		a.rdb = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && first == nil {
			first = err
		}
		a.store = nil
	}
	return first
}
