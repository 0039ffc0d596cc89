// Package app assembles the service graph: configuration, logging, storage,
// the session hub, the three automation services, and the operator-facing
// notification path.
package app

import (
	"context"
	"fmt"
	"html"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"blastbot/internal/config"
	"blastbot/internal/eventbus"
	"blastbot/internal/runtime/supervisor"
	"blastbot/internal/services/broadcast"
	"blastbot/internal/services/joins"
	"blastbot/internal/services/mentions"
	"blastbot/internal/session"
	"blastbot/internal/storage"
	"blastbot/internal/transport"
	tgbot "blastbot/internal/transport/telebot"
	"blastbot/pkg/logx"
)

// defaultKeywords are the join-trigger phrases used when the config does not
// set its own list.
var defaultKeywords = []string{"подписаться", "вступить", "необходимо"}

type App struct {
	log      logx.Logger
	closeLog func() error

	cfgMgr   *config.Manager
	store    storage.Store
	hub      *session.Hub
	bus      eventbus.Bus
	sup      *supervisor.Supervisor
	cron     *cron.Cron
	notifier transport.Notifier

	sweepMaxAge time.Duration

	Broadcast *broadcast.Service
	Prefs     *broadcast.Prefs
	Joins     *joins.Service
	Mentions  *mentions.Service

	busUnsub func()
	cfgSub   chan *config.Config
}

func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	mgr.SetValidator(func(_ context.Context, c *config.Config) error { return c.Validate() })
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	log, closeLog, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	mgr.SetLogger(log.With(logx.String("component", "config")))

	busyTimeout, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	hub := session.NewHub()
	bus := eventbus.New()
	sup := supervisor.New(context.Background(), supervisor.WithLogger(log.With(logx.String("component", "supervisor"))))

	var notifier transport.Notifier
	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		token = cfg.Telegram.Token
	}
	if token != "" {
		pollTimeout, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		bot, err := tgbot.NewBot(token, pollTimeout)
		if err != nil {
			_ = closeLog()
			return nil, fmt.Errorf("init bot: %w", err)
		}
		notifier = tgbot.NewNotifier(bot, float64(cfg.Telegram.NotifyRatePerSec), log.With(logx.String("component", "notifier")))
	} else {
		log.Warn("no bot token configured, operator notifications disabled")
	}

	joinsSvc := joins.New(hub, store, sup, log.With(logx.String("component", "joins")))
	reg := broadcast.NewRegistry()
	bcast := broadcast.New(reg, hub, joinsSvc, bus, sup, log.With(logx.String("component", "broadcast")))
	ment := mentions.New(hub, notifier, joinsSvc, sup, log.With(logx.String("component", "mentions")))

	sweepMaxAge, err := config.ParseDurationOrDefault("broadcast.sweep_max_age", cfg.Broadcast.SweepMaxAge, 120*time.Minute)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	a := &App{
		log:         log,
		closeLog:    closeLog,
		cfgMgr:      mgr,
		store:       store,
		hub:         hub,
		bus:         bus,
		sup:         sup,
		cron:        cron.New(),
		notifier:    notifier,
		sweepMaxAge: sweepMaxAge,
		Broadcast:   bcast,
		Prefs:       broadcast.NewPrefs(store),
		Joins:       joinsSvc,
		Mentions:    ment,
	}
	a.applyConfig(cfg)
	return a, nil
}

// applyConfig pushes the reloadable parts of the config into the services.
func (a *App) applyConfig(cfg *config.Config) {
	keywords := cfg.Joins.Keywords
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	a.Mentions.SetKeywords(keywords)

	if cfg.Joins.PerTargetMin > 0 && cfg.Joins.PerTargetMax > 0 {
		per := fmt.Sprintf("%d-%d", cfg.Joins.PerTargetMin, cfg.Joins.PerTargetMax)
		between := fmt.Sprintf("%d-%d", cfg.Joins.BetweenMin, cfg.Joins.BetweenMax)
		a.Joins.SetDefaultDelays(per, between)
	}
}

// Hub exposes the session registry so the login layer can attach clients.
func (a *App) Hub() *session.Hub { return a.hub }

func (a *App) Logger() logx.Logger { return a.log }

// Start brings up the background machinery: config watching, settings
// restore, the sweep schedule, and lifecycle-event forwarding.
func (a *App) Start() error {
	cfg := a.cfgMgr.Get()

	a.sup.Go("config.watch", a.cfgMgr.Watch)
	a.cfgSub = a.cfgMgr.Subscribe(4)
	a.sup.Go0("config.apply", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-a.cfgSub:
				if !ok {
					return
				}
				a.applyConfig(next)
			}
		}
	})

	if err := a.Joins.LoadAll(a.sup.Context()); err != nil {
		a.log.Warn("join settings restore failed", logx.Err(err))
	}

	sweepEvery, err := config.ParseDurationOrDefault("broadcast.sweep_interval", cfg.Broadcast.SweepInterval, 10*time.Minute)
	if err != nil {
		return err
	}
	if _, err := a.cron.AddFunc(fmt.Sprintf("@every %s", sweepEvery), func() {
		a.Broadcast.Sweep(a.sweepMaxAge)
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	a.cron.Start()

	if a.notifier != nil {
		events, unsub := a.bus.Subscribe(16)
		a.busUnsub = unsub
		a.sup.Go0("notify.lifecycle", func(ctx context.Context) {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					a.forwardLifecycle(ctx, ev)
				}
			}
		})
	}

	a.log.Info("service started",
		logx.String("storage", cfg.Storage.Driver),
		logx.Duration("sweep_every", sweepEvery),
		logx.Duration("sweep_max_age", a.sweepMaxAge),
		logx.Bool("notifications", a.notifier != nil))
	return nil
}

func (a *App) forwardLifecycle(ctx context.Context, ev eventbus.Event) {
	data, ok := ev.Data.(broadcast.JobEvent)
	if !ok {
		return
	}
	var text string
	switch ev.Type {
	case broadcast.EventFinished:
		icon := "✅"
		if data.Status == broadcast.StatusStopped {
			icon = "⏹"
		}
		text = fmt.Sprintf("%s Broadcast #%d (%s) %s: %d sent, %d failed",
			icon, data.JobID, html.EscapeString(data.AccountName), data.Status, data.Sent, data.Failed)
	case broadcast.EventError:
		text = fmt.Sprintf("⚠️ Broadcast #%d failed: %s", data.JobID, html.EscapeString(data.Error))
	default:
		return
	}
	if err := a.notifier.Notify(ctx, data.UserID, text, nil); err != nil {
		a.log.Debug("lifecycle notification failed", logx.Int("job", data.JobID), logx.Err(err))
	}
}

// Stop shuts everything down, bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	a.cron.Stop()
	if a.busUnsub != nil {
		a.busUnsub()
	}
	if a.cfgSub != nil {
		a.cfgMgr.Unsubscribe(a.cfgSub)
	}

	err := a.sup.Stop(ctx)

	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.log.Info("service stopped", logx.Err(err))
	if a.closeLog != nil {
		_ = a.closeLog()
	}
	return err
}
