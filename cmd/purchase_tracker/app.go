package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jonathan/purchase-tracker/internal/config"
	"github.com/jonathan/purchase-tracker/internal/db"
	"github.com/jonathan/purchase-tracker/internal/events"
	"github.com/jonathan/purchase-tracker/internal/fetch"
	"github.com/jonathan/purchase-tracker/internal/jobs"
	"github.com/jonathan/purchase-tracker/internal/logging"
	"github.com/jonathan/purchase-tracker/internal/notify"
	"github.com/jonathan/purchase-tracker/internal/pricing"
	"github.com/jonathan/purchase-tracker/internal/provider"
	"github.com/jonathan/purchase-tracker/internal/secrets"
)

// errNoProvider is returned by jobs when PROVIDER_COMMAND is not set.
var errNoProvider = errors.New("no order provider configured (set PROVIDER_COMMAND)")

// app holds the wired components shared by the subcommands.
type app struct {
	cfg *config.Config
	log *logging.Logger

	db     *db.DB
	box    *secrets.Box
	redis  *goredis.Client
	relay  *events.RedisRelay
	broker *events.Broker

	dispatcher   *notify.Dispatcher
	prices       *pricing.Service
	orchestrator *jobs.Orchestrator
	poller       *jobs.Poller
	streamer     *jobs.Streamer
	reconciler   *jobs.Reconciler
}

// loadConfig reads the config file and environment and builds the logger.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.LogMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

// newApp connects to storage, applies migrations and wires every component.
func newApp(ctx context.Context, cfg *config.Config, log *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = database

	applied, err := database.Migrate(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if len(applied) > 0 {
		log.Info("migrations applied", "versions", applied)
	}

	if cfg.CredentialsKey != "" {
		if a.box, err = secrets.NewBoxFromBase64(cfg.CredentialsKey); err != nil {
			a.Close()
			return nil, err
		}
	} else {
		log.Warn("CREDENTIALS_KEY is not set; provider credentials cannot be stored")
	}

	brokerOpts := []events.BrokerOption{}
	if cfg.RedisAddr != "" {
		relay, err := events.NewRedisRelay(ctx, log, cfg.RedisAddr, cfg.RedisChannelPrefix+":job-events")
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect event relay: %w", err)
		}
		a.relay = relay
		brokerOpts = append(brokerOpts, events.WithRelay(relay))
		a.redis = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, DialTimeout: 5 * time.Second})
	}
	a.broker = events.NewBroker(log, brokerOpts...)

	a.dispatcher = notify.NewDispatcher(cfg.WebhookTimeout.Duration, log)
	a.prices = pricing.NewService(database, a.priceFetcher(), a.dispatcher, log,
		pricing.WithSweepConcurrency(cfg.SweepConcurrency))

	orders, err := a.orderProvider()
	if err != nil {
		a.Close()
		return nil, err
	}

	store := database.Jobs()
	a.orchestrator = jobs.New(jobs.Deps{
		Store:     store,
		Broker:    a.broker,
		Provider:  orders,
		Directory: database.Directory(a.box),
		Sink:      database,
		Observer:  a.prices,
		Notifier:  notify.NewJobNotifier(database, a.dispatcher, log),
	}, jobs.Config{
		ManualDefaultDays: cfg.ManualDefaultDays,
		ScheduledDays:     cfg.ScheduledDays,
		TargetConcurrency: cfg.TargetConcurrency,
	}, log)
	a.poller = jobs.NewPoller(store)
	a.streamer = jobs.NewStreamer(store, a.broker, log)
	a.reconciler = jobs.NewReconciler(store, a.broker, cfg.StaleJobAfter.Duration, log)
	return a, nil
}

// priceFetcher scrapes over HTTP, through the shared page cache when Redis
// is configured, with an optional headless browser fallback.
func (a *app) priceFetcher() provider.PriceFetcher {
	var fetcher fetch.Fetcher = fetch.HTTPFetcher{Options: fetch.DefaultOptions()}
	if a.redis != nil {
		cache := fetch.NewRedisPageCache(a.redis, a.cfg.RedisChannelPrefix+":page:")
		fetcher = fetch.NewCachedFetcher(fetcher, cache, a.cfg.PageCacheTTL.Duration, a.log)
	}

	var render fetch.Renderer
	if a.cfg.BrowserFallback {
		render = fetch.NewRenderer(a.cfg.BrowserTimeout.Duration, a.log)
	}
	return provider.NewScrapePriceFetcher(fetcher, render, a.log)
}

func (a *app) orderProvider() (provider.OrderProvider, error) {
	if a.cfg.ProviderCommand == "" {
		a.log.Warn("PROVIDER_COMMAND is not set; ingestion jobs will fail")
		return provider.OrderProviderFunc(func(context.Context, provider.FetchRequest, func(string)) ([]provider.Order, error) {
			return nil, errNoProvider
		}), nil
	}
	p, err := provider.NewCommandProvider(a.cfg.ProviderCommand, a.cfg.ProviderTimeout.Duration, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create order provider: %w", err)
	}
	return p, nil
}

// Close releases connections. Safe on a partially built app.
func (a *app) Close() {
	if a.relay != nil {
		_ = a.relay.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.log.Sync()
}
