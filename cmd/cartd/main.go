package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/localcart/api/controllers"
	"github.com/angelmondragon/localcart/api/routes"
	"github.com/angelmondragon/localcart/internal/cart"
	"github.com/angelmondragon/localcart/internal/cartstate"
	"github.com/angelmondragon/localcart/internal/cartstore"
	"github.com/angelmondragon/localcart/internal/checkout"
	"github.com/angelmondragon/localcart/internal/connectivity"
	"github.com/angelmondragon/localcart/internal/cron"
	"github.com/angelmondragon/localcart/internal/insights"
	"github.com/angelmondragon/localcart/internal/orders"
	"github.com/angelmondragon/localcart/pkg/config"
	"github.com/angelmondragon/localcart/pkg/db"
	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/angelmondragon/localcart/pkg/marketplace"
	"github.com/angelmondragon/localcart/pkg/metrics"
	"github.com/angelmondragon/localcart/pkg/migrate"
	"github.com/angelmondragon/localcart/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "cartd"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: cfg.Service.Kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeAutoRun(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to apply migrations", err)
		os.Exit(1)
	}

	// readiness treats a nil pinger as "not configured"
	var redisPinger controllers.Pinger
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		redisPinger = redisClient
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := cartstore.New(ctx, dbClient.DB(), logg)
	if err != nil {
		logg.Error(ctx, "failed to open cart store", err)
		os.Exit(1)
	}
	defer store.Close()

	dataSource, err := cart.NewDataSource(cart.DataSourceParams{
		Store:      store,
		Logger:     logg,
		DefaultTTL: cfg.Cart.DefaultTTL,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cart data source", err)
		os.Exit(1)
	}

	var monitor *connectivity.Monitor
	var online connectivity.Source = connectivity.NewStatic(cfg.FeatureFlags.AssumeOnlineAtBoot)
	if cfg.FeatureFlags.ConnectivityProbe {
		monitor, err = connectivity.NewMonitor(connectivity.MonitorParams{
			Logger:        logg,
			ProbeURL:      cfg.Connectivity.ProbeURL,
			Interval:      cfg.Connectivity.Interval,
			Timeout:       cfg.Connectivity.Timeout,
			InitialOnline: cfg.FeatureFlags.AssumeOnlineAtBoot,
		})
		if err != nil {
			logg.Error(ctx, "failed to create connectivity monitor", err)
			os.Exit(1)
		}
		online = monitor
	}

	cartRepo, err := cartstate.NewRepository(cartstate.RepositoryParams{
		DataSource:   dataSource,
		Connectivity: online,
		Logger:       logg,
		SnapshotWait: cfg.Cart.SnapshotWait,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cart repository", err)
		os.Exit(1)
	}

	remote, err := marketplace.NewClient(cfg.Remote.BaseURL,
		marketplace.WithHTTPClient(&http.Client{Timeout: cfg.Remote.Timeout}),
		marketplace.WithAPIToken(cfg.Remote.APIToken),
		marketplace.WithBreaker(cfg.Remote.BreakerMaxFailures, cfg.Remote.BreakerOpenTimeout),
		marketplace.WithStateChangeHook(func(name string, from, to gobreaker.State) {
			logg.Warn(logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}), "marketplace breaker state changed")
		}),
	)
	if err != nil {
		logg.Error(ctx, "failed to create marketplace client", err)
		os.Exit(1)
	}

	orderCache, err := orders.NewOrderCache(dbClient.DB())
	if err != nil {
		logg.Error(ctx, "failed to create order cache", err)
		os.Exit(1)
	}
	payments, err := orders.NewPaymentHistory(dbClient.DB())
	if err != nil {
		logg.Error(ctx, "failed to create payment history", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.Params{
		Logger:        logg,
		Items:         dataSource,
		Remote:        remote,
		Orders:        orderCache,
		Payments:      payments,
		Metrics:       metrics.NewCheckoutMetrics(reg),
		PaymentMethod: cfg.Checkout.PaymentMethod,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	insightService, err := insights.NewService(insights.Params{
		Logger:  logg,
		Remote:  remote,
		Config:  cfg.Cache,
		Metrics: metrics.NewCacheMetrics(reg),
	})
	if err != nil {
		logg.Error(ctx, "failed to create insights service", err)
		os.Exit(1)
	}

	scheduler, err := newScheduler(cfg, logg, reg, redisClient, cartRepo, insightService)
	if err != nil {
		logg.Error(ctx, "failed to create scheduler", err)
		os.Exit(1)
	}

	addr := ":" + cfg.App.Port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisPinger,
			Metrics:  reg,
			Cart:     cartRepo,
			Checkout: checkoutService,
			Orders:   orderCache,
			Payments: payments,
			Insights: insightService,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(ctx, "starting cart daemon")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if monitor != nil {
		group.Go(func() error {
			return ignoreCanceled(monitor.Run(groupCtx))
		})
	}
	if scheduler != nil {
		group.Go(func() error {
			return ignoreCanceled(scheduler.Run(groupCtx))
		})
	}

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "cart daemon stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cart daemon shut down gracefully")
}

// newScheduler returns nil when scheduled eviction is turned off. A redis
// lock is used when redis is configured so several daemons can share one
// database.
func newScheduler(
	cfg *config.Config,
	logg *logger.Logger,
	reg prometheus.Registerer,
	redisClient *redis.Client,
	cartRepo *cartstate.Repository,
	insightService *insights.Service,
) (*cron.Service, error) {
	if !cfg.FeatureFlags.ScheduledEviction {
		return nil, nil
	}

	var lock cron.Lock = cron.NewLocalLock()
	if redisClient != nil {
		redisLock, err := cron.NewRedisLock(redisClient, cfg.Scheduler.LockKey, cfg.Scheduler.LockTTL)
		if err != nil {
			return nil, err
		}
		lock = redisLock
	}

	eviction, err := cron.NewEvictionJob(cartRepo)
	if err != nil {
		return nil, err
	}
	sweep, err := cron.NewInsightsSweepJob(insightService)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(eviction, sweep),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
		Interval: cfg.Scheduler.Interval,
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
