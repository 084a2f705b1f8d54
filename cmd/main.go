package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/bnstats/internal/adapters/bnsite"
	"github.com/okian/bnstats/internal/adapters/http/api"
	"github.com/okian/bnstats/internal/adapters/mq/stream"
	"github.com/okian/bnstats/internal/adapters/osuapi"
	"github.com/okian/bnstats/internal/adapters/repository"
	app "github.com/okian/bnstats/internal/app"
	"github.com/okian/bnstats/internal/config"
	"github.com/okian/bnstats/internal/domain/reconcile"
	"github.com/okian/bnstats/internal/domain/scoring"
	"github.com/okian/bnstats/pkg/logger"
	"github.com/okian/bnstats/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 35 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if cfg.LogFormat == string(logger.FormatJSON) {
		if err := logger.InitWithFormat(os.Stdout, logger.FormatJSON); err != nil {
			os.Stderr.WriteString("failed to switch log format: " + err.Error() + "\n")
			return
		}
		loggerInstance = logger.Get()
	}

	registerRuntimeCollectors()

	store, err := repository.OpenSQL(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		loggerInstance.Error(ctx, "failed to open store", logger.String("driver", cfg.DBDriver), logger.Error(err))
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			loggerInstance.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	site := newSiteClient(cfg)
	beatmaps := osuapi.New(cfg.APIKey, osuapi.WithBaseURL(cfg.APIURL))

	roster := reconcile.NewRosterSync(site, store)
	maps := reconcile.NewMapSync(beatmaps, store)
	reconciler := reconcile.New(store, roster, reconcile.WithSystemUserID(cfg.SystemUserID))

	engines, err := buildEngines(cfg, store, maps)
	if err != nil {
		loggerInstance.Error(ctx, "failed to build calculators", logger.Error(err))
		return
	}

	svc, err := app.New(app.Dependencies{
		Store:    store,
		Activity: site,
		Roster:   roster,
		Ingester: reconciler,
		Maps:     maps,
		Engines:  engines,
	},
		app.WithLogger(loggerInstance.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithActivityDays(cfg.ActivityDays),
		app.WithScoreDays(cfg.ScoreDays),
		app.WithUseAiess(cfg.UseAiess),
		app.WithNotifier(failureNotifier(loggerInstance.Named("notifier"))),
	)
	if err != nil {
		loggerInstance.Error(ctx, "failed to create service", logger.Error(err))
		return
	}
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			loggerInstance.Error(stopCtx, "service stop failed", logger.Error(err))
		}
	}()

	go runScheduler(ctx, svc, cfg.RefreshInterval(), loggerInstance.Named("scheduler"))

	if cfg.KafkaEnabled() {
		consumer, err := stream.NewConsumer(stream.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, svc)
		if err != nil {
			loggerInstance.Error(ctx, "failed to create stream consumer", logger.Error(err))
			return
		}
		defer func() { _ = consumer.Close() }()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				loggerInstance.Error(ctx, "stream consumer stopped", logger.Error(err))
			}
		}()
	}

	apiServer := api.NewServer(svc,
		api.WithAiessKey(cfg.AiessKey),
		api.WithMaxLimit(cfg.MaxLeaderboardLimit),
		api.WithDefaultCalculator(cfg.DefaultCalculator),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Routes(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

func newSiteClient(cfg *config.Config) *bnsite.Client {
	opts := []bnsite.Option{bnsite.WithSiteURL(cfg.SiteURL)}
	if cfg.UseInterop() {
		opts = append(opts, bnsite.WithInterop(cfg.InteropURL, cfg.InteropUsername, cfg.InteropPassword))
	} else {
		opts = append(opts, bnsite.WithSession(cfg.SiteSession))
	}
	return bnsite.New(opts...)
}

// buildEngines creates one engine per configured calculator, in order.
func buildEngines(cfg *config.Config, store scoring.Store, maps scoring.MapSource) ([]app.Engine, error) {
	engines := make([]app.Engine, 0, len(cfg.Calculators))
	for _, name := range cfg.Calculators {
		calc, err := scoring.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("calculator %q: %w", name, err)
		}
		engines = append(engines, scoring.NewEngine(calc, store, maps,
			scoring.WithMapperWindow(cfg.MapperWindow()),
			scoring.WithScoreDays(cfg.ScoreDays),
			scoring.WithSystemUserID(cfg.SystemUserID),
		))
	}
	return engines, nil
}

// runScheduler runs a cycle immediately and then once per interval.
func runScheduler(ctx context.Context, svc *app.Service, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := svc.RunCycle(ctx); err != nil && ctx.Err() == nil {
			log.Error(ctx, "refresh cycle failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func failureNotifier(log logger.Logger) app.Notifier {
	return app.NotifierFunc(func(ctx context.Context, f app.Failure) {
		log.Warn(ctx, "moderator pipeline failure",
			logger.Int64("user_id", f.UserID),
			logger.String("stage", f.Stage),
			logger.Error(f.Err),
		)
	})
}

// registerRuntimeCollectors adds Go runtime and process metrics to the
// custom registry served on /metrics.
func registerRuntimeCollectors() {
	reg := metrics.GetRegistry()
	_ = reg.Register(collectors.NewGoCollector())
	_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}
