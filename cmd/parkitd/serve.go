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

	"github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"parkit-backend/internal/api"
	"parkit-backend/internal/db"
	"parkit-backend/internal/feed"
	"parkit-backend/internal/logger"
	"parkit-backend/internal/metrics"
	"parkit-backend/internal/mw"
	"parkit-backend/internal/notification"
	"parkit-backend/internal/store"
	"parkit-backend/internal/tracker"
)

const limiterIdle = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the snapshot loop",
	RunE:  serve,
}

func init() {
	rootCmd.RunE = serve
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Init(&cfg.Database, logger.New("db"))
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	model, err := forecastModel(cfg.Prediction)
	if err != nil {
		return err
	}
	opts := []tracker.Option{
		tracker.WithLogger(logger.New("tracker")),
		tracker.WithModel(model),
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := metrics.NewPromRecorder(reg)
		if err != nil {
			return fmt.Errorf("metrics recorder: %w", err)
		}
		opts = append(opts, tracker.WithMetrics(rec))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	var webpushOptions *webpush.Options
	var pool *notification.WorkerPool
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions, logger.New("notification"))
		pool.Start(ctx)
		opts = append(opts, tracker.WithNotifier(pool))
	} else {
		log.Warnf("VAPID keys not configured, push notifications disabled")
	}

	svc := tracker.New(store.NewGormStore(gormDB), tracker.SettingsFromConfig(cfg), opts...)
	if err := svc.Load(ctx); err != nil {
		return fmt.Errorf("load tracker state: %w", err)
	}
	go svc.Run(ctx)
	if cfg.Feed.Enabled {
		go feed.NewService(cfg.Feed, svc, logger.New("feed")).Run(ctx)
	}

	limiter := mw.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)
	go pruneLimiter(ctx, limiter, log)

	handler := api.NewHandler(svc, gormDB, webpushOptions, logger.New("api"))
	router := api.NewRouter(handler, api.RouterConfig{
		RequestIPHeader: cfg.Server.RequestIPHeader,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Limiter:         limiter,
		MetricsPath:     cfg.Metrics.Path,
		MetricsHandler:  metricsHandler,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Infof("shutdown signal received, stopping services")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	stop()
	if pool != nil {
		pool.Wait()
	}

	log.Infof("server gracefully stopped")
	return nil
}

func pruneLimiter(ctx context.Context, limiter *mw.IPRateLimiter, log logger.Logger) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Debugf("rate limiter tracks %d clients", limiter.Prune(limiterIdle))
		}
	}
}
