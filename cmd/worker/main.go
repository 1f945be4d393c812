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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/medalarm/config"
	"github.com/jwalitptl/medalarm/internal/app"
	"github.com/jwalitptl/medalarm/internal/handler/health"
	promhandler "github.com/jwalitptl/medalarm/internal/handler/prometheus"
	"github.com/jwalitptl/medalarm/internal/repository/postgres"
	"github.com/jwalitptl/medalarm/internal/worker"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/messaging/redis"
)

func setupHealthCheck(port int, checks []health.Check, reg *prometheus.Registry, metricsPath string, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(checks...).RegisterRoutes(engine)
	promhandler.New(reg).RegisterRoutes(engine, metricsPath)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "health check server failed")
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig(os.Getenv("MEDALARM_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	}).WithFields(map[string]interface{}{"service": "medalarm-worker"})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), log.Zerolog())
	if err != nil {
		log.Fatal(err, "failed to create Redis broker")
	}
	defer broker.Close()

	reg := prometheus.NewRegistry()
	svcs, err := app.NewServices(app.Deps{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Redis:    broker.Client(),
		Broker:   broker,
		DB:       db,
	})
	if err != nil {
		log.Fatal(err, "failed to build services")
	}

	healthSrv := setupHealthCheck(cfg.Worker.HealthPort,
		[]health.Check{health.DatabaseCheck(db), health.RedisCheck(broker.Client())},
		reg, cfg.Monitoring.MetricsPath, log)

	w := worker.NewRescheduleWorker(svcs.Rescheduler, svcs.BootSignals, worker.Config{
		ForegroundInterval: cfg.Worker.ForegroundInterval,
		PassTimeout:        cfg.Worker.PassTimeout,
		RescheduleOnStart:  cfg.Worker.RescheduleOnStart,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down...")
		cancel()
	}()

	log.Info("worker started", "worker_id", w.ID())
	if err := w.Start(ctx); err != nil {
		log.Error(err, "reschedule worker failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "health check server shutdown failed")
	}
}
