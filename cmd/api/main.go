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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/medalarm/config"
	"github.com/jwalitptl/medalarm/internal/app"
	alarmhandler "github.com/jwalitptl/medalarm/internal/handler/alarm"
	"github.com/jwalitptl/medalarm/internal/handler/health"
	platformhandler "github.com/jwalitptl/medalarm/internal/handler/platform"
	preferencehandler "github.com/jwalitptl/medalarm/internal/handler/preference"
	silencehandler "github.com/jwalitptl/medalarm/internal/handler/silence"
	systemhandler "github.com/jwalitptl/medalarm/internal/handler/system"
	"github.com/jwalitptl/medalarm/internal/middleware"
	"github.com/jwalitptl/medalarm/internal/repository/postgres"
	"github.com/jwalitptl/medalarm/internal/router"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/messaging/redis"
)

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
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), log.Zerolog())
	if err != nil {
		log.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

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

	r := router.NewRouter(router.RouterConfig{
		Mode:             cfg.Server.Mode,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		MetricsNamespace: cfg.Monitoring.Namespace,
		MetricsPath:      cfg.Monitoring.MetricsPath,
		Auth:             middleware.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer},
	}, log, reg,
		health.NewHandler(health.DatabaseCheck(db), health.RedisCheck(broker.Client())),
		alarmhandler.NewHandler(svcs.Rescheduler, svcs.Lifecycle),
		silencehandler.NewHandler(svcs.Silence),
		preferencehandler.NewHandler(svcs.Preferences),
		platformhandler.NewHandler(svcs.Platform),
		systemhandler.NewHandler(svcs.Rescheduler, svcs.BootSignals),
	)
	r.Setup()
	if !r.Auth().Enabled() {
		log.Warn("jwt secret not configured, API authentication is disabled")
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "server forced to shutdown")
	}
	log.Info("server exited")
}
