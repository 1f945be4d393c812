package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/medalarm/config"
	"github.com/jwalitptl/medalarm/internal/platform"
	"github.com/jwalitptl/medalarm/internal/repository"
	"github.com/jwalitptl/medalarm/internal/repository/postgres"
	redisrepo "github.com/jwalitptl/medalarm/internal/repository/redis"
	"github.com/jwalitptl/medalarm/internal/schedule"
	"github.com/jwalitptl/medalarm/internal/service/alarm"
	"github.com/jwalitptl/medalarm/internal/service/preference"
	"github.com/jwalitptl/medalarm/internal/service/reschedule"
	"github.com/jwalitptl/medalarm/internal/service/silence"
	"github.com/jwalitptl/medalarm/pkg/keylock"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/messaging"
	"github.com/jwalitptl/medalarm/pkg/metrics"
)

// Deps are the process-level resources the service graph is built on.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry prometheus.Registerer
	Redis    *goredis.Client
	Broker   messaging.Broker
	// DB backs the medication source unless Medications is set.
	DB          *sqlx.DB
	Medications repository.MedicationRepository
	// Generator options, e.g. a fixed clock.
	GeneratorOptions []schedule.Option
}

type Services struct {
	Metrics     *metrics.Metrics
	Platform    platform.ReportingClient
	Lifecycle   *alarm.Service
	Rescheduler *reschedule.Service
	Silence     *silence.Service
	Preferences *preference.Service
	BootSignals *messaging.SignalChannel
	Medications repository.MedicationRepository
}

// NewServices wires stores, platform client and services from cfg.
func NewServices(d Deps) (*Services, error) {
	cfg := d.Config
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, err
	}

	medications := d.Medications
	if medications == nil {
		if d.DB == nil {
			return nil, fmt.Errorf("no medication source: database is required")
		}
		medications = postgres.NewMedicationRepository(d.DB)
	}

	m := metrics.NewMetrics(cfg.Monitoring.Namespace, d.Registry)
	store := redisrepo.NewStore(d.Redis, cfg.Redis.KeyPrefix, m)
	mappings := redisrepo.NewMappingRepository(store)
	silenceRepo := redisrepo.NewSilenceRepository(store)

	client, err := platform.New(platform.Config{
		Driver:        cfg.Platform.Driver,
		Channel:       cfg.Platform.Channel,
		PermissionTTL: cfg.Platform.PermissionTTL,
		MaxFailures:   cfg.Platform.MaxFailures,
		BreakerReset:  cfg.Platform.BreakerReset,
	}, d.Broker, redisrepo.NewPermissionRepository(store), log)
	if err != nil {
		return nil, err
	}

	prefRepo := redisrepo.NewPreferenceRepository(store)
	prefs := preference.NewService(prefRepo, preference.Config{
		CacheDuration:   cfg.Preferences.CacheDuration,
		CleanupInterval: cfg.Preferences.CleanupInterval,
	}, log)

	opts := append([]schedule.Option{schedule.WithLocation(loc)}, d.GeneratorOptions...)
	generator := schedule.NewGenerator(silenceRepo, log, opts...)

	// The API and the worker both run lifecycles against the same store and
	// device, so the per-medication lock lives in Redis. Alarms snapshot the
	// stored preferences, not this process's cached copy.
	locks := keylock.NewRedisLocker(d.Redis, keylock.RedisConfig{
		Prefix:        cfg.Redis.KeyPrefix + "lock:medication:",
		TTL:           cfg.Redis.LockTTL,
		RetryInterval: cfg.Redis.LockRetry,
		OnError: func(err error) {
			log.Error(err, "medication lock")
		},
	})
	lifecycle := alarm.NewService(mappings, silenceRepo, prefRepo, generator, client, m, log, alarm.Config{
		SubmitRate:  rate.Limit(cfg.Platform.SubmitRate),
		SubmitBurst: cfg.Platform.SubmitBurst,
		Locker:      locks,
	})
	rescheduler := reschedule.NewService(lifecycle, silenceRepo, medications, m, log)
	prefs.SetRescheduler(rescheduler)

	var boot *messaging.SignalChannel
	if d.Broker != nil {
		boot = messaging.NewBootSignals(d.Broker, func(err error) {
			log.Error(err, "boot pass failed")
		})
	}

	return &Services{
		Metrics:     m,
		Platform:    client,
		Lifecycle:   lifecycle,
		Rescheduler: rescheduler,
		Silence:     silence.NewService(silenceRepo, rescheduler, log),
		Preferences: prefs,
		BootSignals: boot,
		Medications: medications,
	}, nil
}
