package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/medalarm/internal/service/reschedule"
	"github.com/jwalitptl/medalarm/pkg/logger"
)

type Rescheduler interface {
	Trigger(ctx context.Context, trigger reschedule.Trigger) (*reschedule.Summary, error)
	Listen(ctx context.Context, notifier reschedule.BootNotifier) error
}

type Config struct {
	// ForegroundInterval runs a periodic pass; zero disables it.
	ForegroundInterval time.Duration
	// PassTimeout bounds one periodic or start-up pass; zero means no bound.
	PassTimeout       time.Duration
	RescheduleOnStart bool
}

// RescheduleWorker keeps pending alarms in line with stored medications: it
// runs a boot pass for every reboot signal, optionally one at start-up, and
// a foreground pass on a fixed interval.
type RescheduleWorker struct {
	rescheduler Rescheduler
	notifier    reschedule.BootNotifier
	config      Config
	logger      *logger.Logger
	id          string
}

func NewRescheduleWorker(rescheduler Rescheduler, notifier reschedule.BootNotifier, config Config, log *logger.Logger) *RescheduleWorker {
	if log == nil {
		log = logger.Nop()
	}
	id := uuid.New().String()
	return &RescheduleWorker{
		rescheduler: rescheduler,
		notifier:    notifier,
		config:      config,
		logger:      log.WithFields(map[string]interface{}{"worker_id": id}),
		id:          id,
	}
}

func (w *RescheduleWorker) ID() string {
	return w.id
}

// Start subscribes to boot signals and blocks until ctx is done.
func (w *RescheduleWorker) Start(ctx context.Context) error {
	if w.notifier != nil {
		if err := w.rescheduler.Listen(ctx, w.notifier); err != nil {
			return err
		}
		w.logger.Info("listening for boot signals")
	}

	if w.config.RescheduleOnStart {
		w.run(ctx, reschedule.TriggerBoot)
	}

	if w.config.ForegroundInterval <= 0 {
		<-ctx.Done()
		w.logger.Info("reschedule worker stopped")
		return nil
	}

	ticker := time.NewTicker(w.config.ForegroundInterval)
	defer ticker.Stop()

	w.logger.Info("reschedule worker started", "interval", w.config.ForegroundInterval.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reschedule worker stopped")
			return nil
		case <-ticker.C:
			w.run(ctx, reschedule.TriggerForeground)
		}
	}
}

func (w *RescheduleWorker) run(ctx context.Context, trigger reschedule.Trigger) {
	if w.config.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.PassTimeout)
		defer cancel()
	}

	summary, err := w.rescheduler.Trigger(ctx, trigger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fields := []interface{}{"trigger", string(trigger)}
		if summary != nil {
			fields = append(fields, "failed", summary.Failed)
		}
		w.logger.Error(err, "reschedule pass failed", fields...)
		return
	}

	w.logger.Info("reschedule pass completed",
		"trigger", string(trigger),
		"total", summary.Total,
		"rescheduled", summary.Rescheduled,
		"skipped", summary.Skipped,
		"duration", summary.Duration.String())
}
