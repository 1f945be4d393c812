package reschedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/repository"
	"github.com/jwalitptl/medalarm/internal/service/alarm"
	apperrors "github.com/jwalitptl/medalarm/pkg/errors"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/metrics"
)

type Trigger string

const (
	TriggerBoot        Trigger = "boot"
	TriggerPreferences Trigger = "preferences"
	TriggerForeground  Trigger = "foreground"
	TriggerManual      Trigger = "manual"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerBoot, TriggerPreferences, TriggerForeground, TriggerManual:
		return true
	}
	return false
}

// Lifecycle reschedules a single medication.
type Lifecycle interface {
	Reschedule(ctx context.Context, med *model.Medication) (*alarm.Result, error)
}

// BootNotifier delivers the device reboot signal. Delivery is at most once
// per boot and may not happen at all.
type BootNotifier interface {
	OnBootSignal(ctx context.Context, handler func(context.Context) error) error
}

// Summary describes one full pass.
type Summary struct {
	Trigger     Trigger       `json:"trigger"`
	Total       int           `json:"total"`
	Rescheduled int           `json:"rescheduled"`
	Skipped     int           `json:"skipped"`
	Failed      []int64       `json:"failed,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

type pass struct {
	trigger Trigger
	done    chan struct{}
	summary *Summary
	err     error
}

type Service struct {
	lifecycle   Lifecycle
	silence     repository.SilenceRepository
	medications repository.MedicationRepository
	metrics     *metrics.Metrics
	logger      *logger.Logger

	runMu sync.Mutex
	mu    sync.Mutex
	next  *pass
}

func NewService(
	lifecycle Lifecycle,
	silence repository.SilenceRepository,
	medications repository.MedicationRepository,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if m == nil {
		m = metrics.New("medalarm")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		lifecycle:   lifecycle,
		silence:     silence,
		medications: medications,
		metrics:     m,
		logger:      log,
	}
}

// RescheduleAll reschedules meds one after another. Inactive and silenced
// medications are skipped. A failure for one medication does not stop the
// pass; all failures are returned joined.
func (s *Service) RescheduleAll(ctx context.Context, meds []*model.Medication) (*Summary, error) {
	return s.rescheduleAll(ctx, TriggerManual, meds)
}

// Trigger loads the active medications and runs a full pass. A trigger that
// arrives while a pass is running waits for the next pass, which is shared
// by every trigger queued behind the running one.
func (s *Service) Trigger(ctx context.Context, trigger Trigger) (*Summary, error) {
	s.mu.Lock()
	if s.next == nil {
		s.next = &pass{trigger: trigger, done: make(chan struct{})}
	} else {
		s.logger.Debug("reschedule trigger coalesced", "trigger", string(trigger), "into", string(s.next.trigger))
	}
	p := s.next
	s.mu.Unlock()

	s.runMu.Lock()
	s.mu.Lock()
	owner := s.next == p
	if owner {
		s.next = nil
	}
	s.mu.Unlock()

	if owner {
		p.summary, p.err = s.runPass(ctx, p.trigger)
		close(p.done)
		s.runMu.Unlock()
		return p.summary, p.err
	}
	s.runMu.Unlock()

	select {
	case <-p.done:
		return p.summary, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RescheduleMedication loads one medication and reschedules it.
func (s *Service) RescheduleMedication(ctx context.Context, medicationID int64) (*alarm.Result, error) {
	med, err := s.medications.Get(ctx, medicationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound(fmt.Sprintf("medication %d", medicationID), err)
		}
		return nil, apperrors.NewStorage("load medication", err)
	}
	return s.lifecycle.Reschedule(ctx, med)
}

// Listen runs a boot pass for every reboot signal until ctx is done.
func (s *Service) Listen(ctx context.Context, notifier BootNotifier) error {
	return notifier.OnBootSignal(ctx, func(ctx context.Context) error {
		_, err := s.Trigger(ctx, TriggerBoot)
		return err
	})
}

func (s *Service) runPass(ctx context.Context, trigger Trigger) (*Summary, error) {
	meds, err := s.medications.ListActive(ctx)
	if err != nil {
		s.metrics.Passes.WithLabelValues(string(trigger), "error").Inc()
		return nil, apperrors.NewStorage("list active medications", err)
	}
	return s.rescheduleAll(ctx, trigger, meds)
}

func (s *Service) rescheduleAll(ctx context.Context, trigger Trigger, meds []*model.Medication) (*Summary, error) {
	summary := &Summary{
		Trigger:   trigger,
		Total:     len(meds),
		StartedAt: time.Now(),
	}

	var errs []error
	for _, med := range meds {
		if med == nil || !med.Active {
			summary.Skipped++
			continue
		}

		silenced, err := s.silence.IsMedicationSilenced(ctx, med.ID)
		if err != nil {
			summary.Failed = append(summary.Failed, med.ID)
			errs = append(errs, fmt.Errorf("medication %d: %w", med.ID, apperrors.NewStorage("read medication silence", err)))
			continue
		}
		if silenced {
			summary.Skipped++
			continue
		}

		if _, err := s.lifecycle.Reschedule(ctx, med); err != nil {
			s.logger.Error(err, "failed to reschedule medication",
				"medication_id", med.ID,
				"trigger", string(trigger))
			summary.Failed = append(summary.Failed, med.ID)
			errs = append(errs, fmt.Errorf("medication %d: %w", med.ID, err))
			continue
		}
		summary.Rescheduled++
	}

	summary.Duration = time.Since(summary.StartedAt)
	s.metrics.PassDuration.WithLabelValues(string(trigger)).Observe(summary.Duration.Seconds())

	status := "ok"
	if len(errs) > 0 {
		status = "partial"
	}
	s.metrics.Passes.WithLabelValues(string(trigger), status).Inc()

	s.logger.Info("reschedule pass finished",
		"trigger", string(trigger),
		"total", summary.Total,
		"rescheduled", summary.Rescheduled,
		"skipped", summary.Skipped,
		"failed", len(summary.Failed),
		"duration", summary.Duration.String())

	return summary, errors.Join(errs...)
}
