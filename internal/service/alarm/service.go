package alarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/platform"
	"github.com/jwalitptl/medalarm/internal/repository"
	"github.com/jwalitptl/medalarm/internal/schedule"
	apperrors "github.com/jwalitptl/medalarm/pkg/errors"
	"github.com/jwalitptl/medalarm/pkg/keylock"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/metrics"
)

// Skip reasons reported in Result.Skipped.
const (
	SkipInactive = "inactive"
	SkipSilenced = "silenced"
	SkipNoDoses  = "no_doses"
)

// PreferenceReader supplies the preferences applied to generated alarms.
type PreferenceReader interface {
	Get(ctx context.Context) (model.Preferences, error)
}

type Config struct {
	// SubmitRate paces calls to the alarm platform. Zero means unlimited.
	SubmitRate  rate.Limit
	SubmitBurst int
	// Locker serializes lifecycles per medication id. Processes sharing the
	// mapping store must share a lock too; nil locks within this process only.
	Locker keylock.KeyLocker
}

// Result describes what one reschedule did.
type Result struct {
	MedicationID int64   `json:"medication_id"`
	Cancelled    []int64 `json:"cancelled"`
	CancelFailed []int64 `json:"cancel_failed,omitempty"`
	Scheduled    []int64 `json:"scheduled"`
	Failed       []int64 `json:"failed,omitempty"`
	Skipped      string  `json:"skipped,omitempty"`
}

// Service owns the alarm lifecycle of every medication. It is the only writer
// of the mapping store, and runs at most one lifecycle per medication at a time.
type Service struct {
	mappings  repository.MappingRepository
	silence   repository.SilenceRepository
	prefs     PreferenceReader
	generator *schedule.Generator
	allocator *schedule.Allocator
	platform  platform.Client
	locks     keylock.KeyLocker
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

func NewService(
	mappings repository.MappingRepository,
	silence repository.SilenceRepository,
	prefs PreferenceReader,
	generator *schedule.Generator,
	client platform.Client,
	m *metrics.Metrics,
	log *logger.Logger,
	cfg Config,
) *Service {
	limit := cfg.SubmitRate
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.SubmitBurst
	if burst <= 0 {
		burst = 1
	}
	if m == nil {
		m = metrics.New("medalarm")
	}
	if log == nil {
		log = logger.Nop()
	}
	var locks keylock.KeyLocker = keylock.New()
	if cfg.Locker != nil {
		locks = cfg.Locker
	}
	return &Service{
		mappings:  mappings,
		silence:   silence,
		prefs:     prefs,
		generator: generator,
		allocator: schedule.NewAllocator(mappings),
		platform:  client,
		locks:     locks,
		limiter:   rate.NewLimiter(limit, burst),
		metrics:   m,
		logger:    log,
	}
}

// Reschedule cancels every alarm stored for med and schedules its current
// doses again. Storage failures are returned as storage errors; platform
// failures for single doses are logged and leave those doses unscheduled.
func (s *Service) Reschedule(ctx context.Context, med *model.Medication) (*Result, error) {
	if med == nil {
		return nil, apperrors.NewBadRequest("medication is required", nil)
	}

	unlock, err := s.lock(ctx, med.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	result, err := s.reschedule(ctx, med)
	s.metrics.RescheduleDuration.Observe(time.Since(start).Seconds())

	outcome := "scheduled"
	switch {
	case err != nil:
		outcome = "error"
	case result.Skipped != "":
		outcome = result.Skipped
	}
	s.metrics.Reschedules.WithLabelValues(outcome).Inc()

	return result, err
}

// Cancel cancels and forgets every alarm stored for medicationID without
// scheduling anything new.
func (s *Service) Cancel(ctx context.Context, medicationID int64) (*Result, error) {
	unlock, err := s.lock(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &Result{MedicationID: medicationID}
	if err := s.cancel(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

// ScheduledIDs returns the alarm ids currently stored for medicationID.
func (s *Service) ScheduledIDs(ctx context.Context, medicationID int64) ([]int64, error) {
	ids, err := s.mappings.GetScheduledIDs(ctx, medicationID)
	if err != nil {
		return nil, apperrors.NewStorage("read scheduled ids", err)
	}
	return ids, nil
}

// LookupMedication resolves a fired alarm back to its medication.
func (s *Service) LookupMedication(ctx context.Context, alarmID int64) (int64, error) {
	medID, err := s.allocator.RecoverMedicationID(ctx, alarmID)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			return 0, apperrors.NewNotFound(fmt.Sprintf("alarm %d", alarmID), err)
		}
		return 0, apperrors.NewStorage("lookup alarm mapping", err)
	}
	return medID, nil
}

func (s *Service) lock(ctx context.Context, medicationID int64) (func(), error) {
	unlock, err := s.locks.Lock(ctx, medicationID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, apperrors.NewStorage(fmt.Sprintf("lock medication %d", medicationID), err)
	}
	return unlock, nil
}

func (s *Service) reschedule(ctx context.Context, med *model.Medication) (*Result, error) {
	result := &Result{MedicationID: med.ID}

	if err := s.cancel(ctx, result); err != nil {
		return result, err
	}

	if !med.Active {
		result.Skipped = SkipInactive
		return result, nil
	}
	silenced, err := s.silence.IsMedicationSilenced(ctx, med.ID)
	if err != nil {
		return result, apperrors.NewStorage("read medication silence", err)
	}
	if silenced {
		result.Skipped = SkipSilenced
		return result, nil
	}

	prefs, err := s.prefs.Get(ctx)
	if err != nil {
		return result, apperrors.NewStorage("read preferences", err)
	}
	// the guard above already read the medication's silence under the lock
	alarms, err := s.generator.GenerateUnsilenced(ctx, med, prefs)
	if err != nil {
		return result, apperrors.NewStorage("generate doses", err)
	}

	if len(alarms) == 0 {
		result.Skipped = SkipNoDoses
		return result, nil
	}

	s.warnIfNotPermitted(ctx, med.ID)

	if err := s.commit(ctx, med.ID, alarms, result); err != nil {
		return result, err
	}

	s.logger.Info("medication rescheduled",
		"medication_id", med.ID,
		"cancelled", len(result.Cancelled),
		"scheduled", len(result.Scheduled),
		"failed", len(result.Failed))
	return result, nil
}

// cancel cancels stored alarms one by one, continuing past platform errors,
// then clears the stored list. Mappings are dropped only for alarms the
// platform confirmed cancelled, so a still-pending alarm stays resolvable.
func (s *Service) cancel(ctx context.Context, result *Result) error {
	ids, err := s.mappings.GetScheduledIDs(ctx, result.MedicationID)
	if err != nil {
		return apperrors.NewStorage("read scheduled ids", err)
	}

	for _, id := range ids {
		if err := s.submit(ctx, func() error { return s.platform.CancelAlarm(ctx, id) }); err != nil {
			s.metrics.CancelFailures.Inc()
			s.logger.Warn("failed to cancel alarm",
				"medication_id", result.MedicationID,
				"alarm_id", id,
				"error", err.Error())
			result.CancelFailed = append(result.CancelFailed, id)
			continue
		}
		s.metrics.AlarmsCancelled.Inc()
		result.Cancelled = append(result.Cancelled, id)
	}

	if len(ids) == 0 {
		return nil
	}
	if err := s.mappings.RecordScheduledIDs(ctx, result.MedicationID, nil); err != nil {
		return apperrors.NewStorage("clear scheduled ids", err)
	}
	if err := s.mappings.DeleteMappings(ctx, result.Cancelled...); err != nil {
		return apperrors.NewStorage("delete alarm mappings", err)
	}
	return nil
}

// commit records each mapping before the alarm reaches the platform. If a
// mapping cannot be written the run stops, keeping whatever was already
// accepted in the stored list so the next cancel can find it.
func (s *Service) commit(ctx context.Context, medID int64, alarms []model.AlarmData, result *Result) error {
	var commitErr error
	for _, a := range alarms {
		if err := s.mappings.RecordMapping(ctx, a.AlarmID, medID); err != nil {
			commitErr = apperrors.NewStorage("record alarm mapping", err)
			break
		}

		payload := a.Payload
		err := s.submit(ctx, func() error { return s.platform.ScheduleAlarm(ctx, a.AlarmID, payload) })
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				commitErr = ctxErr
				break
			}
			s.metrics.ScheduleFailures.Inc()
			s.logger.Warn("alarm platform rejected dose",
				"medication_id", medID,
				"alarm_id", a.AlarmID,
				"at", a.At.Format(time.RFC3339),
				"error", err.Error())
			result.Failed = append(result.Failed, a.AlarmID)
			continue
		}
		s.metrics.AlarmsScheduled.Inc()
		result.Scheduled = append(result.Scheduled, a.AlarmID)
	}

	if err := s.mappings.RecordScheduledIDs(ctx, medID, result.Scheduled); err != nil {
		return apperrors.NewStorage("record scheduled ids", err)
	}
	return commitErr
}

func (s *Service) submit(ctx context.Context, call func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return call()
}

func (s *Service) warnIfNotPermitted(ctx context.Context, medID int64) {
	perms, err := s.platform.CheckPermissions(ctx)
	if err != nil {
		s.logger.Warn("could not read alarm permissions", "medication_id", medID, "error", err.Error())
		return
	}
	if !perms.CanScheduleExactAlarms {
		s.logger.Warn("exact alarms not permitted, doses may not fire on time", "medication_id", medID)
	}
}
