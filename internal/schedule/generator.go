package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/repository"
	"github.com/jwalitptl/medalarm/pkg/logger"
)

const (
	// maxTreatmentDays bounds the plan span so the end date stays representable.
	maxTreatmentDays = 1000000
	maxOffsetHours   = int64(1<<63-1) / int64(time.Hour)
)

// Generator expands a medication's dosing plan into the alarms that should
// currently be scheduled. It holds no per-medication state: every call
// recomputes the sequence from the plan, the clock and the silence registry.
type Generator struct {
	silence repository.SilenceRepository
	logger  *logger.Logger
	loc     *time.Location
	now     func() time.Time
}

type Option func(*Generator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithLocation sets the zone start dates, start times and slots are read in.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func NewGenerator(silence repository.SilenceRepository, log *logger.Logger, opts ...Option) *Generator {
	g := &Generator{
		silence: silence,
		logger:  log,
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Nop()
	}
	return g
}

// Location returns the zone used for slots and labels.
func (g *Generator) Location() *time.Location {
	return g.loc
}

// Generate returns the future alarms for med in dose order. Plan defects
// (bad start, non-positive interval or duration, unencodable id) yield an
// empty result and a warning; only silence registry failures are errors.
func (g *Generator) Generate(ctx context.Context, med *model.Medication, prefs model.Preferences) ([]model.AlarmData, error) {
	if med == nil || !med.Active {
		return nil, nil
	}

	silenced, err := g.silence.IsMedicationSilenced(ctx, med.ID)
	if err != nil {
		return nil, err
	}
	if silenced {
		g.logger.Info("medication silenced, no doses generated", "medication_id", med.ID)
		return nil, nil
	}
	return g.expand(ctx, med, prefs)
}

// GenerateUnsilenced is Generate without the medication silence read, for
// callers that checked the registry themselves. Silenced slots still apply.
func (g *Generator) GenerateUnsilenced(ctx context.Context, med *model.Medication, prefs model.Preferences) ([]model.AlarmData, error) {
	if med == nil || !med.Active {
		return nil, nil
	}
	return g.expand(ctx, med, prefs)
}

func (g *Generator) expand(ctx context.Context, med *model.Medication, prefs model.Preferences) ([]model.AlarmData, error) {
	start, err := med.Start(g.loc)
	if err != nil {
		g.logger.Warn("unparseable medication start", "medication_id", med.ID, "error", err.Error())
		return nil, nil
	}
	if med.IntervalHours <= 0 {
		g.logger.Warn("non-positive dose interval", "medication_id", med.ID, "interval_hours", med.IntervalHours)
		return nil, nil
	}
	if med.TreatmentDurationDays <= 0 {
		g.logger.Debug("zero-length treatment", "medication_id", med.ID)
		return nil, nil
	}

	slots, err := g.silence.SilencedSlots(ctx, med.ID)
	if err != nil {
		return nil, err
	}
	silencedSlots := make(map[string]struct{}, len(slots))
	for _, s := range slots {
		silencedSlots[s] = struct{}{}
	}

	now := g.now()
	labels := newLabels(med, start)

	var alarms []model.AlarmData
	for _, dose := range g.doses(med, start) {
		if !dose.At.After(now) {
			continue
		}
		local := dose.At.In(g.loc)
		slot := local.Format(model.TimeLayout)
		if _, skip := silencedSlots[slot]; skip {
			continue
		}

		alarmID, err := Allocate(med.ID, len(alarms))
		if err != nil {
			if errors.Is(err, ErrInvalidMedicationID) {
				g.logger.Warn("medication id cannot be scheduled", "medication_id", med.ID)
				return nil, nil
			}
			return nil, err
		}

		alarms = append(alarms, model.AlarmData{
			AlarmID:      alarmID,
			MedicationID: med.ID,
			DoseIndex:    dose.Index,
			At:           local,
			Payload:      labels.payload(local, prefs),
		})
	}

	return alarms, nil
}

// doses expands the plan from its first dose, ignoring the clock and silence.
// Treatment covers durationDays calendar days from the start date, so the
// last dose falls before midnight ending the final day. The sequence is
// truncated at MaxDosesPerMedication rather than spilling into the next
// medication's id space.
func (g *Generator) doses(med *model.Medication, start time.Time) []model.Dose {
	days := med.TreatmentDurationDays
	if days > maxTreatmentDays {
		days = maxTreatmentDays
	}
	end := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location()).AddDate(0, 0, days)
	interval := int64(med.IntervalHours)

	var doses []model.Dose
	for i := 0; ; i++ {
		offset := int64(i) * interval
		if offset > maxOffsetHours {
			g.logger.Warn("dose beyond representable time", "medication_id", med.ID, "index", i)
			break
		}
		at := start.Add(time.Duration(offset) * time.Hour)
		if !at.Before(end) {
			break
		}
		if i >= MaxDosesPerMedication {
			g.logger.Warn("dose schedule truncated at capacity",
				"medication_id", med.ID,
				"limit", MaxDosesPerMedication)
			break
		}
		doses = append(doses, model.Dose{Index: i, At: at})
	}
	return doses
}

type labels struct {
	med       *model.Medication
	frequency string
	startDate string
	duration  string
}

func newLabels(med *model.Medication, start time.Time) labels {
	frequency := fmt.Sprintf("every %d hours", med.IntervalHours)
	if med.IntervalHours == 1 {
		frequency = "every hour"
	}
	duration := fmt.Sprintf("%d days", med.TreatmentDurationDays)
	if med.TreatmentDurationDays == 1 {
		duration = "1 day"
	}
	return labels{
		med:       med,
		frequency: frequency,
		startDate: start.Format(model.DateLayout),
		duration:  duration,
	}
}

func (l labels) payload(at time.Time, prefs model.Preferences) model.AlarmPayload {
	return model.AlarmPayload{
		Name:           l.med.Name,
		Patient:        l.med.Patient,
		Dosage:         l.med.DosageLabel(),
		TimeLabel:      at.Format(model.TimeLayout),
		FrequencyLabel: l.frequency,
		StartDateLabel: l.startDate,
		DurationLabel:  l.duration,
		Notes:          l.med.Notes,
		EpochMillis:    at.UnixMilli(),
		Sound:          prefs.SoundEnabled,
		ToneID:         prefs.ToneID,
		Vibration:      prefs.VibrationEnabled,
		VisualBanner:   prefs.VisualBannerEnabled,
		Volume:         prefs.Volume,
	}
}
