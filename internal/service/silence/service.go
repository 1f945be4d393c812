package silence

import (
	"context"

	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/repository"
	"github.com/jwalitptl/medalarm/internal/service/alarm"
	apperrors "github.com/jwalitptl/medalarm/pkg/errors"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/validator"
)

// Rescheduler applies a silence change to one medication's alarms.
type Rescheduler interface {
	RescheduleMedication(ctx context.Context, medicationID int64) (*alarm.Result, error)
}

// Service records silence changes and reschedules the medication right away,
// so silenced doses are cancelled and unsilenced doses come back without
// waiting for the next boot.
type Service struct {
	repo        repository.SilenceRepository
	rescheduler Rescheduler
	validate    validator.Validator
	logger      *logger.Logger
}

func NewService(repo repository.SilenceRepository, rescheduler Rescheduler, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:        repo,
		rescheduler: rescheduler,
		validate:    validator.New(),
		logger:      log,
	}
}

func (s *Service) SilenceMedication(ctx context.Context, medicationID int64) (*alarm.Result, error) {
	if err := s.repo.SilenceMedication(ctx, medicationID); err != nil {
		return nil, apperrors.NewStorage("silence medication", err)
	}
	s.logger.Info("medication silenced", "medication_id", medicationID)
	return s.rescheduler.RescheduleMedication(ctx, medicationID)
}

func (s *Service) UnsilenceMedication(ctx context.Context, medicationID int64) (*alarm.Result, error) {
	if err := s.repo.UnsilenceMedication(ctx, medicationID); err != nil {
		return nil, apperrors.NewStorage("unsilence medication", err)
	}
	s.logger.Info("medication unsilenced", "medication_id", medicationID)
	return s.rescheduler.RescheduleMedication(ctx, medicationID)
}

func (s *Service) SilenceSlot(ctx context.Context, medicationID int64, slot string) (*alarm.Result, error) {
	normalized, err := s.normalize(slot)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SilenceSlot(ctx, medicationID, normalized); err != nil {
		return nil, apperrors.NewStorage("silence slot", err)
	}
	s.logger.Info("slot silenced", "medication_id", medicationID, "slot", normalized)
	return s.rescheduler.RescheduleMedication(ctx, medicationID)
}

func (s *Service) UnsilenceSlot(ctx context.Context, medicationID int64, slot string) (*alarm.Result, error) {
	normalized, err := s.normalize(slot)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UnsilenceSlot(ctx, medicationID, normalized); err != nil {
		return nil, apperrors.NewStorage("unsilence slot", err)
	}
	s.logger.Info("slot unsilenced", "medication_id", medicationID, "slot", normalized)
	return s.rescheduler.RescheduleMedication(ctx, medicationID)
}

// State reports whether the medication and which of its slots are silenced.
func (s *Service) State(ctx context.Context, medicationID int64) (*model.SilenceState, error) {
	silenced, err := s.repo.IsMedicationSilenced(ctx, medicationID)
	if err != nil {
		return nil, apperrors.NewStorage("read medication silence", err)
	}
	slots, err := s.repo.SilencedSlots(ctx, medicationID)
	if err != nil {
		return nil, apperrors.NewStorage("read silenced slots", err)
	}
	if slots == nil {
		slots = []string{}
	}
	return &model.SilenceState{
		MedicationID: medicationID,
		Silenced:     silenced,
		Slots:        slots,
	}, nil
}

func (s *Service) SilencedMedications(ctx context.Context) ([]int64, error) {
	ids, err := s.repo.SilencedMedications(ctx)
	if err != nil {
		return nil, apperrors.NewStorage("list silenced medications", err)
	}
	return ids, nil
}

func (s *Service) normalize(slot string) (string, error) {
	if err := s.validate.ValidateVar("slot", slot, "required,slot"); err != nil {
		return "", apperrors.NewBadRequest("invalid slot", err)
	}
	normalized, err := model.NormalizeSlot(slot)
	if err != nil {
		return "", apperrors.NewBadRequest("invalid slot", err)
	}
	return normalized, nil
}
