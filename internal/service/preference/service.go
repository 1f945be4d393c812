package preference

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/repository"
	"github.com/jwalitptl/medalarm/internal/service/reschedule"
	apperrors "github.com/jwalitptl/medalarm/pkg/errors"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/validator"
)

const cacheKey = "preferences"

// Rescheduler runs a full pass after preferences change.
type Rescheduler interface {
	Trigger(ctx context.Context, trigger reschedule.Trigger) (*reschedule.Summary, error)
}

type Config struct {
	CacheDuration   time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		CacheDuration:   5 * time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
}

type Service struct {
	repo        repository.PreferenceRepository
	rescheduler Rescheduler
	cache       *cache.Cache
	validate    validator.Validator
	logger      *logger.Logger
}

func NewService(repo repository.PreferenceRepository, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:     repo,
		cache:    cache.New(cfg.CacheDuration, cfg.CleanupInterval),
		validate: validator.New(),
		logger:   log,
	}
}

// SetRescheduler wires the pass run after every update. The rescheduler
// reads preferences through this service, so it is set after construction.
func (s *Service) SetRescheduler(r Rescheduler) {
	s.rescheduler = r
}

// Get returns the preferences for display. An absent record yields defaults.
// The copy is cached per process and may lag an update made by another
// process for up to CacheDuration; scheduling reads the repository directly.
func (s *Service) Get(ctx context.Context) (model.Preferences, error) {
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.(model.Preferences), nil
	}

	prefs, err := s.repo.Get(ctx)
	if err != nil {
		return model.Preferences{}, apperrors.NewStorage("read preferences", err)
	}
	s.cache.Set(cacheKey, prefs, cache.DefaultExpiration)
	return prefs, nil
}

// Update applies req, persists the result and reschedules every medication
// so pending alarms carry the new settings. A failed pass is logged and
// reported in the summary; the update itself stands.
func (s *Service) Update(ctx context.Context, req *model.UpdatePreferencesRequest) (model.Preferences, *reschedule.Summary, error) {
	current, err := s.repo.Get(ctx)
	if err != nil {
		return model.Preferences{}, nil, apperrors.NewStorage("read preferences", err)
	}

	next := req.Apply(current)
	if err := s.validate.Validate(next); err != nil {
		return model.Preferences{}, nil, apperrors.NewBadRequest("invalid preferences", err)
	}

	if err := s.repo.Save(ctx, next); err != nil {
		return model.Preferences{}, nil, apperrors.NewStorage("save preferences", err)
	}
	s.cache.Set(cacheKey, next, cache.DefaultExpiration)
	s.logger.Info("preferences updated",
		"sound", next.SoundEnabled,
		"tone_id", next.ToneID,
		"vibration", next.VibrationEnabled,
		"visual_banner", next.VisualBannerEnabled,
		"volume", next.Volume)

	if s.rescheduler == nil {
		return next, nil, nil
	}
	summary, err := s.rescheduler.Trigger(ctx, reschedule.TriggerPreferences)
	if err != nil {
		s.logger.Error(err, "reschedule after preference change incomplete")
	}
	return next, summary, nil
}
