package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/repository"
)

const (
	fieldSound        = "sound"
	fieldToneID       = "toneId"
	fieldVibration    = "vibration"
	fieldVisualBanner = "visualBanner"
	fieldVolume       = "volume"
)

type preferenceRepository struct {
	store *Store
}

func NewPreferenceRepository(store *Store) repository.PreferenceRepository {
	return &preferenceRepository{store: store}
}

// Get loads the stored preferences. Missing or unreadable fields fall back
// to their defaults individually.
func (r *preferenceRepository) Get(ctx context.Context) (prefs model.Preferences, err error) {
	defer r.store.observe("get_preferences", time.Now(), &err)

	values, err := r.store.client.HGetAll(ctx, r.store.key(keyPreferences)).Result()
	if err != nil {
		return model.Preferences{}, fmt.Errorf("failed to load preferences: %w", err)
	}

	defaults := model.DefaultPreferences()
	return model.Preferences{
		SoundEnabled:        boolWithFallback(values, fieldSound, defaults.SoundEnabled),
		ToneID:              intWithFallback(values, fieldToneID, defaults.ToneID),
		VibrationEnabled:    boolWithFallback(values, fieldVibration, defaults.VibrationEnabled),
		VisualBannerEnabled: boolWithFallback(values, fieldVisualBanner, defaults.VisualBannerEnabled),
		Volume:              intWithFallback(values, fieldVolume, defaults.Volume),
	}, nil
}

func (r *preferenceRepository) Save(ctx context.Context, prefs model.Preferences) (err error) {
	defer r.store.observe("save_preferences", time.Now(), &err)

	err = r.store.client.HSet(ctx, r.store.key(keyPreferences), map[string]interface{}{
		fieldSound:        strconv.FormatBool(prefs.SoundEnabled),
		fieldToneID:       prefs.ToneID,
		fieldVibration:    strconv.FormatBool(prefs.VibrationEnabled),
		fieldVisualBanner: strconv.FormatBool(prefs.VisualBannerEnabled),
		fieldVolume:       prefs.Volume,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

func boolWithFallback(values map[string]string, field string, fallback bool) bool {
	v, ok := values[field]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func intWithFallback(values map[string]string, field string, fallback int) int {
	v, ok := values[field]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
