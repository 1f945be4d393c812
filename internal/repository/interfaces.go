package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/medalarm/internal/model"
)

var (
	// ErrNotFound is returned when a medication does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMappingNotFound is returned when an alarm id has no recorded medication.
	ErrMappingNotFound = errors.New("alarm mapping not found")
)

// All repository interfaces in one file
type (
	// MappingRepository persists alarm id to medication id associations and
	// the per-medication list of scheduled alarm ids. It does no locking:
	// callers serialize writes for the same medication.
	MappingRepository interface {
		RecordMapping(ctx context.Context, alarmID, medicationID int64) error
		DeleteMappings(ctx context.Context, alarmIDs ...int64) error
		LookupMedicationID(ctx context.Context, alarmID int64) (int64, error)
		RecordScheduledIDs(ctx context.Context, medicationID int64, alarmIDs []int64) error
		GetScheduledIDs(ctx context.Context, medicationID int64) ([]int64, error)
	}

	// SilenceRepository persists silenced medications and time slots.
	SilenceRepository interface {
		SilenceMedication(ctx context.Context, medicationID int64) error
		UnsilenceMedication(ctx context.Context, medicationID int64) error
		IsMedicationSilenced(ctx context.Context, medicationID int64) (bool, error)
		SilencedMedications(ctx context.Context) ([]int64, error)
		SilenceSlot(ctx context.Context, medicationID int64, slot string) error
		UnsilenceSlot(ctx context.Context, medicationID int64, slot string) error
		IsSlotSilenced(ctx context.Context, medicationID int64, slot string) (bool, error)
		SilencedSlots(ctx context.Context, medicationID int64) ([]string, error)
	}

	// PreferenceRepository persists the global alarm preferences.
	PreferenceRepository interface {
		Get(ctx context.Context) (model.Preferences, error)
		Save(ctx context.Context, prefs model.Preferences) error
	}

	// PermissionRepository holds the permission state last reported by the
	// device. GetPermissions reports false when nothing current is stored.
	PermissionRepository interface {
		SavePermissions(ctx context.Context, perms model.Permissions, ttl time.Duration) error
		GetPermissions(ctx context.Context) (model.Permissions, bool, error)
	}

	// MedicationRepository is the read side of the medication store.
	MedicationRepository interface {
		Get(ctx context.Context, id int64) (*model.Medication, error)
		ListActive(ctx context.Context) ([]*model.Medication, error)
	}
)
