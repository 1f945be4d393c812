package schedule

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jwalitptl/medalarm/internal/repository"
)

// MaxDosesPerMedication is the size of one medication's alarm id space.
const MaxDosesPerMedication = 100000

// maxMedicationID keeps the largest allocated id inside int64.
const maxMedicationID = (math.MaxInt64 - (MaxDosesPerMedication - 1)) / MaxDosesPerMedication

var (
	ErrCapacityExceeded    = errors.New("dose index outside the medication's alarm id space")
	ErrInvalidMedicationID = errors.New("medication id cannot be encoded in an alarm id")
)

// Allocate maps a medication and dose index to its global alarm id.
func Allocate(medicationID int64, doseIndex int) (int64, error) {
	if doseIndex < 0 || doseIndex >= MaxDosesPerMedication {
		return 0, fmt.Errorf("%w: index %d", ErrCapacityExceeded, doseIndex)
	}
	if medicationID <= 0 || medicationID > maxMedicationID {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMedicationID, medicationID)
	}
	return medicationID*MaxDosesPerMedication + int64(doseIndex), nil
}

// SplitAlarmID is the arithmetic inverse of Allocate. It is for diagnostics
// only; RecoverMedicationID is the authoritative reverse mapping.
func SplitAlarmID(alarmID int64) (medicationID int64, doseIndex int) {
	return alarmID / MaxDosesPerMedication, int(alarmID % MaxDosesPerMedication)
}

// Allocator resolves alarm ids back to medications through the mapping
// store, so alarms scheduled under an older id formula stay resolvable.
type Allocator struct {
	mappings repository.MappingRepository
}

func NewAllocator(mappings repository.MappingRepository) *Allocator {
	return &Allocator{mappings: mappings}
}

func (a *Allocator) Allocate(medicationID int64, doseIndex int) (int64, error) {
	return Allocate(medicationID, doseIndex)
}

// RecoverMedicationID returns repository.ErrMappingNotFound for ids that were
// never recorded or have been cancelled.
func (a *Allocator) RecoverMedicationID(ctx context.Context, alarmID int64) (int64, error) {
	return a.mappings.LookupMedicationID(ctx, alarmID)
}
