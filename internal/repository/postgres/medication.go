package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/repository"
)

// start_date and start_time are rendered in the generator's wire formats so
// their column types do not leak into the model.
const medicationColumns = `
	id, name, patient, dosage, unit, notes,
	to_char(start_date, 'YYYY-MM-DD') AS start_date,
	to_char(start_time, 'HH24:MI') AS start_time,
	interval_hours, treatment_duration_days, active, updated_at`

type medicationRepository struct {
	db *sqlx.DB
}

func NewMedicationRepository(db *sqlx.DB) repository.MedicationRepository {
	return &medicationRepository{db: db}
}

func (r *medicationRepository) Get(ctx context.Context, id int64) (*model.Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE id = $1`

	var med model.Medication
	if err := r.db.GetContext(ctx, &med, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("medication %d: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get medication: %w", err)
	}
	return &med, nil
}

func (r *medicationRepository) ListActive(ctx context.Context) ([]*model.Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE active = true ORDER BY id`

	var meds []*model.Medication
	if err := r.db.SelectContext(ctx, &meds, query); err != nil {
		return nil, fmt.Errorf("failed to list active medications: %w", err)
	}
	return meds, nil
}
