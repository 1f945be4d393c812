package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medalarm/internal/repository"
)

var medicationRowColumns = []string{
	"id", "name", "patient", "dosage", "unit", "notes",
	"start_date", "start_time", "interval_hours", "treatment_duration_days", "active", "updated_at",
}

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, repository.MedicationRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return mock, NewMedicationRepository(sqlx.NewDb(db, "postgres"))
}

func TestMedicationRepository_Get(t *testing.T) {
	mock, repo := setupMockDB(t)
	updated := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(medicationRowColumns).
		AddRow(3, "Amoxicillin", "Ana", "500", "mg", "with food", "2024-01-01", "08:00", 8, 2, true, updated)
	mock.ExpectQuery(`SELECT .* FROM medications WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(rows)

	med, err := repo.Get(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, int64(3), med.ID)
	assert.Equal(t, "2024-01-01", med.StartDate)
	assert.Equal(t, "08:00", med.StartTime)
	assert.Equal(t, 8, med.IntervalHours)
	assert.Equal(t, 2, med.TreatmentDurationDays)
	assert.True(t, med.Active)
	assert.Equal(t, "500 mg", med.DosageLabel())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMedicationRepository_GetNotFound(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectQuery(`SELECT`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	med, err := repo.Get(context.Background(), 42)
	assert.Nil(t, med)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMedicationRepository_ListActive(t *testing.T) {
	mock, repo := setupMockDB(t)
	updated := time.Now()

	rows := sqlmock.NewRows(medicationRowColumns).
		AddRow(1, "Ibuprofen", "Ana", "200", "mg", "", "2024-01-01", "06:00", 6, 5, true, updated).
		AddRow(3, "Amoxicillin", "Rui", "500", "mg", "", "2024-01-01", "08:00", 8, 2, true, updated)
	mock.ExpectQuery(`SELECT .* FROM medications WHERE active = true ORDER BY id`).
		WillReturnRows(rows)

	meds, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, meds, 2)
	assert.Equal(t, int64(1), meds[0].ID)
	assert.Equal(t, "Rui", meds[1].Patient)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMedicationRepository_ListActiveError(t *testing.T) {
	mock, repo := setupMockDB(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("connection reset by peer"))

	_, err := repo.ListActive(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
