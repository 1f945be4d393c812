package model

import (
	"fmt"
	"time"
)

const (
	// DateLayout and TimeLayout are the wire formats of a medication's first dose.
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Medication is the dosing plan owned by the medication store. The scheduler
// only reads it.
type Medication struct {
	ID                    int64     `db:"id" json:"id"`
	Name                  string    `db:"name" json:"name"`
	Patient               string    `db:"patient" json:"patient"`
	Dosage                string    `db:"dosage" json:"dosage"`
	Unit                  string    `db:"unit" json:"unit"`
	Notes                 string    `db:"notes" json:"notes"`
	StartDate             string    `db:"start_date" json:"start_date"`
	StartTime             string    `db:"start_time" json:"start_time"`
	IntervalHours         int       `db:"interval_hours" json:"interval_hours"`
	TreatmentDurationDays int       `db:"treatment_duration_days" json:"treatment_duration_days"`
	Active                bool      `db:"active" json:"active"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// Start parses StartDate and StartTime in loc.
func (m *Medication) Start(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, m.StartDate+" "+m.StartTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start %q %q: %w", m.StartDate, m.StartTime, err)
	}
	return start, nil
}

// DosageLabel joins dosage and unit for display.
func (m *Medication) DosageLabel() string {
	if m.Unit == "" {
		return m.Dosage
	}
	if m.Dosage == "" {
		return m.Unit
	}
	return m.Dosage + " " + m.Unit
}

// Dose is one computed administration time. It is never persisted.
type Dose struct {
	Index int       `json:"index"`
	At    time.Time `json:"at"`
}
