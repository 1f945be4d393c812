package model

import "time"

// AlarmPayload is what the alarm platform receives for one dose.
type AlarmPayload struct {
	Name           string `json:"name"`
	Patient        string `json:"patient"`
	Dosage         string `json:"dosage"`
	TimeLabel      string `json:"timeLabel"`
	FrequencyLabel string `json:"frequencyLabel"`
	StartDateLabel string `json:"startDateLabel"`
	DurationLabel  string `json:"durationLabel"`
	Notes          string `json:"notes"`
	EpochMillis    int64  `json:"epochMillis"`
	Sound          bool   `json:"sound"`
	ToneID         int    `json:"toneId"`
	Vibration      bool   `json:"vibration"`
	VisualBanner   bool   `json:"visualBanner"`
	Volume         int    `json:"volume"`
}

// AlarmData is one generated dose ready to be submitted.
type AlarmData struct {
	AlarmID      int64        `json:"alarm_id"`
	MedicationID int64        `json:"medication_id"`
	DoseIndex    int          `json:"dose_index"`
	At           time.Time    `json:"at"`
	Payload      AlarmPayload `json:"payload"`
}

// AlarmRecord is the persisted alarm id to medication association.
type AlarmRecord struct {
	AlarmID      int64 `json:"alarm_id"`
	MedicationID int64 `json:"medication_id"`
}

// Permissions is the platform's permission surface as last reported by the device.
type Permissions struct {
	CanScheduleExactAlarms bool      `json:"can_schedule_exact_alarms"`
	ReportedAt             time.Time `json:"reported_at,omitempty"`
}
