package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedication_Start(t *testing.T) {
	m := Medication{StartDate: "2024-01-01", StartTime: "08:00"}

	start, err := m.Start(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), start)

	m.StartTime = "8am"
	_, err = m.Start(time.UTC)
	assert.Error(t, err)
}

func TestMedication_DosageLabel(t *testing.T) {
	assert.Equal(t, "500 mg", (&Medication{Dosage: "500", Unit: "mg"}).DosageLabel())
	assert.Equal(t, "2 tablets", (&Medication{Dosage: "2 tablets"}).DosageLabel())
	assert.Equal(t, "ml", (&Medication{Unit: "ml"}).DosageLabel())
}

func TestNormalizeSlot(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"08:00", "08:00", false},
		{"8:00", "08:00", false},
		{" 23:59 ", "23:59", false},
		{"24:00", "", true},
		{"12:60", "", true},
		{"12:5", "", true},
		{"1200", "", true},
		{"ab:cd", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeSlot(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpdatePreferencesRequest_Apply(t *testing.T) {
	tone := 3
	off := false
	req := UpdatePreferencesRequest{ToneID: &tone, SoundEnabled: &off}

	got := req.Apply(DefaultPreferences())

	assert.Equal(t, 3, got.ToneID)
	assert.False(t, got.SoundEnabled)
	assert.True(t, got.VibrationEnabled)
	assert.Equal(t, 80, got.Volume)
}
