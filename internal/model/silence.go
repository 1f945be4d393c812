package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SilenceState is the silence status of one medication.
type SilenceState struct {
	MedicationID int64    `json:"medication_id"`
	Silenced     bool     `json:"silenced"`
	Slots        []string `json:"slots"`
}

// NormalizeSlot validates a time-of-day slot and returns it as zero-padded
// "HH:MM", so "8:00" and "08:00" name the same slot.
func NormalizeSlot(slot string) (string, error) {
	parts := strings.Split(strings.TrimSpace(slot), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid slot %q: want HH:MM", slot)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 || len(parts[0]) > 2 {
		return "", fmt.Errorf("invalid slot %q: bad hour", slot)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return "", fmt.Errorf("invalid slot %q: bad minute", slot)
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}
