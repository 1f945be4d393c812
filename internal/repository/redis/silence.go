package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jwalitptl/medalarm/internal/repository"
)

type silenceRepository struct {
	store *Store
}

func NewSilenceRepository(store *Store) repository.SilenceRepository {
	return &silenceRepository{store: store}
}

func (r *silenceRepository) SilenceMedication(ctx context.Context, medicationID int64) (err error) {
	defer r.store.observe("silence_medication", time.Now(), &err)

	if err = r.store.client.SAdd(ctx, r.store.key(keySilencedMedications), medicationID).Err(); err != nil {
		return fmt.Errorf("failed to silence medication %d: %w", medicationID, err)
	}
	return nil
}

func (r *silenceRepository) UnsilenceMedication(ctx context.Context, medicationID int64) (err error) {
	defer r.store.observe("unsilence_medication", time.Now(), &err)

	if err = r.store.client.SRem(ctx, r.store.key(keySilencedMedications), medicationID).Err(); err != nil {
		return fmt.Errorf("failed to unsilence medication %d: %w", medicationID, err)
	}
	return nil
}

func (r *silenceRepository) IsMedicationSilenced(ctx context.Context, medicationID int64) (silenced bool, err error) {
	defer r.store.observe("is_medication_silenced", time.Now(), &err)

	silenced, err = r.store.client.SIsMember(ctx, r.store.key(keySilencedMedications), medicationID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read silence state of medication %d: %w", medicationID, err)
	}
	return silenced, nil
}

func (r *silenceRepository) SilencedMedications(ctx context.Context) (ids []int64, err error) {
	defer r.store.observe("silenced_medications", time.Now(), &err)

	members, err := r.store.client.SMembers(ctx, r.store.key(keySilencedMedications)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list silenced medications: %w", err)
	}
	ids, err = parseIDs(members)
	if err != nil {
		return nil, fmt.Errorf("corrupt silenced medication set: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *silenceRepository) SilenceSlot(ctx context.Context, medicationID int64, slot string) (err error) {
	defer r.store.observe("silence_slot", time.Now(), &err)

	if err = r.store.client.SAdd(ctx, r.slotKey(medicationID), slot).Err(); err != nil {
		return fmt.Errorf("failed to silence slot %s of medication %d: %w", slot, medicationID, err)
	}
	return nil
}

func (r *silenceRepository) UnsilenceSlot(ctx context.Context, medicationID int64, slot string) (err error) {
	defer r.store.observe("unsilence_slot", time.Now(), &err)

	if err = r.store.client.SRem(ctx, r.slotKey(medicationID), slot).Err(); err != nil {
		return fmt.Errorf("failed to unsilence slot %s of medication %d: %w", slot, medicationID, err)
	}
	return nil
}

func (r *silenceRepository) IsSlotSilenced(ctx context.Context, medicationID int64, slot string) (silenced bool, err error) {
	defer r.store.observe("is_slot_silenced", time.Now(), &err)

	silenced, err = r.store.client.SIsMember(ctx, r.slotKey(medicationID), slot).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read slot %s of medication %d: %w", slot, medicationID, err)
	}
	return silenced, nil
}

// SilencedSlots returns the medication's silenced slots in ascending order.
func (r *silenceRepository) SilencedSlots(ctx context.Context, medicationID int64) (slots []string, err error) {
	defer r.store.observe("silenced_slots", time.Now(), &err)

	slots, err = r.store.client.SMembers(ctx, r.slotKey(medicationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list silenced slots of medication %d: %w", medicationID, err)
	}
	sort.Strings(slots)
	return slots, nil
}

func (r *silenceRepository) slotKey(medicationID int64) string {
	return r.store.key(keySilencedSlots, strconv.FormatInt(medicationID, 10))
}
