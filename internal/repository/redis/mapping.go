package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/medalarm/internal/repository"
)

type mappingRepository struct {
	store *Store
}

func NewMappingRepository(store *Store) repository.MappingRepository {
	return &mappingRepository{store: store}
}

func (r *mappingRepository) RecordMapping(ctx context.Context, alarmID, medicationID int64) (err error) {
	defer r.store.observe("record_mapping", time.Now(), &err)

	key := r.store.idKey(keyAlarmMapping, alarmID)
	if err = r.store.client.Set(ctx, key, medicationID, 0).Err(); err != nil {
		return fmt.Errorf("failed to record mapping for alarm %d: %w", alarmID, err)
	}
	return nil
}

func (r *mappingRepository) DeleteMappings(ctx context.Context, alarmIDs ...int64) (err error) {
	if len(alarmIDs) == 0 {
		return nil
	}
	defer r.store.observe("delete_mappings", time.Now(), &err)

	keys := make([]string, 0, len(alarmIDs))
	for _, id := range alarmIDs {
		keys = append(keys, r.store.idKey(keyAlarmMapping, id))
	}
	if err = r.store.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete %d alarm mappings: %w", len(keys), err)
	}
	return nil
}

func (r *mappingRepository) LookupMedicationID(ctx context.Context, alarmID int64) (id int64, err error) {
	defer r.store.observe("lookup_mapping", time.Now(), &err)

	val, err := r.store.client.Get(ctx, r.store.idKey(keyAlarmMapping, alarmID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, repository.ErrMappingNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up alarm %d: %w", alarmID, err)
	}

	id, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt mapping for alarm %d: %w", alarmID, err)
	}
	return id, nil
}

// RecordScheduledIDs replaces the stored list in one transaction. An empty
// list removes the key.
func (r *mappingRepository) RecordScheduledIDs(ctx context.Context, medicationID int64, alarmIDs []int64) (err error) {
	defer r.store.observe("record_scheduled_ids", time.Now(), &err)

	key := r.store.idKey(keyScheduledIDs, medicationID)
	_, err = r.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(alarmIDs) > 0 {
			values := make([]interface{}, 0, len(alarmIDs))
			for _, id := range alarmIDs {
				values = append(values, id)
			}
			pipe.RPush(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record scheduled ids for medication %d: %w", medicationID, err)
	}
	return nil
}

func (r *mappingRepository) GetScheduledIDs(ctx context.Context, medicationID int64) (ids []int64, err error) {
	defer r.store.observe("get_scheduled_ids", time.Now(), &err)

	values, err := r.store.client.LRange(ctx, r.store.idKey(keyScheduledIDs, medicationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled ids for medication %d: %w", medicationID, err)
	}

	ids, err = parseIDs(values)
	if err != nil {
		return nil, fmt.Errorf("corrupt scheduled ids for medication %d: %w", medicationID, err)
	}
	return ids, nil
}
