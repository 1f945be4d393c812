package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/repository"
)

type permissionRepository struct {
	store *Store
}

func NewPermissionRepository(store *Store) repository.PermissionRepository {
	return &permissionRepository{store: store}
}

// SavePermissions stores the report as JSON; it expires after ttl, zero keeps it.
func (r *permissionRepository) SavePermissions(ctx context.Context, perms model.Permissions, ttl time.Duration) (err error) {
	defer r.store.observe("save_permissions", time.Now(), &err)

	raw, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("failed to encode permissions: %w", err)
	}
	if err = r.store.client.Set(ctx, r.store.key(keyPermissions), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save permissions: %w", err)
	}
	return nil
}

func (r *permissionRepository) GetPermissions(ctx context.Context) (perms model.Permissions, found bool, err error) {
	defer r.store.observe("get_permissions", time.Now(), &err)

	raw, err := r.store.client.Get(ctx, r.store.key(keyPermissions)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Permissions{}, false, nil
	}
	if err != nil {
		return model.Permissions{}, false, fmt.Errorf("failed to load permissions: %w", err)
	}
	if err = json.Unmarshal(raw, &perms); err != nil {
		return model.Permissions{}, false, fmt.Errorf("corrupt permissions record: %w", err)
	}
	return perms, true, nil
}
