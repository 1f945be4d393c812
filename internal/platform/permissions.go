package platform

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/medalarm/internal/model"
)

const permissionsKey = "permissions"

// MemoryPermissions keeps permission reports in this process only.
type MemoryPermissions struct {
	cache *cache.Cache
}

func NewMemoryPermissions() *MemoryPermissions {
	return &MemoryPermissions{cache: cache.New(cache.NoExpiration, 10*time.Minute)}
}

func (m *MemoryPermissions) SavePermissions(ctx context.Context, perms model.Permissions, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	m.cache.Set(permissionsKey, perms, ttl)
	return nil
}

func (m *MemoryPermissions) GetPermissions(ctx context.Context) (model.Permissions, bool, error) {
	v, ok := m.cache.Get(permissionsKey)
	if !ok {
		return model.Permissions{}, false, nil
	}
	return v.(model.Permissions), true, nil
}
