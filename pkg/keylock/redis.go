package keylock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is reported when a held lock expired or was taken over
// before its holder released it.
var ErrLeaseLost = errors.New("lock lease lost")

// KeyLocker serializes work per key. Locker does so within one process,
// RedisLocker across every process sharing the Redis instance.
type KeyLocker interface {
	Lock(ctx context.Context, key int64) (func(), error)
}

var (
	_ KeyLocker = (*Locker)(nil)
	_ KeyLocker = (*RedisLocker)(nil)
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

type RedisConfig struct {
	// Prefix is prepended to the decimal key.
	Prefix string
	// TTL is the lease length; a held lease is renewed every TTL/3.
	TTL           time.Duration
	RetryInterval time.Duration
	// OnError receives renewal and release failures.
	OnError func(error)
}

// RedisLocker takes a lease per key with SET NX PX and releases it only if
// the stored token is still its own. Waiters in the same process queue on a
// local Locker first, so only one of them polls Redis at a time.
type RedisLocker struct {
	client redis.UniversalClient
	local  *Locker
	cfg    RedisConfig
}

func NewRedisLocker(client redis.UniversalClient, cfg RedisConfig) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return &RedisLocker{
		client: client,
		local:  New(),
		cfg:    cfg,
	}
}

// Lock blocks until the lease for key is held or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key int64) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	k := l.cfg.Prefix + strconv.FormatInt(key, 10)
	token := uuid.NewString()
	if err := l.acquire(ctx, k, token); err != nil {
		unlockLocal()
		return nil, err
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.renew(k, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			l.release(k, token)
			unlockLocal()
		})
	}, nil
}

func (l *RedisLocker) acquire(ctx context.Context, k, token string) error {
	for {
		ok, err := l.client.SetNX(ctx, k, token, l.cfg.TTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to acquire lock %s: %w", k, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(l.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) renew(k, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(l.cfg.TTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.cfg.TTL/3)
			n, err := extendScript.Run(ctx, l.client, []string{k}, token, l.cfg.TTL.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.cfg.OnError(fmt.Errorf("failed to renew lock %s: %w", k, err))
				continue
			}
			if n == 0 {
				l.cfg.OnError(fmt.Errorf("%w: %s", ErrLeaseLost, k))
				return
			}
		}
	}
}

func (l *RedisLocker) release(k, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{k}, token).Int()
	if err != nil {
		l.cfg.OnError(fmt.Errorf("failed to release lock %s: %w", k, err))
		return
	}
	if n == 0 {
		l.cfg.OnError(fmt.Errorf("%w: %s", ErrLeaseLost, k))
	}
}
