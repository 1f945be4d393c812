package redis

import (
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/medalarm/pkg/metrics"
)

// Key namespaces of the persisted scheduler state.
const (
	keyScheduledIDs        = "scheduledIds"
	keyAlarmMapping        = "alarmMapping"
	keySilencedMedications = "silencedMedications"
	keySilencedSlots       = "silencedSlots"
	keyPreferences         = "preferences"
	keyPermissions         = "permissions"
)

// Store is the shared Redis handle behind every repository in this package.
type Store struct {
	client  *redis.Client
	prefix  string
	metrics *metrics.Metrics
}

// NewStore wraps client. prefix is prepended to every key; metrics may be nil.
func NewStore(client *redis.Client, prefix string, m *metrics.Metrics) *Store {
	return &Store{
		client:  client,
		prefix:  prefix,
		metrics: m,
	}
}

// Client returns the underlying Redis client.
func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) key(parts ...string) string {
	return s.prefix + strings.Join(parts, ":")
}

func (s *Store) idKey(namespace string, id int64) string {
	return s.key(namespace, strconv.FormatInt(id, 10))
}

// observe records the outcome of one logical operation. It is deferred with
// a pointer to the caller's named error so the final value is seen.
func (s *Store) observe(op string, start time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if errp != nil && *errp != nil {
		status = "error"
	}
	s.metrics.RedisOperations.WithLabelValues(op, status).Inc()
	s.metrics.RedisLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func parseIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
