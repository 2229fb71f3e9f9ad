// Package lease grants exclusive, expiring ownership of a job's poll loop so
// that a single process drives each job.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another owner holds the lease.
var ErrHeld = errors.New("lease: held by another owner")

// ErrLost is returned when a lease expired or was taken over.
var ErrLost = errors.New("lease: lost")

// DefaultTTL bounds how long a crashed owner blocks a job.
const DefaultTTL = 30 * time.Second

// Lease is one held lease.
type Lease interface {
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// Manager acquires leases by key.
type Manager interface {
	Acquire(ctx context.Context, key string) (Lease, error)
	TTL() time.Duration
}

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Redis implements Manager with SET NX PX and token-checked refresh/release.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis builds a Redis-backed manager.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "genstudio:lease:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (m *Redis) TTL() time.Duration { return m.ttl }

func (m *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, m.prefix+key, token, m.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return &redisLease{m: m, key: m.prefix + key, token: token}, nil
}

type redisLease struct {
	m     *Redis
	key   string
	token string
}

func (l *redisLease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.m.client, []string{l.key}, l.token, l.m.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.m.client, []string{l.key}, l.token).Result()
	return err
}

// Local implements Manager inside one process.
type Local struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	holders map[string]localHolder
}

type localHolder struct {
	token   string
	expires time.Time
}

// NewLocal builds an in-process manager.
func NewLocal(ttl time.Duration) *Local {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Local{ttl: ttl, now: time.Now, holders: make(map[string]localHolder)}
}

func (m *Local) TTL() time.Duration { return m.ttl }

func (m *Local) Acquire(_ context.Context, key string) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if h, ok := m.holders[key]; ok && now.Before(h.expires) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	m.holders[key] = localHolder{token: token, expires: now.Add(m.ttl)}
	return &localLease{m: m, key: key, token: token}, nil
}

type localLease struct {
	m     *Local
	key   string
	token string
}

func (l *localLease) Refresh(context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	h, ok := l.m.holders[l.key]
	now := l.m.now()
	if !ok || h.token != l.token || !now.Before(h.expires) {
		return ErrLost
	}
	h.expires = now.Add(l.m.ttl)
	l.m.holders[l.key] = h
	return nil
}

func (l *localLease) Release(context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if h, ok := l.m.holders[l.key]; ok && h.token == l.token {
		delete(l.m.holders, l.key)
	}
	return nil
}
