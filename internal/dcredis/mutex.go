package dcredis

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/pkg/errors"
)

// Mutex is a distributed lock held in redis. Locks expire after their lock duration
// unless extended, so a crashed holder releases the lock on its own.
type Mutex interface {
	Lock(context.Context) error
	Extend(context.Context, time.Duration) error
	Unlock(context.Context) error
}

type MutexOption func(m *mutex)

// MutexOptionLockFor sets the initial lock duration. The default is one minute. The
// duration can be extended by calling Extend once the lock is held.
func MutexOptionLockFor(d time.Duration) MutexOption {
	return func(m *mutex) {
		m.initialLockTime = d
	}
}

// MutexOptionLockToken sets the token stored with the lock key. Processes sharing a
// token can re-acquire the same lock, so set this only when that is the intent.
func MutexOptionLockToken(token string) MutexOption {
	return func(m *mutex) {
		m.optsAppliers = append(m.optsAppliers, func(opts *redislock.Options) {
			opts.Token = token
		})
	}
}

// MutexOptionLockMetadata appends debugging metadata to the lock value in redis.
func MutexOptionLockMetadata(metadata string) MutexOption {
	return func(m *mutex) {
		m.optsAppliers = append(m.optsAppliers, func(opts *redislock.Options) {
			opts.Metadata = metadata
		})
	}
}

// MutexOptionDetailedLockMetadata records the host and pid that acquired the lock.
func MutexOptionDetailedLockMetadata() MutexOption {
	hostname, _ := os.Hostname()
	data, _ := json.Marshal(map[string]interface{}{
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	return MutexOptionLockMetadata(string(data))
}

func MutexOptionRetryLinearBackoff(backoff time.Duration) MutexOption {
	return func(m *mutex) {
		m.optsAppliers = append(m.optsAppliers, func(opts *redislock.Options) {
			opts.RetryStrategy = redislock.LinearBackoff(backoff)
		})
	}
}

func MutexOptionNoRetry() MutexOption {
	return func(m *mutex) {
		m.optsAppliers = append(m.optsAppliers, func(opts *redislock.Options) {
			opts.RetryStrategy = redislock.NoRetry()
		})
	}
}

// NewMutex creates a mutex on the passed client. Unless options say otherwise the mutex
// does not retry and locks for one minute.
func NewMutex(c Client, key string, options ...MutexOption) Mutex {
	m := &mutex{
		key:             key,
		lockClient:      redislock.New(c),
		initialLockTime: 1 * time.Minute,
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// MutexIsErrNotObtained reports whether a Lock error means another holder has the lock,
// as opposed to redis being unreachable.
func MutexIsErrNotObtained(err error) bool {
	return errors.Is(err, redislock.ErrNotObtained)
}

type mutex struct {
	key             string
	lock            *redislock.Lock
	lockClient      *redislock.Client
	initialLockTime time.Duration
	optsAppliers    []func(*redislock.Options)
}

func (m *mutex) opts() *redislock.Options {
	if len(m.optsAppliers) == 0 {
		return nil
	}

	opts := &redislock.Options{}
	for _, applier := range m.optsAppliers {
		applier(opts)
	}

	return opts
}

func (m *mutex) Lock(ctx context.Context) error {
	if m.lock != nil {
		return errors.Errorf("mutex '%s' already locked", m.key)
	}

	var err error
	m.lock, err = m.lockClient.Obtain(ctx, m.key, m.initialLockTime, m.opts())
	if err != nil {
		m.lock = nil
	}

	return err
}

func (m *mutex) Extend(ctx context.Context, d time.Duration) error {
	if m.lock == nil {
		return errors.Errorf("mutex '%s' not locked", m.key)
	}

	return m.lock.Refresh(ctx, d, m.opts())
}

func (m *mutex) Unlock(ctx context.Context) error {
	if m.lock == nil {
		return errors.Errorf("mutex '%s' not locked", m.key)
	}

	err := m.lock.Release(ctx)
	m.lock = nil
	return err
}
