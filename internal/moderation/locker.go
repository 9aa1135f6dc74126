package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"incident-moderation/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func incidentKey(id int64) string { return fmt.Sprintf("incident:%d", id) }

func appealKey(id int64) string { return fmt.Sprintf("appeal:%d", id) }

func appealSubjectKey(kind AppealKind, subjectUserID int64, incidentID *int64) string {
	if kind == AppealKindBan || incidentID == nil {
		return fmt.Sprintf("appeal-subject:ban:%d", subjectUserID)
	}
	return fmt.Sprintf("appeal-subject:incident:%d", *incidentID)
}

// LocalLocker is an in-process keyed mutex.
// It is enough for a single API instance; use RedisLocker when running several.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]*localLock{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lk)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.release(key, lk)
		})
	}, nil
}

func (l *LocalLocker) release(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

// RedisLocker serializes mutations across API instances.
//
// Locks carry a TTL so a crashed holder cannot block an entity forever.
// Acquisition polls until Wait elapses, then reports ErrConflict.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string

	TTL  time.Duration
	Wait time.Duration
	Poll time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: "moderation:lock:", TTL: ttl, Wait: wait, Poll: 25 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	full := l.prefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.Wait)
	defer cancel()

	for {
		ok, err := utils.AcquireLock(waitCtx, l.rdb, full, token, l.TTL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if waitCtx.Err() != nil {
				return nil, conflictf("%s is busy", key)
			}
			return nil, fmt.Errorf("%w: lock %s: %w", ErrStorage, key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-waitCtx.Done():
			return nil, conflictf("%s is busy", key)
		case <-time.After(l.Poll):
		}
	}

	return func() {
		// Release even if the request context is already gone.
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = utils.ReleaseLock(relCtx, l.rdb, full, token)
	}, nil
}

// lockAll takes the locks for keys in order and returns one unlock for all of them.
func lockAll(ctx context.Context, l Locker, keys ...string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	unlocks := make([]func(), 0, len(keys))
	unlockAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, k := range keys {
		u, err := l.Lock(ctx, k)
		if err != nil {
			unlockAll()
			return nil, err
		}
		unlocks = append(unlocks, u)
	}
	return unlockAll, nil
}
