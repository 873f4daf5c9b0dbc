package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edvin/deploytrack/internal/platform"
)

// ErrLockNotAcquired is returned by Acquire when the wait timeout elapses
// without the lock becoming free.
var ErrLockNotAcquired = errors.New("lock not acquired")

const lockPollInterval = 500 * time.Millisecond

// LockService implements an advisory distributed lock on a lease table.
// Leases are conditional writes with an expiry, so a crashed holder cannot
// block a key past its lease. Multiple processes share the same table.
type LockService struct {
	db DB
}

func NewLockService(db DB) *LockService {
	return &LockService{db: db}
}

// TryAcquire attempts to take the lock once. On success it returns a release
// func and true; when the lock is held by a live lease it returns false
// without error.
func (s *LockService) TryAcquire(ctx context.Context, key string, lease time.Duration) (func(), bool, error) {
	holder := platform.NewID()

	tag, err := s.db.Exec(ctx,
		`INSERT INTO advisory_locks (key, holder, expires_at)
		 VALUES ($1, $2, now() + make_interval(secs => $3))
		 ON CONFLICT (key) DO UPDATE
		 SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		 WHERE advisory_locks.expires_at < now()`,
		key, holder, lease.Seconds(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = s.db.Exec(ctx,
			`DELETE FROM advisory_locks WHERE key = $1 AND holder = $2`, key, holder)
	}
	return release, true, nil
}

// Acquire blocks until the lock is taken or the wait timeout elapses,
// polling the lease table. The lease bounds how long a crashed holder can
// keep the key.
func (s *LockService) Acquire(ctx context.Context, key string, wait, lease time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)

	for {
		release, ok, err := s.TryAcquire(ctx, key, lease)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrLockNotAcquired, key, wait)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}
