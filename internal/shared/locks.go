package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLedgerBusy indicates another writer holds the ledger lock.
var ErrLedgerBusy = errors.New("ledger busy: writer lock not obtained")

// LedgerLockKey builds redis keys for the ledger writer critical section.
func LedgerLockKey(ledgerID string) string {
	return fmt.Sprintf("books:ledger:%s:lock", ledgerID)
}

// LedgerLocker serialises writers of one ledger across processes.
type LedgerLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewLedgerLocker builds a locker on top of rdb. ttl bounds how long a
// crashed writer can block others; wait bounds how long Obtain retries.
func NewLedgerLocker(rdb redis.UniversalClient, ttl, wait time.Duration) *LedgerLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LedgerLocker{client: redislock.New(rdb), ttl: ttl, wait: wait}
}

// Obtain acquires the writer lock and returns its release func.
func (l *LedgerLocker) Obtain(ctx context.Context, ledgerID string) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, nil
	}
	opts := &redislock.Options{}
	if l.wait > 0 {
		backoff := 25 * time.Millisecond
		opts.RetryStrategy = redislock.LimitRetry(redislock.LinearBackoff(backoff), int(l.wait/backoff))
	}
	lock, err := l.client.Obtain(ctx, LedgerLockKey(ledgerID), l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLedgerBusy, ledgerID)
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
