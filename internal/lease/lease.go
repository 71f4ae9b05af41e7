// ABOUTME: Per-feed poll leases keeping at most one reconciliation in flight per feed
// ABOUTME: Provides an in-process locker and a Redis locker for multi-process deployments

package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPollInFlight is returned when another holder owns the lease.
var ErrPollInFlight = errors.New("poll already in flight")

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases by key.
type Locker interface {
	// Acquire takes the lease for key for at most ttl. It returns
	// ErrPollInFlight when the key is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

type localEntry struct {
	token   string
	expires time.Time
}

// LocalLocker is an in-process Locker. Expired leases are taken over.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localEntry
	now  func() time.Time
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), now: time.Now}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expires) {
		return nil, ErrPollInFlight
	}
	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLease{locker: l, key: key, token: token}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  string
}

func (l *localLease) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if entry, ok := l.locker.held[l.key]; ok && entry.token == l.token {
		delete(l.locker.held, l.key)
	}
	return nil
}
