// Package lock provides per-player locking for balance mutations.
// The wager ledger must serialize concurrent balance changes for the
// same player; these locks are the serialization point.
package lock

import "sync"

// playerMutex wraps a mutex stored in the lock table.
type playerMutex struct {
	mu sync.Mutex
}

// PlayerLock provides per-player locking to prevent races during
// balance operations and settlement.
type PlayerLock struct {
	locks sync.Map // map[int64]*playerMutex
	pool  sync.Pool
}

// NewPlayerLock creates a new PlayerLock instance.
func NewPlayerLock() *PlayerLock {
	return &PlayerLock{
		pool: sync.Pool{
			New: func() any {
				return &playerMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given player ID.
func (pl *PlayerLock) getLock(playerID int64) *playerMutex {
	if v, ok := pl.locks.Load(playerID); ok {
		return v.(*playerMutex)
	}

	newLock := pl.pool.Get().(*playerMutex)
	actual, loaded := pl.locks.LoadOrStore(playerID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		pl.pool.Put(newLock)
	}
	return actual.(*playerMutex)
}

// Lock acquires the lock for a player.
func (pl *PlayerLock) Lock(playerID int64) {
	pl.getLock(playerID).mu.Lock()
}

// Unlock releases the lock for a player.
func (pl *PlayerLock) Unlock(playerID int64) {
	if v, ok := pl.locks.Load(playerID); ok {
		v.(*playerMutex).mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired.
func (pl *PlayerLock) TryLock(playerID int64) bool {
	return pl.getLock(playerID).mu.TryLock()
}

// LockPair acquires the locks for two players in a deterministic order
// to avoid deadlock when two transfers involve the same pair.
func (pl *PlayerLock) LockPair(a, b int64) {
	if b < a {
		a, b = b, a
	}
	pl.Lock(a)
	if a != b {
		pl.Lock(b)
	}
}

// UnlockPair releases the locks acquired by LockPair.
func (pl *PlayerLock) UnlockPair(a, b int64) {
	if b < a {
		a, b = b, a
	}
	if a != b {
		pl.Unlock(b)
	}
	pl.Unlock(a)
}

// WithLock executes fn while holding the player's lock.
func (pl *PlayerLock) WithLock(playerID int64, fn func() error) error {
	pl.Lock(playerID)
	defer pl.Unlock(playerID)
	return fn()
}
