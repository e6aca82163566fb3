// Package lock implements the engine's optional per-workflow execution
// lock (spec §4.10 "Locking (optional)"), grounded on
// tegmine-core/src/service/execution_lock_service.rs: a try-lock with a
// lease time, acquired before a decide/apply pass and released
// afterward, so two goroutines never apply conflicting outcomes to the
// same workflow concurrently.
package lock

import (
	"sync"
	"time"
)

// Locker is the pluggable lock surface. A future distributed
// implementation (Redis, etcd) could satisfy this same interface
// without the Executor changing, matching the original's intent of
// substitutable lock backends.
type Locker interface {
	// TryLock attempts to acquire id's lock within timeout, holding it
	// for at most lease before it auto-expires. Reports whether it was
	// acquired.
	TryLock(id string, timeout, lease time.Duration) bool
	// Unlock releases id's lock early. A no-op if not held.
	Unlock(id string)
}

// entry holds the lock token in a capacity-1 channel: a token present
// means the id is free. This gives a native try-with-timeout (via
// select+default) that a bare sync.Mutex cannot, without resorting to
// unsafely "stealing" a mutex a live goroutine still holds.
type entry struct {
	ch      chan struct{}
	mu      sync.Mutex // guards expires
	expires time.Time
}

func newEntry() *entry {
	e := &entry{ch: make(chan struct{}, 1)}
	e.ch <- struct{}{}
	return e
}

// MapLocker is an in-process Locker: one token channel per workflow id,
// held in a sync.Map.
type MapLocker struct {
	entries sync.Map // id -> *entry
}

func NewMapLocker() *MapLocker {
	return &MapLocker{}
}

func (l *MapLocker) entryFor(id string) *entry {
	v, _ := l.entries.LoadOrStore(id, newEntry())
	return v.(*entry)
}

// TryLock polls every 5ms until timeout elapses, reclaiming the token
// on the holder's behalf once its lease has expired — mirroring the
// original's lease-based forced expiry for a crashed holder.
func (l *MapLocker) TryLock(id string, timeout, lease time.Duration) bool {
	e := l.entryFor(id)
	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-e.ch:
			e.mu.Lock()
			e.expires = time.Now().Add(lease)
			e.mu.Unlock()
			return true
		default:
		}

		e.mu.Lock()
		expired := !e.expires.IsZero() && time.Now().After(e.expires)
		e.mu.Unlock()
		if expired {
			select {
			case e.ch <- struct{}{}:
			default:
			}
		}

		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (l *MapLocker) Unlock(id string) {
	v, ok := l.entries.Load(id)
	if !ok {
		return
	}
	e := v.(*entry)
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// NoopLocker disables locking entirely — the engine's default when a
// single goroutine drives the decider loop and mutual exclusion across
// workflow ids is unnecessary.
type NoopLocker struct{}

func (NoopLocker) TryLock(string, time.Duration, time.Duration) bool { return true }
func (NoopLocker) Unlock(string)                                     {}
