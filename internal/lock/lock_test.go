package lock

import (
	"testing"
	"time"
)

func TestMapLockerExclusion(t *testing.T) {
	l := NewMapLocker()
	if !l.TryLock("wf-1", time.Second, time.Minute) {
		t.Fatalf("expected first TryLock to succeed")
	}
	if l.TryLock("wf-1", 20*time.Millisecond, time.Minute) {
		t.Fatalf("expected second TryLock to fail while held")
	}
	l.Unlock("wf-1")
	if !l.TryLock("wf-1", time.Second, time.Minute) {
		t.Fatalf("expected TryLock to succeed after Unlock")
	}
}

func TestMapLockerLeaseExpiry(t *testing.T) {
	l := NewMapLocker()
	if !l.TryLock("wf-2", time.Second, 10*time.Millisecond) {
		t.Fatalf("expected first TryLock to succeed")
	}
	if !l.TryLock("wf-2", 200*time.Millisecond, time.Minute) {
		t.Fatalf("expected TryLock to reclaim an expired lease")
	}
}

func TestNoopLockerAlwaysSucceeds(t *testing.T) {
	var l NoopLocker
	if !l.TryLock("wf-3", 0, 0) {
		t.Fatalf("expected NoopLocker to always succeed")
	}
	l.Unlock("wf-3")
}
