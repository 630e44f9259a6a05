package service

import "sync"

// uidLocks hands out one mutex per uid so the read-evaluate-append
// sequence for a uid is a critical section: the second of two
// near-simultaneous admissions observes the first's committed record
// before making its own decision.  Different uids never contend.
//
// Entries are reference-counted and removed when the last holder
// releases, so the map does not grow with the uid population.
type uidLocks struct {
	mu    sync.Mutex
	locks map[string]*uidLock
}

type uidLock struct {
	mu   sync.Mutex
	refs int
}

func newUIDLocks() *uidLocks {
	return &uidLocks{locks: make(map[string]*uidLock)}
}

func (l *uidLocks) lock(uid string) (unlock func()) {
	l.mu.Lock()
	e := l.locks[uid]
	if e == nil {
		e = &uidLock{}
		l.locks[uid] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, uid)
		}
		l.mu.Unlock()
	}
}
