package upload

import "sync"

// sessionLocks serializes manager operations per key, so concurrent chunk
// deliveries for one session cannot race on the uploaded-chunk set while
// unrelated sessions proceed independently. Keys are session ids, plus an
// owner-scoped key during initiation to keep the quota check atomic. Entries
// are reference counted and removed once the last holder releases, keeping
// the map bounded by the number of in-flight operations.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{
		locks: make(map[string]*sessionLock),
	}
}

// acquire blocks until the lock for sessionID is held and returns the
// release function.
func (l *sessionLocks) acquire(sessionID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &sessionLock{}
		l.locks[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, sessionID)
		}
		l.mu.Unlock()
	}
}
