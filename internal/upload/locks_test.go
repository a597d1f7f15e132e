package upload

import (
	"sync"
	"testing"
)

func TestSessionLocksSerialize(t *testing.T) {
	locks := newSessionLocks()

	const workers = 20
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.acquire("session-a")
			defer release()
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("counter = %d, want %d", counter, workers)
	}
}

func TestSessionLocksReleaseEntries(t *testing.T) {
	locks := newSessionLocks()

	release := locks.acquire("session-a")
	release()

	locks.mu.Lock()
	remaining := len(locks.locks)
	locks.mu.Unlock()

	if remaining != 0 {
		t.Errorf("lock map has %d entries after release, want 0", remaining)
	}
}

func TestSessionLocksIndependent(t *testing.T) {
	locks := newSessionLocks()

	// Holding one session's lock must not block another session.
	releaseA := locks.acquire("session-a")
	defer releaseA()

	acquired := make(chan struct{})
	go func() {
		releaseB := locks.acquire("session-b")
		defer releaseB()
		close(acquired)
	}()

	<-acquired
}
