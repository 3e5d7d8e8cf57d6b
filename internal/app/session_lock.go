package app

import "sync"

// sessionLocker serializes mutating operations per session so a submit and an
// edit can never race on the same session's truncation window. Locks are kept
// for the lifetime of the process; the number of distinct sessions a single
// instance serves makes that acceptable.
type sessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocker() *sessionLocker {
	return &sessionLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *sessionLocker) get(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[sessionID] = lock
	}
	return lock
}
