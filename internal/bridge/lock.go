package bridge

import "sync"

// stagingLocks serializes stage+rsync per username: the staging directory
// is wiped at the start of every submit, so concurrent submits for the same
// user must never race on it. Each username gets its own mutex rather than
// one process-wide lock, since submits for different users are independent.
type stagingLocks struct {
	mu    sync.Mutex
	byKey map[string]*sync.Mutex
}

func newStagingLocks() *stagingLocks {
	return &stagingLocks{byKey: make(map[string]*sync.Mutex)}
}

// lockFor returns (creating if necessary) the mutex guarding username's
// staging directory.
func (l *stagingLocks) lockFor(username string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.byKey[username]
	if !ok {
		m = &sync.Mutex{}
		l.byKey[username] = m
	}
	return m
}
