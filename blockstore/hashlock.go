package blockstore

import (
	"sync"

	"github.com/bitfsorg/libvault-go/blockcrypt"
)

// hashLocks hands out one mutex per content hash. Entries exist only while
// some goroutine holds or waits for them.
type hashLocks struct {
	mu sync.Mutex
	m  map[blockcrypt.ContentHash]*hashLock
}

type hashLock struct {
	sync.Mutex
	refs int
}

// lock blocks until the caller owns hash and returns the matching unlock.
func (l *hashLocks) lock(hash blockcrypt.ContentHash) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[blockcrypt.ContentHash]*hashLock)
	}
	hl := l.m[hash]
	if hl == nil {
		hl = &hashLock{}
		l.m[hash] = hl
	}
	hl.refs++
	l.mu.Unlock()

	hl.Lock()
	return func() {
		hl.Unlock()
		l.mu.Lock()
		hl.refs--
		if hl.refs == 0 {
			delete(l.m, hash)
		}
		l.mu.Unlock()
	}
}

// held returns the number of live entries.
func (l *hashLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
