package archivist

import (
	"sync"

	"archivist/internal/domain/record"
)

// partitionLocks serializes work on one partition while letting different partitions run in parallel.
// Entries are dropped once no goroutine holds or waits for them.
type partitionLocks struct {
	mu    sync.Mutex
	locks map[record.Partition]*partitionLock
}

type partitionLock struct {
	mu   sync.Mutex
	refs int
}

func newPartitionLocks() *partitionLocks {
	return &partitionLocks{locks: make(map[record.Partition]*partitionLock)}
}

// lock blocks until p is free and returns the matching unlock.
func (l *partitionLocks) lock(p record.Partition) (unlock func()) {
	l.mu.Lock()
	pl, ok := l.locks[p]
	if !ok {
		pl = &partitionLock{}
		l.locks[p] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, p)
		}
		l.mu.Unlock()
	}
}

func (l *partitionLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
