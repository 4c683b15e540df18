package extraction

import "sync"

// lockTable hands out one mutex per talent so merges for the same talent
// run serially while different talents proceed in parallel.
type lockTable struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: map[int64]*sync.Mutex{}}
}

func (lt *lockTable) forTalent(id int64) *sync.Mutex {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.locks[id]
	if !ok {
		l = &sync.Mutex{}
		lt.locks[id] = l
	}
	return l
}
