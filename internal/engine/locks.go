package engine

import "sync"

// coinLocks hands out one mutex per coin id so the full
// validate-price-apply sequence for a coin runs serialized. Mutexes are
// never reclaimed; the set of coins in one process stays small enough.
type coinLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCoinLocks() *coinLocks {
	return &coinLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for coinID, creating it on first use.
func (c *coinLocks) get(coinID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, exists := c.locks[coinID]
	if !exists {
		l = &sync.Mutex{}
		c.locks[coinID] = l
	}
	return l
}
