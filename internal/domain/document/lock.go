package document

import "sync"

// keyedLock hands out one RWMutex per collection name.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*sync.RWMutex)}
}

func (k *keyedLock) get(name string) *sync.RWMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		k.locks[name] = l
	}
	return l
}

// Lock acquires the write lock for name and returns its release func.
func (k *keyedLock) Lock(name string) func() {
	l := k.get(name)
	l.Lock()
	return l.Unlock
}

// RLock acquires the read lock for name and returns its release func.
func (k *keyedLock) RLock(name string) func() {
	l := k.get(name)
	l.RLock()
	return l.RUnlock
}
