package custody

import "sync"

// nameLocks serializes operations on the same file name.
type nameLocks struct {
	mu sync.Mutex
	m  map[string]*nameLock
}

type nameLock struct {
	sync.Mutex
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{m: make(map[string]*nameLock)}
}

// lock acquires the lock for name and returns its release func.
func (n *nameLocks) lock(name string) func() {
	n.mu.Lock()
	l, ok := n.m[name]
	if !ok {
		l = &nameLock{}
		n.m[name] = l
	}
	l.refs++
	n.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		n.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(n.m, name)
		}
		n.mu.Unlock()
	}
}
