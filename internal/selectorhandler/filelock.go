package selectorhandler

import "sync"

// fileLocks is a keyed mutex indexed by canonicalized filesystem path,
// serializing selector writers per file ("per-file selector writes are
// serialized by a keyed lock"). This must stay a plain mutex rather than
// golang.org/x/sync/singleflight: two concurrent PUTs to the same path
// carry distinct fragments, and singleflight would share one call's
// result with the other caller, silently discarding its write. Entries
// are never evicted; the number of distinct files served by one host is
// bounded and small relative to request volume, so the map simply grows
// to that size and stays there.
type fileLocks struct {
	mu    sync.Mutex
	byKey map[string]*sync.Mutex
}

func newFileLocks() *fileLocks {
	return &fileLocks{byKey: make(map[string]*sync.Mutex)}
}

func (f *fileLocks) withLock(path string, fn func() error) error {
	f.mu.Lock()
	m, ok := f.byKey[path]
	if !ok {
		m = &sync.Mutex{}
		f.byKey[path] = m
	}
	f.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn()
}
