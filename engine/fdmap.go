package engine

import (
	"sync"

	terr "github.com/mablr/trace2e-engine/errors"
	"github.com/mablr/trace2e-engine/naming"
)

// fdKey identifies one enrolled descriptor: a (pid, fd) pair.
type fdKey struct {
	PID int32
	FD  int32
}

// fdMap is the per-engine (pid, fd) -> Resource mapping. Entries persist
// until the engine itself is torn down; closing a descriptor client-side
// does not purge it, and a repeat enroll on the same key overwrites it.
type fdMap struct {
	mu sync.Mutex
	m  map[fdKey]naming.Resource
}

func newFdMap() *fdMap {
	return &fdMap{m: make(map[fdKey]naming.Resource)}
}

func (f *fdMap) enroll(pid, fd int32, r naming.Resource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[fdKey{pid, fd}] = r
}

func (f *fdMap) lookup(pid, fd int32) (naming.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.m[fdKey{pid, fd}]
	if !ok {
		return naming.Resource{}, &terr.UndeclaredResource{PID: pid, FD: fd}
	}
	return r, nil
}
