// Package sequencer enforces the at-most-one-writer-many-readers discipline
// on resources and linearises conflicting flows.
//
// Per-resource state is guarded by a lock-striped table (a map of mutexes,
// not a single global lock) so that flows over disjoint resources proceed
// in parallel.
package sequencer

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	terr "github.com/mablr/trace2e-engine/errors"
	"github.com/mablr/trace2e-engine/naming"
)

// defaultRetryInterval is the spacing between successive grant attempts
// while a reservation is queued behind a conflicting holder.
const defaultRetryInterval = time.Millisecond

// Sequencer enforces reservation discipline across all resources known to
// one engine.
type Sequencer struct {
	maxRetries    uint32 // 0 means unbounded.
	retryInterval time.Duration

	tableMu sync.Mutex
	table   map[naming.Resource]*resourceLock
}

// New returns a Sequencer. maxRetries of 0 means the waiting queue never
// gives up on its own (the caller's context is still honoured).
func New(maxRetries uint32) *Sequencer {
	return &Sequencer{
		maxRetries:    maxRetries,
		retryInterval: defaultRetryInterval,
		table:         make(map[naming.Resource]*resourceLock),
	}
}

func (s *Sequencer) lockFor(r naming.Resource) *resourceLock {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	l, ok := s.table[r]
	if !ok {
		l = newResourceLock()
		s.table[r] = l
	}
	return l
}

// stableHash gives a deterministic total order over resources, used to
// fix the acquisition order of a flow's two locks and so prevent the
// classic A-writes-B / B-writes-A deadlock.
func stableHash(r naming.Resource) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(r.URL()))
	_, _ = h.Write([]byte(r.String()))
	return h.Sum64()
}

// ReserveFlow acquires a read-lock on source and a write-lock on
// destination, atomically with respect to the resources' FIFO queues, and
// returns a fresh FlowID. If source == destination, a single write-lock is
// taken (the process already has exclusive access to itself).
//
// The call suspends on the per-resource wait queues until both locks are
// free, up to the Sequencer's configured max-retries budget or until ctx is
// done, whichever comes first. An exhausted budget fails with
// ErrReachedMaxRetriesWaitingQueue; any other failed wait with the matching
// availability error. On failure, anything already acquired is released
// before returning.
func (s *Sequencer) ReserveFlow(ctx context.Context, source, destination naming.Resource) (FlowID, error) {
	if source == destination {
		if err := s.acquire(ctx, destination, true); err != nil {
			if terr.Is(err, terr.ErrReachedMaxRetriesWaitingQueue) {
				return FlowID{}, err
			}
			return FlowID{}, &terr.UnavailableDestination{Destination: destination}
		}
		return newFlowID(), nil
	}

	// Fix acquisition order by stable hash to prevent pairwise deadlock
	// between a flow A->B and a concurrent flow B->A.
	first, firstWrite, second, secondWrite := source, false, destination, true
	if stableHash(destination) < stableHash(source) {
		first, firstWrite, second, secondWrite = destination, true, source, false
	}

	if err := s.acquire(ctx, first, firstWrite); err != nil {
		if terr.Is(err, terr.ErrReachedMaxRetriesWaitingQueue) {
			return FlowID{}, err
		}
		return FlowID{}, unavailableErr(source, destination, first == source, true)
	}
	if err := s.acquire(ctx, second, secondWrite); err != nil {
		s.release(first, firstWrite)
		if terr.Is(err, terr.ErrReachedMaxRetriesWaitingQueue) {
			return FlowID{}, err
		}
		return FlowID{}, unavailableErr(source, destination, first == source, false)
	}

	return newFlowID(), nil
}

// unavailableErr builds the appropriately-shaped availability error: if the
// side that failed was the source, UnavailableSource; if it was the
// destination, UnavailableDestination. sourceIsFirst tells us which of
// (first, second) corresponds to source; firstFailed tells us which one we
// failed to acquire.
func unavailableErr(source, destination naming.Resource, sourceIsFirst, firstFailed bool) error {
	sourceFailed := (sourceIsFirst && firstFailed) || (!sourceIsFirst && !firstFailed)
	if sourceFailed {
		return &terr.UnavailableSource{Source: source}
	}
	return &terr.UnavailableDestination{Destination: destination}
}

// ReleaseFlow releases the write-lock held on destination and reports
// whether destination had no other pending holders at the moment of
// release (i.e. this was the last reference). The source's read-lock is
// released independently via ReleaseSource, by the report handler, not
// here.
func (s *Sequencer) ReleaseFlow(destination naming.Resource) bool {
	return s.release(destination, true)
}

// ReleaseSource releases the read-lock held on source.
func (s *Sequencer) ReleaseSource(source naming.Resource) {
	s.release(source, false)
}

func (s *Sequencer) acquire(ctx context.Context, r naming.Resource, write bool) error {
	l := s.lockFor(r)
	w := l.enqueue(write)
	if w.granted() {
		return nil
	}

	retries := uint32(0)
	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ready:
			return nil
		case <-ctx.Done():
			if l.cancel(w) {
				return ctx.Err()
			}
			return nil // grant raced the cancellation; we hold the lock.
		case <-ticker.C:
			retries++
			if s.maxRetries != 0 && retries >= s.maxRetries {
				if l.cancel(w) {
					return terr.ErrReachedMaxRetriesWaitingQueue
				}
				return nil
			}
		}
	}
}

func (s *Sequencer) release(r naming.Resource, write bool) bool {
	l := s.lockFor(r)
	return l.release(write)
}

// resourceLock is the per-resource reservation state: readers >= 0, writer
// bool, plus a FIFO queue of waiters. Invariants: writer => readers == 0;
// readers > 0 => !writer.
type resourceLock struct {
	mu      sync.Mutex
	readers int
	writer  bool
	queue   []*waiter
}

func newResourceLock() *resourceLock {
	return &resourceLock{}
}

type waiter struct {
	write     bool
	ready     chan struct{}
	cancelled bool
}

func (w *waiter) granted() bool {
	select {
	case <-w.ready:
		return true
	default:
		return false
	}
}

// enqueue registers a waiter for the given lock kind. If the lock is free
// and nobody is ahead in line, it is granted immediately (w.ready is
// pre-closed).
func (l *resourceLock) enqueue(write bool) *waiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := &waiter{write: write, ready: make(chan struct{})}
	if len(l.queue) == 0 && l.canGrant(write) {
		l.grant(write)
		close(w.ready)
		return w
	}
	l.queue = append(l.queue, w)
	return w
}

func (l *resourceLock) canGrant(write bool) bool {
	if write {
		return !l.writer && l.readers == 0
	}
	return !l.writer
}

func (l *resourceLock) grant(write bool) {
	if write {
		l.writer = true
	} else {
		l.readers++
	}
}

// cancel removes a still-queued waiter. It returns true if the waiter was
// successfully cancelled before being granted; false if a grant raced the
// cancellation (in which case the caller now holds the lock and is
// responsible for releasing it).
func (l *resourceLock) cancel(w *waiter) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w.granted() {
		return false
	}
	for i, q := range l.queue {
		if q == w {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			break
		}
	}
	w.cancelled = true
	return true
}

// release drops one holder of the given kind and promotes queued waiters
// that can now be granted. It returns whether this was the last holder
// (readers reached 0 and no writer remains) at the moment of release.
func (l *resourceLock) release(write bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if write {
		l.writer = false
	} else if l.readers > 0 {
		l.readers--
	}

	l.promote()

	return !l.writer && l.readers == 0
}

// promote grants the lock to as many contiguous front-of-queue waiters as
// the current state allows: any run of readers, or a single writer.
func (l *resourceLock) promote() {
	for len(l.queue) > 0 {
		front := l.queue[0]
		if !l.canGrant(front.write) {
			return
		}
		l.grant(front.write)
		l.queue = l.queue[1:]
		close(front.ready)
		if front.write {
			return
		}
	}
}
