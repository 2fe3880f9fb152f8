// Package consent implements an asynchronous consent broker:
// pending/decided consent decisions with wait-notify over destination keys.
package consent

import (
	"context"
	"sync"
	"time"

	terr "github.com/mablr/trace2e-engine/errors"
	"github.com/mablr/trace2e-engine/naming"
)

// Destination is the consent key's destination side: either a bare node, or
// a resource nested under some further destination. The nested-structure
// form lets a decision scope to an entire node or to one specific resource
// on that node.
type Destination interface {
	isDestination()
}

// NodeDestination targets an entire node (used when the consent decision
// doesn't depend on which resource on that node is being written to).
type NodeDestination struct {
	Node string
}

func (NodeDestination) isDestination() {}

// ResourceDestination targets one resource, nested under its own
// destination (e.g. the node that owns it).
type ResourceDestination struct {
	Resource naming.Resource
	Parent   Destination
}

func (ResourceDestination) isDestination() {}

// Key identifies one consent state: a (source resource, destination) pair.
type Key struct {
	Source      naming.Resource
	Destination Destination
}

type state struct {
	decided  bool
	decision bool
	waiters  []chan bool
}

// Broker holds all consent states for one engine.
type Broker struct {
	timeout time.Duration // 0 disables the timeout; waits forever.

	mu          sync.Mutex
	states      map[Key]*state
	subscribers map[naming.Resource][]chan Key
}

// New returns a Broker whose Request calls wait at most timeoutMS
// milliseconds before failing with ErrConsentRequestTimeout. 0 disables the
// timeout.
func New(timeoutMS uint64) *Broker {
	return &Broker{
		timeout:     time.Duration(timeoutMS) * time.Millisecond,
		states:      make(map[Key]*state),
		subscribers: make(map[naming.Resource][]chan Key),
	}
}

// Request asks for (or waits on) the consent decision for (source,
// destination). If already Decided, it returns immediately. Otherwise it
// blocks until Set is called for the same key or the broker's timeout
// elapses (ErrConsentRequestTimeout), whichever is first; ctx cancellation
// is also honoured.
func (b *Broker) Request(ctx context.Context, source naming.Resource, destination Destination) (bool, error) {
	key := Key{Source: source, Destination: destination}

	b.mu.Lock()
	st, ok := b.states[key]
	var justCreated bool
	if !ok {
		st = &state{}
		b.states[key] = st
		justCreated = true
	}
	if st.decided {
		decision := st.decision
		b.mu.Unlock()
		return decision, nil
	}
	ch := make(chan bool, 1)
	st.waiters = append(st.waiters, ch)
	var notify []chan Key
	if justCreated {
		notify = append(notify, b.subscribers[source]...)
	}
	b.mu.Unlock()

	for _, n := range notify {
		select {
		case n <- key:
		default: // a disconnected or slow operator must never block a flow.
		}
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	select {
	case decision := <-ch:
		return decision, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded && b.timeout > 0 {
			return false, terr.ErrConsentRequestTimeout
		}
		return false, ctx.Err()
	}
}

// PendingKey pairs a still-undecided Key with the waiter count observing
// it, for the operator notification stream (Broker.Pending).
type PendingKey struct {
	Key     Key
	Waiters int
}

// Pending returns a snapshot of all unresolved consent keys.
func (b *Broker) Pending() []PendingKey {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []PendingKey
	for k, st := range b.states {
		if !st.decided {
			out = append(out, PendingKey{Key: k, Waiters: len(st.waiters)})
		}
	}
	return out
}

// Set decides (source, destination) = decision, waking every current
// waiter. If the key is already Decided, this is a no-op: the first
// decision wins. A Set that arrives before any Request for the same key
// pre-decides it, so a subsequent Request returns immediately.
func (b *Broker) Set(source naming.Resource, destination Destination, decision bool) {
	key := Key{Source: source, Destination: destination}

	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[key]
	if !ok {
		b.states[key] = &state{decided: true, decision: decision}
		return
	}
	if st.decided {
		return
	}
	st.decided = true
	st.decision = decision
	for _, ch := range st.waiters {
		ch <- decision
	}
	st.waiters = nil
}

// TakeOwnership opens a notification channel for an operator interested in
// consent requests for resource: the broker pushes every new Pending key
// whose source is resource through the returned channel. Disconnect closes
// the channel and must be called exactly once when the operator is done
// (typically on O2M stream teardown).
func (b *Broker) TakeOwnership(resource naming.Resource) (notifications <-chan Key, disconnect func()) {
	ch := make(chan Key, 16)

	b.mu.Lock()
	b.subscribers[resource] = append(b.subscribers[resource], ch)
	b.mu.Unlock()

	var once sync.Once
	disconnect = func() {
		once.Do(func() {
			b.mu.Lock()
			subs := b.subscribers[resource]
			for i, s := range subs {
				if s == ch {
					b.subscribers[resource] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, disconnect
}
