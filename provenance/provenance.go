// Package provenance tracks, per resource, the transitive set of
// node-qualified ancestor resources that may have influenced its contents.
//
// The map is monotone (ancestors are never removed) and reflexive on
// non-stream resources (a touched local resource always includes itself).
// Updates are union-only; implementations must not use recursion to
// compute closure over cyclic ancestor graphs, which would not terminate —
// Store.Update always performs one flat set union.
package provenance

import (
	"sync"

	"github.com/mablr/trace2e-engine/naming"
)

// Store is the per-engine provenance map, keyed by Resource, of the set of
// LocalizedResource ancestors. Store is safe for concurrent use; a single
// mutex guards the whole map, so access is not striped per resource and
// operations on unrelated resources are serialised.
type Store struct {
	nodeID string

	mu           sync.Mutex
	set          map[naming.Resource]map[naming.LocalizedResource]struct{}
	propagatedTo map[naming.Resource]map[string]struct{}
}

// New returns a Store for the engine identified by nodeID.
func New(nodeID string) *Store {
	return &Store{
		nodeID:       nodeID,
		set:          make(map[naming.Resource]map[naming.LocalizedResource]struct{}),
		propagatedTo: make(map[naming.Resource]map[string]struct{}),
	}
}

// NodeID returns the node identity this store stamps onto newly-touched
// local resources.
func (s *Store) NodeID() string { return s.nodeID }

// defaultSet returns the set implied by a resource that has never been
// recorded: reflexive self-ancestry for local non-stream resources, empty
// for streams.
func (s *Store) defaultSet(r naming.Resource) map[naming.LocalizedResource]struct{} {
	if r.IsStream() {
		return map[naming.LocalizedResource]struct{}{}
	}
	return map[naming.LocalizedResource]struct{}{
		{Node: s.nodeID, Resource: r}: {},
	}
}

// Get returns the stored ancestor set for resource, or the applicable
// default if none has ever been recorded.
func (s *Store) Get(r naming.Resource) map[naming.LocalizedResource]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(r)
}

func (s *Store) getLocked(r naming.Resource) map[naming.LocalizedResource]struct{} {
	if existing, ok := s.set[r]; ok {
		return cloneSet(existing)
	}
	return s.defaultSet(r)
}

// Update sets prov(destination) <- prov(destination) U prov(source),
// provided destination is not a stream (writes to a stream instead publish
// through an UpdateProvenance call to the peer node). It returns whether
// the union changed destination's stored set.
func (s *Store) Update(source, destination naming.Resource) bool {
	if destination.IsStream() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sourceProv := s.getLocked(source)
	return s.unionLocked(destination, sourceProv)
}

// UpdateRaw is the M2M counterpart of Update: the source ancestor set is
// supplied directly by a peer engine rather than computed locally.
func (s *Store) UpdateRaw(sourceProv map[naming.LocalizedResource]struct{}, destination naming.Resource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unionLocked(destination, sourceProv)
}

func (s *Store) unionLocked(destination naming.Resource, incoming map[naming.LocalizedResource]struct{}) bool {
	current := s.set[destination]
	if current == nil {
		current = s.defaultSetNoLock(destination)
	}

	changed := false
	for lr := range incoming {
		if _, ok := current[lr]; !ok {
			current[lr] = struct{}{}
			changed = true
		}
	}
	if changed {
		s.set[destination] = current
	}
	return changed
}

func (s *Store) defaultSetNoLock(r naming.Resource) map[naming.LocalizedResource]struct{} {
	out := map[naming.LocalizedResource]struct{}{}
	if !r.IsStream() {
		out[naming.LocalizedResource{Node: s.nodeID, Resource: r}] = struct{}{}
	}
	return out
}

// KnownNodes returns every distinct node id ever observed as the owner of
// an ancestor in the store, excluding this store's own node. BroadcastDeletion
// uses this as its implicit peer discovery: peers are whichever nodes have
// contributed provenance we have seen, not a separately configured
// membership list.
func (s *Store) KnownNodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]struct{}{}
	for _, ancestors := range s.set {
		for lr := range ancestors {
			if lr.Node != s.nodeID {
				seen[lr.Node] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

// RecordPropagation notes that resource's bytes were pushed out over a
// stream to remoteNode. This is additive bookkeeping only, ungated by
// anything the authorisation predicate reads, and never affects Get/Update.
func (s *Store) RecordPropagation(resource naming.Resource, remoteNode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, ok := s.propagatedTo[resource]
	if !ok {
		nodes = map[string]struct{}{}
		s.propagatedTo[resource] = nodes
	}
	nodes[remoteNode] = struct{}{}
}

// PropagatedTo returns the set of remote nodes resource's bytes are known
// to have been pushed to, via RecordPropagation.
func (s *Store) PropagatedTo(resource naming.Resource) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := s.propagatedTo[resource]
	out := make([]string, 0, len(nodes))
	for n := range nodes {
		out = append(out, n)
	}
	return out
}

func cloneSet(in map[naming.LocalizedResource]struct{}) map[naming.LocalizedResource]struct{} {
	out := make(map[naming.LocalizedResource]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
