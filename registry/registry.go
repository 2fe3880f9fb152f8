// Package registry resolves a node id to the network address its engine
// listens on for M2M traffic. It plays the same role an allocator-backed
// key space does for service discovery more generally, scoped down here to
// a single mapping: node_id -> endpoint, not a full shard/member/assignment
// allocation.
package registry

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrUnknownNode is returned by Resolve when no endpoint has been
// registered for the requested node id.
var ErrUnknownNode = errors.New("trace2e: unknown node id")

// NodeRegistry maps a node id to the m2m_endpoint address an embedder's
// transport dials to reach it.
type NodeRegistry interface {
	// Resolve returns the m2m_endpoint registered for nodeID.
	Resolve(ctx context.Context, nodeID string) (string, error)
	// Register advertises nodeID as reachable at endpoint.
	Register(ctx context.Context, nodeID, endpoint string) error
}

// InMemoryRegistry is the default NodeRegistry: a plain map guarded by a
// mutex. It is what the loopback transport and every test in this repo
// use; no deployment surface is required to exercise the M2M protocol.
type InMemoryRegistry struct {
	mu   sync.RWMutex
	byID map[string]string
}

// NewInMemory returns an empty InMemoryRegistry.
func NewInMemory() *InMemoryRegistry {
	return &InMemoryRegistry{byID: make(map[string]string)}
}

func (r *InMemoryRegistry) Resolve(_ context.Context, nodeID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoint, ok := r.byID[nodeID]
	if !ok {
		return "", ErrUnknownNode
	}
	return endpoint, nil
}

func (r *InMemoryRegistry) Register(_ context.Context, nodeID, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[nodeID] = endpoint
	return nil
}
