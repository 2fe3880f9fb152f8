// Package transport defines the seam an M2M round-trip crosses and a
// small set of concrete implementations. The engine never dials a real
// socket itself: the M2M surface is a shape, not a wire, so the
// implementation is always supplied by the embedder.
package transport

import (
	"context"

	"github.com/mablr/trace2e-engine/compliance"
	"github.com/mablr/trace2e-engine/naming"
)

// Server is what a Transport dials into: the receiving engine's M2M
// surface. An *engine.Engine implements this directly.
type Server interface {
	GetDestinationPolicy(ctx context.Context, destination naming.LocalizedResource) (compliance.Policy, error)
	CheckSourceCompliance(ctx context.Context, sources []compliance.Ancestor, destination naming.LocalizedResource, destPolicy compliance.Policy) error
	UpdateProvenance(ctx context.Context, sourceProv []naming.LocalizedResource, destination naming.LocalizedResource) error
	BroadcastDeletion(ctx context.Context, resource naming.Resource) error
}

// Transport is the M2M client seam: the engine calls these four methods
// against an endpoint string (an opaque address resolved via
// registry.NodeRegistry) without knowing whether the call crosses a
// process boundary.
type Transport interface {
	GetDestinationPolicy(ctx context.Context, endpoint string, destination naming.LocalizedResource) (compliance.Policy, error)
	CheckSourceCompliance(ctx context.Context, endpoint string, sources []compliance.Ancestor, destination naming.LocalizedResource, destPolicy compliance.Policy) error
	UpdateProvenance(ctx context.Context, endpoint string, sourceProv []naming.LocalizedResource, destination naming.LocalizedResource) error
	BroadcastDeletion(ctx context.Context, endpoint string, resource naming.Resource) error
}
