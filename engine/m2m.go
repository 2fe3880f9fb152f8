package engine

import (
	"context"

	"golang.org/x/net/trace"

	"github.com/mablr/trace2e-engine/compliance"
	terr "github.com/mablr/trace2e-engine/errors"
	"github.com/mablr/trace2e-engine/naming"
)

// GetDestinationPolicy implements transport.Server: destination must be
// local to this engine.
func (e *Engine) GetDestinationPolicy(_ context.Context, destination naming.LocalizedResource) (compliance.Policy, error) {
	if !e.isLocal(destination.Node) {
		return compliance.Policy{}, terr.ErrNotLocalResource
	}
	return e.compliance.GetPolicy(destination.Resource), nil
}

// CheckSourceCompliance implements transport.Server: it filters sources to
// those local to this engine, re-fetches their authoritative policy (the
// caller's view of a remote ancestor's policy is only ever a default),
// and evaluates the authorisation predicate against destination/destPolicy.
func (e *Engine) CheckSourceCompliance(ctx context.Context, sources []compliance.Ancestor, destination naming.LocalizedResource, destPolicy compliance.Policy) error {
	local := make([]compliance.Ancestor, 0, len(sources))
	for _, a := range sources {
		if !e.isLocal(a.Node) {
			continue
		}
		local = append(local, compliance.Ancestor{
			LocalizedResource: a.LocalizedResource,
			Policy:            e.compliance.GetPolicy(a.Resource),
		})
	}
	if len(local) == 0 {
		return nil
	}
	return e.compliance.Eval(ctx, local, destination.Resource, destination.Node, destPolicy)
}

// UpdateProvenance implements transport.Server: destination must be local
// (typically the peer's own stream endpoint); it commits the incoming
// ancestor set and releases the sequencer's hold on destination.
func (e *Engine) UpdateProvenance(_ context.Context, sourceProv []naming.LocalizedResource, destination naming.LocalizedResource) error {
	if !e.isLocal(destination.Node) {
		return terr.ErrNotLocalResource
	}
	incoming := make(map[naming.LocalizedResource]struct{}, len(sourceProv))
	for _, lr := range sourceProv {
		incoming[lr] = struct{}{}
	}
	e.provenance.UpdateRaw(incoming, destination.Resource)
	e.sequencer.ReleaseFlow(destination.Resource)
	return nil
}

// BroadcastDeletion implements transport.Server: if resource is local to
// this engine (see ownsResource), mark it Pending; otherwise do nothing and
// still Ack.
func (e *Engine) BroadcastDeletion(ctx context.Context, resource naming.Resource) error {
	tr := trace.New("trace2e.m2m", "BroadcastDeletion")
	defer tr.Finish()

	if e.ownsResource(resource) {
		tr.LazyPrintf("resource %s is local, marking pending", resource)
		e.compliance.SetDeleted(resource)
	} else {
		tr.LazyPrintf("resource %s not known locally, ignoring", resource)
	}
	return nil
}

// ownsResource reports whether some (pid, fd) enrolled on this engine names
// resource, either as the enrolled resource or as the enrolling process.
// This is the proxy this engine uses for "resource is local to me" when
// handling an inbound BroadcastDeletion (a bare Resource carries no node tag
// of its own). Streams are never treated as owned.
func (e *Engine) ownsResource(resource naming.Resource) bool {
	if resource.IsStream() {
		return false
	}
	e.fds.mu.Lock()
	defer e.fds.mu.Unlock()
	for k, r := range e.fds.m {
		if r == resource || processResource(k.PID) == resource {
			return true
		}
	}
	return false
}
