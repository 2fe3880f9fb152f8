package transport

import (
	"context"

	"github.com/mablr/trace2e-engine/compliance"
	terr "github.com/mablr/trace2e-engine/errors"
	"github.com/mablr/trace2e-engine/naming"
)

// Nop is the safe default Transport for a single-node deployment: every
// call fails immediately with TransportFailedToContactRemote, so an engine
// wired without a real transport still denies rather than panics the first
// time it needs to reach a peer.
type Nop struct{}

func (Nop) GetDestinationPolicy(context.Context, string, naming.LocalizedResource) (compliance.Policy, error) {
	return compliance.Policy{}, &terr.TransportFailedToContactRemote{}
}

func (Nop) CheckSourceCompliance(context.Context, string, []compliance.Ancestor, naming.LocalizedResource, compliance.Policy) error {
	return &terr.TransportFailedToContactRemote{}
}

func (Nop) UpdateProvenance(context.Context, string, []naming.LocalizedResource, naming.LocalizedResource) error {
	return &terr.TransportFailedToContactRemote{}
}

func (Nop) BroadcastDeletion(context.Context, string, naming.Resource) error {
	return &terr.TransportFailedToContactRemote{}
}
