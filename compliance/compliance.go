// Package compliance stores per-resource policies and evaluates the
// flow-authorisation predicate that combines an ancestor set's policies
// against a destination's policy.
package compliance

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mablr/trace2e-engine/consent"
	terr "github.com/mablr/trace2e-engine/errors"
	"github.com/mablr/trace2e-engine/naming"
)

// ConsentBroker is the subset of *consent.Broker the compliance engine
// needs; it is an interface so tests can stub consent decisions without
// pulling in the full broker's wait-notify machinery.
type ConsentBroker interface {
	Request(ctx context.Context, source naming.Resource, destination consent.Destination) (bool, error)
}

// Registry is the per-engine policy store. Lookups default-return
// DefaultPolicy; there is no explicit registration step.
type Registry struct {
	mu       sync.Mutex
	policies map[naming.Resource]Policy
	broker   ConsentBroker
	log      *logrus.Entry
}

// New returns a Registry that consults broker to evaluate consent
// requirements.
func New(broker ConsentBroker) *Registry {
	return &Registry{
		policies: make(map[naming.Resource]Policy),
		broker:   broker,
		log:      logrus.WithField("component", "compliance"),
	}
}

// GetPolicy returns the stored policy for r, or DefaultPolicy if none has
// been set.
func (reg *Registry) GetPolicy(r naming.Resource) Policy {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.getLocked(r)
}

func (reg *Registry) getLocked(r naming.Resource) Policy {
	if p, ok := reg.policies[r]; ok {
		return p
	}
	return DefaultPolicy
}

// mutate applies fn to r's policy unless r's current deletion state is
// Pending, in which case it silently does nothing: once pending, deletion
// is terminal.
func (reg *Registry) mutate(r naming.Resource, fn func(*Policy)) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	p := reg.getLocked(r)
	if p.Deletion == Pending {
		return
	}
	fn(&p)
	reg.policies[r] = p
}

// SetPolicy replaces r's whole policy.
func (reg *Registry) SetPolicy(r naming.Resource, p Policy) {
	reg.mutate(r, func(cur *Policy) { *cur = p })
}

// SetConfidentiality sets r's confidentiality level.
func (reg *Registry) SetConfidentiality(r naming.Resource, c Confidentiality) {
	reg.mutate(r, func(cur *Policy) { cur.Confidentiality = c })
}

// SetIntegrity sets r's minimum-integrity requirement.
func (reg *Registry) SetIntegrity(r naming.Resource, minIntegrity uint32) {
	reg.mutate(r, func(cur *Policy) { cur.MinIntegrity = minIntegrity })
}

// SetDeleted marks r Pending deletion. This is the one mutation allowed to
// transition into the terminal state; mutate's guard only blocks mutations
// once already Pending, so this call itself must bypass it.
func (reg *Registry) SetDeleted(r naming.Resource) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	p := reg.getLocked(r)
	p.Deletion = Pending
	reg.policies[r] = p
}

// EnforceConsent turns on consent_required for r.
func (reg *Registry) EnforceConsent(r naming.Resource) {
	reg.mutate(r, func(cur *Policy) { cur.ConsentRequired = true })
}

// Ancestor is one element of the ancestor set passed to Eval: a resource
// together with its policy, attributed to a LocalizedResource for logging.
type Ancestor struct {
	naming.LocalizedResource
	Policy Policy
}

// Eval implements the flow-authorisation predicate: given the ancestor set
// of a flow's source and the destination resource (with its own policy),
// decide whether the flow is granted. destNode is used to build the
// consent key only; it is the node owning destination.
func (reg *Registry) Eval(ctx context.Context, ancestors []Ancestor, destination naming.Resource, destNode string, destPolicy Policy) error {
	// 1. Any ancestor pending deletion blocks the flow outright.
	for _, a := range ancestors {
		if a.Policy.Deletion == Pending {
			reg.log.WithField("ancestor", a.Resource).Debug("deny: ancestor pending deletion")
			return terr.ErrPendingDeletion
		}
	}

	// 2. Secrets never cross the fleet boundary: a stream destination with
	// any Secret ancestor is denied.
	if destination.IsStream() {
		for _, a := range ancestors {
			if a.Policy.Confidentiality == Secret {
				reg.log.WithField("ancestor", a.Resource).Debug("deny: confidentiality violation")
				return terr.ErrConfidentialityViolation
			}
		}
	}

	// 3. Every ancestor must meet the destination's minimum integrity
	// requirement.
	for _, a := range ancestors {
		if a.Policy.MinIntegrity < destPolicy.MinIntegrity {
			reg.log.WithField("ancestor", a.Resource).Debug("deny: integrity violation")
			return terr.ErrIntegrityViolation
		}
	}

	// 4. Consent: any ancestor (or the destination itself) requiring
	// consent must have it granted for this specific destination.
	destKey := consentDestinationFor(destNode, destination)
	if destPolicy.ConsentRequired {
		granted, err := reg.broker.Request(ctx, destination, destKey)
		if err != nil {
			return err
		}
		if !granted {
			return terr.ErrConsentDenied
		}
	}
	for _, a := range ancestors {
		if !a.Policy.ConsentRequired {
			continue
		}
		granted, err := reg.broker.Request(ctx, a.Resource, destKey)
		if err != nil {
			return err
		}
		if !granted {
			return terr.ErrConsentDenied
		}
	}

	return nil
}

// consentDestinationFor builds the nested consent destination key: the
// destination node, wrapping the destination resource.
func consentDestinationFor(destNode string, destination naming.Resource) consent.Destination {
	return consent.ResourceDestination{
		Resource: destination,
		Parent:   consent.NodeDestination{Node: destNode},
	}
}
