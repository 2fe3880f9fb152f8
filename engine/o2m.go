// O2M handler: administrative operations.
package engine

import (
	"context"
	"sync"

	"github.com/mablr/trace2e-engine/compliance"
	"github.com/mablr/trace2e-engine/consent"
	"github.com/mablr/trace2e-engine/naming"
)

// GetPolicies returns the stored policy for resource, or the default if
// none has been set.
func (e *Engine) GetPolicies(resource naming.Resource) compliance.Policy {
	return e.compliance.GetPolicy(resource)
}

// SetPolicy replaces resource's whole policy, unless it is pending
// deletion (deletion is terminal, enforced by compliance.Registry).
func (e *Engine) SetPolicy(resource naming.Resource, p compliance.Policy) {
	e.compliance.SetPolicy(resource, p)
}

func (e *Engine) SetConfidentiality(resource naming.Resource, c compliance.Confidentiality) {
	e.compliance.SetConfidentiality(resource, c)
}

func (e *Engine) SetIntegrity(resource naming.Resource, minIntegrity uint32) {
	e.compliance.SetIntegrity(resource, minIntegrity)
}

func (e *Engine) SetDeleted(resource naming.Resource) {
	e.compliance.SetDeleted(resource)
}

// BroadcastDeletionFanOut marks resource Pending locally and fans out a
// BroadcastDeletion call to every peer node ever observed in the
// provenance store (nodes are discovered implicitly; there is no separate
// peer-membership list). Peer failures are logged but do not fail the
// call: deletion is a best-effort fan-out, not a transaction. Named
// distinctly from the inbound M2M handler of the same name
// (Engine.BroadcastDeletion, in m2m.go), which only ever acts on one node
// at a time.
func (e *Engine) BroadcastDeletionFanOut(ctx context.Context, resource naming.Resource) {
	e.compliance.SetDeleted(resource)

	peers := e.provenance.KnownNodes()
	var wg sync.WaitGroup
	for _, node := range peers {
		wg.Add(1)
		go func(node string) {
			defer wg.Done()
			endpoint, err := e.registry.Resolve(ctx, node)
			if err != nil {
				e.log.WithField("peer", node).WithError(err).Warn("broadcast deletion: could not resolve peer")
				return
			}
			if err := e.transport.BroadcastDeletion(ctx, endpoint, resource); err != nil {
				e.log.WithField("peer", node).WithError(err).Warn("broadcast deletion: peer unreachable")
			}
		}(node)
	}
	wg.Wait()
}

// EnforceConsent turns on consent_required for resource and returns a
// stream of notifications for new pending consent requests naming it as
// their source, plus a disconnect func the caller must invoke exactly
// once when done.
func (e *Engine) EnforceConsent(resource naming.Resource) (<-chan consent.Key, func()) {
	e.compliance.EnforceConsent(resource)
	return e.consent.TakeOwnership(resource)
}

// SetConsentDecision decides a pending (or pre-decides a future) consent
// request for (source, destination).
func (e *Engine) SetConsentDecision(source naming.Resource, destination consent.Destination, decision bool) {
	e.consent.Set(source, destination, decision)
}

// GetReferences returns resource's stored provenance set.
func (e *Engine) GetReferences(resource naming.Resource) map[naming.LocalizedResource]struct{} {
	return e.provenance.Get(resource)
}

// GetPoliciesByURL is GetPolicies for a caller that only has a resource's
// canonical URL form (a CLI flag, an admin API request body) rather than a
// typed naming.Resource.
func (e *Engine) GetPoliciesByURL(url string) (compliance.Policy, error) {
	resource, err := naming.ParseURL(url)
	if err != nil {
		return compliance.Policy{}, err
	}
	return e.GetPolicies(resource), nil
}

// SetPolicyByURL is SetPolicy for a caller addressing the resource by its
// canonical URL form.
func (e *Engine) SetPolicyByURL(url string, p compliance.Policy) error {
	resource, err := naming.ParseURL(url)
	if err != nil {
		return err
	}
	e.SetPolicy(resource, p)
	return nil
}

// SetConfidentialityByURL is SetConfidentiality for a caller addressing the
// resource by its canonical URL form.
func (e *Engine) SetConfidentialityByURL(url string, c compliance.Confidentiality) error {
	resource, err := naming.ParseURL(url)
	if err != nil {
		return err
	}
	e.SetConfidentiality(resource, c)
	return nil
}

// SetIntegrityByURL is SetIntegrity for a caller addressing the resource by
// its canonical URL form.
func (e *Engine) SetIntegrityByURL(url string, minIntegrity uint32) error {
	resource, err := naming.ParseURL(url)
	if err != nil {
		return err
	}
	e.SetIntegrity(resource, minIntegrity)
	return nil
}

// SetDeletedByURL is SetDeleted for a caller addressing the resource by its
// canonical URL form.
func (e *Engine) SetDeletedByURL(url string) error {
	resource, err := naming.ParseURL(url)
	if err != nil {
		return err
	}
	e.SetDeleted(resource)
	return nil
}

// GetReferencesByURL is GetReferences for a caller addressing the resource
// by its canonical URL form.
func (e *Engine) GetReferencesByURL(url string) (map[naming.LocalizedResource]struct{}, error) {
	resource, err := naming.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return e.GetReferences(resource), nil
}
