package engine

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mablr/trace2e-engine/compliance"
	"github.com/mablr/trace2e-engine/consent"
	"github.com/mablr/trace2e-engine/naming"
	"github.com/mablr/trace2e-engine/provenance"
	"github.com/mablr/trace2e-engine/registry"
	"github.com/mablr/trace2e-engine/sequencer"
	"github.com/mablr/trace2e-engine/transport"
)

// Engine is the per-node traceability mediator: the sequencer, provenance
// store, compliance registry, and consent broker wired into one value. It
// implements transport.Server directly, so a Loopback (or real gRPC)
// transport dials straight into its M2M methods.
type Engine struct {
	cfg Config

	sequencer  *sequencer.Sequencer
	provenance *provenance.Store
	compliance *compliance.Registry
	consent    *consent.Broker
	registry   registry.NodeRegistry
	transport  transport.Transport
	validator  ResourceValidator

	fds   *fdMap
	flows *pendingFlows

	log *logrus.Entry
}

// New builds an Engine from cfg, wiring a fresh Sequencer, Provenance
// Store, Compliance Registry, and Consent Broker together. reg and t may
// be nil, in which case an InMemoryRegistry and the Nop transport are
// used (a single-node deployment with no peers). validator may be nil, in
// which case PermissiveValidator is used regardless of EnableValidation.
func New(cfg Config, reg registry.NodeRegistry, t transport.Transport, validator ResourceValidator) *Engine {
	if reg == nil {
		reg = registry.NewInMemory()
	}
	if t == nil {
		t = transport.Nop{}
	}
	if validator == nil {
		validator = PermissiveValidator{}
	}

	broker := consent.New(uint64(cfg.ConsentTimeout.Milliseconds()))

	e := &Engine{
		cfg:        cfg,
		sequencer:  sequencer.New(cfg.MaxRetries),
		provenance: provenance.New(cfg.NodeID),
		consent:    broker,
		registry:   reg,
		transport:  t,
		validator:  validator,
		fds:        newFdMap(),
		flows:      newPendingFlows(),
		log:        logrus.WithField("node_id", cfg.NodeID),
	}
	e.compliance = compliance.New(broker)
	return e
}

// NodeID returns this engine's configured node identity.
func (e *Engine) NodeID() string { return e.cfg.NodeID }

// isLocal reports whether node is this engine's own node id.
func (e *Engine) isLocal(node string) bool {
	return node == e.cfg.NodeID
}

// remoteNodeFor derives the owning node id of destination: local
// non-stream resources belong to this engine; a stream's owning node is
// derived from its peer socket's IP, the only source of peer discovery in
// the core.
func (e *Engine) remoteNodeFor(r naming.Resource) string {
	if r.IsStream() {
		return ipFromSocket(r.Stream.PeerSocket)
	}
	return e.cfg.NodeID
}

// ipFromSocket strips the port off a "host:port" socket address.
func ipFromSocket(socket string) string {
	if idx := strings.LastIndex(socket, ":"); idx >= 0 {
		return socket[:idx]
	}
	return socket
}

// ancestorSet builds the ancestor set for a flow out of source: the
// stored provenance of source, plus source itself when source is a
// non-stream resource. provenance.Store.Get already includes source for
// every non-stream resource (its default is reflexive and stored sets are
// seeded from that default), so the explicit add only guards that
// invariant. Each ancestor's policy is looked up at call time.
func (e *Engine) ancestorSet(source naming.Resource) []compliance.Ancestor {
	prov := e.provenance.Get(source)

	out := make([]compliance.Ancestor, 0, len(prov)+1)
	seen := make(map[naming.LocalizedResource]struct{}, len(prov)+1)
	for lr := range prov {
		out = append(out, compliance.Ancestor{
			LocalizedResource: lr,
			Policy:            e.policyForLocalized(lr),
		})
		seen[lr] = struct{}{}
	}
	if !source.IsStream() {
		self := naming.LocalizedResource{Node: e.cfg.NodeID, Resource: source}
		if _, ok := seen[self]; !ok {
			out = append(out, compliance.Ancestor{
				LocalizedResource: self,
				Policy:            e.compliance.GetPolicy(source),
			})
		}
	}
	return out
}

// rawAncestorSet returns source's stored provenance plus source itself
// (for non-stream resources), as the raw LocalizedResource set an
// M2M::UpdateProvenance call carries — no policy attached, unlike
// ancestorSet which compliance.Eval needs.
func (e *Engine) rawAncestorSet(source naming.Resource) map[naming.LocalizedResource]struct{} {
	prov := e.provenance.Get(source)
	if !source.IsStream() {
		prov[naming.LocalizedResource{Node: e.cfg.NodeID, Resource: source}] = struct{}{}
	}
	return prov
}

// localizedSetToSlice flattens a LocalizedResource set into a slice for
// wire transmission.
func localizedSetToSlice(m map[naming.LocalizedResource]struct{}) []naming.LocalizedResource {
	out := make([]naming.LocalizedResource, 0, len(m))
	for lr := range m {
		out = append(out, lr)
	}
	return out
}

// policyForLocalized returns the policy of a LocalizedResource's
// underlying resource when it is local to this engine, or DefaultPolicy
// for a remote ancestor (a remote ancestor's policy is only authoritative
// on its own node; CheckSourceCompliance is how that node's view gets
// consulted for the parts of A it owns).
func (e *Engine) policyForLocalized(lr naming.LocalizedResource) compliance.Policy {
	if e.isLocal(lr.Node) {
		return e.compliance.GetPolicy(lr.Resource)
	}
	return compliance.DefaultPolicy
}
