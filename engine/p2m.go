// P2M handler: enroll / io-request / io-report.
package engine

import (
	"context"
	"time"

	"golang.org/x/net/trace"

	"github.com/mablr/trace2e-engine/compliance"
	terr "github.com/mablr/trace2e-engine/errors"
	"github.com/mablr/trace2e-engine/naming"
	"github.com/mablr/trace2e-engine/sequencer"
)

// processResource derives the Process identity used internally for a
// pid. Callers only ever supply pid on LocalEnroll/RemoteEnroll/IoRequest/
// IoReport, so start_time and exe_path are left at their zero values; two
// calls for the same pid always name the same Resource.
func processResource(pid int32) naming.Resource {
	return naming.NewProcess(pid, 0, "")
}

// LocalEnroll records path as the File resource behind (pid, fd),
// optionally validating pid first.
func (e *Engine) LocalEnroll(pid, fd int32, path string) error {
	if e.cfg.EnableValidation {
		if err := e.validator.ValidateProcess(processResource(pid).Process); err != nil {
			return &terr.InvalidProcess{PID: pid}
		}
	}
	e.fds.enroll(pid, fd, naming.NewFile(path))
	return nil
}

// RemoteEnroll records a Stream resource behind (pid, fd), optionally
// validating the socket pair first.
func (e *Engine) RemoteEnroll(pid, fd int32, localSocket, peerSocket string) error {
	stream := naming.NewStream(localSocket, peerSocket)
	if e.cfg.EnableValidation {
		if err := e.validator.ValidateStream(stream.Stream); err != nil {
			return &terr.InvalidStream{LocalSocket: localSocket, PeerSocket: peerSocket}
		}
	}
	e.fds.enroll(pid, fd, stream)
	return nil
}

// IoRequest reserves and authorises one flow for (pid, fd). output selects
// the flow's direction: true means the local process is writing to the
// enrolled resource (process -> resource); false means it is reading from
// it (resource -> process). On grant, the flow is held pending until the
// matching IoReport; on any refusal, anything reserved is released before
// returning.
func (e *Engine) IoRequest(ctx context.Context, pid, fd int32, output bool) (sequencer.FlowID, error) {
	tr := trace.New("trace2e.p2m", "IoRequest")
	defer tr.Finish()

	fdResource, err := e.fds.lookup(pid, fd)
	if err != nil {
		return sequencer.DeniedFlowID, err
	}

	process := processResource(pid)
	var source, destination naming.Resource
	var direction sequencer.Direction
	if output {
		source, destination, direction = process, fdResource, sequencer.DirectionOut
	} else {
		source, destination, direction = fdResource, process, sequencer.DirectionIn
	}

	flowID, err := e.sequencer.ReserveFlow(ctx, source, destination)
	if err != nil {
		tr.LazyPrintf("reservation failed: %v", err)
		return sequencer.DeniedFlowID, err
	}

	if err := e.authorise(ctx, tr, source, destination); err != nil {
		e.sequencer.ReleaseFlow(destination)
		e.sequencer.ReleaseSource(source)
		return sequencer.DeniedFlowID, err
	}

	e.flows.put(sequencer.Flow{
		ID:          flowID,
		Source:      source,
		Destination: destination,
		Direction:   direction,
		GrantedAt:   time.Now(),
	})
	tr.LazyPrintf("granted flow %s", flowID)
	return flowID, nil
}

// authorise runs the authorisation predicate, locally if destination
// belongs to this node, or via an M2M round-trip otherwise.
func (e *Engine) authorise(ctx context.Context, tr trace.Trace, source, destination naming.Resource) error {
	ancestors := e.ancestorSet(source)
	destNode := e.remoteNodeFor(destination)

	if e.isLocal(destNode) {
		destPolicy := e.compliance.GetPolicy(destination)
		return e.compliance.Eval(ctx, ancestors, destination, destNode, destPolicy)
	}

	endpoint, err := e.registry.Resolve(ctx, destNode)
	if err != nil {
		tr.LazyPrintf("could not resolve node %s: %v", destNode, err)
		return err
	}
	destLocalized := naming.LocalizedResource{Node: destNode, Resource: destination}

	destPolicy, err := e.transport.GetDestinationPolicy(ctx, endpoint, destLocalized)
	if err != nil {
		return err
	}
	if err := e.compliance.Eval(ctx, ancestors, destination, destNode, destPolicy); err != nil {
		return err
	}
	return e.checkSourceComplianceRemote(ctx, ancestors, destLocalized, destPolicy)
}

// checkSourceComplianceRemote asks every remote node appearing in
// ancestors to independently confirm the authorisation predicate against
// destination/destPolicy using its own authoritative policies.
func (e *Engine) checkSourceComplianceRemote(ctx context.Context, ancestors []compliance.Ancestor, destLocalized naming.LocalizedResource, destPolicy compliance.Policy) error {
	nodes := map[string]struct{}{}
	for _, a := range ancestors {
		if !e.isLocal(a.Node) {
			nodes[a.Node] = struct{}{}
		}
	}
	for node := range nodes {
		endpoint, err := e.registry.Resolve(ctx, node)
		if err != nil {
			return err
		}
		if err := e.transport.CheckSourceCompliance(ctx, endpoint, ancestors, destLocalized, destPolicy); err != nil {
			return err
		}
	}
	return nil
}

// IoReport commits or discards a previously granted flow. Regardless of
// destination locality, the source reservation is always released here, and
// so is this engine's own reservation on the destination; for a stream
// destination the peer's UpdateProvenance handler additionally releases the
// peer's endpoint of the stream in the peer's sequencer.
func (e *Engine) IoReport(ctx context.Context, pid, fd int32, grantID sequencer.FlowID, result bool) error {
	tr := trace.New("trace2e.p2m", "IoReport")
	defer tr.Finish()

	flow, err := e.flows.take(grantID)
	if err != nil {
		return err
	}

	if !result {
		e.sequencer.ReleaseFlow(flow.Destination)
		e.sequencer.ReleaseSource(flow.Source)
		tr.LazyPrintf("flow %s reported failed, released both sides", grantID)
		return nil
	}

	if flow.Destination.IsStream() {
		err := e.reportRemote(ctx, flow)
		e.sequencer.ReleaseFlow(flow.Destination)
		e.sequencer.ReleaseSource(flow.Source)
		return err
	}

	e.provenance.Update(flow.Source, flow.Destination)
	e.sequencer.ReleaseFlow(flow.Destination)
	e.sequencer.ReleaseSource(flow.Source)
	return nil
}

func (e *Engine) reportRemote(ctx context.Context, flow sequencer.Flow) error {
	destNode := e.remoteNodeFor(flow.Destination)
	endpoint, err := e.registry.Resolve(ctx, destNode)
	if err != nil {
		return err
	}

	sourceProv := e.rawAncestorSet(flow.Source)
	peerLocalized := naming.LocalizedResource{Node: destNode, Resource: flow.Destination.Reciprocal()}
	if err := e.transport.UpdateProvenance(ctx, endpoint, localizedSetToSlice(sourceProv), peerLocalized); err != nil {
		return err
	}
	for lr := range sourceProv {
		if e.isLocal(lr.Node) {
			e.provenance.RecordPropagation(lr.Resource, destNode)
		}
	}
	return nil
}
