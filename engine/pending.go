package engine

import (
	"sync"

	terr "github.com/mablr/trace2e-engine/errors"
	"github.com/mablr/trace2e-engine/sequencer"
)

// pendingFlows is the per-engine table of flows awaiting a report, keyed
// by the FlowID handed back to the client on grant.
type pendingFlows struct {
	mu sync.Mutex
	m  map[sequencer.FlowID]sequencer.Flow
}

func newPendingFlows() *pendingFlows {
	return &pendingFlows{m: make(map[sequencer.FlowID]sequencer.Flow)}
}

func (p *pendingFlows) put(f sequencer.Flow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[f.ID] = f
}

// take removes and returns the pending flow for id, or NotFoundFlow if no
// such grant is outstanding (an IoReport referencing an unknown or
// already-reported grant id).
func (p *pendingFlows) take(id sequencer.FlowID) (sequencer.Flow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.m[id]
	if !ok {
		return sequencer.Flow{}, &terr.NotFoundFlow{FlowID: id.String()}
	}
	delete(p.m, id)
	return f, nil
}
