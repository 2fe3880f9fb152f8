package sequencer

import (
	"time"

	"github.com/google/uuid"

	"github.com/mablr/trace2e-engine/naming"
)

// FlowID is the opaque 128-bit identifier minted when a reservation pair is
// granted.
type FlowID [16]byte

// DeniedFlowID is the sentinel value meaning "denied / do not report". It is
// never returned by ReserveFlow; it exists so P2M clients have a single
// well-known value to encode a refusal as.
var DeniedFlowID = FlowID{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

func newFlowID() FlowID {
	return FlowID(uuid.New())
}

// String renders the flow id the way uuid.UUID does.
func (f FlowID) String() string {
	return uuid.UUID(f).String()
}

// Direction records whether the local process was the reader or the writer
// of a flow.
type Direction uint8

const (
	// DirectionIn means bytes flowed from the fd resource into the process
	// (a read).
	DirectionIn Direction = iota
	// DirectionOut means bytes flowed from the process into the fd
	// resource (a write).
	DirectionOut
)

// Flow is the pending-flow record the engine holds between a grant and the
// matching report.
type Flow struct {
	ID          FlowID
	Source      naming.Resource
	Destination naming.Resource
	Direction   Direction
	GrantedAt   time.Time
}
