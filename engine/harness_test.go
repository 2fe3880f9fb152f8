package engine

import (
	"context"
	"testing"
	"time"

	"github.com/mablr/trace2e-engine/registry"
	"github.com/mablr/trace2e-engine/transport"
)

// testFleet wires N engines together over a shared Loopback transport and
// InMemoryRegistry, simulating multi-node scenarios without any real
// network.
type testFleet struct {
	reg      *registry.InMemoryRegistry
	loopback *transport.Loopback
	engines  map[string]*Engine
}

func newTestFleet() *testFleet {
	return &testFleet{
		reg:      registry.NewInMemory(),
		loopback: transport.NewLoopback(0, 0),
		engines:  make(map[string]*Engine),
	}
}

// addNode builds and registers an Engine for nodeID at endpoint.
func (f *testFleet) addNode(t *testing.T, nodeID, endpoint string) *Engine {
	t.Helper()
	cfg := Config{NodeID: nodeID, M2MEndpoint: endpoint, ConsentTimeout: 200 * time.Millisecond}
	e := New(cfg, f.reg, f.loopback, nil)
	f.loopback.Register(endpoint, e)
	if err := f.reg.Register(context.Background(), nodeID, endpoint); err != nil {
		t.Fatalf("register node: %v", err)
	}
	f.engines[nodeID] = e
	return e
}
