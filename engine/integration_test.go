package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mablr/trace2e-engine/compliance"
	"github.com/mablr/trace2e-engine/consent"
	"github.com/mablr/trace2e-engine/naming"
)

// forwardHop drives one stream hop of a multi-node write chain: it enrolls
// and writes the sender's stream descriptor (publishing the sender
// process's current ancestry across the wire via IoReport's automatic
// UpdateProvenance call), then enrolls and reads the matching descriptor on
// the receiving node so the incoming ancestry lands in the receiver's own
// process.
func forwardHop(
	t *testing.T, ctx context.Context,
	sender *Engine, senderPid, senderFd int32, senderSocket, peerSocket string,
	receiver *Engine, receiverPid, receiverFd int32,
) error {
	t.Helper()

	require.NoError(t, sender.RemoteEnroll(senderPid, senderFd, senderSocket, peerSocket))
	sg, err := sender.IoRequest(ctx, senderPid, senderFd, true)
	if err != nil {
		return err
	}
	if err := sender.IoReport(ctx, senderPid, senderFd, sg, true); err != nil {
		return err
	}

	require.NoError(t, receiver.RemoteEnroll(receiverPid, receiverFd, peerSocket, senderSocket))
	rg, err := receiver.IoRequest(ctx, receiverPid, receiverFd, false)
	if err != nil {
		return err
	}
	return receiver.IoReport(ctx, receiverPid, receiverFd, rg, true)
}

// threeNodeFleet wires node1 (10.0.0.1), node2 (10.0.0.2) and node3
// (10.0.0.3) together, node ids chosen to match remoteNodeFor's peer-IP
// derivation so a stream's owning node resolves correctly across hops.
func threeNodeFleet(t *testing.T) (node1, node2, node3 *Engine) {
	t.Helper()
	f := newTestFleet()
	node1 = f.addNode(t, "10.0.0.1", "node1:7070")
	node2 = f.addNode(t, "10.0.0.2", "node2:7070")
	node3 = f.addNode(t, "10.0.0.3", "node3:7070")
	return
}

func TestConfidentialityBlockAcrossNodes(t *testing.T) {
	node1, node2, node3 := threeNodeFleet(t)
	ctx := context.Background()

	require.NoError(t, node1.LocalEnroll(1, 3, "/tmp/s.txt"))
	g, err := node1.IoRequest(ctx, 1, 3, false)
	require.NoError(t, err)
	require.NoError(t, node1.IoReport(ctx, 1, 3, g, true))

	writeChain := func() error {
		if err := forwardHop(t, ctx, node1, 1, 10, "10.0.0.1:1337", "10.0.0.2:1338", node2, 2, 20); err != nil {
			return err
		}
		return forwardHop(t, ctx, node2, 2, 30, "10.0.0.2:1339", "10.0.0.3:1340", node3, 3, 40)
	}

	// Baseline: public source, the chain write reaches node3's process.
	require.NoError(t, writeChain())

	node1.SetConfidentiality(naming.NewFile("/tmp/s.txt"), compliance.Secret)
	err = writeChain()
	assert.Error(t, err, "a Secret ancestor must block a write across a stream boundary")

	node1.SetConfidentiality(naming.NewFile("/tmp/s.txt"), compliance.Public)
	assert.NoError(t, writeChain())
}

func TestIntegrityEnforcementAcrossNodes(t *testing.T) {
	node1, _, node3 := threeNodeFleet(t)
	ctx := context.Background()

	require.NoError(t, node1.LocalEnroll(1, 3, "/tmp/s2.txt"))
	g, err := node1.IoRequest(ctx, 1, 3, false)
	require.NoError(t, err)
	require.NoError(t, node1.IoReport(ctx, 1, 3, g, true))

	writeDirect := func() error {
		return forwardHop(t, ctx, node1, 1, 11, "10.0.0.1:2337", "10.0.0.3:2340", node3, 3, 41)
	}

	// The flow authorises against the stream resource itself (node3 is the
	// authoritative owner of its own destination policy, fetched via
	// GetDestinationPolicy), so the integrity requirement is set there.
	streamAtNode3 := naming.NewStream("10.0.0.1:2337", "10.0.0.3:2340")
	node3.SetIntegrity(streamAtNode3, 5)
	err = writeDirect()
	assert.Error(t, err, "source integrity 0 must fail a destination requiring minimum integrity 5")

	node3.SetIntegrity(streamAtNode3, 0)
	assert.NoError(t, writeDirect())
}

func TestBroadcastDeletionCascades(t *testing.T) {
	node1, _, node3 := threeNodeFleet(t)
	ctx := context.Background()

	require.NoError(t, node1.LocalEnroll(1, 3, "/tmp/cascade.txt"))
	g, err := node1.IoRequest(ctx, 1, 3, false)
	require.NoError(t, err)
	require.NoError(t, node1.IoReport(ctx, 1, 3, g, true))

	require.NoError(t, forwardHop(t, ctx, node1, 1, 12, "10.0.0.1:3337", "10.0.0.3:3340", node3, 3, 42))

	node1.BroadcastDeletionFanOut(ctx, naming.NewFile("/tmp/cascade.txt"))

	// SetPolicy on the now-deleted resource must be a no-op (terminality).
	before := node1.GetPolicies(naming.NewFile("/tmp/cascade.txt"))
	node1.SetPolicy(naming.NewFile("/tmp/cascade.txt"), compliance.Policy{MinIntegrity: 99})
	after := node1.GetPolicies(naming.NewFile("/tmp/cascade.txt"))
	assert.Equal(t, before, after)
	assert.Equal(t, compliance.Pending, after.Deletion)
}

func TestConsentGrantAndDeny(t *testing.T) {
	e := newSingleNode(t)
	ctx := context.Background()

	sensitive := naming.NewFile("/tmp/sensitive.txt")
	notifications, disconnect := e.EnforceConsent(sensitive)
	defer disconnect()

	// Peer sockets are addressed by "node1:<port>" so remoteNodeFor's
	// peer-IP derivation resolves to this single engine's own node id and
	// the flow is evaluated locally rather than round-tripped over M2M.
	require.NoError(t, e.LocalEnroll(1, 3, "/tmp/sensitive.txt"))
	require.NoError(t, e.RemoteEnroll(1, 10, "node1:4000", "node1:8000"))
	require.NoError(t, e.RemoteEnroll(1, 11, "node1:4001", "node1:8001"))

	g0, err := e.IoRequest(ctx, 1, 3, false)
	require.NoError(t, err)
	require.NoError(t, e.IoReport(ctx, 1, 3, g0, true))

	dst1 := consent.ResourceDestination{
		Resource: naming.NewStream("node1:4000", "node1:8000"),
		Parent:   consent.NodeDestination{Node: "node1"},
	}
	dst2 := consent.ResourceDestination{
		Resource: naming.NewStream("node1:4001", "node1:8001"),
		Parent:   consent.NodeDestination{Node: "node1"},
	}

	resultCh1 := make(chan error, 1)
	resultCh2 := make(chan error, 1)
	go func() {
		_, err := e.IoRequest(ctx, 1, 10, true)
		resultCh1 <- err
	}()
	go func() {
		_, err := e.IoRequest(ctx, 1, 11, true)
		resultCh2 <- err
	}()

	seenDestinations := map[naming.Resource]bool{}
	for i := 0; i < 2; i++ {
		k := <-notifications
		rd, ok := k.Destination.(consent.ResourceDestination)
		require.True(t, ok)
		_, ok = rd.Parent.(consent.NodeDestination)
		require.True(t, ok)
		seenDestinations[rd.Resource] = true
	}
	assert.True(t, seenDestinations[dst1.Resource])
	assert.True(t, seenDestinations[dst2.Resource])

	e.SetConsentDecision(sensitive, dst1, true)
	e.SetConsentDecision(sensitive, dst2, false)

	assert.NoError(t, <-resultCh1)
	assert.Error(t, <-resultCh2)
}

func TestConcurrentStress(t *testing.T) {
	f := newTestFleet()
	node1 := f.addNode(t, "node1", "node1:7070")
	node2 := f.addNode(t, "node2", "node2:7070")
	ctx := context.Background()

	const processes = 10
	const descriptors = 20

	var wg sync.WaitGroup
	for p := 0; p < processes; p++ {
		for d := 0; d < descriptors; d++ {
			wg.Add(1)
			go func(pid, fd int32, engine *Engine) {
				defer wg.Done()
				path := fmt.Sprintf("/tmp/stress-%d-%d.txt", pid, fd)
				if err := engine.LocalEnroll(pid, fd, path); err != nil {
					return
				}
				g, err := engine.IoRequest(ctx, pid, fd, false)
				if err != nil {
					return
				}
				_ = engine.IoReport(ctx, pid, fd, g, true)
			}(int32(p), int32(d), pickEngine(node1, node2, p))
		}
	}
	wg.Wait()

	// Reservation safety: every process's resulting provenance set is
	// readable without panic or deadlock once every flow has settled.
	for p := 0; p < processes; p++ {
		refs := pickEngine(node1, node2, p).GetReferences(processResource(int32(p)))
		assert.NotNil(t, refs)
	}
}

func pickEngine(a, b *Engine, i int) *Engine {
	if i%2 == 0 {
		return a
	}
	return b
}
