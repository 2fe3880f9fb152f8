package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mablr/trace2e-engine/naming"
)

func TestGetReturnsReflexiveDefault(t *testing.T) {
	s := New("node1")
	f := naming.NewFile("/tmp/a.txt")

	got := s.Get(f)
	assert.Equal(t, map[naming.LocalizedResource]struct{}{
		{Node: "node1", Resource: f}: {},
	}, got)
}

func TestGetStreamDefaultIsEmpty(t *testing.T) {
	s := New("node1")
	st := naming.NewStream("10.0.0.1:1337", "10.0.0.2:1338")

	assert.Empty(t, s.Get(st))
}

func TestUpdateSimple(t *testing.T) {
	s := New("node1")
	file := naming.NewFile("/tmp/test")
	process := naming.NewProcess(0, 0, "")

	changed := s.Update(file, process)
	assert.True(t, changed)

	got := s.Get(process)
	assert.Equal(t, map[naming.LocalizedResource]struct{}{
		{Node: "node1", Resource: file}:    {},
		{Node: "node1", Resource: process}: {},
	}, got)
}

func TestUpdateIsIdempotent(t *testing.T) {
	s := New("node1")
	file := naming.NewFile("/tmp/test")
	process := naming.NewProcess(0, 0, "")

	assert.True(t, s.Update(file, process))
	assert.False(t, s.Update(file, process), "a repeat union of the same ancestors must report no change")
}

func TestUpdateCircularConverges(t *testing.T) {
	// A -> B -> A must converge after one traversal each way rather than
	// looping forever; the store is set-based so this falls out for free.
	s := New("node1")
	process := naming.NewProcess(0, 0, "")
	file := naming.NewFile("/tmp/test")

	s.Update(process, file)
	s.Update(file, process)

	assert.Equal(t, s.Get(file), s.Get(process))
}

func TestUpdateDoesNotUpdateStream(t *testing.T) {
	s := New("node1")
	file := naming.NewFile("/tmp/test")
	stream := naming.NewStream("10.0.0.1:1337", "10.0.0.2:1338")

	assert.False(t, s.Update(file, stream), "writes to a stream never update the local provenance map")
	assert.Empty(t, s.Get(stream))
}

func TestUpdateRawMultiNode(t *testing.T) {
	s := New("")
	process0 := naming.NewProcess(0, 0, "")
	process1 := naming.NewProcess(1, 0, "")

	s.UpdateRaw(map[naming.LocalizedResource]struct{}{
		{Node: "10.0.0.1", Resource: process0}: {},
		{Node: "10.0.0.2", Resource: process0}: {},
	}, process0)

	s.UpdateRaw(map[naming.LocalizedResource]struct{}{
		{Node: "10.0.0.1", Resource: process1}: {},
		{Node: "10.0.0.2", Resource: process1}: {},
	}, process0)

	got := s.Get(process0)
	assert.Equal(t, map[naming.LocalizedResource]struct{}{
		{Node: "", Resource: process0}:         {},
		{Node: "10.0.0.1", Resource: process0}: {},
		{Node: "10.0.0.2", Resource: process0}: {},
		{Node: "10.0.0.1", Resource: process1}: {},
		{Node: "10.0.0.2", Resource: process1}: {},
	}, got)
}

func TestKnownNodesExcludesSelf(t *testing.T) {
	s := New("node1")
	process0 := naming.NewProcess(0, 0, "")

	s.UpdateRaw(map[naming.LocalizedResource]struct{}{
		{Node: "node1", Resource: process0}:    {},
		{Node: "10.0.0.2", Resource: process0}: {},
		{Node: "10.0.0.3", Resource: process0}: {},
	}, process0)

	nodes := s.KnownNodes()
	assert.ElementsMatch(t, []string{"10.0.0.2", "10.0.0.3"}, nodes)
}

func TestPropagatedToAccumulates(t *testing.T) {
	s := New("node1")
	file := naming.NewFile("/tmp/pushed")

	assert.Empty(t, s.PropagatedTo(file))

	s.RecordPropagation(file, "10.0.0.9")
	s.RecordPropagation(file, "10.0.0.10")
	s.RecordPropagation(file, "10.0.0.9")

	assert.ElementsMatch(t, []string{"10.0.0.9", "10.0.0.10"}, s.PropagatedTo(file))
}

func TestProvenanceNeverShrinks(t *testing.T) {
	s := New("node1")
	file := naming.NewFile("/tmp/a")
	other := naming.NewFile("/tmp/b")

	before := s.Get(other)
	s.Update(file, other)
	after := s.Get(other)

	for lr := range before {
		_, ok := after[lr]
		assert.True(t, ok, "monotonicity violated: %v present before, missing after", lr)
	}
}
