package engine

import "github.com/mablr/trace2e-engine/naming"

// ResourceValidator checks that an enrolled resource corresponds to
// something real on the host (a live pid, a well-formed, address-family
// consistent socket pair). The concrete `/proc` and socket syscalls are an
// external collaborator; this interface is the contract the engine calls
// through when EnableValidation is set.
type ResourceValidator interface {
	ValidateProcess(p naming.Process) error
	ValidateStream(s naming.Stream) error
}

// PermissiveValidator accepts anything. It is the default wired when an
// embedder supplies no validator, keeping LocalEnroll/RemoteEnroll
// testable without a real OS dependency.
type PermissiveValidator struct{}

func (PermissiveValidator) ValidateProcess(naming.Process) error { return nil }
func (PermissiveValidator) ValidateStream(naming.Stream) error   { return nil }
