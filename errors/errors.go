// Package errors defines the trace2e-engine error taxonomy shared by every
// component of the engine. Values are compared with errors.Is;
// struct-typed errors additionally carry the offending payload for
// logging.
//
// The taxonomy is organised by kind, not by which component raised it: a
// sequencer that ran out of retries and one that could not reserve a source
// both raise "availability" errors, and an embedder is expected to treat
// whole categories uniformly.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors that carry no payload.
var (
	// Request-validation.
	ErrInvalidRequest = errors.New("trace2e: invalid request")

	// State.
	ErrPolicyNotFound = errors.New("trace2e: policy not found")

	// Policy.
	ErrDirectPolicyViolation   = errors.New("trace2e: direct policy violation")
	ErrPendingDeletion         = errors.New("trace2e: ancestor pending deletion")
	ErrConfidentialityViolation = errors.New("trace2e: confidentiality violation")
	ErrIntegrityViolation      = errors.New("trace2e: integrity violation")
	ErrConsentDenied           = errors.New("trace2e: consent denied")
	ErrConsentRequestTimeout   = errors.New("trace2e: consent request timed out")

	// Availability.
	ErrReachedMaxRetriesWaitingQueue = errors.New("trace2e: reached max retries in waiting queue")

	// Transport.
	ErrTransportFailedToEvaluateRemote = errors.New("trace2e: transport layer failed to evaluate remote address")
	ErrNotLocalResource                = errors.New("trace2e: resource is not local to this node")

	// Internal.
	ErrInternal        = errors.New("trace2e: internal error")
	ErrSystemTimeError = errors.New("trace2e: system time error")
)

// UndeclaredResource is returned when a (pid, fd) pair has no entry in the
// engine's fd-map.
type UndeclaredResource struct {
	PID int32
	FD  int32
}

func (e *UndeclaredResource) Error() string {
	return fmt.Sprintf("trace2e: undeclared resource (pid=%d, fd=%d)", e.PID, e.FD)
}

// InvalidProcess is returned when an enrolled pid fails validation.
type InvalidProcess struct {
	PID int32
}

func (e *InvalidProcess) Error() string {
	return fmt.Sprintf("trace2e: invalid process (pid=%d)", e.PID)
}

// InvalidStream is returned when enrolled socket addresses fail validation.
type InvalidStream struct {
	LocalSocket string
	PeerSocket  string
}

func (e *InvalidStream) Error() string {
	return fmt.Sprintf("trace2e: invalid stream (local=%q, peer=%q)", e.LocalSocket, e.PeerSocket)
}

// NotFoundFlow is returned when an IoReport references an unknown grant id.
type NotFoundFlow struct {
	FlowID string
}

func (e *NotFoundFlow) Error() string {
	return fmt.Sprintf("trace2e: flow not found (id=%s)", e.FlowID)
}

// UnavailableSource is returned when the sequencer could not reserve the
// source resource before the retry budget was exhausted.
type UnavailableSource struct {
	Source fmt.Stringer
}

func (e *UnavailableSource) Error() string {
	return fmt.Sprintf("trace2e: source unavailable (%s)", e.Source)
}

// UnavailableDestination is the destination-side counterpart of
// UnavailableSource.
type UnavailableDestination struct {
	Destination fmt.Stringer
}

func (e *UnavailableDestination) Error() string {
	return fmt.Sprintf("trace2e: destination unavailable (%s)", e.Destination)
}

// UnavailableSourceAndDestination is returned when neither side of a flow
// could be reserved.
type UnavailableSourceAndDestination struct {
	Source      fmt.Stringer
	Destination fmt.Stringer
}

func (e *UnavailableSourceAndDestination) Error() string {
	return fmt.Sprintf("trace2e: source and destination unavailable (%s, %s)", e.Source, e.Destination)
}

// TransportFailedToContactRemote is returned when an M2M round-trip to a
// peer node could not be completed.
type TransportFailedToContactRemote struct {
	IP string
}

func (e *TransportFailedToContactRemote) Error() string {
	return fmt.Sprintf("trace2e: failed to contact remote middleware (ip=%s)", e.IP)
}

// Wrap and Is are re-exported from github.com/pkg/errors / the standard
// library so call sites only need to import this package.
var (
	Wrap   = errors.Wrap
	Wrapf  = errors.Wrapf
	Cause  = errors.Cause
	New    = errors.New
	Is     = errors.Is
	As     = errors.As
)
