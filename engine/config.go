// Package engine wires the sequencer, provenance store, compliance
// registry, and consent broker into the three local APIs: P2M (the
// per-process I/O surface), O2M (administrative operations), and M2M
// (the mediator-to-mediator protocol for cross-node flows).
package engine

import "time"

// Config is the process-wide configuration fixed at engine construction.
// There is deliberately no flag-parsing here: a CLI binary or other
// embedder builds a Config directly.
type Config struct {
	// NodeID is the string advertised as this engine's node identity and
	// stamped onto provenance entries for locally-touched resources.
	NodeID string
	// MaxRetries bounds the sequencer's wait-queue retries. 0 means
	// unbounded (the caller's context is still honoured).
	MaxRetries uint32
	// ConsentTimeout is the per-request consent wait budget. 0 means wait
	// forever.
	ConsentTimeout time.Duration
	// EnableValidation gates the pid/socket ResourceValidator.
	EnableValidation bool
	// M2MEndpoint is the address this engine listens on for peer M2M
	// traffic, and the key it registers itself under with a loopback
	// Transport or NodeRegistry.
	M2MEndpoint string
}
