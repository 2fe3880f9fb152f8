package transport

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mablr/trace2e-engine/compliance"
	terr "github.com/mablr/trace2e-engine/errors"
	"github.com/mablr/trace2e-engine/naming"
)

// Loopback is an in-process Transport that dispatches directly to a
// registered Server, simulating network latency and jitter rather than
// actually serialising anything. This is the transport every integration
// test in this repo wires multiple engines together with.
type Loopback struct {
	minLatency time.Duration
	jitter     time.Duration

	mu      sync.RWMutex
	servers map[string]Server
	log     *logrus.Entry
}

// NewLoopback returns a Loopback transport. Every call sleeps for
// minLatency plus a random duration in [0, jitter) before dispatching.
func NewLoopback(minLatency, jitter time.Duration) *Loopback {
	return &Loopback{
		minLatency: minLatency,
		jitter:     jitter,
		servers:    make(map[string]Server),
		log:        logrus.WithField("component", "transport.loopback"),
	}
}

// Register makes server reachable at endpoint. Whoever builds an engine
// (the test fleet harness, for instance) calls this with the engine's
// m2m_endpoint so it accepts inbound M2M traffic from peers sharing this
// Loopback; engine.New does not call it.
func (l *Loopback) Register(endpoint string, server Server) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.servers[endpoint] = server
}

func (l *Loopback) delay(ctx context.Context) error {
	d := l.minLatency
	if l.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(l.jitter)))
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loopback) lookup(endpoint string) (Server, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.servers[endpoint]
	if !ok {
		return nil, &terr.TransportFailedToContactRemote{IP: endpoint}
	}
	return s, nil
}

func (l *Loopback) GetDestinationPolicy(ctx context.Context, endpoint string, destination naming.LocalizedResource) (compliance.Policy, error) {
	if err := l.delay(ctx); err != nil {
		return compliance.Policy{}, err
	}
	s, err := l.lookup(endpoint)
	if err != nil {
		return compliance.Policy{}, err
	}
	return s.GetDestinationPolicy(ctx, destination)
}

func (l *Loopback) CheckSourceCompliance(ctx context.Context, endpoint string, sources []compliance.Ancestor, destination naming.LocalizedResource, destPolicy compliance.Policy) error {
	if err := l.delay(ctx); err != nil {
		return err
	}
	s, err := l.lookup(endpoint)
	if err != nil {
		return err
	}
	return s.CheckSourceCompliance(ctx, sources, destination, destPolicy)
}

func (l *Loopback) UpdateProvenance(ctx context.Context, endpoint string, sourceProv []naming.LocalizedResource, destination naming.LocalizedResource) error {
	if err := l.delay(ctx); err != nil {
		return err
	}
	s, err := l.lookup(endpoint)
	if err != nil {
		return err
	}
	return s.UpdateProvenance(ctx, sourceProv, destination)
}

func (l *Loopback) BroadcastDeletion(ctx context.Context, endpoint string, resource naming.Resource) error {
	if err := l.delay(ctx); err != nil {
		return err
	}
	s, err := l.lookup(endpoint)
	if err != nil {
		l.log.WithField("endpoint", endpoint).Warn("broadcast deletion could not reach peer")
		return err
	}
	return s.BroadcastDeletion(ctx, resource)
}
