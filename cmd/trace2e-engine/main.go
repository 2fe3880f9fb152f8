// Command trace2e-engine wires one traceability mediator process together
// from environment configuration. It takes no subcommands: an embedder
// configures it entirely through environment variables (mirroring
// TRACE2E_MIDDLEWARE_URL and the rest of the configuration table) and the
// process simply runs until signalled.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/mablr/trace2e-engine/engine"
	"github.com/mablr/trace2e-engine/registry"
	"github.com/mablr/trace2e-engine/transport"
)

func main() {
	log := logrus.WithField("cmd", "trace2e-engine")

	cfg := engine.Config{
		NodeID:           requireEnv(log, "TRACE2E_NODE_ID"),
		MaxRetries:       envUint32("TRACE2E_MAX_RETRIES", 0),
		ConsentTimeout:   time.Duration(envUint32("TRACE2E_CONSENT_TIMEOUT_MS", 0)) * time.Millisecond,
		EnableValidation: envBool("TRACE2E_ENABLE_VALIDATION", false),
		M2MEndpoint:      requireEnv(log, "TRACE2E_M2M_ENDPOINT"),
	}

	nodeRegistry := registry.NodeRegistry(registry.NewInMemory())
	if endpoints := os.Getenv("TRACE2E_ETCD_ENDPOINTS"); endpoints != "" {
		etcdReg, err := dialEtcdRegistry(strings.Split(endpoints, ","))
		if err != nil {
			log.WithError(err).Fatal("dial etcd registry")
		}
		defer etcdReg.Close()
		nodeRegistry = etcdReg
	}

	e := engine.New(cfg, nodeRegistry, transport.Nop{}, nil)
	if err := nodeRegistry.Register(context.Background(), cfg.NodeID, cfg.M2MEndpoint); err != nil {
		log.WithError(err).Fatal("register node endpoint")
	}

	log.WithFields(logrus.Fields{
		"node_id":      cfg.NodeID,
		"m2m_endpoint": cfg.M2MEndpoint,
	}).Info("trace2e-engine started")

	// The P2M/O2M/M2M wire servers (gRPC or otherwise) are an embedder's
	// concern, per the scope boundary this package does not cross; this
	// process exists to prove the wiring and keep e reachable for an
	// embedding transport to dial into.
	_ = e

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("trace2e-engine shutting down")
}

func dialEtcdRegistry(endpoints []string) (*registry.EtcdRegistry, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return registry.NewEtcd(context.Background(), client)
}

func requireEnv(log *logrus.Entry, key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.WithField("key", key).Fatal("missing required environment variable")
	}
	return v
}

func envUint32(key string, def uint32) uint32 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return def
	}
	return uint32(n)
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
