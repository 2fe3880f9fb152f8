package registry

import (
	"context"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/pkg/errors"
)

// etcdKeyPrefix namespaces this engine's node entries away from anything
// else sharing the cluster.
const etcdKeyPrefix = "/trace2e/nodes/"

// EtcdRegistry is an optional NodeRegistry backed by etcd, for fleet
// deployments where node_id -> m2m_endpoint must be shared and kept fresh
// across many engines rather than configured once per process. It watches
// its key prefix and refreshes a local cache on every change instead of
// hitting etcd on every Resolve call.
type EtcdRegistry struct {
	client *clientv3.Client

	mu    sync.RWMutex
	cache map[string]string

	cancel context.CancelFunc
}

// NewEtcd returns an EtcdRegistry and starts its background watch. Callers
// must call Close when done to stop the watch goroutine.
func NewEtcd(ctx context.Context, client *clientv3.Client) (*EtcdRegistry, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &EtcdRegistry{
		client: client,
		cache:  make(map[string]string),
		cancel: cancel,
	}

	resp, err := client.Get(ctx, etcdKeyPrefix, clientv3.WithPrefix())
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "trace2e: initial etcd registry load")
	}
	r.mu.Lock()
	for _, kv := range resp.Kvs {
		r.cache[nodeIDFromKey(string(kv.Key))] = string(kv.Value)
	}
	r.mu.Unlock()

	go r.watch(ctx, resp.Header.Revision+1)
	return r, nil
}

func (r *EtcdRegistry) watch(ctx context.Context, fromRevision int64) {
	watchCh := r.client.Watch(ctx, etcdKeyPrefix, clientv3.WithPrefix(), clientv3.WithRev(fromRevision))
	for resp := range watchCh {
		for _, ev := range resp.Events {
			nodeID := nodeIDFromKey(string(ev.Kv.Key))
			r.mu.Lock()
			if ev.Type == clientv3.EventTypeDelete {
				delete(r.cache, nodeID)
			} else {
				r.cache[nodeID] = string(ev.Kv.Value)
			}
			r.mu.Unlock()
		}
	}
}

func (r *EtcdRegistry) Resolve(_ context.Context, nodeID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoint, ok := r.cache[nodeID]
	if !ok {
		return "", ErrUnknownNode
	}
	return endpoint, nil
}

func (r *EtcdRegistry) Register(ctx context.Context, nodeID, endpoint string) error {
	_, err := r.client.Put(ctx, etcdKeyPrefix+nodeID, endpoint)
	return errors.Wrap(err, "trace2e: etcd registry put")
}

// Close stops the background watch. It does not close the underlying
// client, which the embedder owns.
func (r *EtcdRegistry) Close() {
	r.cancel()
}

func nodeIDFromKey(key string) string {
	return key[len(etcdKeyPrefix):]
}
