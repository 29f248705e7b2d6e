package offsetcommit

import (
	"context"
	"sync"
)

// KVS is the narrow key-value store shape the Kinesis checkpoint path
// persists through — Put/Get only, the same two calls the teacher's own
// checkpoint handler issues against its etcd-backed store. memoryKVS is
// the default, in-process implementation; a real deployment can satisfy
// this interface with any KVS it already operates.
type KVS interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
}

// memoryKVS is the zero-configuration default: per-process, cleared on
// restart, which is consistent with persistent state across restarts
// being out of scope for this system.
type memoryKVS struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKVS returns a KVS backed by an in-process map.
func NewMemoryKVS() KVS {
	return &memoryKVS{data: make(map[string]string)}
}

func (m *memoryKVS) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryKVS) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}
