package storage

import (
	"sort"
	"sync"

	"github.com/brainydb/brainy/internal/brainyerr"
	"github.com/brainydb/brainy/pkg/types"
)

// MemoryStore is an in-memory Store implementation for tests and for
// single-process dev-mode runs; it holds nothing on disk and is wiped on
// process exit.
type MemoryStore struct {
	mu sync.RWMutex

	nouns    map[string]*types.Noun
	verbs    map[string]*types.Verb
	metadata map[string][]byte
	changes  []types.ChangeEvent
	config   *types.ClusterConfig
	stats    types.NodeStats
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nouns:    make(map[string]*types.Noun),
		verbs:    make(map[string]*types.Verb),
		metadata: make(map[string][]byte),
	}
}

func cloneNoun(n *types.Noun) *types.Noun {
	cp := *n
	return &cp
}

func cloneVerb(v *types.Verb) *types.Verb {
	cp := *v
	return &cp
}

func (m *MemoryStore) SaveNoun(n *types.Noun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nouns[n.ID] = cloneNoun(n)
	return nil
}

func (m *MemoryStore) GetNoun(id string) (*types.Noun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nouns[id]
	if !ok {
		return nil, brainyerr.Newf(brainyerr.NotFound, "noun not found: %s", id)
	}
	return cloneNoun(n), nil
}

func (m *MemoryStore) ListNounsByType(nounType types.NounType) ([]*types.Noun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Noun
	for _, n := range m.nouns {
		if n.Type == nounType {
			out = append(out, cloneNoun(n))
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteNoun(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nouns, id)
	return nil
}

func (m *MemoryStore) SaveVerb(v *types.Verb) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verbs[v.ID] = cloneVerb(v)
	return nil
}

func (m *MemoryStore) GetVerb(id string) (*types.Verb, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.verbs[id]
	if !ok {
		return nil, brainyerr.Newf(brainyerr.NotFound, "verb not found: %s", id)
	}
	return cloneVerb(v), nil
}

func (m *MemoryStore) GetVerbsBySource(nounID string) ([]*types.Verb, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Verb
	for _, v := range m.verbs {
		if v.SourceID == nounID {
			out = append(out, cloneVerb(v))
		}
	}
	return out, nil
}

func (m *MemoryStore) GetVerbsByTarget(nounID string) ([]*types.Verb, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Verb
	for _, v := range m.verbs {
		if v.TargetID == nounID {
			out = append(out, cloneVerb(v))
		}
	}
	return out, nil
}

func (m *MemoryStore) GetVerbsByType(verbType types.VerbType) ([]*types.Verb, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Verb
	for _, v := range m.verbs {
		if v.Type == verbType {
			out = append(out, cloneVerb(v))
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteVerb(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.verbs, id)
	return nil
}

func (m *MemoryStore) SaveMetadata(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) GetMetadata(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.metadata[key]
	if !ok {
		return nil, brainyerr.Newf(brainyerr.NotFound, "metadata key not found: %s", key)
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) SaveStatistics(stats types.NodeStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = stats
	return nil
}

func (m *MemoryStore) GetStorageStatus() (StorageStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return StorageStatus{
		Healthy:   true,
		NounCount: int64(len(m.nouns)),
		VerbCount: int64(len(m.verbs)),
	}, nil
}

func (m *MemoryStore) Stats() (EntityStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := EntityStats{
		NounsByType: make(map[string]int),
		VerbsByType: make(map[string]int),
	}
	for _, n := range m.nouns {
		stats.NounsByType[string(n.Type)]++
		if n.Tombstone {
			stats.Tombstones++
		}
	}
	for _, v := range m.verbs {
		stats.VerbsByType[string(v.Type)]++
		if v.Tombstone {
			stats.Tombstones++
		}
	}
	return stats, nil
}

func (m *MemoryStore) SaveClusterConfig(cfg *types.ClusterConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.config = &cp
	return nil
}

func (m *MemoryStore) GetClusterConfig() (*types.ClusterConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil, brainyerr.New(brainyerr.NotFound, "cluster config not set")
	}
	cp := *m.config
	return &cp, nil
}

func (m *MemoryStore) AppendChange(event types.ChangeEvent) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Seq = uint64(len(m.changes)) + 1
	m.changes = append(m.changes, event)
	return event.Seq, nil
}

func (m *MemoryStore) ReadChangesSince(since uint64) (ChangeIterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.ChangeEvent
	for _, e := range m.changes {
		if e.Seq > since {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return newSliceIterator(out), nil
}

func (m *MemoryStore) SupportsChangeLogFastPath() bool { return true }

func (m *MemoryStore) Close() error { return nil }
