package reputation

import (
	"context"
	"sync"
)

// TaskRecord is one escrow's lifecycle as replayed from chain events.
// Addresses are lowercase hex; Amount is the raw integer token amount.
type TaskRecord struct {
	Requestor string `json:"requestor"`
	Worker    string `json:"worker"`
	Amount    string `json:"amount"`
	Deadline  int64  `json:"deadline"`
	Status    string `json:"status"`
	Block     uint64 `json:"block"`
}

// Entry is one cached scan: a block watermark plus the per-task statuses
// seen so far. Keeping the task map, not just the computed profile, lets a
// later status event apply to a task created before the watermark.
type Entry struct {
	LastScannedBlock uint64                `json:"lastScannedBlock"`
	Tasks            map[string]TaskRecord `json:"tasks"`
}

// Store caches scan state keyed by "contract:address" (both lowercase hex).
// Writes are last-writer-wins: two builders racing on the same key both
// write complete entries, and either one is a valid cache state.
type Store interface {
	// Get returns the cached entry, or (nil, nil) on a miss.
	Get(ctx context.Context, key string) (*Entry, error)
	// Put replaces the cached entry for key.
	Put(ctx context.Context, key string, e *Entry) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return cloneEntry(e), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cloneEntry(e)
	return nil
}

func cloneEntry(e *Entry) *Entry {
	out := &Entry{
		LastScannedBlock: e.LastScannedBlock,
		Tasks:            make(map[string]TaskRecord, len(e.Tasks)),
	}
	for k, v := range e.Tasks {
		out.Tasks[k] = v
	}
	return out
}
