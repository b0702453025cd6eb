// Package storage persists scenario comparisons so reports can be rendered
// again without re-running the statistics.
//
// Three backends share the ResultStore interface:
//   - MemoryStore for tests and single invocations
//   - FileStore writing one JSON file per comparison
//   - RedisStore for results shared between machines, with optional expiry
//
// Example:
//
//	store, err := storage.New(ctx, storage.Options{Backend: "file", Dir: "./results"})
//	err = store.Save(ctx, comparison)
//	latest, err := store.List(ctx, 10)
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/scttfrdmn/acbench/aggregate"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

// ResultStore saves and loads scenario comparisons by id.
type ResultStore interface {
	// Save stores c under c.ID, replacing an earlier version.
	Save(ctx context.Context, c *aggregate.ScenarioComparison) error
	// Load returns the comparison with the id, or nil when there is none.
	Load(ctx context.Context, id string) (*aggregate.ScenarioComparison, error)
	// List returns the most recent comparisons first. A limit <= 0 returns
	// all of them.
	List(ctx context.Context, limit int) ([]*aggregate.ScenarioComparison, error)
	// Delete removes a comparison and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	// Backend is "memory", "file" or "redis". Empty selects memory.
	Backend   string
	Dir       string
	RedisURL  string
	KeyPrefix string
	TTL       time.Duration
}

// New opens the store for opts. The redis backend is pinged once.
func New(ctx context.Context, opts Options) (ResultStore, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(opts.Dir)
	case "redis":
		store, err := NewRedisStore(opts.RedisURL, opts.KeyPrefix, opts.TTL)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	}
	return nil, acerrors.NewArgumentError("storage.New", fmt.Sprintf("unknown backend %q", opts.Backend))
}

func checkID(op string, c *aggregate.ScenarioComparison) error {
	if c == nil || c.ID == "" {
		return acerrors.NewArgumentError(op, "comparison without id")
	}
	return nil
}

func encode(c *aggregate.ScenarioComparison) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize comparison %s: %w", c.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*aggregate.ScenarioComparison, error) {
	var c aggregate.ScenarioComparison
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to deserialize comparison: %w", err)
	}
	return &c, nil
}

// newestFirst orders comparisons by creation time, newest first, and applies
// the limit.
func newestFirst(cs []*aggregate.ScenarioComparison, limit int) []*aggregate.ScenarioComparison {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})
	if limit > 0 && len(cs) > limit {
		cs = cs[:limit]
	}
	return cs
}

// MemoryStore keeps comparisons in process memory. Stored values are copies,
// so callers may keep modifying theirs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

// Save stores a copy of c.
func (s *MemoryStore) Save(ctx context.Context, c *aggregate.ScenarioComparison) error {
	if err := checkID("MemoryStore.Save", c); err != nil {
		return err
	}
	data, err := encode(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[c.ID] = data
	return nil
}

// Load returns a copy of the stored comparison.
func (s *MemoryStore) Load(ctx context.Context, id string) (*aggregate.ScenarioComparison, error) {
	s.mu.RLock()
	data, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decode(data)
}

// List returns copies of the stored comparisons, newest first.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]*aggregate.ScenarioComparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*aggregate.ScenarioComparison, 0, len(s.items))
	for _, data := range s.items {
		c, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return newestFirst(out, limit), nil
}

// Delete removes the comparison.
func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

// Len returns the number of stored comparisons.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
