package harvest

import (
	"context"
	"sync"
)

// Registry enforces at most one live pipeline per configuration,
// process-wide. Concurrent GetOrCreate calls with the same configuration
// never run two fetch/parse sequences: losers of the construction race block
// and observe the winner's instance.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	once sync.Once
	p    *Pipeline
	err  error
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// defaultRegistry is the process-wide registry used by GetOrCreate.
var defaultRegistry = NewRegistry()

// GetOrCreate returns the live pipeline for cfg, constructing it on first
// use. Construction failures are not cached; a later call with the same
// configuration starts over.
func (r *Registry) GetOrCreate(ctx context.Context, cfg Config) (*Pipeline, error) {
	key := cfg.identityKey()

	r.mu.Lock()
	entry, ok := r.entries[key]
	if !ok {
		entry = &registryEntry{}
		r.entries[key] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		entry.p, entry.err = newPipeline(ctx, cfg)
		if entry.err != nil {
			r.mu.Lock()
			// Only drop the entry if no newer attempt replaced it.
			if r.entries[key] == entry {
				delete(r.entries, key)
			}
			r.mu.Unlock()
		}
	})

	return entry.p, entry.err
}

// Remove forgets the pipeline for cfg, closing it if live. The next
// GetOrCreate with this configuration constructs a fresh instance.
func (r *Registry) Remove(cfg Config) {
	key := cfg.identityKey()
	r.mu.Lock()
	entry, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()
	if ok && entry.p != nil {
		entry.p.Close()
	}
}

// GetOrCreate returns the pipeline for cfg from the process-wide registry.
func GetOrCreate(ctx context.Context, cfg Config) (*Pipeline, error) {
	return defaultRegistry.GetOrCreate(ctx, cfg)
}
