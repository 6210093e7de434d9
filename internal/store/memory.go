package store

import (
	"context"
	"sync"
)

// memoryBackend keeps leaves in a map.
type memoryBackend struct {
	mu    sync.RWMutex
	nodes map[string]any
}

// NewMemory returns a Store held entirely in process memory.
func NewMemory() *Realtime {
	return newRealtime(&memoryBackend{nodes: make(map[string]any)})
}

func (m *memoryBackend) leaves(_ context.Context, path string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]any)
	for p, v := range m.nodes {
		if underOrAt(p, path) {
			out[p] = deepCopyValue(v)
		}
	}
	return out, nil
}

func (m *memoryBackend) apply(_ context.Context, writes []write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		for p := range m.nodes {
			if underOrAt(p, w.path) {
				delete(m.nodes, p)
			}
		}
		for _, a := range ancestors(w.path) {
			delete(m.nodes, a)
		}
		for p, v := range w.leaves {
			m.nodes[p] = v
		}
	}
	return nil
}

// deepCopyValue copies leaf values that are slices so callers cannot
// mutate stored state.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cpy := make(map[string]any, len(val))
		for k, elem := range val {
			cpy[k] = deepCopyValue(elem)
		}
		return cpy
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
