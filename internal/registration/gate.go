package registration

import "sync"

// gate is a keyed try-lock: at most one holder per key, no waiting.
type gate struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newGate() *gate {
	return &gate{held: make(map[string]struct{})}
}

// acquire reports whether key was free and is now held by the caller.
func (g *gate) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return false
	}
	g.held[key] = struct{}{}
	return true
}

func (g *gate) release(key string) {
	g.mu.Lock()
	delete(g.held, key)
	g.mu.Unlock()
}

func gateKey(userID, serial string) string {
	return userID + "\x00" + serial
}
