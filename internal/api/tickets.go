package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/devicesync-core/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
	now     func() time.Time
}

type ticketEntry struct {
	identity  auth.Identity
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry), now: time.Now}
}

// issue creates a ticket for id.
func (t *ticketStore) issue(id auth.Identity) (string, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	ticket := hex.EncodeToString(b)

	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{identity: id, expiresAt: t.now().Add(ticketTTL)}
	t.mu.Unlock()
	return ticket, nil
}

// consume validates a ticket and removes it (single-use).
func (t *ticketStore) consume(ticket string) (auth.Identity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return auth.Identity{}, false
	}
	delete(t.tickets, ticket)
	if t.now().After(entry.expiresAt) {
		return auth.Identity{}, false
	}
	return entry.identity, true
}

// clean removes expired tickets.
func (t *ticketStore) clean() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for ticket, entry := range t.tickets {
		if now.After(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

// cleanLoop runs clean periodically until the context is cancelled.
func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.clean()
		}
	}
}

// handleWSTicket issues a single-use WebSocket ticket for the caller. The
// ticket goes in the /ws query string in place of the JWT.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	id, err := auth.ResolveCurrentUser(r.Context())
	if err != nil {
		writeUnauthorized(w, "authentication required")
		return
	}
	ticket, err := s.tickets.issue(id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}
