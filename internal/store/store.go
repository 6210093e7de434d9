package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidPath is returned for empty segments or reserved characters.
	ErrInvalidPath = errors.New("store: invalid path")

	// ErrOverlappingPaths is returned when one UpdateMany call names a path
	// and one of its ancestors.
	ErrOverlappingPaths = errors.New("store: overlapping update paths")

	// ErrUnavailable wraps backend failures (database errors, closed store).
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the store boundary used by the registry, registration service
// and reconciler.
type Store interface {
	// Get returns the value at path, assembled from every leaf beneath it.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set replaces the subtree at path. A nil value removes it.
	Set(ctx context.Context, path string, value any) error

	// UpdateMany writes several independent paths in one call.
	UpdateMany(ctx context.Context, updates map[string]any) error

	// Remove deletes the subtree at path.
	Remove(ctx context.Context, path string) error

	// OnChange calls fn with the current value of path now and after every
	// change that touches it. The returned function stops delivery and is
	// safe to call more than once.
	OnChange(path string, fn Listener) Unsubscribe
}

// Listener receives full snapshots.
type Listener func(Snapshot)

// Unsubscribe stops a subscription.
type Unsubscribe func()

// Snapshot is the value found at a path.
type Snapshot struct {
	Path   string
	Value  any
	Exists bool
}

// Decode converts the snapshot value into out through JSON.
func (s Snapshot) Decode(out any) error {
	if !s.Exists {
		return fmt.Errorf("decoding %q: no value", s.Path)
	}
	data, err := json.Marshal(s.Value)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", s.Path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %q: %w", s.Path, err)
	}
	return nil
}

// Child returns the snapshot of a direct child key.
func (s Snapshot) Child(key string) Snapshot {
	child := Snapshot{Path: Join(s.Path, key)}
	if m, ok := s.Value.(map[string]any); ok {
		if v, found := m[key]; found {
			child.Value = v
			child.Exists = true
		}
	}
	return child
}

// Keys returns the sorted child keys when the value is an object.
func (s Snapshot) Keys() []string {
	m, ok := s.Value.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Join builds a path from segments, skipping empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// reservedChars may not appear in a key.
const reservedChars = ".#$[]"

// CleanPath trims surrounding slashes and validates every segment.
// The empty string is the root.
func CleanPath(path string) (string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", nil
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return "", fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
		if strings.ContainsAny(seg, reservedChars) {
			return "", fmt.Errorf("%w: segment %q contains one of %q", ErrInvalidPath, seg, reservedChars)
		}
	}
	return path, nil
}

// ValidKey reports whether key can be used as a single path segment.
func ValidKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, reservedChars+"/")
}

// related reports whether a write at written changes what a subscription
// at watched sees.
func related(watched, written string) bool {
	switch {
	case watched == "" || written == "":
		return true
	case watched == written:
		return true
	case strings.HasPrefix(watched, written+"/"):
		return true
	default:
		return strings.HasPrefix(written, watched+"/")
	}
}
