package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// write replaces the subtree at path with leaves (nil leaves means delete).
type write struct {
	path   string
	leaves map[string]any
}

// normalise converts an arbitrary Go value into its JSON-generic form.
func normalise(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalising value: %w", err)
	}
	return out, nil
}

// flatten records every leaf of value under prefix. Empty objects and null
// produce no leaves.
func flatten(prefix string, value any, out map[string]any) error {
	switch v := value.(type) {
	case nil:
	case map[string]any:
		for k, child := range v {
			if !ValidKey(k) {
				return fmt.Errorf("%w: key %q under %q", ErrInvalidPath, k, prefix)
			}
			if err := flatten(prefix+"/"+k, child, out); err != nil {
				return err
			}
		}
	default:
		out[prefix] = v
	}
	return nil
}

// buildWrite validates path and flattens value into a write.
func buildWrite(path string, value any) (write, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return write{}, err
	}
	if clean == "" {
		return write{}, fmt.Errorf("%w: cannot write the root", ErrInvalidPath)
	}

	norm, err := normalise(value)
	if err != nil {
		return write{}, fmt.Errorf("%s: %w", clean, err)
	}

	w := write{path: clean}
	if norm != nil {
		w.leaves = make(map[string]any)
		if err := flatten(clean, norm, w.leaves); err != nil {
			return write{}, err
		}
	}
	return w, nil
}

// assemble rebuilds the value at path from leaves at or beneath it.
func assemble(path string, leaves map[string]any) (any, bool) {
	if len(leaves) == 0 {
		return nil, false
	}
	if v, ok := leaves[path]; ok {
		return v, true
	}

	root := make(map[string]any)
	for leafPath, v := range leaves {
		rel := leafPath
		if path != "" {
			rel = strings.TrimPrefix(leafPath, path+"/")
		}
		insert(root, strings.Split(rel, "/"), v)
	}
	return root, true
}

func insert(node map[string]any, segments []string, v any) {
	for i, seg := range segments {
		if i == len(segments)-1 {
			node[seg] = v
			return
		}
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[seg] = next
		}
		node = next
	}
}

// ancestors returns every proper ancestor of path, nearest last.
func ancestors(path string) []string {
	var out []string
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			out = append(out, path[:i])
		}
	}
	return out
}

// underOrAt reports whether leafPath is path or lies beneath it.
func underOrAt(leafPath, path string) bool {
	return path == "" || leafPath == path || strings.HasPrefix(leafPath, path+"/")
}
