// Package jsonmerge implements merge and delta primitives over generic JSON
// trees: map[string]any objects, []any arrays, and scalars as produced by
// encoding/json.
//
// Merge semantics for partial candidates:
//   - augment: objects merge recursively; a null in the delta deletes the key
//   - replace: top-level keys in the delta overwrite base keys wholesale
//
// Arrays and scalars always replace. Inputs are never modified.
package jsonmerge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Canonicalize round-trips v through encoding/json. The returned tree uses
// only map[string]any, []any, string, float64, bool and nil; the returned
// bytes are canonical because encoding/json sorts object keys.
func Canonicalize(v any) (any, []byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal value: %w", err)
	}
	return Decode(raw)
}

// Decode parses raw JSON and returns the tree with its canonical bytes.
func Decode(raw []byte) (any, []byte, error) {
	var tree any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&tree); err != nil {
		return nil, nil, fmt.Errorf("decode value: %w", err)
	}
	canonical, err := json.Marshal(tree)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal value: %w", err)
	}
	return tree, canonical, nil
}

// Equal reports deep equality of two canonical trees.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// Clone deep-copies a tree.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	default:
		return v
	}
}

// Merge applies delta onto base with augment semantics.
func Merge(base, delta any) any {
	d, ok := delta.(map[string]any)
	if !ok {
		return Clone(delta)
	}
	b, ok := base.(map[string]any)
	if !ok {
		return stripNulls(d)
	}
	out := Clone(b).(map[string]any)
	for k, v := range d {
		if v == nil {
			delete(out, k)
			continue
		}
		if _, isObj := v.(map[string]any); isObj {
			out[k] = Merge(out[k], v)
			continue
		}
		out[k] = Clone(v)
	}
	return out
}

// MergeShallow applies delta onto base with replace semantics.
func MergeShallow(base, delta any) any {
	d, ok := delta.(map[string]any)
	if !ok {
		return Clone(delta)
	}
	out := map[string]any{}
	if b, ok := base.(map[string]any); ok {
		out = Clone(b).(map[string]any)
	}
	for k, v := range d {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = stripNulls(v)
	}
	return out
}

func stripNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = stripNulls(val)
		}
		return out
	case []any:
		return Clone(t)
	default:
		return v
	}
}
