package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Documents are shuttled through their JSON encoding in the backends that do
// not have a native document codec (memory, postgres). Models use RFC 3339
// timestamps via encoding/json, so the round trip is lossless for our types.

// EncodeDocument converts a model value into a generic field map.
func EncodeDocument(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode document fields: %w", err)
	}
	return m, nil
}

// DecodeDocument converts a generic field map back into a model value.
func DecodeDocument(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode document fields: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// ApplyFields merges a Set field map into a document in place. Dotted keys
// descend into nested maps, creating intermediate maps as needed. A nil
// value removes the addressed field.
func ApplyFields(doc map[string]any, fields map[string]any) error {
	for key, val := range fields {
		parts := strings.Split(key, ".")
		target := doc
		for _, part := range parts[:len(parts)-1] {
			next, ok := target[part]
			if !ok || next == nil {
				child := map[string]any{}
				target[part] = child
				target = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return fmt.Errorf("field path %q crosses a non-map value", key)
			}
			target = child
		}
		leaf := parts[len(parts)-1]
		if val == nil {
			delete(target, leaf)
			continue
		}
		// Normalize through JSON so stored values never carry Go types the
		// decode path cannot handle.
		m, err := EncodeDocumentValue(val)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		target[leaf] = m
	}
	return nil
}

// EncodeDocumentValue normalizes a single field value the same way
// EncodeDocument normalizes a whole document.
func EncodeDocumentValue(val any) (any, error) {
	raw, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

// lookupPath resolves a dotted path inside a document. The second return
// value reports whether the path exists with a non-null value.
func lookupPath(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// MatchFilter reports whether a document with the given id satisfies the
// filter. Eq comparison goes through fmt.Sprint, which is sufficient for the
// string-valued fields the application filters on.
func MatchFilter(id string, doc map[string]any, f Filter) bool {
	if f.ID != "" && f.ID != id {
		return false
	}
	for path, want := range f.Eq {
		got, ok := lookupPath(doc, path)
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	for _, path := range f.Exists {
		if _, ok := lookupPath(doc, path); !ok {
			return false
		}
	}
	return true
}
