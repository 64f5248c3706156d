// Package replica defines the versioned state tuple shared between a prop
// controller and the backend, plus the codec used to compare and copy it.
package replica

import (
	"encoding/json"
	"fmt"
)

// Document is an opaque, schema-free state value. The runner never inspects
// its structure; only the prop callback (and the transport's JSON codec)
// interprets it. Values follow encoding/json conventions: string, float64,
// bool, nil, []any, map[string]any.
type Document map[string]any

// Replica is the versioned unit of shared state held by the backend.
// Version is assigned by the backend and is non-decreasing from any single
// client's point of view.
type Replica struct {
	ID      string   `json:"id"`
	Version int64    `json:"version"`
	Value   Document `json:"value"`
}

// PushHint is a non-authoritative notification that a replica may have
// changed. It is never applied directly to cached state; a hint only
// justifies an early authoritative poll.
type PushHint struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// Clone returns a deep copy of the document with JSON round-trip semantics.
// A nil document clones to nil.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = cloneValue(e)
		}
		return out
	case Document:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		// Scalars (string, float64, int, int64, bool, nil) are immutable.
		return v
	}
}

// Clone returns a deep copy of the replica.
func (r Replica) Clone() Replica {
	r.Value = r.Value.Clone()
	return r
}

// Decode unmarshals the document into a prop-owned typed struct.
func (d Document) Decode(target any) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Encode converts a prop-owned typed struct back into a document.
func Encode(source any) (Document, error) {
	data, err := json.Marshal(source)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return d, nil
}

// ParseDocument parses a JSON object into a document.
func ParseDocument(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return d, nil
}
