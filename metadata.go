package sequence

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Metadata keys recognized by the action pipeline.
const (
	KeyActionType        = "ActionType"
	KeyActionID          = "ActionID"
	KeyLicense           = "License"
	KeyCommandingOfficer = "CommandingOfficer"
	KeyHooks             = "Hooks"
	KeyDelay             = "Delay"
	KeyNextAction        = "NextAction"
	KeyQueue             = "Queue"
)

// LicenseValid is the sentinel value of a granted License entry.
const LicenseValid = "valid"

// Metadata is a concurrent attribute bag holding JSON-like values.
type Metadata struct {
	mu      sync.RWMutex
	entries map[string]any
}

func NewMetadata() *Metadata {
	return &Metadata{entries: make(map[string]any)}
}

// MetadataFrom builds a store from a plain map, copying nested values.
func MetadataFrom(values map[string]any) *Metadata {
	md := NewMetadata()
	for k, v := range values {
		md.entries[k] = copyValue(v)
	}
	return md
}

func (m *Metadata) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *Metadata) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
}

func (m *Metadata) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *Metadata) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Keys returns the stored keys in sorted order.
func (m *Metadata) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Snapshot returns a deep copy of the entries as a plain map.
func (m *Metadata) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.entries))
	for k, v := range m.entries {
		out[k] = copyValue(v)
	}
	return out
}

// Clone returns an independent store. Nested maps, slices, metadata and
// actions are copied; other pointers are shared.
func (m *Metadata) Clone() *Metadata {
	return &Metadata{entries: m.Snapshot()}
}

func (m *Metadata) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(m.entries)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	entries := make(map[string]any)
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	return nil
}

func copyValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	case json.RawMessage:
		return append(json.RawMessage(nil), typed...)
	case []byte:
		return append([]byte(nil), typed...)
	case *Metadata:
		if typed == nil {
			return typed
		}
		return typed.Clone()
	case Executable:
		return typed.Duplicate()
	default:
		return v
	}
}

// toSeconds reads a non-negative whole number of seconds from a JSON-like value.
// Anything else reads as zero.
func toSeconds(v any) uint64 {
	switch n := v.(type) {
	case int:
		if n > 0 {
			return uint64(n)
		}
	case int64:
		if n > 0 {
			return uint64(n)
		}
	case int32:
		if n > 0 {
			return uint64(n)
		}
	case uint:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	case float64:
		if n > 0 && n == math.Trunc(n) {
			return uint64(n)
		}
	case json.Number:
		if i, err := n.Int64(); err == nil && i > 0 {
			return uint64(i)
		}
	}
	return 0
}

// toStrings reads a list of names; non-string entries are skipped.
func toStrings(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of names, got %T", v)
	}
}
