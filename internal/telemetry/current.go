// Package telemetry keeps the merged view of the latest telemetry for
// readers outside the control loop.
package telemetry

import (
	"encoding/json"
	"sync"

	rc "robot_control"
)

// Strategy decides how an update for one top-level key is applied.
type Strategy int

const (
	// Replace overwrites the stored value.
	Replace Strategy = iota
	// MergeFields merges a nested map into the stored one field by field.
	MergeFields
)

// DockSignal is the key docking beacons report under.
const DockSignal = "dockSignal"

// DefaultStrategies is used by New.
func DefaultStrategies() map[string]Strategy {
	return map[string]Strategy{DockSignal: MergeFields}
}

// Current is safe for concurrent use.
type Current struct {
	mu         sync.RWMutex
	data       map[string]any
	strategies map[string]Strategy
	version    uint64
}

func New() *Current {
	return NewWithStrategies(DefaultStrategies())
}

func NewWithStrategies(s map[string]Strategy) *Current {
	return &Current{data: make(map[string]any), strategies: s}
}

// Merge applies update key by key. Values are normalised to plain JSON
// shapes first so nested structs can be merged field by field.
func (c *Current) Merge(update rc.Telemetry) {
	if len(update) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, val := range update {
		val = normalise(val)
		if c.strategies[key] == MergeFields {
			if in, ok := val.(map[string]any); ok {
				stored, _ := c.data[key].(map[string]any)
				c.data[key] = mergeMaps(stored, in)
				continue
			}
		}
		c.data[key] = val
	}
	c.version++
}

// Snapshot returns a deep copy of the current telemetry and its version.
// The version changes on every merge.
func (c *Current) Snapshot() (rc.Telemetry, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(rc.Telemetry, len(c.data))
	for k, v := range c.data {
		out[k] = deepCopy(v)
	}
	return out, c.version
}

// Get returns a copy of one key.
func (c *Current) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return deepCopy(v), ok
}

func mergeMaps(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if prev, ok := out[k].(map[string]any); ok {
				out[k] = mergeMaps(prev, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// normalise turns structs into map[string]any using their JSON form.
func normalise(v any) any {
	switch v.(type) {
	case nil, bool, string, float64, int, int64, map[string]any, []any:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, sub := range t {
			out[k] = deepCopy(sub)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, sub := range t {
			out[i] = deepCopy(sub)
		}
		return out
	default:
		return v
	}
}
