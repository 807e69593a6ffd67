package gateway

import (
	"sync"
	"time"
)

// DeviceState is the last known reading of one device.
type DeviceState struct {
	DeviceID   string         `json:"device_id"`
	Fields     map[string]any `json:"data"`
	LastUpdate time.Time      `json:"last_update"`
}

// StateCache holds the most recent merged telemetry per device.
//
// Entries are never evicted; a device that goes offline keeps its last
// state until the process restarts. Readers always receive deep copies.
type StateCache struct {
	mu     sync.RWMutex
	states map[string]*DeviceState
	now    func() time.Time
}

// NewStateCache creates an empty cache.
func NewStateCache() *StateCache {
	return &StateCache{
		states: make(map[string]*DeviceState),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Update merges payload into the state for id. Keys in payload overwrite
// existing keys; keys absent from payload are kept. The returned state is a
// copy taken after the merge.
func (c *StateCache) Update(id string, payload map[string]any) DeviceState {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[id]
	if !ok {
		st = &DeviceState{DeviceID: id, Fields: make(map[string]any, len(payload))}
		c.states[id] = st
	}
	for k, v := range payload {
		st.Fields[k] = deepCopyValue(v)
	}
	st.LastUpdate = c.now()

	return st.copy()
}

// Get returns the state for id.
func (c *StateCache) Get(id string) (DeviceState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.states[id]
	if !ok {
		return DeviceState{}, false
	}
	return st.copy(), true
}

// Len returns the number of devices with cached state.
func (c *StateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.states)
}

// Snapshot returns a copy of every cached state keyed by device ID.
func (c *StateCache) Snapshot() map[string]DeviceState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]DeviceState, len(c.states))
	for id, st := range c.states {
		out[id] = st.copy()
	}
	return out
}

func (s *DeviceState) copy() DeviceState {
	return DeviceState{
		DeviceID:   s.DeviceID,
		Fields:     deepCopyMap(s.Fields),
		LastUpdate: s.LastUpdate,
	}
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies nested maps and slices. Decoded JSON only
// contains those plus primitives, which are copied by value.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
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
