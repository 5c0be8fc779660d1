package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"folio/core/internal/state"
)

// Memory is a map-backed adapter used by tests and as the reference
// implementation of the contract. States are deep-copied on the way in and
// out so callers never alias stored data.
type Memory struct {
	mu     sync.Mutex
	states map[string]state.State
}

// NewMemory returns an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{states: make(map[string]state.State)}
}

func (m *Memory) ReadState(_ context.Context, id string) (state.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return nil, fmt.Errorf("read state %s: %w", id, ErrNotFound)
	}
	return s.Copy(), nil
}

func (m *Memory) ReadStates(_ context.Context, ids []string) ([]state.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]state.State, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.states[id]; ok {
			out = append(out, s.Copy())
		}
	}
	return out, nil
}

func (m *Memory) CreateState(_ context.Context, s state.State) error {
	id := s.ID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; ok {
		return fmt.Errorf("create state %s: %w", id, ErrIDExists)
	}
	m.states[id] = s.Copy()
	return nil
}

func (m *Memory) UpdateState(_ context.Context, id string, diff state.Diff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return fmt.Errorf("update state %s: %w", id, ErrNotFound)
	}
	diff.Apply(s)
	return nil
}

func (m *Memory) DeleteStates(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.states, id)
	}
	return nil
}

func (m *Memory) ReadChildState(_ context.Context, parentID, name string, excluded map[string]bool) (state.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.states {
		if excluded[id] {
			continue
		}
		if s.GetString(state.KeyParentID) == parentID && s.GetString(state.KeyName) == name {
			return s.Copy(), nil
		}
	}
	return nil, fmt.Errorf("child %q of %s: %w", name, parentID, ErrNotFound)
}

func (m *Memory) HasChild(_ context.Context, parentID string, excluded map[string]bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.states {
		if excluded[id] {
			continue
		}
		if s.GetString(state.KeyParentID) == parentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ReadChildrenStates(_ context.Context, parentID string) ([]state.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []state.State
	for _, s := range m.states {
		if s.GetString(state.KeyParentID) == parentID {
			out = append(out, s.Copy())
		}
	}
	return out, nil
}

func (m *Memory) ReadByKeyValue(_ context.Context, key string, value state.Value, excluded map[string]bool) ([]state.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []state.State
	for id, s := range m.states {
		if excluded[id] {
			continue
		}
		if matchKeyValue(s, key, value) {
			out = append(out, s.Copy())
		}
	}
	return out, nil
}

func (m *Memory) ReadDescendants(_ context.Context, rootID string) ([]state.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []state.State
	for _, s := range m.states {
		for _, anc := range s.GetStrings(state.KeyAncestorIDs) {
			if anc == rootID {
				out = append(out, s.Copy())
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) QueryAndFetch(_ context.Context, q Query) ([]state.State, int64, error) {
	m.mu.Lock()
	var all []state.State
	for _, s := range m.states {
		if q.Match == nil || q.Match.Matches(s) {
			all = append(all, s.Copy())
		}
	}
	m.mu.Unlock()
	if q.Order != nil {
		sort.SliceStable(all, func(i, j int) bool { return q.Order.Compare(all[i], all[j]) < 0 })
	}
	total := q.total(int64(len(all)))
	return Paginate(all, q.Limit, q.Offset), total, nil
}

func (m *Memory) Close() error { return nil }

// matchKeyValue treats an array-valued stored key as "contains".
func matchKeyValue(s state.State, key string, value state.Value) bool {
	v, ok := s[key]
	if !ok {
		return false
	}
	if arr, ok := v.(state.Array); ok {
		for _, e := range arr {
			if state.Equal(e, value) {
				return true
			}
		}
		return false
	}
	return state.Equal(v, value)
}
