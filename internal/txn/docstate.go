// Package txn implements the per-session transaction buffer: a three-tier
// (transient, saved, adapter) staging area isolating one session's edits
// from others until commit.
package txn

import (
	"time"

	"folio/core/internal/state"
)

// DocState is one document resident in the transient tier. All mutations go
// through it so the buffer can track dirtiness; writes to fulltext-only keys
// are tracked separately and do not force a full resave.
type DocState struct {
	st            state.State
	original      state.State // snapshot at promotion, nil for created docs
	dirty         bool
	dirtyFulltext bool
}

func newDocState(st state.State) *DocState {
	return &DocState{st: st}
}

// ID returns the document id.
func (d *DocState) ID() string { return d.st.ID() }

// State returns the underlying state. Callers must not mutate it directly;
// use Put so dirtiness is tracked.
func (d *DocState) State() state.State { return d.st }

// Get returns the value stored under key, or nil.
func (d *DocState) Get(key string) state.Value { return d.st[key] }

// GetString returns the string stored under key, or "".
func (d *DocState) GetString(key string) string { return d.st.GetString(key) }

// GetBool returns the bool stored under key, false when absent.
func (d *DocState) GetBool(key string) bool { return d.st.GetBool(key) }

// GetInt returns the int stored under key.
func (d *DocState) GetInt(key string) (int64, bool) { return d.st.GetInt(key) }

// GetTime returns the timestamp stored under key.
func (d *DocState) GetTime(key string) (time.Time, bool) { return d.st.GetTime(key) }

// GetStrings returns the string array stored under key.
func (d *DocState) GetStrings(key string) []string { return d.st.GetStrings(key) }

// Put stores a value (nil deletes) and marks the document dirty.
func (d *DocState) Put(key string, v state.Value) {
	d.st.Set(key, v)
	d.markDirty(key)
}

// PutStrings stores a string array (empty deletes) and marks dirty.
func (d *DocState) PutStrings(key string, values []string) {
	d.st.SetStrings(key, values)
	d.markDirty(key)
}

// Touch marks the document dirty for key without changing its value, for
// callers that mutate the state through the schema walk.
func (d *DocState) Touch(key string) {
	d.markDirty(key)
}

func (d *DocState) markDirty(key string) {
	if state.FulltextOnly(key) {
		d.dirtyFulltext = true
		return
	}
	d.dirty = true
}
