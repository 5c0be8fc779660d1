package txn

import (
	"context"
	"errors"
	"fmt"

	"folio/core/internal/adapter"
	"folio/core/internal/state"
)

// Buffer stages one session's reads and writes. Reads walk the tiers in
// order transient, saved, adapter, deep-copying upward on promotion so the
// tiers never alias. Writes land in the transient tier only; Save promotes
// dirty states to saved, Commit writes saved through the adapter.
type Buffer struct {
	adapter adapter.Adapter

	transient        map[string]*DocState
	transientCreated map[string]bool
	transientDeleted map[string]bool

	saved        map[string]state.State
	savedCreated map[string]bool
	savedDeleted map[string]bool
	savedDiffs   map[string]state.Diff
}

// NewBuffer returns an empty buffer over the adapter.
func NewBuffer(a adapter.Adapter) *Buffer {
	b := &Buffer{adapter: a}
	b.reset()
	return b
}

// Adapter exposes the underlying durable store for query dispatch.
func (b *Buffer) Adapter() adapter.Adapter {
	return b.adapter
}

func (b *Buffer) reset() {
	b.transient = make(map[string]*DocState)
	b.transientCreated = make(map[string]bool)
	b.transientDeleted = make(map[string]bool)
	b.saved = make(map[string]state.State)
	b.savedCreated = make(map[string]bool)
	b.savedDeleted = make(map[string]bool)
	b.savedDiffs = make(map[string]state.Diff)
}

func (b *Buffer) deleted(id string) bool {
	return b.transientDeleted[id] || b.savedDeleted[id]
}

// promote copies a lower-tier state into the transient tier, keeping an
// untouched snapshot for later diff computation.
func (b *Buffer) promote(src state.State) *DocState {
	base := src.Copy()
	doc := newDocState(base.Copy())
	doc.original = base
	b.transient[doc.ID()] = doc
	return doc
}

// Get resolves a document id through the tiers. A tombstoned id reads as
// not found even before the deletion is flushed.
func (b *Buffer) Get(ctx context.Context, id string) (*DocState, error) {
	if b.deleted(id) {
		return nil, fmt.Errorf("get %s: %w", id, adapter.ErrNotFound)
	}
	if doc, ok := b.transient[id]; ok {
		return doc, nil
	}
	if st, ok := b.saved[id]; ok {
		return b.promote(st), nil
	}
	st, err := b.adapter.ReadState(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.promote(st), nil
}

// Exists reports whether id resolves through the tiers.
func (b *Buffer) Exists(ctx context.Context, id string) (bool, error) {
	_, err := b.Get(ctx, id)
	if errors.Is(err, adapter.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetMany resolves several ids, omitting the ones that do not exist.
func (b *Buffer) GetMany(ctx context.Context, ids []string) ([]*DocState, error) {
	out := make([]*DocState, 0, len(ids))
	for _, id := range ids {
		doc, err := b.Get(ctx, id)
		if errors.Is(err, adapter.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Create registers a brand-new transient document under id.
func (b *Buffer) Create(id string) *DocState {
	doc := newDocState(state.State{state.KeyID: state.String(id)})
	doc.dirty = true
	b.transient[id] = doc
	b.transientCreated[id] = true
	delete(b.transientDeleted, id)
	return doc
}

// Remove tombstones the ids. A document created in this transaction and
// never flushed simply vanishes.
func (b *Buffer) Remove(ids []string) {
	for _, id := range ids {
		delete(b.transient, id)
		if b.transientCreated[id] {
			delete(b.transientCreated, id)
			continue
		}
		b.transientDeleted[id] = true
	}
}

// excluded returns the ids the adapter must skip on secondary lookups:
// everything resident in an upper tier or tombstoned.
func (b *Buffer) excluded() map[string]bool {
	out := make(map[string]bool, len(b.transient)+len(b.saved)+len(b.transientDeleted)+len(b.savedDeleted))
	for id := range b.transient {
		out[id] = true
	}
	for id := range b.saved {
		out[id] = true
	}
	for id := range b.transientDeleted {
		out[id] = true
	}
	for id := range b.savedDeleted {
		out[id] = true
	}
	return out
}

// GetChildByName finds the child of parentID named name, merging the tiers.
func (b *Buffer) GetChildByName(ctx context.Context, parentID, name string) (*DocState, error) {
	if b.deleted(parentID) {
		return nil, fmt.Errorf("child %q of %s: %w", name, parentID, adapter.ErrNotFound)
	}
	for _, doc := range b.transient {
		if doc.GetString(state.KeyParentID) == parentID && doc.GetString(state.KeyName) == name {
			return doc, nil
		}
	}
	for id, st := range b.saved {
		if _, resident := b.transient[id]; resident || b.deleted(id) {
			continue
		}
		if st.GetString(state.KeyParentID) == parentID && st.GetString(state.KeyName) == name {
			return b.promote(st), nil
		}
	}
	st, err := b.adapter.ReadChildState(ctx, parentID, name, b.excluded())
	if err != nil {
		return nil, err
	}
	return b.promote(st), nil
}

// HasChild reports whether parentID has at least one child.
func (b *Buffer) HasChild(ctx context.Context, parentID string) (bool, error) {
	if b.deleted(parentID) {
		return false, nil
	}
	for _, doc := range b.transient {
		if doc.GetString(state.KeyParentID) == parentID {
			return true, nil
		}
	}
	for id, st := range b.saved {
		if _, resident := b.transient[id]; resident || b.deleted(id) {
			continue
		}
		if st.GetString(state.KeyParentID) == parentID {
			return true, nil
		}
	}
	return b.adapter.HasChild(ctx, parentID, b.excluded())
}

// GetChildren returns all children of parentID, merged and promoted.
func (b *Buffer) GetChildren(ctx context.Context, parentID string) ([]*DocState, error) {
	return b.merge(ctx,
		func(st state.State) bool { return st.GetString(state.KeyParentID) == parentID },
		func(ctx context.Context) ([]state.State, error) {
			if b.deleted(parentID) {
				return nil, nil
			}
			return b.adapter.ReadChildrenStates(ctx, parentID)
		})
}

// GetByKeyValue returns all documents whose key equals value, with array
// values matched by containment.
func (b *Buffer) GetByKeyValue(ctx context.Context, key string, value state.Value) ([]*DocState, error) {
	return b.merge(ctx,
		func(st state.State) bool { return matchKeyValue(st, key, value) },
		func(ctx context.Context) ([]state.State, error) {
			return b.adapter.ReadByKeyValue(ctx, key, value, b.excluded())
		})
}

// GetDescendants returns every document whose ancestor array contains
// rootID, merged across the tiers.
func (b *Buffer) GetDescendants(ctx context.Context, rootID string) ([]*DocState, error) {
	return b.merge(ctx,
		func(st state.State) bool {
			for _, anc := range st.GetStrings(state.KeyAncestorIDs) {
				if anc == rootID {
					return true
				}
			}
			return false
		},
		func(ctx context.Context) ([]state.State, error) {
			return b.adapter.ReadDescendants(ctx, rootID)
		})
}

// merge runs a tiered lookup: transient matches first, then saved states not
// shadowed above, then adapter results not resident or tombstoned. Lower-tier
// hits are promoted so callers can mutate them.
func (b *Buffer) merge(ctx context.Context, match func(state.State) bool, fetch func(context.Context) ([]state.State, error)) ([]*DocState, error) {
	var out []*DocState
	seen := make(map[string]bool)
	for id, doc := range b.transient {
		if match(doc.st) {
			out = append(out, doc)
		}
		seen[id] = true
	}
	for id, st := range b.saved {
		if seen[id] || b.deleted(id) {
			continue
		}
		seen[id] = true
		if match(st) {
			out = append(out, b.promote(st))
		}
	}
	states, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range states {
		id := st.ID()
		if seen[id] || b.deleted(id) {
			continue
		}
		if match(st) {
			out = append(out, b.promote(st))
		}
	}
	return out, nil
}

// UpdateAncestors rewrites the ancestor array of id to ancestors and splices
// the same prefix change into every descendant, truncating the old prefix.
func (b *Buffer) UpdateAncestors(ctx context.Context, id string, ancestors []string) error {
	doc, err := b.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("update ancestors of %s: %w", id, err)
	}
	ndel := len(doc.GetStrings(state.KeyAncestorIDs))
	doc.PutStrings(state.KeyAncestorIDs, ancestors)
	descendants, err := b.GetDescendants(ctx, id)
	if err != nil {
		return fmt.Errorf("update ancestors of %s: %w", id, err)
	}
	for _, d := range descendants {
		old := d.GetStrings(state.KeyAncestorIDs)
		if len(old) < ndel {
			continue
		}
		spliced := make([]string, 0, len(ancestors)+len(old)-ndel)
		spliced = append(spliced, ancestors...)
		spliced = append(spliced, old[ndel:]...)
		d.PutStrings(state.KeyAncestorIDs, spliced)
	}
	return nil
}

// Save promotes every dirty transient state into the saved tier, first
// pushing dirty content onto live proxies. It returns the ids whose
// non-fulltext content changed, for fulltext scheduling.
func (b *Buffer) Save(ctx context.Context) ([]string, error) {
	if err := b.updateProxies(ctx); err != nil {
		return nil, err
	}

	for id := range b.transientDeleted {
		if b.savedCreated[id] {
			// never reached the adapter; cancel instead of tombstoning
			delete(b.saved, id)
			delete(b.savedCreated, id)
			delete(b.savedDiffs, id)
			continue
		}
		b.savedDeleted[id] = true
		delete(b.saved, id)
		delete(b.savedDiffs, id)
	}
	b.transientDeleted = make(map[string]bool)

	var dirtyIDs []string
	for id, doc := range b.transient {
		switch {
		case b.transientCreated[id]:
			b.saved[id] = doc.st.Copy()
			b.savedCreated[id] = true
		case b.savedCreated[id] && (doc.dirty || doc.dirtyFulltext):
			b.saved[id] = doc.st.Copy()
		case doc.dirty || doc.dirtyFulltext:
			if diff := state.NewDiff(doc.original, doc.st); diff != nil {
				b.saved[id] = doc.st.Copy()
				mergeDiff(b.savedDiffs, id, diff)
			}
		default:
			continue
		}
		if doc.dirty {
			dirtyIDs = append(dirtyIDs, id)
		}
		doc.original = doc.st.Copy()
		doc.dirty = false
		doc.dirtyFulltext = false
	}
	b.transientCreated = make(map[string]bool)
	return dirtyIDs, nil
}

// Commit saves, then flushes the saved tier through the adapter and resets
// the buffer. It returns the dirty ids collected by the implicit save.
func (b *Buffer) Commit(ctx context.Context) ([]string, error) {
	dirtyIDs, err := b.Save(ctx)
	if err != nil {
		return nil, err
	}
	for id := range b.savedCreated {
		if err := b.adapter.CreateState(ctx, b.saved[id]); err != nil {
			return nil, fmt.Errorf("commit create: %w", err)
		}
	}
	for id, diff := range b.savedDiffs {
		if b.savedCreated[id] {
			continue
		}
		if err := b.adapter.UpdateState(ctx, id, diff); err != nil {
			return nil, fmt.Errorf("commit update: %w", err)
		}
	}
	if len(b.savedDeleted) > 0 {
		ids := make([]string, 0, len(b.savedDeleted))
		for id := range b.savedDeleted {
			ids = append(ids, id)
		}
		if err := b.adapter.DeleteStates(ctx, ids); err != nil {
			return nil, fmt.Errorf("commit delete: %w", err)
		}
	}
	b.reset()
	return dirtyIDs, nil
}

// SavedStates returns copies of the saved-tier states keyed by id, used to
// overlay in-transaction data onto adapter query results.
func (b *Buffer) SavedStates() map[string]state.State {
	out := make(map[string]state.State, len(b.saved))
	for id, st := range b.saved {
		out[id] = st.Copy()
	}
	return out
}

// Removed reports whether id is tombstoned in this transaction.
func (b *Buffer) Removed(id string) bool {
	return b.deleted(id)
}

// Rollback discards all tiers without touching the adapter.
func (b *Buffer) Rollback() {
	b.reset()
}

// updateProxies pushes each dirty document's content onto its live proxies
// so proxies stay field-for-field equal to their target.
func (b *Buffer) updateProxies(ctx context.Context) error {
	var dirty []*DocState
	for _, doc := range b.transient {
		if doc.dirty && !doc.GetBool(state.KeyIsProxy) && len(doc.GetStrings(state.KeyProxyIDs)) > 0 {
			dirty = append(dirty, doc)
		}
	}
	for _, doc := range dirty {
		for _, proxyID := range doc.GetStrings(state.KeyProxyIDs) {
			proxy, err := b.Get(ctx, proxyID)
			if errors.Is(err, adapter.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("sync proxy %s: %w", proxyID, err)
			}
			CopyProxyContent(doc.st, proxy)
		}
	}
	return nil
}

// proxyLocal keys belong to the proxy node itself and are never overwritten
// from the target.
var proxyLocal = map[string]bool{
	state.KeyID:                   true,
	state.KeyParentID:             true,
	state.KeyAncestorIDs:          true,
	state.KeyName:                 true,
	state.KeyPos:                  true,
	state.KeyIsProxy:              true,
	state.KeyProxyTargetID:        true,
	state.KeyProxyVersionSeriesID: true,
	state.KeyProxyIDs:             true,
	state.KeyIsVersion:            true,
	state.KeyACL:                  true,
	state.KeyReadACL:              true,
}

// CopyProxyContent overwrites the proxy's content fields from the target
// state, leaving the proxy's own placement and linkage untouched.
func CopyProxyContent(target state.State, proxy *DocState) {
	for key := range proxy.st {
		if proxyLocal[key] {
			continue
		}
		if _, ok := target[key]; !ok {
			proxy.Put(key, nil)
		}
	}
	for key, v := range target {
		if proxyLocal[key] {
			continue
		}
		proxy.Put(key, state.DeepCopy(v))
	}
}

func mergeDiff(diffs map[string]state.Diff, id string, diff state.Diff) {
	existing, ok := diffs[id]
	if !ok {
		diffs[id] = diff
		return
	}
	for k, v := range diff {
		existing[k] = v
	}
}

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
