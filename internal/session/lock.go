package session

import (
	"context"

	"folio/core/internal/state"
)

// Lock is a document lock: who holds it and since when.
type Lock struct {
	Owner   string
	Created state.Time
}

// GetLock returns the lock on id, or nil when unlocked.
func (s *Session) GetLock(ctx context.Context, id string) (*Lock, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	owner := doc.GetString(state.KeyLockOwner)
	if owner == "" {
		return nil, nil
	}
	created, _ := doc.GetTime(state.KeyLockCreated)
	return &Lock{Owner: owner, Created: state.Time(created)}, nil
}

// SetLock locks id for owner. Locking an already-locked document fails,
// reporting the current holder.
func (s *Session) SetLock(ctx context.Context, id, owner string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if holder := doc.GetString(state.KeyLockOwner); holder != "" {
		return invalidState("document %s is already locked by %s", id, holder)
	}
	doc.Put(state.KeyLockOwner, state.String(owner))
	doc.Put(state.KeyLockCreated, state.Time(state.Now()))
	return nil
}

// RemoveLock unlocks id. A non-empty owner must match the holder; an empty
// owner force-unlocks.
func (s *Session) RemoveLock(ctx context.Context, id, owner string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	holder := doc.GetString(state.KeyLockOwner)
	if holder == "" {
		return nil
	}
	if owner != "" && owner != holder {
		return invalidState("document %s is locked by %s, not %s", id, holder, owner)
	}
	doc.Put(state.KeyLockOwner, nil)
	doc.Put(state.KeyLockCreated, nil)
	return nil
}

// GetLifecycleState returns the current lifecycle state of id.
func (s *Session) GetLifecycleState(ctx context.Context, id string) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.GetString(state.KeyLifecycleState), nil
}

// FollowTransition moves id into the named lifecycle state.
func (s *Session) FollowTransition(ctx context.Context, id, lifecycleState string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	doc.Put(state.KeyLifecycleState, state.String(lifecycleState))
	return nil
}
