package session

import (
	"context"
	"fmt"

	"folio/core/internal/acl"
	"folio/core/internal/state"
)

// GetACL returns the ACLs stored directly on id.
func (s *Session) GetACL(ctx context.Context, id string) ([]acl.ACL, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return acl.FromState(doc.Get(state.KeyACL)), nil
}

// SetACL replaces (or, when overwrite is false, prepends to) the ACLs on id
// and recomputes the read-ACL of the document and its subtree.
func (s *Session) SetACL(ctx context.Context, id string, acls []acl.ACL, overwrite bool) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !overwrite {
		acls = append(acls, acl.FromState(doc.Get(state.KeyACL))...)
	}
	doc.Put(state.KeyACL, acl.ToState(acls))
	if err := s.resolver.UpdateReadACLs(ctx, s.buf, id); err != nil {
		return fmt.Errorf("set acl on %s: %w", id, err)
	}
	return nil
}

// GetMergedACL returns the effective ACLs of id, local entries first and
// inherited ancestor entries after.
func (s *Session) GetMergedACL(ctx context.Context, id string) ([]acl.ACL, error) {
	return s.resolver.Merged(ctx, s.buf, id)
}

// GetReadACL returns the denormalized read principals of id.
func (s *Session) GetReadACL(ctx context.Context, id string) ([]string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.GetStrings(state.KeyReadACL), nil
}
