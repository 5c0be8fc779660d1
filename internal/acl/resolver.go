package acl

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"folio/core/internal/adapter"
	"folio/core/internal/state"
	"folio/core/internal/txn"
)

// Policy names the security constants the resolver needs: which permissions
// imply the right to see a document, and the everyone/everything sentinels.
// It is injected, never looked up globally.
type Policy struct {
	Everyone   string
	Everything string
	Browse     []string
}

// DefaultPolicy matches the usual permission vocabulary.
func DefaultPolicy() Policy {
	return Policy{
		Everyone:   "Everyone",
		Everything: "Everything",
		Browse:     []string{"Browse", "Read", "ReadWrite", "Everything"},
	}
}

func (p Policy) browses(permission string) bool {
	for _, b := range p.Browse {
		if b == permission {
			return true
		}
	}
	return false
}

// Resolver computes merged ACLs and maintains the denormalized read-ACL.
type Resolver struct {
	policy Policy
}

// NewResolver returns a resolver bound to the policy.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// Merged returns the effective ACLs of id: its local ACLs first, then the
// ancestor ACLs nearest first merged under a single inherited name, stopping
// at any level carrying the deny-everyone sentinel.
func (r *Resolver) Merged(ctx context.Context, b *txn.Buffer, id string) ([]ACL, error) {
	doc, err := b.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("merged acl of %s: %w", id, err)
	}
	out := FromState(doc.Get(state.KeyACL))
	if blocksInheritance(out, r.policy) {
		return out, nil
	}
	inherited := ACL{Name: InheritedName}
	ancestors := doc.GetStrings(state.KeyAncestorIDs)
	for i := len(ancestors) - 1; i >= 0; i-- {
		anc, err := b.Get(ctx, ancestors[i])
		if errors.Is(err, adapter.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("merged acl of %s: %w", id, err)
		}
		acls := FromState(anc.Get(state.KeyACL))
		for _, a := range acls {
			inherited.Entries = append(inherited.Entries, a.Entries...)
		}
		if blocksInheritance(acls, r.policy) {
			break
		}
	}
	if len(inherited.Entries) > 0 {
		out = append(out, inherited)
	}
	return out, nil
}

// ReadACL computes the sorted set of principals allowed to see id: the ACL
// entries of the document and then its ancestors nearest first, collecting
// principals granted a browse permission. A denied principal is not added by
// a farther grant, and the deny-everyone sentinel stops the walk.
func (r *Resolver) ReadACL(ctx context.Context, b *txn.Buffer, id string) ([]string, error) {
	doc, err := b.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read acl of %s: %w", id, err)
	}
	// versions see through to their series' working copy; proxies are
	// placed documents and answer from their own parent chain
	if doc.GetBool(state.KeyIsVersion) {
		if series := doc.GetString(state.KeyVersionSeriesID); series != "" && series != id {
			if live, err := b.Get(ctx, series); err == nil {
				doc = live
			}
		}
	}

	granted := make(map[string]bool)
	denied := make(map[string]bool)
	walk := append([]string{doc.ID()}, reversed(doc.GetStrings(state.KeyAncestorIDs))...)
	for _, wid := range walk {
		cur, err := b.Get(ctx, wid)
		if errors.Is(err, adapter.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read acl of %s: %w", id, err)
		}
		for _, a := range FromState(cur.Get(state.KeyACL)) {
			for _, e := range a.Entries {
				if e.Granted {
					if r.policy.browses(e.Permission) && !denied[e.Principal] {
						granted[e.Principal] = true
					}
					continue
				}
				if e.Principal == r.policy.Everyone && e.Permission == r.policy.Everything {
					return sorted(granted), nil
				}
				if r.policy.browses(e.Permission) {
					denied[e.Principal] = true
				}
			}
		}
	}
	return sorted(granted), nil
}

// UpdateReadACLs recomputes the read-ACL of id and of every descendant.
// Called after an ACL change or a move.
func (r *Resolver) UpdateReadACLs(ctx context.Context, b *txn.Buffer, id string) error {
	doc, err := b.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("update read acls of %s: %w", id, err)
	}
	if err := r.applyReadACL(ctx, b, doc); err != nil {
		return err
	}
	descendants, err := b.GetDescendants(ctx, id)
	if err != nil {
		return fmt.Errorf("update read acls of %s: %w", id, err)
	}
	for _, d := range descendants {
		if err := r.applyReadACL(ctx, b, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) applyReadACL(ctx context.Context, b *txn.Buffer, doc *txn.DocState) error {
	racl, err := r.ReadACL(ctx, b, doc.ID())
	if err != nil {
		return err
	}
	doc.PutStrings(state.KeyReadACL, racl)
	return nil
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
