// Package acl implements the access-control model: per-document named ACLs,
// merged-with-ancestors resolution, and the denormalized read-ACL field used
// for cheap subtree permission checks.
package acl

import (
	"folio/core/internal/state"
)

// ACE is one (principal, permission, grant/deny) entry. Order within an ACL
// encodes precedence.
type ACE struct {
	Principal  string
	Permission string
	Granted    bool
}

// ACL is a named, ordered list of entries.
type ACL struct {
	Name    string
	Entries []ACE
}

// LocalName is the name of the ACL written by direct permission edits.
const LocalName = "local"

// InheritedName labels the merged ancestor entries in a resolved ACL set.
const InheritedName = "inherited"

// FromState decodes the ACL list stored under the document's ACL key.
func FromState(v state.Value) []ACL {
	list, ok := v.(state.List)
	if !ok {
		return nil
	}
	out := make([]ACL, 0, len(list))
	for _, sub := range list {
		a := ACL{Name: sub.GetString(state.KeyACLName)}
		entries, _ := sub[state.KeyACLEntries].(state.List)
		for _, e := range entries {
			a.Entries = append(a.Entries, ACE{
				Principal:  e.GetString(state.KeyACEPrincipal),
				Permission: e.GetString(state.KeyACEPermission),
				Granted:    e.GetBool(state.KeyACEGrant),
			})
		}
		out = append(out, a)
	}
	return out
}

// ToState encodes ACLs for storage under the document's ACL key. An empty
// list encodes as nil so the key is cleared.
func ToState(acls []ACL) state.Value {
	if len(acls) == 0 {
		return nil
	}
	list := make(state.List, 0, len(acls))
	for _, a := range acls {
		entries := make(state.List, 0, len(a.Entries))
		for _, e := range a.Entries {
			entries = append(entries, state.State{
				state.KeyACEPrincipal:  state.String(e.Principal),
				state.KeyACEPermission: state.String(e.Permission),
				state.KeyACEGrant:      state.Bool(e.Granted),
			})
		}
		list = append(list, state.State{
			state.KeyACLName:    state.String(a.Name),
			state.KeyACLEntries: entries,
		})
	}
	return list
}

// blocksInheritance reports whether the ACL carries the deny-everyone
// sentinel that stops ancestor merging at this level.
func blocksInheritance(acls []ACL, p Policy) bool {
	for _, a := range acls {
		for _, e := range a.Entries {
			if !e.Granted && e.Principal == p.Everyone && e.Permission == p.Everything {
				return true
			}
		}
	}
	return false
}
