package acl

import (
	"context"
	"testing"

	"folio/core/internal/adapter"
	"folio/core/internal/state"
	"folio/core/internal/txn"
)

func grant(principal, permission string) ACE {
	return ACE{Principal: principal, Permission: permission, Granted: true}
}

func deny(principal, permission string) ACE {
	return ACE{Principal: principal, Permission: permission, Granted: false}
}

func seedDoc(t *testing.T, a adapter.Adapter, id string, ancestors []string, acls []ACL) {
	t.Helper()
	s := state.State{state.KeyID: state.String(id)}
	if len(ancestors) > 0 {
		arr := make(state.Array, len(ancestors))
		for i, anc := range ancestors {
			arr[i] = state.String(anc)
		}
		s[state.KeyAncestorIDs] = arr
	}
	if v := ToState(acls); v != nil {
		s[state.KeyACL] = v
	}
	if err := a.CreateState(context.Background(), s); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestACLStateRoundTrip(t *testing.T) {
	in := []ACL{
		{Name: LocalName, Entries: []ACE{grant("alice", "ReadWrite"), deny("bob", "Read")}},
		{Name: "workflow", Entries: []ACE{grant("carol", "Browse")}},
	}
	out := FromState(ToState(in))
	if len(out) != 2 || out[0].Name != LocalName || out[1].Name != "workflow" {
		t.Fatalf("round trip names: %v", out)
	}
	if len(out[0].Entries) != 2 || out[0].Entries[0] != grant("alice", "ReadWrite") || out[0].Entries[1] != deny("bob", "Read") {
		t.Errorf("round trip entries: %v", out[0].Entries)
	}
	if ToState(nil) != nil {
		t.Errorf("empty ACL list should encode as nil")
	}
}

func TestMergedInheritsNearestFirst(t *testing.T) {
	ctx := context.Background()
	a := adapter.NewMemory()
	seedDoc(t, a, "root", nil, []ACL{{Name: LocalName, Entries: []ACE{grant("admins", "Everything")}}})
	seedDoc(t, a, "folder", []string{"root"}, []ACL{{Name: LocalName, Entries: []ACE{grant("team", "Read")}}})
	seedDoc(t, a, "doc", []string{"root", "folder"}, []ACL{{Name: LocalName, Entries: []ACE{grant("alice", "ReadWrite")}}})
	b := txn.NewBuffer(a)
	r := NewResolver(DefaultPolicy())

	acls, err := r.Merged(ctx, b, "doc")
	if err != nil {
		t.Fatalf("merged: %v", err)
	}
	if len(acls) != 2 {
		t.Fatalf("got %d acls, want local + inherited: %v", len(acls), acls)
	}
	if acls[0].Name != LocalName || acls[0].Entries[0].Principal != "alice" {
		t.Errorf("local acl first: %v", acls[0])
	}
	inh := acls[1]
	if inh.Name != InheritedName || len(inh.Entries) != 2 {
		t.Fatalf("inherited acl: %v", inh)
	}
	// Nearest ancestor's entries come first.
	if inh.Entries[0].Principal != "team" || inh.Entries[1].Principal != "admins" {
		t.Errorf("inherited order: %v", inh.Entries)
	}
}

func TestMergedBlockedInheritance(t *testing.T) {
	ctx := context.Background()
	a := adapter.NewMemory()
	p := DefaultPolicy()
	seedDoc(t, a, "root", nil, []ACL{{Name: LocalName, Entries: []ACE{grant("admins", "Everything")}}})
	seedDoc(t, a, "doc", []string{"root"}, []ACL{{Name: LocalName, Entries: []ACE{
		grant("alice", "Read"),
		deny(p.Everyone, p.Everything),
	}}})
	b := txn.NewBuffer(a)
	r := NewResolver(p)

	acls, err := r.Merged(ctx, b, "doc")
	if err != nil {
		t.Fatalf("merged: %v", err)
	}
	if len(acls) != 1 {
		t.Errorf("sentinel should stop inheritance: %v", acls)
	}
}

func TestReadACL(t *testing.T) {
	ctx := context.Background()
	a := adapter.NewMemory()
	p := DefaultPolicy()
	seedDoc(t, a, "root", nil, []ACL{{Name: LocalName, Entries: []ACE{
		grant("admins", "Everything"),
		grant("bob", "Read"),
	}}})
	seedDoc(t, a, "doc", []string{"root"}, []ACL{{Name: LocalName, Entries: []ACE{
		grant("alice", "ReadWrite"),
		deny("bob", "Read"),
	}}})
	b := txn.NewBuffer(a)
	r := NewResolver(p)

	got, err := r.ReadACL(ctx, b, "doc")
	if err != nil {
		t.Fatalf("read acl: %v", err)
	}
	// bob is denied locally; the root grant must not resurrect him.
	want := []string{"admins", "alice"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("read acl = %v, want %v", got, want)
	}
}

func TestReadACLSeesThroughVersion(t *testing.T) {
	ctx := context.Background()
	a := adapter.NewMemory()
	seedDoc(t, a, "live", nil, []ACL{{Name: LocalName, Entries: []ACE{grant("team", "Read")}}})
	version := state.State{
		state.KeyID:              state.String("v1"),
		state.KeyIsVersion:       state.Bool(true),
		state.KeyVersionSeriesID: state.String("live"),
	}
	if err := a.CreateState(ctx, version); err != nil {
		t.Fatalf("seed version: %v", err)
	}
	b := txn.NewBuffer(a)
	r := NewResolver(DefaultPolicy())

	got, err := r.ReadACL(ctx, b, "v1")
	if err != nil {
		t.Fatalf("read acl: %v", err)
	}
	if len(got) != 1 || got[0] != "team" {
		t.Errorf("version read acl = %v, want the working copy's", got)
	}
}

func TestUpdateReadACLsCoversSubtree(t *testing.T) {
	ctx := context.Background()
	a := adapter.NewMemory()
	seedDoc(t, a, "top", nil, []ACL{{Name: LocalName, Entries: []ACE{grant("team", "Read")}}})
	seedDoc(t, a, "leaf", []string{"top"}, nil)
	b := txn.NewBuffer(a)
	r := NewResolver(DefaultPolicy())

	if err := r.UpdateReadACLs(ctx, b, "top"); err != nil {
		t.Fatalf("update read acls: %v", err)
	}
	leaf, err := b.Get(ctx, "leaf")
	if err != nil {
		t.Fatalf("get leaf: %v", err)
	}
	got := leaf.GetStrings(state.KeyReadACL)
	if len(got) != 1 || got[0] != "team" {
		t.Errorf("leaf read acl = %v, want [team]", got)
	}
}

func TestReadACLOfProxyUsesOwnPlacement(t *testing.T) {
	ctx := context.Background()
	a := adapter.NewMemory()
	seedDoc(t, a, "live", nil, []ACL{{Name: LocalName, Entries: []ACE{grant("alice", "Read")}}})
	seedDoc(t, a, "secret", nil, []ACL{{Name: LocalName, Entries: []ACE{grant("bob", "Read")}}})
	proxy := state.State{
		state.KeyID:              state.String("p1"),
		state.KeyIsProxy:         state.Bool(true),
		state.KeyProxyTargetID:   state.String("live"),
		state.KeyVersionSeriesID: state.String("live"),
		state.KeyAncestorIDs:     state.Array{state.String("secret")},
	}
	if err := a.CreateState(ctx, proxy); err != nil {
		t.Fatalf("seed proxy: %v", err)
	}
	b := txn.NewBuffer(a)
	r := NewResolver(DefaultPolicy())

	got, err := r.ReadACL(ctx, b, "p1")
	if err != nil {
		t.Fatalf("read acl: %v", err)
	}
	// the proxy is a placed document; its visibility comes from where it
	// sits, not from its target's placement
	if len(got) != 1 || got[0] != "bob" {
		t.Errorf("proxy read acl = %v, want [bob]", got)
	}
}
