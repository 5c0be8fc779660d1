package session

import (
	"context"
	"strings"
	"testing"

	"folio/core/internal/state"
)

func childNames(t *testing.T, s *Session, parentID string) []string {
	t.Helper()
	children, err := s.GetChildren(context.Background(), parentID)
	if err != nil {
		t.Fatalf("children of %s: %v", parentID, err)
	}
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.GetString(state.KeyName)
	}
	return names
}

func TestOrderedChildren(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	folderID := mustCreate(t, s, s.RootID(), "ordered", "OrderedFolder")
	for _, n := range []string{"child0", "child1", "child2"} {
		mustCreate(t, s, folderID, n, "Note")
	}

	// creation order is position order
	got := childNames(t, s, folderID)
	want := []string{"child0", "child1", "child2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("children = %v, want %v", got, want)
		}
	}

	if err := s.OrderBefore(ctx, folderID, "child2", "child0"); err != nil {
		t.Fatalf("order before: %v", err)
	}
	got = childNames(t, s, folderID)
	want = []string{"child2", "child0", "child1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("after reorder children = %v, want %v", got, want)
		}
	}

	// empty destination sends the child to the end
	if err := s.OrderBefore(ctx, folderID, "child2", ""); err != nil {
		t.Fatalf("order to end: %v", err)
	}
	got = childNames(t, s, folderID)
	want = []string{"child0", "child1", "child2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("after move-to-end children = %v, want %v", got, want)
		}
	}

	plainID := mustCreate(t, s, s.RootID(), "plain", "Folder")
	mustCreate(t, s, plainID, "a", "Note")
	if err := s.OrderBefore(ctx, plainID, "a", ""); err == nil {
		t.Errorf("ordering under a non-orderable parent should fail")
	}
}

func TestCopySubtree(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	srcID := mustCreate(t, s, s.RootID(), "src", "Folder")
	childID := mustCreate(t, s, srcID, "leaf", "Note")
	if err := s.SetProperty(ctx, childID, "dc:title", state.String("payload")); err != nil {
		t.Fatalf("set: %v", err)
	}
	destID := mustCreate(t, s, s.RootID(), "dest", "Folder")

	top, err := s.Copy(ctx, srcID, destID, "copied")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if top.ID() == srcID {
		t.Fatalf("copy reused the source id")
	}
	if top.GetString(state.KeyVersionSeriesID) != top.ID() {
		t.Errorf("a copy starts its own version series")
	}

	leaf, err := s.GetChild(ctx, top.ID(), "leaf")
	if err != nil {
		t.Fatalf("copied leaf: %v", err)
	}
	if leaf.ID() == childID {
		t.Errorf("copy reused a descendant id")
	}
	if v, _ := s.GetProperty(ctx, leaf.ID(), "dc:title"); v != state.String("payload") {
		t.Errorf("copied content = %v", v)
	}
	anc := leaf.GetStrings(state.KeyAncestorIDs)
	if len(anc) != 3 || anc[1] != destID || anc[2] != top.ID() {
		t.Errorf("copied leaf ancestors = %v", anc)
	}

	// the original is untouched
	if v, _ := s.GetProperty(ctx, childID, "dc:title"); v != state.String("payload") {
		t.Errorf("source content changed")
	}
}

func TestCopyUnderItselfFails(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	topID := mustCreate(t, s, s.RootID(), "top", "Folder")
	subID := mustCreate(t, s, topID, "sub", "Folder")

	if _, err := s.Copy(ctx, topID, subID, ""); err == nil {
		t.Errorf("copying into own subtree should fail")
	}
	if _, err := s.Copy(ctx, topID, topID, ""); err == nil {
		t.Errorf("copying under itself should fail")
	}
}

func TestCopyNameCollision(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	srcID := mustCreate(t, s, s.RootID(), "doc", "Note")
	mustCreate(t, s, s.RootID(), "clash", "Note")

	advanceClock(t)
	top, err := s.Copy(ctx, srcID, s.RootID(), "clash")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	name := top.GetString(state.KeyName)
	if name == "clash" || !strings.HasPrefix(name, "clash.") {
		t.Errorf("colliding copy name = %q, want a disambiguated variant", name)
	}
}

func TestMoveRename(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	id := mustCreate(t, s, s.RootID(), "before", "Note")

	moved, err := s.Move(ctx, id, s.RootID(), "after")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if moved.ID() != id {
		t.Errorf("rename changed the id")
	}
	if _, err := s.ResolvePath(ctx, "/after"); err != nil {
		t.Errorf("new name does not resolve: %v", err)
	}
	if _, err := s.ResolvePath(ctx, "/before"); err == nil {
		t.Errorf("old name still resolves")
	}
}

func TestMoveUpdatesSubtreeAncestors(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	fromID := mustCreate(t, s, s.RootID(), "from", "Folder")
	midID := mustCreate(t, s, fromID, "mid", "Folder")
	leafID := mustCreate(t, s, midID, "leaf", "Note")
	toID := mustCreate(t, s, s.RootID(), "to", "Folder")

	if _, err := s.Move(ctx, midID, toID, ""); err != nil {
		t.Fatalf("move: %v", err)
	}

	leaf, err := s.Get(ctx, leafID)
	if err != nil {
		t.Fatalf("get leaf: %v", err)
	}
	anc := leaf.GetStrings(state.KeyAncestorIDs)
	want := []string{s.RootID(), toID, midID}
	if len(anc) != len(want) {
		t.Fatalf("leaf ancestors = %v, want %v", anc, want)
	}
	for i := range want {
		if anc[i] != want[i] {
			t.Fatalf("leaf ancestors = %v, want %v", anc, want)
		}
	}
	if path, _ := s.Path(ctx, leafID); path != "/to/mid/leaf" {
		t.Errorf("leaf path = %q", path)
	}
}

func TestMoveCollisionAndCycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t)
	aID := mustCreate(t, s, s.RootID(), "a", "Folder")
	bID := mustCreate(t, s, aID, "b", "Folder")
	mustCreate(t, s, s.RootID(), "taken", "Note")

	if _, err := s.Move(ctx, aID, bID, ""); err == nil {
		t.Errorf("moving under own descendant should fail")
	}
	if _, err := s.Move(ctx, bID, s.RootID(), "taken"); err == nil {
		t.Errorf("moving onto a taken name should fail")
	}
}

func TestRemoveSubtree(t *testing.T) {
	ctx := context.Background()
	s, a := newTestSession(t)
	topID := mustCreate(t, s, s.RootID(), "top", "Folder")
	leafID := mustCreate(t, s, topID, "leaf", "Note")
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := s.Remove(ctx, topID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit remove: %v", err)
	}
	for _, id := range []string{topID, leafID} {
		if _, err := a.ReadState(ctx, id); err == nil {
			t.Errorf("document %s survived subtree removal", id)
		}
	}
}

func TestRemoveRootRejected(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.Remove(context.Background(), s.RootID()); err == nil {
		t.Errorf("removing the root should fail")
	}
}

func TestGetChildrenNameSorted(t *testing.T) {
	s, _ := newTestSession(t)
	folderID := mustCreate(t, s, s.RootID(), "f", "Folder")
	for _, n := range []string{"zeta", "alpha", "mike"} {
		mustCreate(t, s, folderID, n, "Note")
	}
	got := childNames(t, s, folderID)
	want := []string{"alpha", "mike", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("children = %v, want %v", got, want)
		}
	}
}