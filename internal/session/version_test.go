package session

import (
	"context"
	"testing"

	"folio/core/internal/state"
)

func TestCheckInCheckOut(t *testing.T) {
	ctx := context.Background()
	advanceClock(t)
	s, _ := newTestSession(t)
	id := mustCreate(t, s, s.RootID(), "doc", "Note")
	if err := s.SetProperty(ctx, id, "dc:title", state.String("v1 content")); err != nil {
		t.Fatalf("set: %v", err)
	}

	version, err := s.CheckIn(ctx, id, true, "", "first cut")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if version.GetString(state.KeyVersionLabel) != "1.0" {
		t.Errorf("default label = %q, want 1.0", version.GetString(state.KeyVersionLabel))
	}
	if !version.GetBool(state.KeyIsVersion) {
		t.Errorf("snapshot is not flagged as a version")
	}
	if version.GetString(state.KeyVersionSeriesID) != id {
		t.Errorf("version series = %q", version.GetString(state.KeyVersionSeriesID))
	}
	if version.GetString(state.KeyParentID) != "" {
		t.Errorf("versions are placeless, parent = %q", version.GetString(state.KeyParentID))
	}
	if v, _ := s.GetProperty(ctx, version.ID(), "dc:title"); v != state.String("v1 content") {
		t.Errorf("version content = %v", v)
	}
	if !version.GetBool(state.KeyIsLatestVersion) || !version.GetBool(state.KeyIsLatestMajorVersion) {
		t.Errorf("sole version should be latest and latest-major")
	}

	doc, _ := s.Get(ctx, id)
	if !doc.GetBool(state.KeyIsCheckedIn) {
		t.Errorf("working copy should be checked in")
	}
	if doc.GetString(state.KeyBaseVersionID) != version.ID() {
		t.Errorf("base version = %q", doc.GetString(state.KeyBaseVersionID))
	}

	if _, err := s.CheckIn(ctx, id, false, "", ""); err == nil {
		t.Errorf("double check-in should fail")
	}
	if err := s.CheckOut(ctx, id); err != nil {
		t.Fatalf("check out: %v", err)
	}
	doc, _ = s.Get(ctx, id)
	if doc.GetBool(state.KeyIsCheckedIn) {
		t.Errorf("working copy should be checked out")
	}
	if err := s.CheckOut(ctx, id); err == nil {
		t.Errorf("double check-out should fail")
	}
}

func TestVersionSeriesFlags(t *testing.T) {
	ctx := context.Background()
	advanceClock(t)
	s, _ := newTestSession(t)
	id := mustCreate(t, s, s.RootID(), "doc", "Note")

	v1, err := s.CheckIn(ctx, id, true, "", "")
	if err != nil {
		t.Fatalf("check in 1.0: %v", err)
	}
	if err := s.CheckOut(ctx, id); err != nil {
		t.Fatalf("check out: %v", err)
	}
	v11, err := s.CheckIn(ctx, id, false, "", "")
	if err != nil {
		t.Fatalf("check in 1.1: %v", err)
	}
	if v11.GetString(state.KeyVersionLabel) != "1.1" {
		t.Errorf("minor label = %q, want 1.1", v11.GetString(state.KeyVersionLabel))
	}

	// latest moved to the minor snapshot, latest-major stayed on 1.0
	v1Doc, _ := s.Get(ctx, v1.ID())
	if v1Doc.GetBool(state.KeyIsLatestVersion) {
		t.Errorf("1.0 should no longer be latest")
	}
	if !v1Doc.GetBool(state.KeyIsLatestMajorVersion) {
		t.Errorf("1.0 should remain the latest major version")
	}
	if !v11.GetBool(state.KeyIsLatestVersion) {
		t.Errorf("1.1 should be latest")
	}
	if v11.GetBool(state.KeyIsLatestMajorVersion) {
		t.Errorf("1.1 is a minor version, not latest major")
	}

	versions, err := s.GetVersions(ctx, id)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 2 || versions[0].ID() != v1.ID() || versions[1].ID() != v11.ID() {
		t.Errorf("versions oldest first: %v", versions)
	}

	last, err := s.GetLastVersion(ctx, id)
	if err != nil || last.ID() != v11.ID() {
		t.Errorf("last version = %v, %v", last, err)
	}
	byLabel, err := s.GetVersionByLabel(ctx, id, "1.0")
	if err != nil || byLabel.ID() != v1.ID() {
		t.Errorf("version by label = %v, %v", byLabel, err)
	}
	if _, err := s.GetVersionByLabel(ctx, id, "9.9"); !IsNotFound(err) {
		t.Errorf("missing label = %v, want not found", err)
	}
}

func TestCheckInGuards(t *testing.T) {
	ctx := context.Background()
	advanceClock(t)
	s, _ := newTestSession(t)
	id := mustCreate(t, s, s.RootID(), "doc", "Note")

	version, err := s.CheckIn(ctx, id, true, "", "")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := s.CheckIn(ctx, version.ID(), false, "", ""); err == nil {
		t.Errorf("checking in a version should fail")
	}
	if err := s.CheckOut(ctx, version.ID()); err == nil {
		t.Errorf("checking out a version should fail")
	}

	folderID := mustCreate(t, s, s.RootID(), "f", "Folder")
	proxy, err := s.CreateProxy(ctx, id, folderID)
	if err != nil {
		t.Fatalf("create proxy: %v", err)
	}
	if _, err := s.CheckIn(ctx, proxy.ID(), false, "", ""); err == nil {
		t.Errorf("checking in a proxy should fail")
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	advanceClock(t)
	s, _ := newTestSession(t)
	id := mustCreate(t, s, s.RootID(), "doc", "Note")
	if err := s.SetProperty(ctx, id, "dc:title", state.String("old")); err != nil {
		t.Fatalf("set: %v", err)
	}
	version, err := s.CheckIn(ctx, id, true, "", "")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if err := s.CheckOut(ctx, id); err != nil {
		t.Fatalf("check out: %v", err)
	}
	if err := s.SetProperty(ctx, id, "dc:title", state.String("new")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetProperty(ctx, id, "dc:description", state.String("added later")); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := s.Restore(ctx, id, version.ID()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	doc, _ := s.Get(ctx, id)
	if v, _ := s.GetProperty(ctx, id, "dc:title"); v != state.String("old") {
		t.Errorf("restored title = %v", v)
	}
	// a property absent from the snapshot disappears
	if v, _ := s.GetProperty(ctx, id, "dc:description"); v != nil {
		t.Errorf("post-snapshot property survived the restore: %v", v)
	}
	// identity and placement survive
	if doc.GetString(state.KeyName) != "doc" || doc.GetString(state.KeyParentID) != s.RootID() {
		t.Errorf("restore touched placement")
	}
	if !doc.GetBool(state.KeyIsCheckedIn) {
		t.Errorf("restored copy should be checked in on the restored base")
	}
	if doc.GetString(state.KeyBaseVersionID) != version.ID() {
		t.Errorf("restored base = %q", doc.GetString(state.KeyBaseVersionID))
	}

	if err := s.Restore(ctx, id, id); err == nil {
		t.Errorf("restoring from a non-version should fail")
	}
}

func TestRemoveVersionRecomputesSeries(t *testing.T) {
	ctx := context.Background()
	advanceClock(t)
	s, _ := newTestSession(t)
	id := mustCreate(t, s, s.RootID(), "doc", "Note")

	v1, err := s.CheckIn(ctx, id, true, "", "")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if err := s.CheckOut(ctx, id); err != nil {
		t.Fatalf("check out: %v", err)
	}
	v2, err := s.CheckIn(ctx, id, false, "", "")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}

	if err := s.Remove(ctx, v2.ID()); err != nil {
		t.Fatalf("remove version: %v", err)
	}
	v1Doc, err := s.Get(ctx, v1.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !v1Doc.GetBool(state.KeyIsLatestVersion) {
		t.Errorf("remaining version should become latest again")
	}
}
