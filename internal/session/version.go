package session

import (
	"context"
	"fmt"
	"sort"

	"folio/core/internal/state"
	"folio/core/internal/txn"
	"folio/core/internal/util"
)

// CheckIn snapshots the working copy id into a new, placeless version.
// Pending writes are flushed first. The working copy flips to checked-in
// with the new version as its base. An empty label defaults to
// "<major>.<minor>" after the counters are bumped (major when major is set).
func (s *Session) CheckIn(ctx context.Context, id string, major bool, label, description string) (*txn.DocState, error) {
	if err := s.Save(ctx); err != nil {
		return nil, err
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.GetBool(state.KeyIsVersion) {
		return nil, invalidState("cannot check in version %s", id)
	}
	if doc.GetBool(state.KeyIsProxy) {
		return nil, invalidState("cannot check in proxy %s", id)
	}
	if doc.GetBool(state.KeyIsCheckedIn) {
		return nil, invalidState("document %s is already checked in", id)
	}

	majorV, _ := doc.GetInt(state.KeyMajorVersion)
	minorV, _ := doc.GetInt(state.KeyMinorVersion)
	if major {
		majorV++
		minorV = 0
	} else {
		minorV++
	}
	doc.Put(state.KeyMajorVersion, state.Int(majorV))
	doc.Put(state.KeyMinorVersion, state.Int(minorV))
	if label == "" {
		label = fmt.Sprintf("%d.%d", majorV, minorV)
	}

	versionID := util.NewID("")
	version := s.buf.Create(versionID)
	for key, v := range doc.State() {
		if versionExcluded[key] {
			continue
		}
		version.Put(key, state.DeepCopy(v))
	}
	version.Put(state.KeyIsVersion, state.Bool(true))
	version.Put(state.KeyVersionSeriesID, state.String(id))
	version.Put(state.KeyVersionCreated, state.Time(state.Now()))
	version.Put(state.KeyVersionLabel, state.String(label))
	if description != "" {
		version.Put(state.KeyVersionDescription, state.String(description))
	}

	doc.Put(state.KeyIsCheckedIn, state.Bool(true))
	doc.Put(state.KeyBaseVersionID, state.String(versionID))

	if err := s.recomputeVersionSeries(ctx, id); err != nil {
		return nil, fmt.Errorf("check in %s: %w", id, err)
	}
	return version, nil
}

// versionExcluded keys never flow from a working copy into its version
// snapshot: placement, proxy linkage and per-series bookkeeping are set
// explicitly by CheckIn.
var versionExcluded = map[string]bool{
	state.KeyID:                   true,
	state.KeyParentID:             true,
	state.KeyAncestorIDs:          true,
	state.KeyPos:                  true,
	state.KeyIsCheckedIn:          true,
	state.KeyBaseVersionID:        true,
	state.KeyVersionSeriesID:      true,
	state.KeyVersionCreated:       true,
	state.KeyVersionLabel:         true,
	state.KeyVersionDescription:   true,
	state.KeyIsLatestVersion:      true,
	state.KeyIsLatestMajorVersion: true,
	state.KeyProxyIDs:             true,
	state.KeyLockOwner:            true,
	state.KeyLockCreated:          true,
}

// CheckOut clears the checked-in flag, failing when the document is already
// checked out or is itself a version.
func (s *Session) CheckOut(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.GetBool(state.KeyIsVersion) {
		return invalidState("cannot check out version %s", id)
	}
	if !doc.GetBool(state.KeyIsCheckedIn) {
		return invalidState("document %s is already checked out", id)
	}
	doc.Put(state.KeyIsCheckedIn, state.Bool(false))
	return nil
}

// Restore overwrites the working copy id from a version, keeping identity,
// placement, security and proxy-linkage fields. The result is checked in on
// the restored base; callers check out to resume editing.
func (s *Session) Restore(ctx context.Context, id, versionID string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.GetBool(state.KeyIsVersion) {
		return invalidState("cannot restore onto version %s", id)
	}
	version, err := s.Get(ctx, versionID)
	if err != nil {
		return err
	}
	if !version.GetBool(state.KeyIsVersion) {
		return invalidState("document %s is not a version", versionID)
	}

	for key := range doc.State() {
		if keepWhenRestore[key] {
			continue
		}
		if _, ok := version.State()[key]; !ok {
			doc.Put(key, nil)
		}
	}
	for key, v := range version.State() {
		if keepWhenRestore[key] || restoreSkipped[key] {
			continue
		}
		doc.Put(key, state.DeepCopy(v))
	}
	doc.Put(state.KeyIsCheckedIn, state.Bool(true))
	doc.Put(state.KeyBaseVersionID, state.String(versionID))
	return nil
}

// keepWhenRestore keys survive a restore on the working copy.
var keepWhenRestore = map[string]bool{
	state.KeyID:              true,
	state.KeyParentID:        true,
	state.KeyAncestorIDs:     true,
	state.KeyName:            true,
	state.KeyPos:             true,
	state.KeyPrimaryType:     true,
	state.KeyACL:             true,
	state.KeyReadACL:         true,
	state.KeyVersionSeriesID: true,
	state.KeyProxyIDs:        true,
	state.KeyIsProxy:         true,
	state.KeyLifecyclePolicy: true,
	state.KeyLockOwner:       true,
	state.KeyLockCreated:     true,
}

// restoreSkipped keys describe the version itself, not the content.
var restoreSkipped = map[string]bool{
	state.KeyIsVersion:            true,
	state.KeyIsLatestVersion:      true,
	state.KeyIsLatestMajorVersion: true,
	state.KeyVersionCreated:       true,
	state.KeyVersionLabel:         true,
	state.KeyVersionDescription:   true,
	state.KeyBaseVersionID:        true,
	state.KeyIsCheckedIn:          true,
}

// GetVersions returns the versions of a series, oldest first.
func (s *Session) GetVersions(ctx context.Context, seriesID string) ([]*txn.DocState, error) {
	versions, err := s.seriesVersions(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(versions, func(i, j int) bool {
		ti, _ := versions[i].GetTime(state.KeyVersionCreated)
		tj, _ := versions[j].GetTime(state.KeyVersionCreated)
		return ti.Before(tj)
	})
	return versions, nil
}

// GetLastVersion returns the version flagged latest, or a not-found error
// when the series has no versions.
func (s *Session) GetLastVersion(ctx context.Context, seriesID string) (*txn.DocState, error) {
	versions, err := s.seriesVersions(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.GetBool(state.KeyIsLatestVersion) {
			return v, nil
		}
	}
	return nil, notFound("series %s has no versions", seriesID)
}

// GetVersionByLabel returns the version of the series carrying the label.
func (s *Session) GetVersionByLabel(ctx context.Context, seriesID, label string) (*txn.DocState, error) {
	versions, err := s.seriesVersions(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.GetString(state.KeyVersionLabel) == label {
			return v, nil
		}
	}
	return nil, notFound("series %s has no version labeled %q", seriesID, label)
}

func (s *Session) seriesVersions(ctx context.Context, seriesID string) ([]*txn.DocState, error) {
	docs, err := s.buf.GetByKeyValue(ctx, state.KeyVersionSeriesID, state.String(seriesID))
	if err != nil {
		return nil, fmt.Errorf("versions of %s: %w", seriesID, err)
	}
	versions := docs[:0]
	for _, d := range docs {
		if d.GetBool(state.KeyIsVersion) {
			versions = append(versions, d)
		}
	}
	return versions, nil
}

// recomputeVersionSeries deterministically reassigns the latest and
// latest-major flags: versions sorted by creation time descending, the first
// becomes latest, the first with a zero minor version becomes latest-major.
func (s *Session) recomputeVersionSeries(ctx context.Context, seriesID string) error {
	versions, err := s.seriesVersions(ctx, seriesID)
	if err != nil {
		return err
	}
	sort.SliceStable(versions, func(i, j int) bool {
		ti, _ := versions[i].GetTime(state.KeyVersionCreated)
		tj, _ := versions[j].GetTime(state.KeyVersionCreated)
		if ti.Equal(tj) {
			return versions[i].ID() > versions[j].ID()
		}
		return ti.After(tj)
	})
	latestDone, majorDone := false, false
	for _, v := range versions {
		latest := !latestDone
		latestDone = true
		setBoolIfChanged(v, state.KeyIsLatestVersion, latest)

		minor, _ := v.GetInt(state.KeyMinorVersion)
		latestMajor := !majorDone && minor == 0
		if latestMajor {
			majorDone = true
		}
		setBoolIfChanged(v, state.KeyIsLatestMajorVersion, latestMajor)
	}
	return nil
}

// setBoolIfChanged avoids dirtying a version over a flag it already has.
func setBoolIfChanged(d *txn.DocState, key string, val bool) {
	if d.GetBool(key) != val {
		d.Put(key, state.Bool(val))
	}
}
