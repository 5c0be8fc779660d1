package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"folio/core/internal/adapter"
	"folio/core/internal/state"
	"folio/core/internal/txn"
	"folio/core/internal/util"
)

// GetChildren returns the children of parentID, sorted by position when the
// parent type is orderable and by name otherwise.
func (s *Session) GetChildren(ctx context.Context, parentID string) ([]*txn.DocState, error) {
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	children, err := s.buf.GetChildren(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", parentID, err)
	}
	if s.orderable(parent) {
		sort.SliceStable(children, func(i, j int) bool {
			pi, _ := children[i].GetInt(state.KeyPos)
			pj, _ := children[j].GetInt(state.KeyPos)
			return pi < pj
		})
	} else {
		sort.SliceStable(children, func(i, j int) bool {
			return children[i].GetString(state.KeyName) < children[j].GetString(state.KeyName)
		})
	}
	return children, nil
}

// GetChild returns the child of parentID named name.
func (s *Session) GetChild(ctx context.Context, parentID, name string) (*txn.DocState, error) {
	child, err := s.buf.GetChildByName(ctx, parentID, norm.NFC.String(name))
	if errors.Is(err, adapter.ErrNotFound) {
		return nil, notFound("no child %q under %s", name, parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("child %q of %s: %w", name, parentID, err)
	}
	return child, nil
}

// HasChildren reports whether id has at least one child.
func (s *Session) HasChildren(ctx context.Context, id string) (bool, error) {
	return s.buf.HasChild(ctx, id)
}

var trailingDigits = regexp.MustCompile(`\.[0-9]+$`)

// findFreeName disambiguates a colliding sibling name: strip a trailing
// dot-digits suffix, then append the current time in milliseconds.
func findFreeName(name string) string {
	base := trailingDigits.ReplaceAllString(name, "")
	return base + "." + strconv.FormatInt(state.Now().UnixMilli(), 10)
}

// Copy recursively copies sourceID under parentID, assigning fresh ids
// top-down and recomputing ancestor arrays. Copying a node under itself is
// rejected. A colliding name is disambiguated instead of failing.
func (s *Session) Copy(ctx context.Context, sourceID, parentID, name string) (*txn.DocState, error) {
	source, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parentID == sourceID || contains(parent.GetStrings(state.KeyAncestorIDs), sourceID) {
		return nil, invalidState("cannot copy %s under itself", sourceID)
	}
	if name == "" {
		name = source.GetString(state.KeyName)
	}
	name = norm.NFC.String(name)
	if _, err := s.buf.GetChildByName(ctx, parentID, name); err == nil {
		name = findFreeName(name)
	} else if !errors.Is(err, adapter.ErrNotFound) {
		return nil, fmt.Errorf("copy %s: %w", sourceID, err)
	}

	// worklist of (source id, copy parent id, copy ancestors); ids are
	// assigned top-down so children see their parent's new id
	type job struct {
		srcID     string
		parentID  string
		ancestors []string
		name      string
	}
	var top *txn.DocState
	work := []job{{srcID: sourceID, parentID: parentID, ancestors: childAncestors(parent), name: name}}
	for len(work) > 0 {
		j := work[0]
		work = work[1:]
		src, err := s.Get(ctx, j.srcID)
		if err != nil {
			return nil, err
		}
		newID := util.NewID("")
		copied := s.buf.Create(newID)
		for key, v := range src.State() {
			if copyExcluded[key] {
				continue
			}
			copied.Put(key, state.DeepCopy(v))
		}
		copied.Put(state.KeyParentID, state.String(j.parentID))
		copied.Put(state.KeyName, state.String(j.name))
		copied.PutStrings(state.KeyAncestorIDs, j.ancestors)
		if src.GetBool(state.KeyIsProxy) {
			// a copied proxy is still a proxy: it keeps its target's
			// series and must appear on the target's back-reference array
			copied.Put(state.KeyVersionSeriesID, state.String(src.GetString(state.KeyProxyVersionSeriesID)))
			target, err := s.Get(ctx, src.GetString(state.KeyProxyTargetID))
			if err != nil {
				return nil, fmt.Errorf("copy %s: %w", j.srcID, err)
			}
			s.addBackReference(target, newID)
		} else {
			copied.Put(state.KeyVersionSeriesID, state.String(newID))
		}
		if top == nil {
			top = copied
		}
		children, err := s.buf.GetChildren(ctx, j.srcID)
		if err != nil {
			return nil, fmt.Errorf("copy %s: %w", j.srcID, err)
		}
		childAnc := append(append([]string{}, j.ancestors...), newID)
		for _, c := range children {
			work = append(work, job{
				srcID:     c.ID(),
				parentID:  newID,
				ancestors: childAnc,
				name:      c.GetString(state.KeyName),
			})
		}
	}
	if err := s.resolver.UpdateReadACLs(ctx, s.buf, top.ID()); err != nil {
		return nil, fmt.Errorf("copy %s: %w", sourceID, err)
	}
	return top, nil
}

// copyExcluded keys are never carried onto a copy: identity, placement,
// version bookkeeping, proxy back-references and lock state start fresh.
var copyExcluded = map[string]bool{
	state.KeyID:                   true,
	state.KeyParentID:             true,
	state.KeyAncestorIDs:          true,
	state.KeyName:                 true,
	state.KeyVersionSeriesID:      true,
	state.KeyBaseVersionID:        true,
	state.KeyIsCheckedIn:          true,
	state.KeyIsVersion:            true,
	state.KeyIsLatestVersion:      true,
	state.KeyIsLatestMajorVersion: true,
	state.KeyVersionCreated:       true,
	state.KeyVersionLabel:         true,
	state.KeyVersionDescription:   true,
	state.KeyProxyIDs:             true,
	state.KeyLockOwner:            true,
	state.KeyLockCreated:          true,
}

// Move moves sourceID under parentID as name. A same-parent move is a plain
// rename; a cross-parent move splices the new ancestor prefix into the whole
// subtree and recomputes read ACLs.
func (s *Session) Move(ctx context.Context, sourceID, parentID, name string) (*txn.DocState, error) {
	source, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = source.GetString(state.KeyName)
	}
	name = norm.NFC.String(name)

	oldParentID := source.GetString(state.KeyParentID)
	if sibling, err := s.buf.GetChildByName(ctx, parentID, name); err == nil {
		if sibling.ID() != sourceID {
			return nil, invalidState("document %q already exists under %s", name, parentID)
		}
	} else if !errors.Is(err, adapter.ErrNotFound) {
		return nil, fmt.Errorf("move %s: %w", sourceID, err)
	}

	if oldParentID == parentID {
		source.Put(state.KeyName, state.String(name))
		return source, nil
	}

	if parentID == sourceID || contains(parent.GetStrings(state.KeyAncestorIDs), sourceID) {
		return nil, invalidState("cannot move %s under itself", sourceID)
	}

	source.Put(state.KeyParentID, state.String(parentID))
	source.Put(state.KeyName, state.String(name))
	if s.orderable(parent) {
		pos, err := s.nextPos(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("move %s: %w", sourceID, err)
		}
		source.Put(state.KeyPos, state.Int(pos))
	} else {
		source.Put(state.KeyPos, nil)
	}
	if err := s.buf.UpdateAncestors(ctx, sourceID, childAncestors(parent)); err != nil {
		return nil, fmt.Errorf("move %s: %w", sourceID, err)
	}
	if err := s.resolver.UpdateReadACLs(ctx, s.buf, sourceID); err != nil {
		return nil, fmt.Errorf("move %s: %w", sourceID, err)
	}
	return source, nil
}

// Remove removes id and its whole subtree. If a removed document is still
// the target of a proxy outside the removal set, the operation fails and
// nothing is removed. Back-references on surviving targets are pruned and
// version series of removed versions are recomputed.
func (s *Session) Remove(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if id == s.rootID {
		return invalidState("cannot remove the root document")
	}

	removed := map[string]bool{id: true}
	order := []string{id}
	descendants, err := s.buf.GetDescendants(ctx, id)
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	for _, d := range descendants {
		if !removed[d.ID()] {
			removed[d.ID()] = true
			order = append(order, d.ID())
		}
	}

	// proxies removed per target, and version series touched by the removal
	proxiesByTarget := make(map[string][]string)
	seriesTouched := make(map[string]bool)
	for _, rid := range order {
		rdoc, err := s.Get(ctx, rid)
		if err != nil {
			return err
		}
		if rdoc.GetBool(state.KeyIsProxy) {
			proxiesByTarget[rdoc.GetString(state.KeyProxyTargetID)] = append(proxiesByTarget[rdoc.GetString(state.KeyProxyTargetID)], rid)
		}
		for _, proxyID := range rdoc.GetStrings(state.KeyProxyIDs) {
			if !removed[proxyID] {
				return referentialIntegrity("cannot remove %s: proxy %s still targets %s", id, proxyID, rid)
			}
		}
		if rdoc.GetBool(state.KeyIsVersion) {
			seriesTouched[rdoc.GetString(state.KeyVersionSeriesID)] = true
		}
	}

	s.buf.Remove(order)

	// prune back-references on surviving targets
	for targetID, proxyIDs := range proxiesByTarget {
		if removed[targetID] {
			continue
		}
		target, err := s.Get(ctx, targetID)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		s.removeBackReferences(target, proxyIDs)
	}

	for seriesID := range seriesTouched {
		if removed[seriesID] {
			continue
		}
		if err := s.recomputeVersionSeries(ctx, seriesID); err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
	}
	return nil
}

// OrderBefore moves the child named srcName of parentID before the child
// named destName, renumbering all siblings in one pass. A nil destination
// (empty destName) sends the child to the end.
func (s *Session) OrderBefore(ctx context.Context, parentID, srcName, destName string) error {
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return err
	}
	if !s.orderable(parent) {
		return invalidState("type %s does not support ordering", parent.GetString(state.KeyPrimaryType))
	}
	src, err := s.GetChild(ctx, parentID, srcName)
	if err != nil {
		return err
	}
	var dest *txn.DocState
	if destName != "" {
		if dest, err = s.GetChild(ctx, parentID, destName); err != nil {
			return err
		}
		if dest.ID() == src.ID() {
			return nil
		}
	}

	children, err := s.buf.GetChildren(ctx, parentID)
	if err != nil {
		return fmt.Errorf("order before: %w", err)
	}
	sort.SliceStable(children, func(i, j int) bool {
		pi, _ := children[i].GetInt(state.KeyPos)
		pj, _ := children[j].GetInt(state.KeyPos)
		return pi < pj
	})

	// walk in current order assigning strictly increasing positions; the
	// moved child takes the slot just before the destination, or the last
	var pos int64
	assign := func(d *txn.DocState) {
		d.Put(state.KeyPos, state.Int(pos))
		pos++
	}
	for _, c := range children {
		if c.ID() == src.ID() {
			continue
		}
		if dest != nil && c.ID() == dest.ID() {
			assign(src)
		}
		assign(c)
	}
	if dest == nil {
		assign(src)
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
