package session

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"folio/core/internal/adapter"
	"folio/core/internal/state"
	"folio/core/internal/txn"
	"folio/core/internal/util"
)

// CreateProxy creates a placed alias to sourceID under parentID. The source
// may be a version (targeted directly), an existing proxy (its referent is
// copied) or a live document (targets itself, series is itself). The proxy
// carries the target's content and registers itself on the target's
// back-reference array.
func (s *Session) CreateProxy(ctx context.Context, sourceID, parentID string) (*txn.DocState, error) {
	source, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	targetID, seriesID := proxyReferent(source)
	target, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}

	name := norm.NFC.String(target.GetString(state.KeyName))
	if name == "" {
		name = targetID
	}
	if _, err := s.buf.GetChildByName(ctx, parentID, name); err == nil {
		name = findFreeName(name)
	} else if !errors.Is(err, adapter.ErrNotFound) {
		return nil, fmt.Errorf("create proxy: %w", err)
	}

	proxyID := util.NewID("")
	proxy := s.buf.Create(proxyID)
	proxy.Put(state.KeyParentID, state.String(parentID))
	proxy.Put(state.KeyName, state.String(name))
	proxy.Put(state.KeyPrimaryType, state.String(target.GetString(state.KeyPrimaryType)))
	proxy.PutStrings(state.KeyAncestorIDs, childAncestors(parent))
	proxy.Put(state.KeyIsProxy, state.Bool(true))
	proxy.Put(state.KeyProxyTargetID, state.String(targetID))
	proxy.Put(state.KeyProxyVersionSeriesID, state.String(seriesID))
	proxy.Put(state.KeyVersionSeriesID, state.String(seriesID))
	if s.orderable(parent) {
		pos, err := s.nextPos(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("create proxy: %w", err)
		}
		proxy.Put(state.KeyPos, state.Int(pos))
	}
	txn.CopyProxyContent(target.State(), proxy)

	s.addBackReference(target, proxyID)
	if err := s.resolver.UpdateReadACLs(ctx, s.buf, proxyID); err != nil {
		return nil, fmt.Errorf("create proxy: %w", err)
	}
	return proxy, nil
}

// proxyReferent resolves what a new proxy should point at, given the
// document handed in as its source.
func proxyReferent(source *txn.DocState) (targetID, seriesID string) {
	id := source.ID()
	switch {
	case source.GetBool(state.KeyIsProxy):
		return source.GetString(state.KeyProxyTargetID), source.GetString(state.KeyProxyVersionSeriesID)
	case source.GetBool(state.KeyIsVersion):
		return id, source.GetString(state.KeyVersionSeriesID)
	default:
		return id, id
	}
}

// SetProxyTarget retargets an existing proxy, moving the back-reference from
// the old target to the new one and refreshing the proxy's content.
func (s *Session) SetProxyTarget(ctx context.Context, proxyID, targetID string) error {
	proxy, err := s.Get(ctx, proxyID)
	if err != nil {
		return err
	}
	if !proxy.GetBool(state.KeyIsProxy) {
		return invalidState("document %s is not a proxy", proxyID)
	}
	newTarget, err := s.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if newTarget.GetBool(state.KeyIsProxy) {
		return invalidState("proxy target %s must not be a proxy", targetID)
	}

	oldTargetID := proxy.GetString(state.KeyProxyTargetID)
	if oldTargetID == targetID {
		return nil
	}
	if oldTarget, err := s.Get(ctx, oldTargetID); err == nil {
		s.removeBackReferences(oldTarget, []string{proxyID})
	} else if !IsNotFound(err) {
		return err
	}

	proxy.Put(state.KeyProxyTargetID, state.String(targetID))
	txn.CopyProxyContent(newTarget.State(), proxy)
	s.addBackReference(newTarget, proxyID)
	return nil
}

// GetProxies returns the ids of all proxies whose target is targetID.
func (s *Session) GetProxies(ctx context.Context, targetID string) ([]string, error) {
	docs, err := s.buf.GetByKeyValue(ctx, state.KeyProxyTargetID, state.String(targetID))
	if err != nil {
		return nil, fmt.Errorf("proxies of %s: %w", targetID, err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.GetBool(state.KeyIsProxy) {
			ids = append(ids, d.ID())
		}
	}
	return ids, nil
}

// addBackReference and removeBackReferences are the only places the proxy
// back-reference array is touched, so the invariant "back-references equal
// the set of proxies targeting the document" has exactly two write sites.
func (s *Session) addBackReference(target *txn.DocState, proxyID string) {
	refs := target.GetStrings(state.KeyProxyIDs)
	if contains(refs, proxyID) {
		return
	}
	target.PutStrings(state.KeyProxyIDs, append(refs, proxyID))
}

func (s *Session) removeBackReferences(target *txn.DocState, proxyIDs []string) {
	refs := target.GetStrings(state.KeyProxyIDs)
	kept := refs[:0]
	for _, r := range refs {
		if !contains(proxyIDs, r) {
			kept = append(kept, r)
		}
	}
	target.PutStrings(state.KeyProxyIDs, kept)
}
