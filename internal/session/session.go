// Package session is the operation surface of the store: path resolution,
// CRUD, hierarchy maintenance, versioning, proxies, ACLs and query dispatch,
// all bound to one transaction buffer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/text/unicode/norm"

	"folio/core/internal/acl"
	"folio/core/internal/adapter"
	"folio/core/internal/eval"
	"folio/core/internal/schema"
	"folio/core/internal/state"
	"folio/core/internal/txn"
	"folio/core/internal/util"
)

// Scheduler receives document ids whose content changed and need fulltext
// extraction. Scheduling failures degrade the index, never the edit.
type Scheduler interface {
	Schedule(ctx context.Context, docID string) error
}

// Session binds one transaction buffer to the schema registry and the ACL
// resolver. It is single-threaded; concurrency comes from multiple sessions
// over the same adapter.
type Session struct {
	buf      *txn.Buffer
	reg      *schema.Registry
	resolver *acl.Resolver
	ev       *eval.Evaluator
	rootID   string
	sched    Scheduler
}

// Options configures a session.
type Options struct {
	RootID    string
	Scheduler Scheduler
}

// DefaultRootID is the fixed id of the repository root document.
const DefaultRootID = "00000000-0000-0000-0000-000000000000"

// RootType is the primary type of the repository root.
const RootType = "Root"

// New opens a session over the adapter.
func New(a adapter.Adapter, reg *schema.Registry, resolver *acl.Resolver, opts Options) *Session {
	if opts.RootID == "" {
		opts.RootID = DefaultRootID
	}
	return &Session{
		buf:      txn.NewBuffer(a),
		reg:      reg,
		resolver: resolver,
		ev:       eval.New(reg),
		rootID:   opts.RootID,
		sched:    opts.Scheduler,
	}
}

// EnsureRoot creates the root document directly in the adapter when it does
// not exist yet. Run once when a repository is opened.
func EnsureRoot(ctx context.Context, a adapter.Adapter, rootID string) error {
	if rootID == "" {
		rootID = DefaultRootID
	}
	_, err := a.ReadState(ctx, rootID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, adapter.ErrNotFound) {
		return fmt.Errorf("ensure root: %w", err)
	}
	root := state.State{
		state.KeyID:          state.String(rootID),
		state.KeyName:        state.String(""),
		state.KeyPrimaryType: state.String(RootType),
	}
	if err := a.CreateState(ctx, root); err != nil && !errors.Is(err, adapter.ErrIDExists) {
		return fmt.Errorf("ensure root: %w", err)
	}
	return nil
}

// RootID returns the id of the repository root.
func (s *Session) RootID() string { return s.rootID }

// Exists reports whether id resolves in this session's view.
func (s *Session) Exists(ctx context.Context, id string) (bool, error) {
	return s.buf.Exists(ctx, id)
}

// Get resolves a document by id.
func (s *Session) Get(ctx context.Context, id string) (*txn.DocState, error) {
	doc, err := s.buf.Get(ctx, id)
	if errors.Is(err, adapter.ErrNotFound) {
		return nil, notFound("document %s does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// ResolvePath walks a slash-separated path from the root and returns the id
// it names. The path is Unicode-normalized (NFC) and a trailing slash is
// ignored.
func (s *Session) ResolvePath(ctx context.Context, path string) (string, error) {
	if path == "" || path[0] != '/' {
		return "", notFound("invalid path %q", path)
	}
	path = norm.NFC.String(path)
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return s.rootID, nil
	}
	id := s.rootID
	for _, segment := range strings.Split(path[1:], "/") {
		child, err := s.buf.GetChildByName(ctx, id, segment)
		if errors.Is(err, adapter.ErrNotFound) {
			return "", notFound("path %q: no such segment %q", path, segment)
		}
		if err != nil {
			return "", fmt.Errorf("resolve path %q: %w", path, err)
		}
		id = child.ID()
	}
	return id, nil
}

// Path returns the slash-separated path of id, walking parents to the root.
func (s *Session) Path(ctx context.Context, id string) (string, error) {
	if id == s.rootID {
		return "/", nil
	}
	var segments []string
	for id != "" && id != s.rootID {
		doc, err := s.Get(ctx, id)
		if err != nil {
			return "", err
		}
		segments = append(segments, doc.GetString(state.KeyName))
		id = doc.GetString(state.KeyParentID)
	}
	var sb strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		sb.WriteString("/")
		sb.WriteString(segments[i])
	}
	return sb.String(), nil
}

// CreateChild creates a document under parentID with a generated id.
func (s *Session) CreateChild(ctx context.Context, parentID, name, typeName string) (*txn.DocState, error) {
	return s.createChild(ctx, util.NewID(""), parentID, name, typeName)
}

// Import creates a document under parentID with a caller-supplied id.
func (s *Session) Import(ctx context.Context, id, parentID, name, typeName string) (*txn.DocState, error) {
	return s.createChild(ctx, id, parentID, name, typeName)
}

func (s *Session) createChild(ctx context.Context, id, parentID, name, typeName string) (*txn.DocState, error) {
	docType, err := s.reg.DocumentType(typeName)
	if err != nil {
		return nil, configurationError("create %q: %v", name, err)
	}
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	name = norm.NFC.String(name)
	if _, err := s.buf.GetChildByName(ctx, parentID, name); err == nil {
		return nil, invalidState("document %q already exists under %s", name, parentID)
	} else if !errors.Is(err, adapter.ErrNotFound) {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}
	if exists, err := s.buf.Exists(ctx, id); err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	} else if exists {
		return nil, invalidState("document id %s already exists", id)
	}

	doc := s.buf.Create(id)
	doc.Put(state.KeyParentID, state.String(parentID))
	doc.Put(state.KeyName, state.String(name))
	doc.Put(state.KeyPrimaryType, state.String(typeName))
	doc.PutStrings(state.KeyFacets, docType.Facets)
	doc.PutStrings(state.KeyAncestorIDs, childAncestors(parent))
	doc.Put(state.KeyVersionSeriesID, state.String(id))

	if s.orderable(parent) {
		pos, err := s.nextPos(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("create %q: %w", name, err)
		}
		doc.Put(state.KeyPos, state.Int(pos))
	}
	return doc, nil
}

// childAncestors is the parent's ancestor array plus the parent itself.
func childAncestors(parent *txn.DocState) []string {
	anc := parent.GetStrings(state.KeyAncestorIDs)
	out := make([]string, 0, len(anc)+1)
	out = append(out, anc...)
	return append(out, parent.ID())
}

// orderable reports whether the parent's type supports explicit ordering.
func (s *Session) orderable(parent *txn.DocState) bool {
	return s.reg.HasFacet(parent.GetString(state.KeyPrimaryType), schema.FacetOrderable)
}

func (s *Session) nextPos(ctx context.Context, parentID string) (int64, error) {
	children, err := s.buf.GetChildren(ctx, parentID)
	if err != nil {
		return 0, err
	}
	var max int64 = -1
	for _, c := range children {
		if pos, ok := c.GetInt(state.KeyPos); ok && pos > max {
			max = pos
		}
	}
	return max + 1, nil
}

// SetProperty writes one schema property, resolved by reference, through the
// schema walk. System keys are not writable this way.
func (s *Session) SetProperty(ctx context.Context, id, ref string, v state.Value) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sc, f, err := s.fieldOf(doc, ref)
	if err != nil {
		return err
	}
	state.WriteField(doc.State(), sc, f, v)
	doc.Touch(sc.Key(f.Name))
	return nil
}

// GetProperty reads one schema property through the schema walk.
func (s *Session) GetProperty(ctx context.Context, id, ref string) (state.Value, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sc, f, err := s.fieldOf(doc, ref)
	if err != nil {
		return nil, err
	}
	return state.ReadField(doc.State(), sc, f), nil
}

func (s *Session) fieldOf(doc *txn.DocState, ref string) (*schema.Schema, schema.Field, error) {
	sc, f, ok := s.reg.ResolveField(ref)
	if !ok {
		return nil, schema.Field{}, configurationError("unknown property %q for type %s", ref, doc.GetString(state.KeyPrimaryType))
	}
	return sc, f, nil
}

// Save flushes this session's dirty states into the saved tier and schedules
// fulltext extraction for changed documents. Nothing becomes durable yet.
func (s *Session) Save(ctx context.Context) error {
	dirtyIDs, err := s.buf.Save(ctx)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	s.scheduleFulltext(ctx, dirtyIDs)
	return nil
}

// Commit saves and writes the saved tier through the adapter, making the
// transaction durable and visible to other sessions.
func (s *Session) Commit(ctx context.Context) error {
	dirtyIDs, err := s.buf.Commit(ctx)
	if err != nil {
		if errors.Is(err, adapter.ErrConcurrentUpdate) {
			return concurrentUpdate("commit: %v", err)
		}
		return fmt.Errorf("commit: %w", err)
	}
	s.scheduleFulltext(ctx, dirtyIDs)
	return nil
}

// Rollback discards everything staged since the last commit.
func (s *Session) Rollback() {
	s.buf.Rollback()
}

func (s *Session) scheduleFulltext(ctx context.Context, ids []string) {
	if s.sched == nil {
		return
	}
	for _, id := range ids {
		doc, err := s.buf.Get(ctx, id)
		if err != nil {
			continue
		}
		// proxies mirror their target's fulltext, versions are frozen
		if doc.GetBool(state.KeyIsProxy) || doc.GetBool(state.KeyIsVersion) {
			continue
		}
		if err := s.sched.Schedule(ctx, id); err != nil {
			log.Printf("session: schedule fulltext for %s: %v", id, err)
		}
	}
}
