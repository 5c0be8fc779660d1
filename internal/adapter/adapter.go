// Package adapter defines the persistence contract the transaction buffer
// writes through, plus three implementations: an in-memory map, a Postgres
// JSONB table, and an embedded Badger store.
package adapter

import (
	"context"
	"errors"

	"folio/core/internal/state"
)

var (
	// ErrNotFound means the id does not exist in durable storage.
	ErrNotFound = errors.New("document not found")
	// ErrIDExists means a create hit an already-used id.
	ErrIDExists = errors.New("document id already exists")
	// ErrConcurrentUpdate means a write conflicted with another writer.
	// It is surfaced, not retried; retry policy belongs to the caller.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// Matcher tests one document state against a predicate.
type Matcher interface {
	Matches(s state.State) bool
}

// Comparator orders two document states for an ORDER BY clause.
type Comparator interface {
	Compare(a, b state.State) int
}

// Query is one filtered/ordered/paginated scan.
type Query struct {
	Match  Matcher
	Order  Comparator // nil means adapter order
	Limit  int64      // 0 means no limit
	Offset int64

	// CountUpTo selects the total-count policy: -1 requests no count,
	// 0 requests an exact count, n > 0 requests an exact count only
	// when the total does not exceed n.
	CountUpTo int64
}

const (
	// CountNone is returned as the total when no count was requested.
	CountNone int64 = -1
	// CountOverThreshold is returned when the total exceeds CountUpTo.
	CountOverThreshold int64 = -2
)

// total applies the count policy to an exact total.
func (q Query) total(n int64) int64 {
	switch {
	case q.CountUpTo < 0:
		return CountNone
	case q.CountUpTo > 0 && n > q.CountUpTo:
		return CountOverThreshold
	default:
		return n
	}
}

// Adapter is durable storage for document states. Implementations provide
// per-document atomicity but no cross-document transactionality.
type Adapter interface {
	// ReadState returns the state for id, or ErrNotFound.
	ReadState(ctx context.Context, id string) (state.State, error)
	// ReadStates returns the states for ids; absent ids are omitted and
	// result order is unspecified.
	ReadStates(ctx context.Context, ids []string) ([]state.State, error)
	// CreateState stores a new state; ErrIDExists on a duplicate id.
	CreateState(ctx context.Context, s state.State) error
	// UpdateState applies a diff to an existing state; ErrNotFound when
	// the id does not exist.
	UpdateState(ctx context.Context, id string, diff state.Diff) error
	// DeleteStates removes the ids; missing ids are ignored.
	DeleteStates(ctx context.Context, ids []string) error

	// ReadChildState returns the child of parentID named name, skipping
	// excluded ids; ErrNotFound when there is none.
	ReadChildState(ctx context.Context, parentID, name string, excluded map[string]bool) (state.State, error)
	// HasChild reports whether parentID has any child outside excluded.
	HasChild(ctx context.Context, parentID string, excluded map[string]bool) (bool, error)
	// ReadChildrenStates returns all children of parentID.
	ReadChildrenStates(ctx context.Context, parentID string) ([]state.State, error)
	// ReadByKeyValue returns the states whose key equals value, skipping
	// excluded ids.
	ReadByKeyValue(ctx context.Context, key string, value state.Value, excluded map[string]bool) ([]state.State, error)
	// ReadDescendants returns the states whose ancestor-id array
	// contains rootID.
	ReadDescendants(ctx context.Context, rootID string) ([]state.State, error)

	// QueryAndFetch runs a scan and returns one page plus a total per
	// the query's count policy.
	QueryAndFetch(ctx context.Context, q Query) ([]state.State, int64, error)

	// Close releases the adapter's resources.
	Close() error
}

// Paginate applies offset and limit to an already-ordered result set.
func Paginate(states []state.State, limit, offset int64) []state.State {
	n := int64(len(states))
	if offset >= n {
		return nil
	}
	states = states[offset:]
	if limit > 0 && limit < int64(len(states)) {
		states = states[:limit]
	}
	return states
}
