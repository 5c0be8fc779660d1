package session

import (
	"context"
	"fmt"
	"sort"

	"folio/core/internal/adapter"
	"folio/core/internal/eval"
	"folio/core/internal/state"
)

// QueryRequest is one filtered, ordered, paginated scan over the store as
// seen by this session.
type QueryRequest struct {
	Expr    eval.Expr
	OrderBy []eval.OrderKey
	Limit   int64
	Offset  int64

	// CountUpTo: -1 no count, 0 exact count, n > 0 exact up to n.
	CountUpTo int64
}

// QueryResult is a page of states plus the count-policy total: -1 when no
// count was requested, -2 when the total exceeded the threshold.
type QueryResult struct {
	States []state.State
	Total  int64
}

// Query pends saves first so the session sees its own writes, then merges
// adapter results with the saved tier, ordering and paginating in memory.
func (s *Session) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if err := s.Save(ctx); err != nil {
		return nil, err
	}
	matcher := eval.Matcher{Ev: s.ev, Expr: req.Expr}

	// fetch every adapter match; pagination happens after the overlay
	states, _, err := s.buf.Adapter().QueryAndFetch(ctx, adapter.Query{Match: matcher, CountUpTo: -1})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	saved := s.buf.SavedStates()
	merged := make([]state.State, 0, len(states)+len(saved))
	for _, st := range states {
		id := st.ID()
		if s.buf.Removed(id) {
			continue
		}
		if _, shadowed := saved[id]; shadowed {
			continue
		}
		merged = append(merged, st)
	}
	for _, st := range saved {
		if matcher.Matches(st) {
			merged = append(merged, st)
		}
	}

	if len(req.OrderBy) > 0 {
		cmp := eval.NewComparator(s.ev, req.OrderBy)
		sort.SliceStable(merged, func(i, j int) bool { return cmp.Compare(merged[i], merged[j]) < 0 })
	}
	total := adapter.CountNone
	if req.CountUpTo >= 0 {
		total = int64(len(merged))
		if req.CountUpTo > 0 && total > req.CountUpTo {
			total = adapter.CountOverThreshold
		}
	}
	return &QueryResult{
		States: adapter.Paginate(merged, req.Limit, req.Offset),
		Total:  total,
	}, nil
}

// GetBinaryFulltext returns the extracted fulltext of id: the simple-text
// and binary-text fields, keyed as "simple" and "binary".
func (s *Session) GetBinaryFulltext(ctx context.Context, id string) (map[string]string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"simple": doc.GetString(state.KeyFulltextSimple),
		"binary": doc.GetString(state.KeyFulltextBinary),
	}, nil
}
