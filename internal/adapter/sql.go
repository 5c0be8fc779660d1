package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"folio/core/internal/state"
)

// SQL stores one document per row in a JSONB column, with parent id and name
// lifted into indexed columns for child lookups.
type SQL struct {
	db *sql.DB
}

// OpenSQL connects to Postgres, verifies the connection and ensures the
// documents table exists.
func OpenSQL(ctx context.Context, databaseURL string) (*SQL, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &SQL{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQL) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			parent_id TEXT,
			name TEXT,
			state JSONB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure documents table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS documents_parent_idx ON documents (parent_id, name)
	`); err != nil {
		return fmt.Errorf("ensure parent index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS documents_state_idx ON documents USING GIN (state)
	`); err != nil {
		return fmt.Errorf("ensure state index: %w", err)
	}
	return nil
}

// DB exposes the underlying handle.
func (s *SQL) DB() *sql.DB {
	return s.db
}

func (s *SQL) ReadState(ctx context.Context, id string) (state.State, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM documents WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read state %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", id, err)
	}
	return state.DecodeState(raw)
}

func (s *SQL) ReadStates(ctx context.Context, ids []string) ([]state.State, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("read states: %w", err)
	}
	return scanStates(rows, "read states")
}

func (s *SQL) CreateState(ctx context.Context, st state.State) error {
	raw, err := state.EncodeState(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, parent_id, name, state)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`, st.ID(), st.GetString(state.KeyParentID), st.GetString(state.KeyName), raw)
	if isUniqueViolation(err) {
		return fmt.Errorf("create state %s: %w", st.ID(), ErrIDExists)
	}
	if err != nil {
		return fmt.Errorf("create state %s: %w", st.ID(), err)
	}
	return nil
}

func (s *SQL) UpdateState(ctx context.Context, id string, diff state.Diff) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT state FROM documents WHERE id=$1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update state %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update state %s: %w", id, err)
	}
	st, err := state.DecodeState(raw)
	if err != nil {
		return fmt.Errorf("update state %s: %w", id, err)
	}
	diff.Apply(st)
	raw, err = state.EncodeState(st)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET parent_id=NULLIF($2, ''), name=$3, state=$4 WHERE id=$1
	`, id, st.GetString(state.KeyParentID), st.GetString(state.KeyName), raw); err != nil {
		return fmt.Errorf("update state %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("update state %s: %w", id, ErrConcurrentUpdate)
		}
		return fmt.Errorf("commit update %s: %w", id, err)
	}
	return nil
}

func (s *SQL) DeleteStates(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete states: %w", err)
	}
	return nil
}

func (s *SQL) ReadChildState(ctx context.Context, parentID, name string, excluded map[string]bool) (state.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state FROM documents WHERE parent_id=$1 AND name=$2
	`, parentID, name)
	if err != nil {
		return nil, fmt.Errorf("read child state: %w", err)
	}
	states, err := scanStates(rows, "read child state")
	if err != nil {
		return nil, err
	}
	for _, st := range states {
		if !excluded[st.ID()] {
			return st, nil
		}
	}
	return nil, fmt.Errorf("child %q of %s: %w", name, parentID, ErrNotFound)
}

func (s *SQL) HasChild(ctx context.Context, parentID string, excluded map[string]bool) (bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents WHERE parent_id=$1`, parentID)
	if err != nil {
		return false, fmt.Errorf("has child: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return false, fmt.Errorf("scan child id: %w", err)
		}
		if !excluded[id] {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate child ids: %w", err)
	}
	return false, nil
}

func (s *SQL) ReadChildrenStates(ctx context.Context, parentID string) ([]state.State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM documents WHERE parent_id=$1`, parentID)
	if err != nil {
		return nil, fmt.Errorf("read children states: %w", err)
	}
	return scanStates(rows, "read children states")
}

func (s *SQL) ReadByKeyValue(ctx context.Context, key string, value state.Value, excluded map[string]bool) ([]state.State, error) {
	// candidates by key presence, exact match resolved in memory so that
	// array-valued keys get "contains" semantics
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM documents WHERE state ? $1`, key)
	if err != nil {
		return nil, fmt.Errorf("read by key value: %w", err)
	}
	states, err := scanStates(rows, "read by key value")
	if err != nil {
		return nil, err
	}
	var out []state.State
	for _, st := range states {
		if excluded[st.ID()] {
			continue
		}
		if matchKeyValue(st, key, value) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *SQL) ReadDescendants(ctx context.Context, rootID string) ([]state.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state FROM documents WHERE state->$1 ? $2
	`, state.KeyAncestorIDs, rootID)
	if err != nil {
		return nil, fmt.Errorf("read descendants: %w", err)
	}
	return scanStates(rows, "read descendants")
}

func (s *SQL) QueryAndFetch(ctx context.Context, q Query) ([]state.State, int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM documents`)
	if err != nil {
		return nil, 0, fmt.Errorf("query documents: %w", err)
	}
	all, err := scanStates(rows, "query documents")
	if err != nil {
		return nil, 0, err
	}
	matched := all[:0]
	for _, st := range all {
		if q.Match == nil || q.Match.Matches(st) {
			matched = append(matched, st)
		}
	}
	if q.Order != nil {
		sort.SliceStable(matched, func(i, j int) bool { return q.Order.Compare(matched[i], matched[j]) < 0 })
	}
	total := q.total(int64(len(matched)))
	return Paginate(matched, q.Limit, q.Offset), total, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func scanStates(rows *sql.Rows, op string) ([]state.State, error) {
	defer rows.Close()
	var out []state.State
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		st, err := state.DecodeState(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}
