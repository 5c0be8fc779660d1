package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"folio/core/internal/state"
)

const badgerDocPrefix = "doc/"

// Badger is an embedded adapter storing JSON-encoded states under a key
// prefix. Secondary lookups scan the prefix; document counts are expected to
// stay in embedded-deployment range.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database at path. An empty path
// opens an in-memory database, used by tests.
func OpenBadger(path string) (*Badger, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func badgerKey(id string) []byte {
	return []byte(badgerDocPrefix + id)
}

func (b *Badger) ReadState(_ context.Context, id string) (state.State, error) {
	var st state.State
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			st, err = state.DecodeState(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("read state %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", id, err)
	}
	return st, nil
}

func (b *Badger) ReadStates(ctx context.Context, ids []string) ([]state.State, error) {
	out := make([]state.State, 0, len(ids))
	for _, id := range ids {
		st, err := b.ReadState(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (b *Badger) CreateState(_ context.Context, st state.State) error {
	id := st.ID()
	raw, err := state.EncodeState(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(id)); err == nil {
			return ErrIDExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(badgerKey(id), raw)
	})
	if err != nil {
		return fmt.Errorf("create state %s: %w", id, err)
	}
	return nil
}

func (b *Badger) UpdateState(_ context.Context, id string, diff state.Diff) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var st state.State
		if err := item.Value(func(val []byte) error {
			st, err = state.DecodeState(val)
			return err
		}); err != nil {
			return err
		}
		diff.Apply(st)
		raw, err := state.EncodeState(st)
		if err != nil {
			return err
		}
		return txn.Set(badgerKey(id), raw)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("update state %s: %w", id, ErrConcurrentUpdate)
	}
	if err != nil {
		return fmt.Errorf("update state %s: %w", id, err)
	}
	return nil
}

func (b *Badger) DeleteStates(_ context.Context, ids []string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(badgerKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete states: %w", err)
	}
	return nil
}

// scan visits every stored state until the callback returns false.
func (b *Badger) scan(visit func(st state.State) bool) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerDocPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var st state.State
			err := it.Item().Value(func(val []byte) error {
				var derr error
				st, derr = state.DecodeState(val)
				return derr
			})
			if err != nil {
				return err
			}
			if !visit(st) {
				return nil
			}
		}
		return nil
	})
}

func (b *Badger) ReadChildState(_ context.Context, parentID, name string, excluded map[string]bool) (state.State, error) {
	var found state.State
	err := b.scan(func(st state.State) bool {
		if excluded[st.ID()] {
			return true
		}
		if st.GetString(state.KeyParentID) == parentID && st.GetString(state.KeyName) == name {
			found = st
			return false
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("read child state: %w", err)
	}
	if found == nil {
		return nil, fmt.Errorf("child %q of %s: %w", name, parentID, ErrNotFound)
	}
	return found, nil
}

func (b *Badger) HasChild(_ context.Context, parentID string, excluded map[string]bool) (bool, error) {
	var has bool
	err := b.scan(func(st state.State) bool {
		if excluded[st.ID()] {
			return true
		}
		if st.GetString(state.KeyParentID) == parentID {
			has = true
			return false
		}
		return true
	})
	if err != nil {
		return false, fmt.Errorf("has child: %w", err)
	}
	return has, nil
}

func (b *Badger) ReadChildrenStates(_ context.Context, parentID string) ([]state.State, error) {
	var out []state.State
	err := b.scan(func(st state.State) bool {
		if st.GetString(state.KeyParentID) == parentID {
			out = append(out, st)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("read children states: %w", err)
	}
	return out, nil
}

func (b *Badger) ReadByKeyValue(_ context.Context, key string, value state.Value, excluded map[string]bool) ([]state.State, error) {
	var out []state.State
	err := b.scan(func(st state.State) bool {
		if !excluded[st.ID()] && matchKeyValue(st, key, value) {
			out = append(out, st)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("read by key value: %w", err)
	}
	return out, nil
}

func (b *Badger) ReadDescendants(_ context.Context, rootID string) ([]state.State, error) {
	var out []state.State
	err := b.scan(func(st state.State) bool {
		for _, anc := range st.GetStrings(state.KeyAncestorIDs) {
			if anc == rootID {
				out = append(out, st)
				break
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("read descendants: %w", err)
	}
	return out, nil
}

func (b *Badger) QueryAndFetch(_ context.Context, q Query) ([]state.State, int64, error) {
	var all []state.State
	err := b.scan(func(st state.State) bool {
		if q.Match == nil || q.Match.Matches(st) {
			all = append(all, st)
		}
		return true
	})
	if err != nil {
		return nil, 0, fmt.Errorf("query documents: %w", err)
	}
	if q.Order != nil {
		sort.SliceStable(all, func(i, j int) bool { return q.Order.Compare(all[i], all[j]) < 0 })
	}
	total := q.total(int64(len(all)))
	return Paginate(all, q.Limit, q.Offset), total, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}
