package fulltext

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"folio/core/internal/acl"
	"folio/core/internal/adapter"
	"folio/core/internal/schema"
	"folio/core/internal/session"
	"folio/core/internal/state"
)

// Updater is the only component that writes fulltext fields. It serializes
// all applications behind one mutex, so concurrent extraction jobs for the
// same document cannot race their writes.
type Updater struct {
	mu       sync.Mutex
	adapter  adapter.Adapter
	reg      *schema.Registry
	resolver *acl.Resolver
	mirror   *Mirror
}

// NewUpdater returns an updater writing through its own sessions over the
// adapter. mirror may be nil.
func NewUpdater(a adapter.Adapter, reg *schema.Registry, resolver *acl.Resolver, mirror *Mirror) *Updater {
	return &Updater{adapter: a, reg: reg, resolver: resolver, mirror: mirror}
}

// Apply writes an extracted batch onto docID. Re-applying an identical batch
// changes nothing. A document removed since extraction is silently skipped.
func (u *Updater) Apply(ctx context.Context, docID string, batch []IndexAndText) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	sess := session.New(u.adapter, u.reg, u.resolver, session.Options{})
	doc, err := sess.Get(ctx, docID)
	if session.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fulltext update %s: %w", docID, err)
	}

	changed := false
	texts := make(map[string]string, len(batch))
	for _, entry := range batch {
		key, ok := indexKey(entry.Index)
		if !ok {
			continue
		}
		texts[entry.Index] = entry.Text
		if doc.GetString(key) == entry.Text {
			continue
		}
		if entry.Text == "" {
			doc.Put(key, nil)
		} else {
			doc.Put(key, state.String(entry.Text))
		}
		changed = true
	}
	if changed {
		if err := sess.Commit(ctx); err != nil {
			return fmt.Errorf("fulltext update %s: %w", docID, err)
		}
	}
	u.mirror.Index(docID, texts)
	return nil
}

func indexKey(index string) (string, bool) {
	switch index {
	case SimpleIndex:
		return state.KeyFulltextSimple, true
	case BinaryIndex:
		return state.KeyFulltextBinary, true
	default:
		return "", false
	}
}

// Worker drains the job queue: claim a document id, extract, apply.
type Worker struct {
	queue     *RedisQueue
	extractor *Extractor
	updater   *Updater
	adapter   adapter.Adapter
}

// NewWorker wires a queue, an extractor and an updater together.
func NewWorker(queue *RedisQueue, extractor *Extractor, updater *Updater, a adapter.Adapter) *Worker {
	return &Worker{queue: queue, extractor: extractor, updater: updater, adapter: a}
}

// Run processes jobs until the context is canceled. Failures are logged and
// the loop keeps going; a failed job leaves the document's fulltext stale.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		docID, err := w.queue.Claim(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("fulltext: claim job: %v", err)
			continue
		}
		if docID == "" {
			continue
		}
		if err := w.Process(ctx, docID); err != nil {
			log.Printf("fulltext: process %s: %v", docID, err)
		}
	}
}

// Process extracts and applies fulltext for one document id.
func (w *Worker) Process(ctx context.Context, docID string) error {
	st, err := w.adapter.ReadState(ctx, docID)
	if err != nil {
		// removed since scheduling; nothing to index
		return nil
	}
	batch := w.extractor.Extract(ctx, st)
	if batch == nil {
		return nil
	}
	return w.updater.Apply(ctx, docID, batch)
}
