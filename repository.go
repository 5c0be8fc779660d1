// Package core assembles a document repository from configuration: the
// persistence adapter, the schema registry, blob storage and the fulltext
// pipeline. Callers open sessions against the repository to read and write
// documents.
package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"folio/core/internal/acl"
	"folio/core/internal/adapter"
	"folio/core/internal/blob"
	"folio/core/internal/config"
	"folio/core/internal/fulltext"
	"folio/core/internal/schema"
	"folio/core/internal/session"
)

// Repository owns the shared services behind sessions. It is safe to open
// sessions from multiple goroutines; each session itself is single-threaded.
type Repository struct {
	cfg      config.Config
	adapter  adapter.Adapter
	registry *schema.Registry
	resolver *acl.Resolver
	blobs    blob.Store
	queue    *fulltext.RedisQueue
	mirror   *fulltext.Mirror

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open connects every configured backend and starts the fulltext workers.
// The registry carries the application's document types and schemas.
func Open(ctx context.Context, cfg config.Config, reg *schema.Registry) (*Repository, error) {
	a, err := openAdapter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := session.EnsureRoot(ctx, a, cfg.RootID); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure root: %w", err)
	}

	var blobs blob.Store
	if strings.TrimSpace(cfg.BlobEndpoint) != "" {
		blobs, err = blob.NewMinio(ctx, blob.MinioConfig{
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Bucket:    cfg.BlobBucket,
			UseSSL:    cfg.BlobUseSSL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("blob store: %w", err)
		}
	} else {
		blobs = blob.NewMemory()
	}

	var mirror *fulltext.Mirror
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		mirror = fulltext.NewMirror(cfg.MeiliURL, cfg.MeiliMasterKey)
	}

	resolver := acl.NewResolver(acl.DefaultPolicy())

	repo := &Repository{
		cfg:      cfg,
		adapter:  a,
		registry: reg,
		resolver: resolver,
		blobs:    blobs,
		mirror:   mirror,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		queue, err := fulltext.NewRedisQueue(cfg.RedisURL)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("fulltext queue: %w", err)
		}
		repo.queue = queue
		repo.startWorkers()
	} else {
		log.Printf("fulltext indexing disabled: no redis url configured")
	}

	return repo, nil
}

func openAdapter(ctx context.Context, cfg config.Config) (adapter.Adapter, error) {
	switch cfg.Adapter {
	case "", "memory":
		return adapter.NewMemory(), nil
	case "sql":
		return adapter.OpenSQL(ctx, cfg.DatabaseURL)
	case "badger":
		return adapter.OpenBadger(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}
}

func (r *Repository) startWorkers() {
	extractor := fulltext.NewExtractor(r.blobs, fulltext.Config{IncludeTypes: r.cfg.FulltextIncludeTypes})
	updater := fulltext.NewUpdater(r.adapter, r.registry, r.resolver, r.mirror)

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	n := r.cfg.FulltextWorkers
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		worker := fulltext.NewWorker(r.queue, extractor, updater, r.adapter)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			worker.Run(ctx)
		}()
	}
}

// OpenSession starts a new session over the repository.
func (r *Repository) OpenSession() *session.Session {
	var sched session.Scheduler
	if r.queue != nil {
		sched = r.queue
	}
	return session.New(r.adapter, r.registry, r.resolver, session.Options{
		RootID:    r.cfg.RootID,
		Scheduler: sched,
	})
}

// Blobs exposes the configured blob store.
func (r *Repository) Blobs() blob.Store {
	return r.blobs
}

// Close stops the fulltext workers and closes every backend.
func (r *Repository) Close() {
	if r.cancel != nil {
		r.cancel()
		r.wg.Wait()
	}
	if r.queue != nil {
		r.queue.Close()
	}
	if r.mirror != nil {
		r.mirror.Close()
	}
	if err := r.adapter.Close(); err != nil {
		log.Printf("close adapter: %v", err)
	}
}
