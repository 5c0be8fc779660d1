package fulltext

import (
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const mirrorIndex = "folio_fulltext"

// Mirror pushes extracted text into a Meilisearch index so external search
// can query it without scanning the store. A nil Mirror is a no-op, and an
// unreachable Meilisearch degrades to logging; the pipeline never fails on
// the mirror.
type Mirror struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMirror creates the Meilisearch client and configures the index.
// Returns a mirror even when the initial connection fails; it recovers when
// Meilisearch comes back.
func NewMirror(url, apiKey string) *Mirror {
	client := meili.New(url, meili.WithAPIKey(apiKey))
	m := &Mirror{client: client, done: make(chan struct{})}

	if _, err := client.Health(); err != nil {
		log.Printf("fulltext: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	go m.healthLoop()
	return m
}

func (m *Mirror) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: mirrorIndex, PrimaryKey: "id"}); err != nil {
		log.Printf("fulltext: create mirror index: %v", err)
	}
	idx := m.client.Index(mirrorIndex)
	if _, err := idx.UpdateSearchableAttributes(&[]string{"simple", "binary"}); err != nil {
		log.Printf("fulltext: configure mirror index: %v", err)
	}
}

func (m *Mirror) healthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Swap(err == nil)
			if err != nil && was {
				log.Printf("fulltext: meilisearch became unavailable: %v", err)
			}
			if err == nil && !was {
				log.Printf("fulltext: meilisearch recovered")
				m.configureIndex()
			}
		}
	}
}

// Index pushes one document's extracted texts. Safe on a nil mirror.
func (m *Mirror) Index(docID string, texts map[string]string) {
	if m == nil || !m.healthy.Load() {
		return
	}
	doc := map[string]any{"id": docID}
	for index, text := range texts {
		doc[index] = text
	}
	if _, err := m.client.Index(mirrorIndex).AddDocuments([]map[string]any{doc}, nil); err != nil {
		log.Printf("fulltext: mirror index %s: %v", docID, err)
	}
}

// Remove drops a document from the mirror. Safe on a nil mirror.
func (m *Mirror) Remove(docID string) {
	if m == nil || !m.healthy.Load() {
		return
	}
	if _, err := m.client.Index(mirrorIndex).DeleteDocument(docID, nil); err != nil {
		log.Printf("fulltext: mirror remove %s: %v", docID, err)
	}
}

// Close stops the health loop.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.done)
}
