// Package blob stores binary property content outside document states.
// States reference blobs by digest through a small sub-state (name,
// mime-type, encoding, digest, length); this package resolves digests to
// bytes.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"folio/core/internal/state"
	"folio/core/internal/util"
)

// Info mirrors the blob sub-state stored on a document.
type Info struct {
	Name     string
	MimeType string
	Encoding string
	Digest   string
	Length   int64
}

// FromState decodes a blob sub-state.
func FromState(v state.Value) (Info, bool) {
	sub, ok := v.(state.State)
	if !ok {
		return Info{}, false
	}
	digest := sub.GetString(state.KeyBlobDigest)
	if digest == "" {
		return Info{}, false
	}
	length, _ := sub.GetInt(state.KeyBlobLength)
	return Info{
		Name:     sub.GetString(state.KeyBlobName),
		MimeType: sub.GetString(state.KeyBlobMimeType),
		Encoding: sub.GetString(state.KeyBlobEncoding),
		Digest:   digest,
		Length:   length,
	}, true
}

// ToState encodes a blob reference for storage on a document.
func (i Info) ToState() state.State {
	return state.State{
		state.KeyBlobName:     state.String(i.Name),
		state.KeyBlobMimeType: state.String(i.MimeType),
		state.KeyBlobEncoding: state.String(i.Encoding),
		state.KeyBlobDigest:   state.String(i.Digest),
		state.KeyBlobLength:   state.Int(i.Length),
	}
}

// Store is content-addressed binary storage.
type Store interface {
	// Put stores the content and returns its digest.
	Put(ctx context.Context, r io.Reader) (string, error)
	// Get opens the content stored under digest.
	Get(ctx context.Context, digest string) (io.ReadCloser, error)
	// Delete removes the content stored under digest.
	Delete(ctx context.Context, digest string) error
}

// Memory is a map-backed store for tests.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemory returns an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}
	digest := util.Digest(data)
	m.mu.Lock()
	m.blobs[digest] = data
	m.mu.Unlock()
	return digest, nil
}

func (m *Memory) Get(_ context.Context, digest string) (io.ReadCloser, error) {
	m.mu.Lock()
	data, ok := m.blobs[digest]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("blob %s not found", digest)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Delete(_ context.Context, digest string) error {
	m.mu.Lock()
	delete(m.blobs, digest)
	m.mu.Unlock()
	return nil
}
