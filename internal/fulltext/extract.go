package fulltext

import (
	"context"
	"io"
	"log"
	"strings"

	"folio/core/internal/blob"
	"folio/core/internal/state"
)

// Index names for the two fulltext fields kept on every document.
const (
	SimpleIndex = "simple"
	BinaryIndex = "binary"
)

// IndexAndText is one extracted batch entry handed to the updater.
type IndexAndText struct {
	Index string
	Text  string
}

// Config scopes extraction. An empty IncludeTypes indexes every type.
type Config struct {
	IncludeTypes []string
}

// Indexable reports whether documents of typeName get fulltext.
func (c Config) Indexable(typeName string) bool {
	if len(c.IncludeTypes) == 0 {
		return true
	}
	for _, t := range c.IncludeTypes {
		if t == typeName {
			return true
		}
	}
	return false
}

// Extractor turns one document state into (index, text) batches: string
// properties feed the simple index, text-typed blobs feed the binary index.
type Extractor struct {
	blobs blob.Store
	cfg   Config
}

// NewExtractor returns an extractor reading blob content from blobs, which
// may be nil when no binary storage is configured.
func NewExtractor(blobs blob.Store, cfg Config) *Extractor {
	return &Extractor{blobs: blobs, cfg: cfg}
}

// Extract collects and normalizes the indexable text of st. Blob fetch or
// decode failures skip the blob and keep going.
func (e *Extractor) Extract(ctx context.Context, st state.State) []IndexAndText {
	if !e.cfg.Indexable(st.GetString(state.KeyPrimaryType)) {
		return nil
	}
	var simple, binary []string
	e.walk(ctx, st, &simple, &binary)
	return []IndexAndText{
		{Index: SimpleIndex, Text: strings.Join(simple, " ")},
		{Index: BinaryIndex, Text: strings.Join(binary, " ")},
	}
}

func (e *Extractor) walk(ctx context.Context, st state.State, simple, binary *[]string) {
	for key, v := range st {
		if state.IsSystemKey(key) {
			continue
		}
		e.walkValue(ctx, v, simple, binary)
	}
}

func (e *Extractor) walkValue(ctx context.Context, v state.Value, simple, binary *[]string) {
	switch t := v.(type) {
	case state.String:
		if parsed := Parse(string(t)); parsed != "" {
			*simple = append(*simple, parsed)
		}
	case state.Array:
		for _, el := range t {
			e.walkValue(ctx, el, simple, binary)
		}
	case state.List:
		for _, sub := range t {
			e.walk(ctx, sub, simple, binary)
		}
	case state.State:
		if info, ok := blob.FromState(t); ok {
			if text := e.blobText(ctx, info); text != "" {
				*binary = append(*binary, text)
			}
			return
		}
		e.walk(ctx, t, simple, binary)
	}
}

// blobText fetches and parses a blob when its mime type is textual. There
// are no external converters; binary formats are skipped.
func (e *Extractor) blobText(ctx context.Context, info blob.Info) string {
	if e.blobs == nil {
		return ""
	}
	if !textual(info.MimeType) {
		return ""
	}
	r, err := e.blobs.Get(ctx, info.Digest)
	if err != nil {
		log.Printf("fulltext: fetch blob %s: %v", info.Digest, err)
		return ""
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		log.Printf("fulltext: read blob %s: %v", info.Digest, err)
		return ""
	}
	return Parse(string(data))
}

func textual(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/xhtml+xml", "application/xml", "application/json":
		return true
	}
	return false
}
