// Package schema is the injected type registry the store is configured with:
// document types and their facets, and the schemas (field descriptors) a type
// is composed of. The session, ACL resolver and expression evaluator all take
// a *Registry at construction; there is no process-wide lookup.
package schema

import (
	"fmt"
	"strings"
)

// Kind is the scalar kind of a field.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
)

// Type describes a field's scalar type. Constrained and simple user-defined
// types wrap a base type; Resolve unwraps the chain.
type Type struct {
	Kind Kind
	Base *Type
}

// Resolve unwraps constrained/simple wrappers down to the underlying type.
func (t Type) Resolve() Type {
	for t.Base != nil {
		t = *t.Base
	}
	return t
}

// Field describes one property of a schema.
type Field struct {
	Name string
	Type Type

	// Array marks a homogeneous array of Type scalars.
	Array bool

	// Complex points at the sub-schema for a nested structure. With
	// Repeating set, the field is an ordered list of such structures.
	Complex   *Schema
	Repeating bool
}

// IsComplex reports whether the field holds nested state(s).
func (f Field) IsComplex() bool { return f.Complex != nil }

// Schema is a named, prefixed group of fields.
type Schema struct {
	Name   string
	Prefix string
	Fields []Field
}

// Field returns the named field.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Key returns the stored property key for a field of this schema.
func (s *Schema) Key(field string) string {
	if s.Prefix == "" {
		return field
	}
	return s.Prefix + ":" + field
}

// Facet names with engine-level meaning.
const (
	FacetOrderable   = "Orderable"
	FacetFolderish   = "Folderish"
	FacetVersionable = "Versionable"
)

// DocumentType names a primary type: its facets and the schemas its
// documents may hold fields from.
type DocumentType struct {
	Name    string
	Facets  []string
	Schemas []string
}

// HasFacet reports whether the type carries the named facet.
func (t DocumentType) HasFacet(name string) bool {
	for _, f := range t.Facets {
		if f == name {
			return true
		}
	}
	return false
}

// Registry holds the active document types and schemas.
type Registry struct {
	types   map[string]DocumentType
	schemas map[string]*Schema
	ordered []*Schema // declaration order, for deterministic bare-name search
	byPfx   map[string]*Schema
}

// NewRegistry builds a registry from the given types and schemas.
func NewRegistry(types []DocumentType, schemas []*Schema) *Registry {
	r := &Registry{
		types:   make(map[string]DocumentType, len(types)),
		schemas: make(map[string]*Schema, len(schemas)),
		ordered: schemas,
		byPfx:   make(map[string]*Schema, len(schemas)),
	}
	for _, t := range types {
		r.types[t.Name] = t
	}
	for _, s := range schemas {
		r.schemas[s.Name] = s
		if s.Prefix != "" {
			r.byPfx[s.Prefix] = s
		}
	}
	return r
}

// DocumentType returns the named type.
func (r *Registry) DocumentType(name string) (DocumentType, error) {
	t, ok := r.types[name]
	if !ok {
		return DocumentType{}, fmt.Errorf("unknown document type: %s", name)
	}
	return t, nil
}

// Schema returns the named schema.
func (r *Registry) Schema(name string) (*Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// SchemaByPrefix returns the schema registered under a property prefix.
func (r *Registry) SchemaByPrefix(prefix string) (*Schema, bool) {
	s, ok := r.byPfx[prefix]
	return s, ok
}

// SchemasOf returns the schemas of a document type, in declaration order.
func (r *Registry) SchemasOf(t DocumentType) []*Schema {
	out := make([]*Schema, 0, len(t.Schemas))
	for _, name := range t.Schemas {
		if s, ok := r.schemas[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// HasFacet reports whether the named type carries the facet; unknown types
// have no facets.
func (r *Registry) HasFacet(typeName, facet string) bool {
	t, ok := r.types[typeName]
	return ok && t.HasFacet(facet)
}

// ResolveReference maps a property reference to its stored key and field.
// A "prefix:field" reference resolves through the prefix table; a bare name
// is searched across all schemas, first match wins.
func (r *Registry) ResolveReference(ref string) (string, Field, bool) {
	s, f, ok := r.ResolveField(ref)
	if !ok {
		return "", Field{}, false
	}
	return s.Key(f.Name), f, true
}

// ResolveField is ResolveReference returning the owning schema as well.
func (r *Registry) ResolveField(ref string) (*Schema, Field, bool) {
	if i := strings.IndexByte(ref, ':'); i > 0 {
		pfx, name := ref[:i], ref[i+1:]
		s, ok := r.byPfx[pfx]
		if !ok {
			return nil, Field{}, false
		}
		f, ok := s.Field(name)
		if !ok {
			return nil, Field{}, false
		}
		return s, f, true
	}
	for _, s := range r.ordered {
		if f, ok := s.Field(ref); ok {
			return s, f, true
		}
	}
	return nil, Field{}, false
}
