package state

import (
	"time"

	"folio/core/internal/schema"
)

// Coerce converts a scalar value to the given kind, unwrapping nothing: the
// caller resolves constrained types first. Unconvertible values pass through
// unchanged so a bad write is visible rather than silently dropped.
func Coerce(v Value, k schema.Kind) Value {
	switch k {
	case schema.KindString:
		if s, ok := v.(String); ok {
			return s
		}
	case schema.KindInt:
		switch n := v.(type) {
		case Int:
			return n
		case Float:
			return Int(int64(n))
		}
	case schema.KindFloat:
		switch n := v.(type) {
		case Float:
			return n
		case Int:
			return Float(float64(n))
		}
	case schema.KindBool:
		if b, ok := v.(Bool); ok {
			return b
		}
	case schema.KindTime:
		if t, ok := v.(Time); ok {
			return t
		}
	}
	return v
}

// ToTypedArray converts an untyped array into a homogeneous array of the
// field's declared scalar kind, unwrapping constrained/simple type wrappers
// recursively. A nil or empty input yields nil.
func ToTypedArray(values Array, t schema.Type) Array {
	if len(values) == 0 {
		return nil
	}
	k := t.Resolve().Kind
	out := make(Array, len(values))
	for i, v := range values {
		out[i] = Coerce(v, k)
	}
	return out
}

// ReadField reads one schema field from the state, walking the type
// descriptor in lock-step with the stored value. Scalars copy by value,
// arrays are typed and copied, nested structures recurse, repeating
// structures recurse per element. Absent values return nil.
func ReadField(s State, sc *schema.Schema, f schema.Field) Value {
	key := sc.Key(f.Name)
	v, ok := s[key]
	if !ok {
		return nil
	}
	switch {
	case f.Repeating:
		list, ok := v.(List)
		if !ok {
			return nil
		}
		out := make(List, len(list))
		for i, sub := range list {
			out[i] = readComplex(sub, f.Complex)
		}
		return out
	case f.IsComplex():
		sub, ok := v.(State)
		if !ok {
			return nil
		}
		return readComplex(sub, f.Complex)
	case f.Array:
		arr, ok := v.(Array)
		if !ok {
			return nil
		}
		return ToTypedArray(arr, f.Type)
	default:
		return DeepCopy(v)
	}
}

func readComplex(s State, sc *schema.Schema) State {
	out := make(State, len(sc.Fields))
	for _, f := range sc.Fields {
		if v := ReadField(s, sc, f); v != nil {
			out[sc.Key(f.Name)] = v
		}
	}
	return out
}

// WriteField writes one schema field into the state. Nested structures are
// materialized as they are written: a sub-state or list element that did not
// exist before the write becomes real afterwards. A nil value clears the
// field.
func WriteField(s State, sc *schema.Schema, f schema.Field, v Value) {
	key := sc.Key(f.Name)
	if v == nil {
		delete(s, key)
		return
	}
	switch {
	case f.Repeating:
		list, _ := v.(List)
		out := make(List, len(list))
		for i, sub := range list {
			// fresh sub-state per element; phantom elements become real
			elem := New()
			writeComplex(elem, sub, f.Complex)
			out[i] = elem
		}
		s[key] = out
	case f.IsComplex():
		sub, _ := v.(State)
		elem, ok := s[key].(State)
		if !ok {
			elem = New()
			s[key] = elem
		}
		writeComplex(elem, sub, f.Complex)
	case f.Array:
		arr, _ := v.(Array)
		if typed := ToTypedArray(arr, f.Type); typed != nil {
			s[key] = typed
		} else {
			delete(s, key)
		}
	default:
		s[key] = Coerce(DeepCopy(v), f.Type.Resolve().Kind)
	}
}

func writeComplex(dst, src State, sc *schema.Schema) {
	for _, f := range sc.Fields {
		key := sc.Key(f.Name)
		if v, ok := src[key]; ok {
			WriteField(dst, sc, f, v)
		} else {
			delete(dst, key)
		}
	}
}

// Now is the engine clock, swappable in tests.
var Now = func() time.Time { return time.Now().UTC() }
