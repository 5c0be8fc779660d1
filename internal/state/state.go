// Package state holds the semi-structured value representation used for every
// document revision: a flat map of property keys to tagged-variant values,
// with deep copy, structural equality and diffing.
package state

import (
	"time"
)

// Value is the sealed set of things a document property may hold: a scalar,
// a homogeneous array of scalars, a nested state, or an ordered list of
// nested states. Only the types in this package implement it.
type Value interface {
	isValue()
}

// String is a string scalar.
type String string

// Int is an integer scalar. Counts and positions are always Int, never Float.
type Int int64

// Float is a floating-point scalar.
type Float float64

// Bool is a boolean scalar.
type Bool bool

// Time is a timestamp scalar.
type Time time.Time

// Array is a homogeneous array of scalar values.
type Array []Value

// List is an ordered list of nested states (complex repeating structure).
type List []State

// State is one revision of one document: property key to value. A nested
// State is itself a Value (complex structure).
type State map[string]Value

func (String) isValue() {}
func (Int) isValue()    {}
func (Float) isValue()  {}
func (Bool) isValue()   {}
func (Time) isValue()   {}
func (Array) isValue()  {}
func (List) isValue()   {}
func (State) isValue()  {}

// Std converts back to the standard library representation.
func (t Time) Std() time.Time { return time.Time(t) }

// New returns an empty state.
func New() State { return make(State) }

// ID returns the document identifier, or "".
func (s State) ID() string { return s.GetString(KeyID) }

// GetString returns the string scalar under key, or "" when absent or of
// another kind.
func (s State) GetString(key string) string {
	if v, ok := s[key].(String); ok {
		return string(v)
	}
	return ""
}

// GetInt returns the integer scalar under key and whether it was present.
func (s State) GetInt(key string) (int64, bool) {
	if v, ok := s[key].(Int); ok {
		return int64(v), true
	}
	return 0, false
}

// GetBool returns the boolean scalar under key, absent meaning false.
func (s State) GetBool(key string) bool {
	v, ok := s[key].(Bool)
	return ok && bool(v)
}

// GetTime returns the timestamp under key and whether it was present.
func (s State) GetTime(key string) (time.Time, bool) {
	if v, ok := s[key].(Time); ok {
		return time.Time(v), true
	}
	return time.Time{}, false
}

// GetStrings returns the string elements of the array under key. A missing
// value yields nil.
func (s State) GetStrings(key string) []string {
	arr, ok := s[key].(Array)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if sv, ok := v.(String); ok {
			out = append(out, string(sv))
		}
	}
	return out
}

// SetStrings stores values as a string array under key; an empty slice clears
// the key (absent and empty are equivalent for arrays).
func (s State) SetStrings(key string, values []string) {
	if len(values) == 0 {
		delete(s, key)
		return
	}
	arr := make(Array, len(values))
	for i, v := range values {
		arr[i] = String(v)
	}
	s[key] = arr
}

// Set stores v under key; a nil Value deletes the key.
func (s State) Set(key string, v Value) {
	if v == nil {
		delete(s, key)
		return
	}
	s[key] = v
}

// DeepCopy returns an independently-owned copy of v.
func DeepCopy(v Value) Value {
	switch v := v.(type) {
	case nil:
		return nil
	case String, Int, Float, Bool, Time:
		return v
	case Array:
		out := make(Array, len(v))
		copy(out, v) // scalars, copy by value
		return out
	case List:
		out := make(List, len(v))
		for i, st := range v {
			out[i] = st.Copy()
		}
		return out
	case State:
		return v.Copy()
	}
	return v
}

// Copy returns a deep copy of the state.
func (s State) Copy() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = DeepCopy(v)
	}
	return out
}

// Equal reports structural equality of two values.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Time:
		bv, ok := b.(Time)
		return ok && time.Time(av).Equal(time.Time(bv))
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !av[i].Equal(bv[i]) {
				return false
			}
		}
		return true
	case State:
		bv, ok := b.(State)
		return ok && av.Equal(bv)
	}
	return false
}

// Equal reports structural equality of two states.
func (s State) Equal(o State) bool {
	if len(s) != len(o) {
		return false
	}
	for k, v := range s {
		ov, ok := o[k]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}
