package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Timestamps are stored as a one-key object so they survive a JSON round
// trip without being mistaken for strings.
const timeTag = "$t"

// MarshalJSON encodes the state as a plain JSON object. Keys with the ':'
// separator are stored as-is.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(encodeValue(s))
}

// UnmarshalJSON decodes a JSON object produced by MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	st, err := decodeObject(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// EncodeState renders the state as JSON bytes.
func EncodeState(s State) ([]byte, error) {
	return s.MarshalJSON()
}

// DecodeState parses JSON bytes into a state.
func DecodeState(data []byte) (State, error) {
	var s State
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return s, nil
}

func encodeValue(v Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case String:
		return string(t)
	case Int:
		return int64(t)
	case Float:
		return float64(t)
	case Bool:
		return bool(t)
	case Time:
		return map[string]any{timeTag: time.Time(t).Format(time.RFC3339Nano)}
	case Array:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = encodeValue(e)
		}
		return out
	case List:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = encodeValue(e)
		}
		return out
	case State:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = encodeValue(e)
		}
		return out
	default:
		return nil
	}
}

func decodeObject(raw map[string]any) (State, error) {
	if len(raw) == 1 {
		if ts, ok := raw[timeTag]; ok {
			s, _ := ts.(string)
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("decode timestamp %q: %w", s, err)
			}
			// caller unwraps; signalled via single-key convention
			return State{timeTag: Time(t)}, nil
		}
	}
	out := make(State, len(raw))
	for k, v := range raw {
		dv, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", k, err)
		}
		if dv != nil {
			out[k] = dv
		}
	}
	return out, nil
}

func decodeValue(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			n, err := t.Int64()
			if err == nil {
				return Int(n), nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("decode number %q: %w", s, err)
		}
		return Float(f), nil
	case map[string]any:
		obj, err := decodeObject(t)
		if err != nil {
			return nil, err
		}
		if ts, ok := obj[timeTag]; ok && len(obj) == 1 {
			return ts, nil
		}
		return obj, nil
	case []any:
		if len(t) == 0 {
			return nil, nil
		}
		// arrays of objects are ordered lists of sub-states, except for
		// arrays of timestamp wrappers
		if first, ok := t[0].(map[string]any); ok {
			if _, isTime := first[timeTag]; !isTime || len(first) != 1 {
				out := make(List, len(t))
				for i, e := range t {
					obj, ok := e.(map[string]any)
					if !ok {
						return nil, fmt.Errorf("mixed list at index %d", i)
					}
					st, err := decodeObject(obj)
					if err != nil {
						return nil, err
					}
					out[i] = st
				}
				return out, nil
			}
		}
		out := make(Array, len(t))
		for i, e := range t {
			ev, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value %T", raw)
	}
}
