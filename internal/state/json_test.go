package state

import (
	"testing"
	"time"
)

func TestJSONRoundTrip(t *testing.T) {
	when := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	orig := State{
		"sys:id":      String("doc-1"),
		"dc:title":    String("quarterly report"),
		"dc:count":    Int(42),
		"dc:score":    Float(0.5),
		"dc:ok":       Bool(true),
		"dc:created":  Time(when),
		"dc:tags":     Array{String("a"), String("b")},
		"dc:numbers":  Array{Int(1), Int(2)},
		"dc:contact":  State{"email": String("x@example.com")},
		"files": List{
			State{"name": String("a.txt"), "size": Int(10)},
			State{"name": String("b.txt"), "size": Int(20)},
		},
	}

	data, err := EncodeState(orig)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeState(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Equal(orig) {
		t.Fatalf("round trip changed the state:\n got %v\nwant %v", got, orig)
	}

	// Scalar kinds must survive, not just values.
	if _, ok := got["dc:count"].(Int); !ok {
		t.Errorf("dc:count decoded as %T, want Int", got["dc:count"])
	}
	if _, ok := got["dc:score"].(Float); !ok {
		t.Errorf("dc:score decoded as %T, want Float", got["dc:score"])
	}
	if tv, ok := got["dc:created"].(Time); !ok || !tv.Std().Equal(when) {
		t.Errorf("dc:created decoded as %T %v", got["dc:created"], got["dc:created"])
	}
}

func TestJSONTimeArray(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := State{"dc:dates": Array{Time(when), Time(when.Add(time.Hour))}}

	data, err := EncodeState(orig)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeState(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	arr, ok := got["dc:dates"].(Array)
	if !ok {
		t.Fatalf("dc:dates decoded as %T, want Array", got["dc:dates"])
	}
	if len(arr) != 2 {
		t.Fatalf("array length %d, want 2", len(arr))
	}
	if _, ok := arr[0].(Time); !ok {
		t.Errorf("element decoded as %T, want Time", arr[0])
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeState([]byte(`[1,2,3]`)); err == nil {
		t.Errorf("decoding a JSON array should fail")
	}
	if _, err := DecodeState([]byte(`{"a":`)); err == nil {
		t.Errorf("decoding truncated JSON should fail")
	}
}
