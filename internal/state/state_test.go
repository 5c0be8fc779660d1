package state

import (
	"testing"
	"time"
)

func TestDeepCopyIsolation(t *testing.T) {
	orig := State{
		"dc:title": String("hello"),
		"dc:tags":  Array{String("a"), String("b")},
		"files": List{
			State{"name": String("one.txt"), "size": Int(12)},
		},
		"meta": State{"count": Int(3)},
	}
	cp := orig.Copy()
	if !cp.Equal(orig) {
		t.Fatalf("copy differs from original")
	}

	cp["dc:title"] = String("changed")
	cp["dc:tags"].(Array)[0] = String("z")
	cp["files"].(List)[0]["name"] = String("two.txt")
	cp["meta"].(State)["count"] = Int(9)

	if orig.GetString("dc:title") != "hello" {
		t.Errorf("scalar mutation leaked into original")
	}
	if got := orig["dc:tags"].(Array)[0]; got != String("a") {
		t.Errorf("array mutation leaked into original: %v", got)
	}
	if got := orig["files"].(List)[0].GetString("name"); got != "one.txt" {
		t.Errorf("list mutation leaked into original: %q", got)
	}
	if got, _ := orig["meta"].(State).GetInt("count"); got != 3 {
		t.Errorf("sub-state mutation leaked into original: %d", got)
	}
}

func TestEqual(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"equal strings", String("x"), String("x"), true},
		{"different strings", String("x"), String("y"), false},
		{"int vs float", Int(1), Float(1), false},
		{"equal times", Time(now), Time(now), true},
		{"different times", Time(now), Time(now.Add(time.Second)), false},
		{"equal arrays", Array{Int(1), Int(2)}, Array{Int(1), Int(2)}, true},
		{"array length mismatch", Array{Int(1)}, Array{Int(1), Int(2)}, false},
		{"array order matters", Array{Int(1), Int(2)}, Array{Int(2), Int(1)}, false},
		{"nil values", nil, nil, true},
		{"nil vs value", nil, String(""), false},
		{
			"nested states",
			State{"a": State{"b": Int(1)}},
			State{"a": State{"b": Int(1)}},
			true,
		},
		{
			"nested state mismatch",
			State{"a": State{"b": Int(1)}},
			State{"a": State{"b": Int(2)}},
			false,
		},
		{
			"equal lists",
			List{State{"k": String("v")}},
			List{State{"k": String("v")}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetStrings(t *testing.T) {
	s := New()
	s.SetStrings("dc:tags", []string{"x", "y"})
	if got := s.GetStrings("dc:tags"); len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("GetStrings() = %v", got)
	}
	s.SetStrings("dc:tags", nil)
	if _, ok := s["dc:tags"]; ok {
		t.Errorf("SetStrings(nil) should remove the key")
	}
	if got := s.GetStrings("missing"); got != nil {
		t.Errorf("GetStrings(missing) = %v, want nil", got)
	}
}

func TestNewDiff(t *testing.T) {
	old := State{
		"keep":   String("same"),
		"change": Int(1),
		"drop":   Bool(true),
	}
	new := State{
		"keep":   String("same"),
		"change": Int(2),
		"add":    String("fresh"),
	}
	d := NewDiff(old, new)
	if len(d) != 3 {
		t.Fatalf("diff has %d entries, want 3: %v", len(d), d)
	}
	if d["change"] != Int(2) {
		t.Errorf("changed key: got %v", d["change"])
	}
	if d["add"] != String("fresh") {
		t.Errorf("added key: got %v", d["add"])
	}
	if d["drop"] != Deleted {
		t.Errorf("dropped key: got %v, want Deleted", d["drop"])
	}
	if _, ok := d["keep"]; ok {
		t.Errorf("unchanged key should not be in the diff")
	}

	applied := old.Copy()
	d.Apply(applied)
	if !applied.Equal(new) {
		t.Errorf("applying the diff to old does not yield new: %v", applied)
	}
}

func TestNewDiffIdentical(t *testing.T) {
	s := State{"a": Int(1), "b": Array{String("x")}}
	if d := NewDiff(s, s.Copy()); d != nil {
		t.Errorf("diff of identical states = %v, want nil", d)
	}
}
