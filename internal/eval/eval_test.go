package eval

import (
	"testing"
	"time"

	"folio/core/internal/schema"
	"folio/core/internal/state"
)

func testRegistry() *schema.Registry {
	return schema.NewRegistry(
		[]schema.DocumentType{{Name: "Note", Schemas: []string{"dublincore"}}},
		[]*schema.Schema{{
			Name:   "dublincore",
			Prefix: "dc",
			Fields: []schema.Field{
				{Name: "title", Type: schema.Type{Kind: schema.KindString}},
				{Name: "rating", Type: schema.Type{Kind: schema.KindInt}},
				{Name: "created", Type: schema.Type{Kind: schema.KindTime}},
				{Name: "tags", Type: schema.Type{Kind: schema.KindString}, Array: true},
			},
		}},
	)
}

func val(v state.Value) []state.Value { return []state.Value{v} }

func TestMatches(t *testing.T) {
	ev := New(testRegistry())
	when := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	s := state.State{
		state.KeyID:          state.String("d1"),
		state.KeyPrimaryType: state.String("Note"),
		"dc:title":           state.String("Annual Report"),
		"dc:rating":          state.Int(4),
		"dc:created":         state.Time(when),
		"dc:tags":            state.Array{state.String("draft"), state.String("internal")},
	}
	tests := []struct {
		name string
		expr Expr
		want bool
	}{
		{"eq match", Eq("dc:title", state.String("Annual Report")), true},
		{"eq miss", Eq("dc:title", state.String("Other")), false},
		{"eq sys ref", Eq("sys:primaryType", state.String("Note")), true},
		{"eq no operand", Cmp{Ref: "dc:rating", Op: OpEq}, false},
		{"lt no operand", Cmp{Ref: "dc:rating", Op: OpLt}, false},
		{"ne", Cmp{Ref: "dc:rating", Op: OpNe, Values: val(state.Int(3))}, true},
		{"lt", Cmp{Ref: "dc:rating", Op: OpLt, Values: val(state.Int(5))}, true},
		{"ge miss", Cmp{Ref: "dc:rating", Op: OpGe, Values: val(state.Int(5))}, false},
		{"int vs float comparison", Cmp{Ref: "dc:rating", Op: OpEq, Values: val(state.Float(4))}, true},
		{"time gt", Cmp{Ref: "dc:created", Op: OpGt, Values: val(state.Time(when.AddDate(0, -1, 0)))}, true},
		{"like", Cmp{Ref: "dc:title", Op: OpLike, Values: val(state.String("Annual%"))}, true},
		{"like underscore", Cmp{Ref: "dc:title", Op: OpLike, Values: val(state.String("Annua_ Report"))}, true},
		{"like miss case", Cmp{Ref: "dc:title", Op: OpLike, Values: val(state.String("annual%"))}, false},
		{"ilike", Cmp{Ref: "dc:title", Op: OpILike, Values: val(state.String("annual%"))}, true},
		{"in", Cmp{Ref: "dc:rating", Op: OpIn, Values: []state.Value{state.Int(3), state.Int(4)}}, true},
		{"not in", Cmp{Ref: "dc:rating", Op: OpNotIn, Values: []state.Value{state.Int(3), state.Int(4)}}, false},
		{"between", Cmp{Ref: "dc:rating", Op: OpBetween, Values: []state.Value{state.Int(1), state.Int(5)}}, true},
		{"array element eq", Eq("dc:tags", state.String("draft")), true},
		{"array element miss", Eq("dc:tags", state.String("public")), false},
		{"is null on absent", Cmp{Ref: "dc:description", Op: OpIsNull}, false}, // unresolvable ref
		{"is not null", Cmp{Ref: "dc:title", Op: OpIsNotNull}, true},
		{"and", And{Eq("dc:title", state.String("Annual Report")), Eq("sys:id", state.String("d1"))}, true},
		{"and short", And{Eq("dc:title", state.String("nope")), Eq("sys:id", state.String("d1"))}, false},
		{"or", Or{Eq("dc:title", state.String("nope")), Eq("sys:id", state.String("d1"))}, true},
		{"not", Not{E: Eq("dc:title", state.String("nope"))}, true},
		{"nil expr matches all", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ev.Matches(tt.expr, s); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMissingArrayReadsEmpty(t *testing.T) {
	ev := New(testRegistry())
	s := state.State{state.KeyID: state.String("d1")}

	// IS NULL holds for a missing array property.
	if !ev.Matches(Cmp{Ref: "dc:tags", Op: OpIsNull}, s) {
		t.Errorf("missing array should test as null")
	}
	if ev.Matches(Eq("dc:tags", state.String("x")), s) {
		t.Errorf("missing array should match no element")
	}
	if !ev.Matches(Cmp{Ref: "sys:facets", Op: OpIsNull}, s) {
		t.Errorf("missing facets should test as null")
	}
}

func TestFulltextMatch(t *testing.T) {
	s := state.State{
		state.KeyFulltextSimple: state.String("annual report summary"),
		state.KeyFulltextBinary: state.String("appendix tables"),
	}
	ev := New(testRegistry())
	tests := []struct {
		query string
		want  bool
	}{
		{"report", true},
		{"REPORT", true},
		{"appendix", true},
		{"report appendix", true},
		{"report missingword", false},
	}
	for _, tt := range tests {
		if got := ev.Matches(Fulltext{Query: tt.query}, s); got != tt.want {
			t.Errorf("Fulltext(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestComparatorNullsLast(t *testing.T) {
	ev := New(testRegistry())
	withTitle := state.State{state.KeyID: state.String("a"), "dc:title": state.String("apple")}
	alsoTitled := state.State{state.KeyID: state.String("b"), "dc:title": state.String("banana")}
	untitled := state.State{state.KeyID: state.String("c")}

	asc := NewComparator(ev, []OrderKey{{Ref: "dc:title"}})
	if asc.Compare(withTitle, alsoTitled) >= 0 {
		t.Errorf("apple should sort before banana")
	}
	if asc.Compare(withTitle, untitled) >= 0 {
		t.Errorf("missing value should sort last ascending")
	}

	desc := NewComparator(ev, []OrderKey{{Ref: "dc:title", Desc: true}})
	if desc.Compare(alsoTitled, withTitle) >= 0 {
		t.Errorf("banana should sort first descending")
	}
	if desc.Compare(withTitle, untitled) >= 0 {
		t.Errorf("missing value should sort last descending too")
	}
}

func TestComparatorTieFallsThrough(t *testing.T) {
	ev := New(testRegistry())
	a := state.State{"dc:title": state.String("same"), "dc:rating": state.Int(1)}
	b := state.State{"dc:title": state.String("same"), "dc:rating": state.Int(2)}
	c := NewComparator(ev, []OrderKey{{Ref: "dc:title"}, {Ref: "dc:rating", Desc: true}})
	if c.Compare(a, b) <= 0 {
		t.Errorf("tie on title should fall through to rating desc")
	}
}
