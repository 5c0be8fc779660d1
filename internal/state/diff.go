package state

// deletion is the Diff marker for a removed key.
type deletion struct{}

func (deletion) isValue() {}

// Deleted marks a key for removal inside a Diff.
var Deleted Value = deletion{}

// Diff is a sparse set of key updates: new value per changed key, Deleted for
// removed keys. Values inside a diff are full replacements, so a diff is safe
// to reapply ("redo from current state").
type Diff map[string]Value

// NewDiff computes the diff turning old into new. Both states are left
// untouched; the diff owns deep copies.
func NewDiff(old, new State) Diff {
	d := make(Diff)
	for k, nv := range new {
		ov, ok := old[k]
		if !ok || !Equal(ov, nv) {
			d[k] = DeepCopy(nv)
		}
	}
	for k := range old {
		if _, ok := new[k]; !ok {
			d[k] = Deleted
		}
	}
	if len(d) == 0 {
		return nil
	}
	return d
}

// Apply applies the diff to s in place.
func (d Diff) Apply(s State) {
	for k, v := range d {
		if v == Deleted {
			delete(s, k)
			continue
		}
		s[k] = DeepCopy(v)
	}
}
