package eval

import (
	"regexp"
	"strings"
	"time"

	"folio/core/internal/schema"
	"folio/core/internal/state"
)

// sysRefs is the fixed reference table for system-namespaced property
// references. Anything not listed here resolves through the schema registry.
var sysRefs = map[string]string{
	"sys:id":                   state.KeyID,
	"sys:parentId":             state.KeyParentID,
	"sys:ancestorIds":          state.KeyAncestorIDs,
	"sys:name":                 state.KeyName,
	"sys:pos":                  state.KeyPos,
	"sys:primaryType":          state.KeyPrimaryType,
	"sys:facets":               state.KeyFacets,
	"sys:isVersion":            state.KeyIsVersion,
	"sys:isLatestVersion":      state.KeyIsLatestVersion,
	"sys:isLatestMajorVersion": state.KeyIsLatestMajorVersion,
	"sys:versionSeriesId":      state.KeyVersionSeriesID,
	"sys:versionLabel":         state.KeyVersionLabel,
	"sys:versionCreated":       state.KeyVersionCreated,
	"sys:isCheckedIn":          state.KeyIsCheckedIn,
	"sys:baseVersionId":        state.KeyBaseVersionID,
	"sys:isProxy":              state.KeyIsProxy,
	"sys:proxyTargetId":        state.KeyProxyTargetID,
	"sys:proxyVersionSeriesId": state.KeyProxyVersionSeriesID,
	"sys:lockOwner":            state.KeyLockOwner,
	"sys:lockCreated":          state.KeyLockCreated,
	"sys:lifecycleState":       state.KeyLifecycleState,
	"sys:readAcl":              state.KeyReadACL,
	"sys:fulltext":             state.KeyFulltextSimple,
}

// Evaluator resolves property references and evaluates expressions. The
// predicate path and the ordering comparator share the same resolution so
// filtering and sorting cannot disagree.
type Evaluator struct {
	reg *schema.Registry
}

// New returns an evaluator over the registry.
func New(reg *schema.Registry) *Evaluator {
	return &Evaluator{reg: reg}
}

// resolve maps a property reference to its stored key and whether the field
// is array-valued.
func (ev *Evaluator) resolve(ref string) (string, bool, bool) {
	if key, ok := sysRefs[ref]; ok {
		isArray := key == state.KeyAncestorIDs || key == state.KeyFacets || key == state.KeyReadACL
		return key, isArray, true
	}
	key, f, ok := ev.reg.ResolveReference(ref)
	if !ok {
		return "", false, false
	}
	return key, f.Array, true
}

// value reads the referenced property off the state. A missing array-valued
// property reads as an empty array so existence checks stay two-valued.
func (ev *Evaluator) value(s state.State, ref string) (state.Value, bool) {
	key, isArray, ok := ev.resolve(ref)
	if !ok {
		return nil, false
	}
	v, present := s[key]
	if !present {
		if isArray {
			return state.Array{}, true
		}
		return nil, true
	}
	return v, true
}

// Matches evaluates the expression against one state. An unresolvable
// reference makes its comparison false, never an error.
func (ev *Evaluator) Matches(e Expr, s state.State) bool {
	switch t := e.(type) {
	case nil:
		return true
	case And:
		for _, sub := range t {
			if !ev.Matches(sub, s) {
				return false
			}
		}
		return true
	case Or:
		for _, sub := range t {
			if ev.Matches(sub, s) {
				return true
			}
		}
		return false
	case Not:
		return !ev.Matches(t.E, s)
	case Cmp:
		return ev.matchCmp(t, s)
	case Fulltext:
		return matchFulltext(t.Query, s)
	default:
		return false
	}
}

func (ev *Evaluator) matchCmp(c Cmp, s state.State) bool {
	v, ok := ev.value(s, c.Ref)
	if !ok {
		return false
	}
	switch c.Op {
	case OpIsNull:
		return isNull(v)
	case OpIsNotNull:
		return !isNull(v)
	}
	// array property: any element satisfying the comparison matches
	if arr, isArr := v.(state.Array); isArr {
		for _, e := range arr {
			if matchScalar(e, c) {
				return true
			}
		}
		return false
	}
	return matchScalar(v, c)
}

func isNull(v state.Value) bool {
	if v == nil {
		return true
	}
	if arr, ok := v.(state.Array); ok {
		return len(arr) == 0
	}
	return false
}

func matchScalar(v state.Value, c Cmp) bool {
	switch c.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		if len(c.Values) == 0 {
			return false
		}
	}
	switch c.Op {
	case OpEq:
		cmp, ok := Compare(v, c.Values[0])
		return ok && cmp == 0
	case OpNe:
		cmp, ok := Compare(v, c.Values[0])
		return ok && cmp != 0
	case OpLt:
		cmp, ok := Compare(v, c.Values[0])
		return ok && cmp < 0
	case OpLe:
		cmp, ok := Compare(v, c.Values[0])
		return ok && cmp <= 0
	case OpGt:
		cmp, ok := Compare(v, c.Values[0])
		return ok && cmp > 0
	case OpGe:
		cmp, ok := Compare(v, c.Values[0])
		return ok && cmp >= 0
	case OpLike:
		return matchLike(v, c.Values, false)
	case OpILike:
		return matchLike(v, c.Values, true)
	case OpIn:
		for _, w := range c.Values {
			if cmp, ok := Compare(v, w); ok && cmp == 0 {
				return true
			}
		}
		return false
	case OpNotIn:
		for _, w := range c.Values {
			if cmp, ok := Compare(v, w); ok && cmp == 0 {
				return false
			}
		}
		return true
	case OpBetween:
		if len(c.Values) != 2 {
			return false
		}
		lo, okLo := Compare(v, c.Values[0])
		hi, okHi := Compare(v, c.Values[1])
		return okLo && okHi && lo >= 0 && hi <= 0
	default:
		return false
	}
}

func matchLike(v state.Value, values []state.Value, caseless bool) bool {
	s, ok := v.(state.String)
	if !ok || len(values) == 0 {
		return false
	}
	p, ok := values[0].(state.String)
	if !ok {
		return false
	}
	return likeRegexp(string(p), caseless).MatchString(string(s))
}

// likeRegexp translates a LIKE pattern (% and _ wildcards) to a regexp.
func likeRegexp(pattern string, caseless bool) *regexp.Regexp {
	var sb strings.Builder
	if caseless {
		sb.WriteString("(?i)")
	}
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}

func matchFulltext(query string, s state.State) bool {
	text := strings.ToLower(s.GetString(state.KeyFulltextSimple) + " " + s.GetString(state.KeyFulltextBinary))
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if !strings.Contains(text, word) {
			return false
		}
	}
	return true
}

// Compare orders two scalar values naturally. Booleans compare as 0/1 and
// integers compare against floats. The second result is false when the
// values are not comparable.
func Compare(a, b state.Value) (int, bool) {
	if an, aok := toNumber(a); aok {
		bn, bok := toNumber(b)
		if !bok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	switch at := a.(type) {
	case state.String:
		bt, ok := b.(state.String)
		if !ok {
			return 0, false
		}
		return strings.Compare(string(at), string(bt)), true
	case state.Time:
		bt, ok := b.(state.Time)
		if !ok {
			return 0, false
		}
		x, y := time.Time(at), time.Time(bt)
		switch {
		case x.Before(y):
			return -1, true
		case x.After(y):
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

func toNumber(v state.Value) (float64, bool) {
	switch t := v.(type) {
	case state.Int:
		return float64(t), true
	case state.Float:
		return float64(t), true
	case state.Bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
