package evaluator

import (
	"strconv"
	"strings"

	"github.com/statsig-io/go-server-core/internal/dynamic"
)

// evalOperator is the dispatch table keyed by (implicit condition type,
// operator) from spec §4.4/§9 ("operators as a dispatch table"). found
// reports whether the left-hand value resolved at all; most operators
// treat an unresolved field as a failed condition.
func evalOperator(op string, left dynamic.Value, found bool, target dynamic.Value, additional map[string]dynamic.Value) bool {
	switch op {
	case "any", "none":
		return anyNone(op, left, found, additional)
	case "any_case_sensitive", "none_case_sensitive":
		return anyNoneCaseSensitive(op, left, found, additional)
	case "gt", "gte", "lt", "lte":
		return numericCompare(op, left, found, target)
	case "eq":
		return found && dynamicEqual(left, target)
	case "neq":
		return !found || !dynamicEqual(left, target)
	case "str_contains_any", "str_contains_none":
		return strContains(op, left, found, additional)
	case "str_matches":
		return strMatches(left, found, target)
	case "str_starts_with_any", "str_ends_with_any":
		return strAffix(op, left, found, additional)
	case "version_gt", "version_gte", "version_lt", "version_lte", "version_eq", "version_neq":
		return versionCompare(op, left, found, target)
	case "array_contains_all", "array_contains_any", "array_contains_none", "not_array_contains_all":
		return arrayContains(op, left, found, target)
	case "before", "after", "on":
		return timeOperator(op, timeValueMillis(left, found), target)
	default:
		return false
	}
}

func dynamicEqual(left, target dynamic.Value) bool {
	ls, lok := left.AsString()
	ts, tok := target.AsString()
	if lok && tok {
		return ls == ts
	}
	lf, lok2 := left.AsFloat()
	tf, tok2 := target.AsFloat()
	if lok2 && tok2 {
		return lf == tf
	}
	lb, lok3 := left.AsBool()
	tb, tok3 := target.AsBool()
	if lok3 && tok3 {
		return lb == tb
	}
	return false
}

func anyNone(op string, left dynamic.Value, found bool, additional map[string]dynamic.Value) bool {
	in := found && memberOfAdditional(left, additional, false)
	if op == "any" {
		return in
	}
	return !in
}

func anyNoneCaseSensitive(op string, left dynamic.Value, found bool, additional map[string]dynamic.Value) bool {
	in := found && memberOfAdditional(left, additional, true)
	if op == "any_case_sensitive" {
		return in
	}
	return !in
}

// memberOfAdditional tests left against the "values" entry of a
// condition's additional_values (spec §4.4: "'any'/'none' use the
// rule's additional_values as a HashSet").
func memberOfAdditional(left dynamic.Value, additional map[string]dynamic.Value, caseSensitive bool) bool {
	values, ok := additional["values"]
	if !ok {
		return false
	}
	arr, ok := values.AsArray()
	if !ok {
		return false
	}
	ls, lok := left.AsString()
	if !lok {
		return false
	}
	if !caseSensitive {
		ls = strings.ToLower(ls)
	}
	for _, v := range arr {
		vs, ok := v.AsString()
		if !ok {
			continue
		}
		if !caseSensitive {
			vs = strings.ToLower(vs)
		}
		if vs == ls {
			return true
		}
	}
	return false
}

func numericCompare(op string, left dynamic.Value, found bool, target dynamic.Value) bool {
	if !found {
		return false
	}
	lf, lok := left.AsFloat()
	tf, tok := target.AsFloat()
	if !lok || !tok {
		return false
	}
	switch op {
	case "gt":
		return lf > tf
	case "gte":
		return lf >= tf
	case "lt":
		return lf < tf
	case "lte":
		return lf <= tf
	}
	return false
}

func strContains(op string, left dynamic.Value, found bool, additional map[string]dynamic.Value) bool {
	any := found && memberSubstring(left, additional)
	if op == "str_contains_any" {
		return any
	}
	return !any
}

func memberSubstring(left dynamic.Value, additional map[string]dynamic.Value) bool {
	values, ok := additional["values"]
	if !ok {
		return false
	}
	arr, ok := values.AsArray()
	if !ok {
		return false
	}
	ls, ok := left.Lower()
	if !ok {
		return false
	}
	for _, v := range arr {
		vs, ok := v.Lower()
		if !ok {
			continue
		}
		if strings.Contains(ls, vs) {
			return true
		}
	}
	return false
}

func strAffix(op string, left dynamic.Value, found bool, additional map[string]dynamic.Value) bool {
	if !found {
		return false
	}
	values, ok := additional["values"]
	if !ok {
		return false
	}
	arr, ok := values.AsArray()
	if !ok {
		return false
	}
	ls, ok := left.Lower()
	if !ok {
		return false
	}
	for _, v := range arr {
		vs, ok := v.Lower()
		if !ok {
			continue
		}
		if op == "str_starts_with_any" && strings.HasPrefix(ls, vs) {
			return true
		}
		if op == "str_ends_with_any" && strings.HasSuffix(ls, vs) {
			return true
		}
	}
	return false
}

func strMatches(left dynamic.Value, found bool, target dynamic.Value) bool {
	if !found {
		return false
	}
	pattern, ok := target.AsString()
	if !ok {
		return false
	}
	re, err := dynamic.CompileCached(pattern)
	if err != nil {
		return false
	}
	ls, ok := left.AsString()
	if !ok {
		return false
	}
	return re.MatchString(ls)
}

// versionParts parses MAJOR.MINOR.PATCH[.N]* stripping any trailing
// "-rc1"-style pre-release suffix from the final numeric segment, per
// spec §4.4 ("version comparisons parse MAJOR.MINOR.PATCH[.N]* and
// compare component-wise").
func versionParts(s string) []int {
	s = strings.SplitN(s, "-", 2)[0]
	segs := strings.Split(s, ".")
	out := make([]int, len(segs))
	for i, seg := range segs {
		n, err := strconv.Atoi(seg)
		if err != nil {
			n = 0
		}
		out[i] = n
	}
	return out
}

func versionCompare(op string, left dynamic.Value, found bool, target dynamic.Value) bool {
	if !found {
		return false
	}
	ls, lok := left.AsString()
	ts, tok := target.AsString()
	if !lok || !tok {
		return false
	}
	a, b := versionParts(ls), versionParts(ts)
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	cmp := 0
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				cmp = -1
			} else {
				cmp = 1
			}
			break
		}
	}
	switch op {
	case "version_gt":
		return cmp > 0
	case "version_gte":
		return cmp >= 0
	case "version_lt":
		return cmp < 0
	case "version_lte":
		return cmp <= 0
	case "version_eq":
		return cmp == 0
	case "version_neq":
		return cmp != 0
	}
	return false
}

func arrayContains(op string, left dynamic.Value, found bool, target dynamic.Value) bool {
	if !found {
		return op == "array_contains_none"
	}
	leftArr, ok := left.AsArray()
	if !ok {
		return op == "array_contains_none"
	}
	targetArr, ok := target.AsArray()
	if !ok {
		return false
	}

	leftSet := make(map[string]struct{}, len(leftArr))
	for _, v := range leftArr {
		if s, ok := v.AsString(); ok {
			leftSet[s] = struct{}{}
		}
	}

	allPresent := true
	anyPresent := false
	for _, v := range targetArr {
		s, ok := v.AsString()
		if !ok {
			allPresent = false
			continue
		}
		if _, ok := leftSet[s]; ok {
			anyPresent = true
		} else {
			allPresent = false
		}
	}

	switch op {
	case "array_contains_all":
		return allPresent
	case "not_array_contains_all":
		return !allPresent
	case "array_contains_any":
		return anyPresent
	case "array_contains_none":
		return !anyPresent
	}
	return false
}

// dayFloorMillis is 86400000, the milliseconds-per-day used by the "on"
// time operator to compare two timestamps by whole calendar day (spec
// §4.4: "'on' comparing whole days (floor(t/86400000))").
const dayFloorMillis = 86400000

func timeValueMillis(v dynamic.Value, found bool) int64 {
	if !found {
		return 0
	}
	f, ok := v.AsFloat()
	if !ok {
		return 0
	}
	return int64(f)
}

func timeOperator(op string, leftMillis int64, target dynamic.Value) bool {
	tf, ok := target.AsFloat()
	if !ok {
		return false
	}
	targetMillis := int64(tf)
	switch op {
	case "before":
		return leftMillis < targetMillis
	case "after":
		return leftMillis > targetMillis
	case "on":
		return leftMillis/dayFloorMillis == targetMillis/dayFloorMillis
	}
	return false
}
