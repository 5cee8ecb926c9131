// Package dynamic implements the polymorphic scalar that every spec
// field, condition target, and user custom value is carried in: a value
// of unknown shape (string, number, bool, array, or object) decoded from
// JSON, together with the lowercased and regex-compiled projections the
// evaluator's hot path needs repeatedly.
package dynamic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// valueCache holds the lazily-computed projections for a Value. It is
// allocated once by New and referenced by pointer so that Value itself
// stays a small, mutex-free, freely-copyable struct: every copy of a
// Value shares (and safely synchronizes access to) the same cache.
type valueCache struct {
	mu        sync.Mutex
	strDone   bool
	str       string
	strOK     bool
	lowerDone bool
	lower     string
	floatDone bool
	float     float64
	floatOK   bool
	boolDone  bool
	boolean   bool
	boolOK    bool
	arrDone   bool
	arr       []Value
	arrOK     bool
	objDone   bool
	obj       map[string]Value
	objOK     bool
}

// Value wraps an arbitrary JSON-decoded value and memoizes the
// projections (string, float, bool, array, object, lowercase) that
// callers ask for so repeated evaluations against the same spec do not
// re-derive them. raw is immutable once constructed, and the memoized
// projections live behind the cache pointer rather than inline, so
// Value is safe to copy by value (as specs.Condition/Rule/Spec and
// user.Field's return value all do).
type Value struct {
	raw   any
	cache *valueCache
}

// New wraps raw (typically the result of json.Unmarshal into any) in a
// Value.
func New(raw any) Value { return Value{raw: raw, cache: &valueCache{}} }

// Raw returns the underlying decoded value.
func (v *Value) Raw() any { return v.raw }

// IsNil reports whether the value is JSON null / Go nil.
func (v *Value) IsNil() bool { return v.raw == nil }

// ensureCache lazily allocates the cache for a Value built by the zero
// value (e.g. `dynamic.Value{}`, the not-found return from user.Field)
// rather than New.
func (v *Value) ensureCache() *valueCache {
	if v.cache == nil {
		v.cache = &valueCache{}
	}
	return v.cache
}

// AsString returns the value's string projection. Numbers and bools are
// stringified; arrays/objects are not.
func (v *Value) AsString() (string, bool) {
	c := v.ensureCache()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.strDone {
		return c.str, c.strOK
	}
	c.strDone = true
	switch t := v.raw.(type) {
	case string:
		c.str, c.strOK = t, true
	case float64:
		c.str, c.strOK = strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		c.str, c.strOK = strconv.Itoa(t), true
	case bool:
		c.str, c.strOK = strconv.FormatBool(t), true
	default:
		c.strOK = false
	}
	return c.str, c.strOK
}

// Lower returns the lowercased string projection, cached.
func (v *Value) Lower() (string, bool) {
	c := v.ensureCache()
	c.mu.Lock()
	if c.lowerDone {
		ok := c.strOK
		lower := c.lower
		c.mu.Unlock()
		return lower, ok
	}
	c.mu.Unlock()

	s, ok := v.AsString()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lowerDone {
		c.lower = strings.ToLower(s)
		c.lowerDone = true
	}
	return c.lower, ok
}

// AsFloat returns the numeric projection. Strings are parsed; bools are
// not converted (matching the spec's operator semantics, which keep
// numeric comparisons strict).
func (v *Value) AsFloat() (float64, bool) {
	c := v.ensureCache()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.floatDone {
		return c.float, c.floatOK
	}
	c.floatDone = true
	switch t := v.raw.(type) {
	case float64:
		c.float, c.floatOK = t, true
	case int:
		c.float, c.floatOK = float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			c.float, c.floatOK = f, true
		}
	}
	return c.float, c.floatOK
}

// AsBool returns the boolean projection.
func (v *Value) AsBool() (bool, bool) {
	c := v.ensureCache()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.boolDone {
		return c.boolean, c.boolOK
	}
	c.boolDone = true
	switch t := v.raw.(type) {
	case bool:
		c.boolean, c.boolOK = t, true
	case string:
		b, err := strconv.ParseBool(t)
		if err == nil {
			c.boolean, c.boolOK = b, true
		}
	}
	return c.boolean, c.boolOK
}

// AsArray returns the value's elements wrapped as Values, if raw is a
// []any.
func (v *Value) AsArray() ([]Value, bool) {
	c := v.ensureCache()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.arrDone {
		return c.arr, c.arrOK
	}
	c.arrDone = true
	if arr, ok := v.raw.([]any); ok {
		out := make([]Value, len(arr))
		for i, e := range arr {
			out[i] = New(e)
		}
		c.arr, c.arrOK = out, true
	}
	return c.arr, c.arrOK
}

// AsObject returns the value's fields wrapped as Values, if raw is a
// map[string]any.
func (v *Value) AsObject() (map[string]Value, bool) {
	c := v.ensureCache()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.objDone {
		return c.obj, c.objOK
	}
	c.objDone = true
	if obj, ok := v.raw.(map[string]any); ok {
		out := make(map[string]Value, len(obj))
		for k, e := range obj {
			out[k] = New(e)
		}
		c.obj, c.objOK = out, true
	}
	return c.obj, c.objOK
}

// String renders the value for logging/debugging only; not used on any
// evaluation path.
func (v *Value) String() string {
	return fmt.Sprintf("%v", v.raw)
}

// regexCache memoizes compiled regular expressions by pattern so that a
// str_matches condition referenced by many rules across many evaluations
// compiles its pattern exactly once (spec §4.4: "precompiled regex
// memoized on spec load").
type regexCache struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

var globalRegexCache = &regexCache{cache: make(map[string]*regexp.Regexp)}

// CompileCached returns a compiled *regexp.Regexp for pattern, compiling
// and memoizing it on first use.
func CompileCached(pattern string) (*regexp.Regexp, error) {
	globalRegexCache.mu.RLock()
	if re, ok := globalRegexCache.cache[pattern]; ok {
		globalRegexCache.mu.RUnlock()
		return re, nil
	}
	globalRegexCache.mu.RUnlock()

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	globalRegexCache.mu.Lock()
	defer globalRegexCache.mu.Unlock()
	if existing, ok := globalRegexCache.cache[pattern]; ok {
		return existing, nil
	}
	globalRegexCache.cache[pattern] = re
	return re, nil
}
