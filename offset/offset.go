// Package offset implements the typed offset values and per-partition
// progress samples that the lag monitor and the batched consumer both build
// on. Kafka reports "no committed offset" as the sentinel integer -1001; that
// sentinel is converted to Missing here, at the boundary, and must never leak
// past this package as a raw integer.
package offset

import "fmt"

// Sentinel is the raw Kafka wire value for "no committed offset".
const Sentinel int64 = -1001

// Value is a tagged union: either Missing (no committed offset yet) or
// Valid(n) with n >= 0. Zero value is Missing.
type Value struct {
	valid bool
	n     int64
}

// Missing is the zero Value.
var Missing = Value{}

// Valid returns a Value wrapping n. Panics if n < 0: callers must not
// construct Valid offsets from unchecked input, use Of for that.
func Valid(n int64) Value {
	if n < 0 {
		panic(fmt.Sprintf("offset: negative valid offset %d", n))
	}
	return Value{valid: true, n: n}
}

// Of converts a raw broker offset (as returned by FetchOffset, ListOffsets,
// etc) into a Value, mapping Sentinel to Missing. This is the only place
// Sentinel should ever be compared against.
func Of(raw int64) Value {
	if raw == Sentinel || raw < 0 {
		return Missing
	}
	return Value{valid: true, n: raw}
}

// IsMissing reports whether v carries no offset.
func (v Value) IsMissing() bool { return !v.valid }

// Int64 returns the underlying offset and true, or (0, false) if v is
// Missing.
func (v Value) Int64() (int64, bool) { return v.n, v.valid }

// ToRaw is the inverse of Of restricted to valid offsets: undefined (returns
// Sentinel) for Missing.
func (v Value) ToRaw() int64 {
	if !v.valid {
		return Sentinel
	}
	return v.n
}

func (v Value) String() string {
	if !v.valid {
		return "Missing"
	}
	return fmt.Sprintf("Valid(%d)", v.n)
}

// Sub returns a-b for two valid values, and ok=false if either is Missing.
func Sub(a, b Value) (diff int64, ok bool) {
	if !a.valid || !b.valid {
		return 0, false
	}
	return a.n - b.n, true
}
