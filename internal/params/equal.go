// ABOUTME: Semantic equality for typed values
// ABOUTME: Ignores whether a value was explicitly typed or inferred from a bare scalar

package params

import (
	"bytes"
	"encoding/json"
	"math"
)

// Equal reports whether a and b hold the same kind and content. Params compare as
// key sets, so two containers with the same entries in a different order are equal.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindAbsent, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt32, KindInt64:
		return a.i == b.i
	case KindDouble:
		return a.f == b.f || (math.IsNaN(a.f) && math.IsNaN(b.f))
	case KindString:
		return a.s == b.s
	case KindBinary:
		return bytes.Equal(a.bin, b.bin)
	case KindDateTime:
		return a.t.Equal(b.t)
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindParams:
		return EqualParams(a.p, b.p)
	case KindOpaque:
		if a.opaque.Type != b.opaque.Type {
			return false
		}
		return compactEqual(a.opaque.Raw, b.opaque.Raw)
	}
	return false
}

// EqualParams compares two containers entry by entry.
func EqualParams(a, b *Params) bool {
	if a.Len() != b.Len() {
		return false
	}
	equal := true
	a.Range(func(k string, av Value) bool {
		bv, ok := b.Get(k)
		if !ok || !Equal(av, bv) {
			equal = false
			return false
		}
		return true
	})
	return equal
}

func compactEqual(a, b []byte) bool {
	var ca, cb bytes.Buffer
	if err := json.Compact(&ca, a); err != nil {
		return bytes.Equal(a, b)
	}
	if err := json.Compact(&cb, b); err != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
