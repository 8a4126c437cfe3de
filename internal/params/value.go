// ABOUTME: Typed value model for the KSC OpenAPI wire format
// ABOUTME: Closed tagged union of scalars, binary, datetime, arrays and nested params

package params

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// KindAbsent marks a missing lookup result. It is never encoded.
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindInt32
	KindInt64
	KindDouble
	KindString
	KindBinary
	KindDateTime
	KindArray
	KindParams
	// KindOpaque holds a tagged object whose type discriminator is unknown to this client.
	KindOpaque
)

var kindNames = map[Kind]string{
	KindAbsent:   "absent",
	KindNull:     "null",
	KindBool:     "bool",
	KindInt32:    "int",
	KindInt64:    "long",
	KindDouble:   "double",
	KindString:   "string",
	KindBinary:   "binary",
	KindDateTime: "datetime",
	KindArray:    "array",
	KindParams:   "params",
	KindOpaque:   "opaque",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Opaque is the undecoded payload of a tagged object with an unrecognised type.
type Opaque struct {
	Type string
	Raw  json.RawMessage
}

// Value is an immutable wire value. The zero Value is absent.
type Value struct {
	kind     Kind
	explicit bool
	b        bool
	i        int64
	f        float64
	s        string
	bin      []byte
	t        time.Time
	arr      []Value
	p        *Params
	opaque   *Opaque
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b, explicit: true} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s, explicit: true} }

// Int32 returns an explicitly typed 32-bit integer. It is always sent tagged.
func Int32(n int32) Value { return Value{kind: KindInt32, i: int64(n), explicit: true} }

// Int64 returns an explicitly typed 64-bit integer. It is always sent tagged.
func Int64(n int64) Value { return Value{kind: KindInt64, i: n, explicit: true} }

// Double returns an explicitly typed floating point value. It is always sent tagged.
func Double(f float64) Value { return Value{kind: KindDouble, f: f, explicit: true} }

// Binary returns a binary value holding a copy of b.
func Binary(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBinary, bin: cp, explicit: true}
}

// DateTime returns an instant. The location of t is kept and written as a UTC offset.
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, t: t, explicit: true} }

// Array returns an ordered sequence of values.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp, explicit: true}
}

// ParamsOf wraps p as a nested params value. A nil p becomes an empty container.
func ParamsOf(p *Params) Value {
	if p == nil {
		p = New()
	}
	return Value{kind: KindParams, p: p, explicit: true}
}

// OpaqueOf wraps a tagged payload this client does not understand.
func OpaqueOf(typ string, raw json.RawMessage) Value {
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return Value{kind: KindOpaque, opaque: &Opaque{Type: typ, Raw: cp}, explicit: true}
}

// inferredInt picks the narrowest integer kind for a number that arrived without a type hint.
func inferredInt(n int64) Value {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return Value{kind: KindInt32, i: n}
	}
	return Value{kind: KindInt64, i: n}
}

func inferredDouble(f float64) Value { return Value{kind: KindDouble, f: f} }

func inferred(v Value) Value {
	v.explicit = false
	return v
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// Explicit reports whether the value was built by a typed constructor or decoded from
// a tagged object, as opposed to inferred from a native value or a bare JSON scalar.
func (v Value) Explicit() bool { return v.explicit }

// IsAbsent reports whether v is the marker returned by a failed lookup.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Present reports whether v holds anything other than absent or null.
func (v Value) Present() bool { return v.kind != KindAbsent && v.kind != KindNull }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt returns the integer held by an Int32 or Int64 value.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt32, KindInt64:
		return v.i, true
	}
	return 0, false
}

// AsFloat returns numeric values widened to float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt32, KindInt64:
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsBytes returns a copy of a binary payload.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBinary {
		return nil, false
	}
	cp := make([]byte, len(v.bin))
	copy(cp, v.bin)
	return cp, true
}

func (v Value) AsTime() (time.Time, bool) {
	if v.kind != KindDateTime {
		return time.Time{}, false
	}
	return v.t, true
}

// AsArray returns a copy of the element slice.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp, true
}

// AsParams returns the nested container. Callers must treat it as read-only.
func (v Value) AsParams() (*Params, bool) {
	if v.kind != KindParams {
		return nil, false
	}
	return v.p, true
}

func (v Value) AsOpaque() (Opaque, bool) {
	if v.kind != KindOpaque || v.opaque == nil {
		return Opaque{}, false
	}
	return *v.opaque, true
}

func (v Value) BoolOr(def bool) bool {
	if b, ok := v.AsBool(); ok {
		return b
	}
	return def
}

func (v Value) Int64Or(def int64) int64 {
	if n, ok := v.AsInt(); ok {
		return n
	}
	return def
}

func (v Value) IntOr(def int) int {
	if n, ok := v.AsInt(); ok {
		return int(n)
	}
	return def
}

func (v Value) FloatOr(def float64) float64 {
	if f, ok := v.AsFloat(); ok {
		return f
	}
	return def
}

func (v Value) StringOr(def string) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	return def
}

func (v Value) TimeOr(def time.Time) time.Time {
	if t, ok := v.AsTime(); ok {
		return t
	}
	return def
}

// ParamsOr returns the nested container, or def when v is not params.
func (v Value) ParamsOr(def *Params) *Params {
	if p, ok := v.AsParams(); ok {
		return p
	}
	return def
}

func (v Value) ArrayOr(def []Value) []Value {
	if a, ok := v.AsArray(); ok {
		return a
	}
	return def
}

// Lookup walks params keys and array indices below v. It never fails; a missing
// segment yields an absent value.
func (v Value) Lookup(path ...string) Value {
	cur := v
	for _, seg := range path {
		switch cur.kind {
		case KindParams:
			next, ok := cur.p.Get(seg)
			if !ok {
				return Value{}
			}
			cur = next
		case KindArray:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.arr) {
				return Value{}
			}
			cur = cur.arr[idx]
		default:
			return Value{}
		}
	}
	return cur
}

// Native converts v into plain Go values: map[string]any, []any, int64, float64,
// string, bool, []byte, time.Time, json.RawMessage for opaque payloads and nil.
func (v Value) Native() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt32, KindInt64:
		return v.i
	case KindDouble:
		return v.f
	case KindString:
		return v.s
	case KindBinary:
		b, _ := v.AsBytes()
		return b
	case KindDateTime:
		return v.t
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Native()
		}
		return out
	case KindParams:
		return v.p.Native()
	case KindOpaque:
		return v.opaque.Raw
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindAbsent, KindNull:
		return v.kind.String()
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt32, KindInt64:
		return fmt.Sprintf("%s(%d)", v.kind, v.i)
	case KindDouble:
		return fmt.Sprintf("double(%g)", v.f)
	case KindString:
		return strconv.Quote(v.s)
	case KindBinary:
		return fmt.Sprintf("binary(%d bytes)", len(v.bin))
	case KindDateTime:
		return "datetime(" + v.t.Format(time.RFC3339Nano) + ")"
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.arr))
	case KindParams:
		return fmt.Sprintf("params(%d)", v.p.Len())
	case KindOpaque:
		return "opaque(" + v.opaque.Type + ")"
	}
	return v.kind.String()
}
