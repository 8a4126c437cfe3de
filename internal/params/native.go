// ABOUTME: Coercion from native Go values into typed wire values
// ABOUTME: Produces inferred values that encode in the compact bare form where possible

package params

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"
)

// FromNative converts a Go value into a Value. Integers and floats become inferred
// numerics (sent bare); []byte and time.Time become Binary and DateTime; slices become
// arrays and string-keyed maps become params with keys in sorted order.
func FromNative(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Params:
		if t == nil {
			return Null(), nil
		}
		return inferred(ParamsOf(t)), nil
	case Params:
		cp := t
		return inferred(ParamsOf(&cp)), nil
	case bool:
		return inferred(Bool(t)), nil
	case string:
		return inferred(String(t)), nil
	case int:
		return inferredInt(int64(t)), nil
	case int8:
		return inferredInt(int64(t)), nil
	case int16:
		return inferredInt(int64(t)), nil
	case int32:
		return inferredInt(int64(t)), nil
	case int64:
		return inferredInt(t), nil
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return inferredInt(int64(t)), nil
	case uint16:
		return inferredInt(int64(t)), nil
	case uint32:
		return inferredInt(int64(t)), nil
	case uint64:
		return fromUint(t)
	case float32:
		return inferredDouble(float64(t)), nil
	case float64:
		return inferredDouble(t), nil
	case json.Number:
		return decodeNumber(t, false)
	case []byte:
		return Binary(t), nil
	case time.Time:
		return DateTime(t), nil
	case []Value:
		return inferred(Array(t...)), nil
	}
	return fromReflect(reflect.ValueOf(x))
}

func fromUint(n uint64) (Value, error) {
	if n > math.MaxInt64 {
		return Value{}, fmt.Errorf("unsigned value %d overflows int64", n)
	}
	return inferredInt(int64(n)), nil
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return FromNative(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null(), nil
		}
		items := make([]Value, rv.Len())
		for i := range items {
			item, err := FromNative(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = item
		}
		return inferred(Array(items...)), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("map key type %s is not string", rv.Type().Key())
		}
		if rv.IsNil() {
			return Null(), nil
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		p := New()
		for _, k := range keys {
			item, err := FromNative(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			p.Set(k, item)
		}
		return inferred(ParamsOf(p)), nil
	case reflect.Invalid:
		return Null(), nil
	}
	return Value{}, fmt.Errorf("unsupported native type %s", rv.Type())
}

// MustNative is FromNative for literals known to be representable.
func MustNative(x any) Value {
	v, err := FromNative(x)
	if err != nil {
		panic(err)
	}
	return v
}

// FromMap builds a container from a native map with keys in sorted order.
func FromMap(m map[string]any) (*Params, error) {
	v, err := FromNative(m)
	if err != nil {
		return nil, err
	}
	p, ok := v.AsParams()
	if !ok {
		return New(), nil
	}
	return p, nil
}
