// ABOUTME: Ordered string-keyed container, the root shape of every request and response
// ABOUTME: Preserves insertion order so encode/decode round trips keep key layout

package params

import "time"

// Params maps string keys to values, remembering insertion order.
// A nil *Params behaves as an empty, read-only container.
type Params struct {
	keys []string
	vals map[string]Value
}

// New returns an empty container.
func New() *Params {
	return &Params{vals: make(map[string]Value)}
}

// Len returns the number of keys.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

func (p *Params) Get(key string) (Value, bool) {
	if p == nil {
		return Value{}, false
	}
	v, ok := p.vals[key]
	return v, ok
}

// Value returns the value under key, or an absent value.
func (p *Params) Value(key string) Value {
	v, _ := p.Get(key)
	return v
}

func (p *Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Set stores v under key. Replacing an existing key keeps its original position.
func (p *Params) Set(key string, v Value) *Params {
	if p.vals == nil {
		p.vals = make(map[string]Value)
	}
	if _, exists := p.vals[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.vals[key] = v
	return p
}

// Add coerces a native Go value and stores it under key.
func (p *Params) Add(key string, native any) error {
	v, err := FromNative(native)
	if err != nil {
		return err
	}
	p.Set(key, v)
	return nil
}

func (p *Params) AddBool(key string, b bool) *Params          { return p.Set(key, Bool(b)) }
func (p *Params) AddString(key, s string) *Params             { return p.Set(key, String(s)) }
func (p *Params) AddInt32(key string, n int32) *Params        { return p.Set(key, Int32(n)) }
func (p *Params) AddInt64(key string, n int64) *Params        { return p.Set(key, Int64(n)) }
func (p *Params) AddDouble(key string, f float64) *Params     { return p.Set(key, Double(f)) }
func (p *Params) AddBinary(key string, b []byte) *Params      { return p.Set(key, Binary(b)) }
func (p *Params) AddDateTime(key string, t time.Time) *Params { return p.Set(key, DateTime(t)) }
func (p *Params) AddArray(key string, items ...Value) *Params { return p.Set(key, Array(items...)) }
func (p *Params) AddParams(key string, nested *Params) *Params {
	return p.Set(key, ParamsOf(nested))
}

// AddStrings stores a string array, the common shape of field lists.
func (p *Params) AddStrings(key string, items ...string) *Params {
	vals := make([]Value, len(items))
	for i, s := range items {
		vals[i] = String(s)
	}
	return p.Set(key, Array(vals...))
}

func (p *Params) Delete(key string) {
	if p == nil {
		return
	}
	if _, ok := p.vals[key]; !ok {
		return
	}
	delete(p.vals, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Range calls fn for each entry in order until fn returns false.
func (p *Params) Range(fn func(key string, v Value) bool) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		if !fn(k, p.vals[k]) {
			return
		}
	}
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	out := New()
	p.Range(func(k string, v Value) bool {
		out.Set(k, cloneValue(v))
		return true
	})
	return out
}

func cloneValue(v Value) Value {
	switch v.kind {
	case KindParams:
		v.p = v.p.Clone()
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i, item := range v.arr {
			arr[i] = cloneValue(item)
		}
		v.arr = arr
	}
	return v
}

// Lookup walks a path of keys (and decimal array indices) and never fails.
func (p *Params) Lookup(path ...string) Value {
	if len(path) == 0 {
		return ParamsOf(p)
	}
	return p.Value(path[0]).Lookup(path[1:]...)
}

// LookupOr is Lookup with a fallback for absent results.
func (p *Params) LookupOr(def Value, path ...string) Value {
	v := p.Lookup(path...)
	if v.IsAbsent() {
		return def
	}
	return v
}

// Native converts the container into a map of plain Go values.
func (p *Params) Native() map[string]any {
	out := make(map[string]any, p.Len())
	p.Range(func(k string, v Value) bool {
		out[k] = v.Native()
		return true
	})
	return out
}

// MarshalJSON writes the wire encoding.
func (p *Params) MarshalJSON() ([]byte, error) {
	return Encode(p)
}

// UnmarshalJSON reads the wire encoding.
func (p *Params) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*p = *decoded
	return nil
}
