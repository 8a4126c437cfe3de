// ABOUTME: Encoder from typed value trees to the wire JSON envelope
// ABOUTME: Emits tagged objects for explicit numerics, datetimes, binaries and nested params

package params

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Wire type discriminators.
const (
	TypeInt      = "int"
	TypeLong     = "long"
	TypeDouble   = "double"
	TypeFloat    = "float"
	TypeBool     = "bool"
	TypeString   = "string"
	TypeDateTime = "datetime"
	TypeDate     = "date"
	TypeBinary   = "binary"
	TypeParams   = "params"
	TypeArray    = "array"
)

// Encode writes p as the root JSON object of a request body.
func Encode(p *Params) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeParamsBody(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeValue writes a single value using the nested encoding rules.
func EncodeValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON writes the wire encoding of v.
func (v Value) MarshalJSON() ([]byte, error) {
	return EncodeValue(v)
}

func writeParamsBody(buf *bytes.Buffer, p *Params) error {
	buf.WriteByte('{')
	first := true
	var err error
	p.Range(func(k string, v Value) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeString(buf, k)
		buf.WriteByte(':')
		if err = writeValue(buf, v); err != nil {
			err = fmt.Errorf("key %q: %w", k, err)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindAbsent:
		return fmt.Errorf("cannot encode an absent value")
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindString:
		writeString(buf, v.s)
	case KindInt32:
		if v.explicit {
			writeTagged(buf, TypeInt, func() { buf.WriteString(strconv.FormatInt(v.i, 10)) })
		} else {
			buf.WriteString(strconv.FormatInt(v.i, 10))
		}
	case KindInt64:
		if v.explicit {
			writeTagged(buf, TypeLong, func() { buf.WriteString(strconv.FormatInt(v.i, 10)) })
		} else {
			buf.WriteString(strconv.FormatInt(v.i, 10))
		}
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return fmt.Errorf("cannot encode non-finite double %v", v.f)
		}
		num := strconv.FormatFloat(v.f, 'g', -1, 64)
		if v.explicit {
			writeTagged(buf, TypeDouble, func() { buf.WriteString(num) })
		} else {
			// A bare whole number would decode as an integer.
			if !strings.ContainsAny(num, ".eE") {
				num += ".0"
			}
			buf.WriteString(num)
		}
	case KindDateTime:
		if y := v.t.Year(); y < 0 || y > 9999 {
			return fmt.Errorf("cannot encode datetime with year %d", y)
		}
		writeTagged(buf, TypeDateTime, func() { writeString(buf, v.t.Format(time.RFC3339Nano)) })
	case KindBinary:
		writeTagged(buf, TypeBinary, func() { writeString(buf, base64.StdEncoding.EncodeToString(v.bin)) })
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case KindParams:
		var inner error
		writeTagged(buf, TypeParams, func() { inner = writeParamsBody(buf, v.p) })
		return inner
	case KindOpaque:
		raw := v.opaque.Raw
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		writeTagged(buf, v.opaque.Type, func() { buf.Write(raw) })
	default:
		return fmt.Errorf("cannot encode value of kind %s", v.kind)
	}
	return nil
}

func writeTagged(buf *bytes.Buffer, typ string, payload func()) {
	buf.WriteString(`{"type":`)
	writeString(buf, typ)
	buf.WriteString(`,"value":`)
	payload()
	buf.WriteByte('}')
}

func writeString(buf *bytes.Buffer, s string) {
	// json.Marshal of a string cannot fail.
	b, _ := json.Marshal(s)
	buf.Write(b)
}
