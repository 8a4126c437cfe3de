// ABOUTME: Decoder from arbitrary wire JSON to typed value trees
// ABOUTME: Accepts both bare and tagged forms and keeps object key order

package params

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/harper/ksc-bridge/internal/errors"
)

// Decode parses a JSON object into a container. The root is read as a plain object
// even if its keys happen to look like a tagged value.
func Decode(data []byte) (*Params, error) {
	dec := newDecoder(data)
	tok, err := dec.Token()
	if err != nil {
		return nil, apierrors.NewDecodeError("malformed JSON", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, apierrors.NewDecodeError("body root is not a JSON object", nil)
	}
	fields, err := readObjectFields(dec)
	if err != nil {
		return nil, err
	}
	if err := expectEOF(dec); err != nil {
		return nil, err
	}
	return decodeFields(fields)
}

// DecodeValue parses any JSON document into a value.
func DecodeValue(data []byte) (Value, error) {
	dec := newDecoder(data)
	v, err := decodeNext(dec)
	if err != nil {
		return Value{}, err
	}
	if err := expectEOF(dec); err != nil {
		return Value{}, err
	}
	return v, nil
}

// UnmarshalJSON reads the wire encoding into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeValue(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func newDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec
}

func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apierrors.NewDecodeError("trailing data after JSON document", err)
	}
	return nil
}

type field struct {
	key string
	raw json.RawMessage
}

func decodeNext(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, apierrors.NewDecodeError("malformed JSON", err)
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return inferred(Bool(t)), nil
	case string:
		return inferred(String(t)), nil
	case json.Number:
		return decodeNumber(t, false)
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeNext(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, apierrors.NewDecodeError("malformed JSON", err)
			}
			return inferred(Array(items...)), nil
		case '{':
			fields, err := readObjectFields(dec)
			if err != nil {
				return Value{}, err
			}
			if typ, payload, ok := taggedShape(fields); ok {
				return decodeTagged(typ, payload)
			}
			p, err := decodeFields(fields)
			if err != nil {
				return Value{}, err
			}
			return inferred(ParamsOf(p)), nil
		}
	}
	return Value{}, apierrors.NewDecodeError(fmt.Sprintf("unexpected token %v", tok), nil)
}

// readObjectFields consumes an object body after its opening brace.
func readObjectFields(dec *json.Decoder) ([]field, error) {
	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, apierrors.NewDecodeError("malformed JSON", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, apierrors.NewDecodeError("object key is not a string", nil)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, apierrors.NewDecodeError("malformed JSON", err)
		}
		fields = append(fields, field{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, apierrors.NewDecodeError("malformed JSON", err)
	}
	return fields, nil
}

func decodeFields(fields []field) (*Params, error) {
	p := New()
	for _, f := range fields {
		v, err := DecodeValue(f.raw)
		if err != nil {
			return nil, prefixDecodeError(f.key, err)
		}
		p.Set(f.key, v)
	}
	return p, nil
}

// taggedShape recognises {"type": "<name>", "value": <payload>}.
func taggedShape(fields []field) (string, json.RawMessage, bool) {
	if len(fields) != 2 {
		return "", nil, false
	}
	var typRaw, payload json.RawMessage
	for _, f := range fields {
		switch f.key {
		case "type":
			typRaw = f.raw
		case "value":
			payload = f.raw
		}
	}
	if typRaw == nil || payload == nil {
		return "", nil, false
	}
	var typ string
	if err := json.Unmarshal(typRaw, &typ); err != nil {
		return "", nil, false
	}
	return typ, payload, true
}

func decodeTagged(typ string, payload json.RawMessage) (Value, error) {
	if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		return Null(), nil
	}
	switch typ {
	case TypeInt, TypeLong:
		num, err := numberPayload(payload)
		if err != nil {
			return Value{}, apierrors.NewDecodeError("invalid "+typ+" payload", err)
		}
		n, err := strconv.ParseInt(num.String(), 10, 64)
		if err != nil {
			return Value{}, apierrors.NewDecodeError(fmt.Sprintf("invalid %s payload %s", typ, num), err)
		}
		v := inferredInt(n)
		v.explicit = true
		if typ == TypeLong && v.kind == KindInt32 {
			v.kind = KindInt64
		}
		return v, nil
	case TypeDouble, TypeFloat:
		num, err := numberPayload(payload)
		if err != nil {
			return Value{}, apierrors.NewDecodeError("invalid "+typ+" payload", err)
		}
		f, err := num.Float64()
		if err != nil {
			return Value{}, apierrors.NewDecodeError("invalid "+typ+" payload", err)
		}
		return Double(f), nil
	case TypeBool:
		var b bool
		if err := json.Unmarshal(payload, &b); err != nil {
			return Value{}, apierrors.NewDecodeError("invalid bool payload", err)
		}
		return Bool(b), nil
	case TypeString:
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Value{}, apierrors.NewDecodeError("invalid string payload", err)
		}
		return String(s), nil
	case TypeDateTime, TypeDate:
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Value{}, apierrors.NewDecodeError("datetime payload is not a string", err)
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return Value{}, err
		}
		return DateTime(t), nil
	case TypeBinary:
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Value{}, apierrors.NewDecodeError("binary payload is not a string", err)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, apierrors.NewDecodeError("binary payload is not valid base64", err)
		}
		return Binary(b), nil
	case TypeParams:
		dec := newDecoder(payload)
		tok, err := dec.Token()
		if err != nil {
			return Value{}, apierrors.NewDecodeError("malformed params payload", err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return Value{}, apierrors.NewDecodeError("params payload is not an object", nil)
		}
		fields, err := readObjectFields(dec)
		if err != nil {
			return Value{}, err
		}
		p, err := decodeFields(fields)
		if err != nil {
			return Value{}, err
		}
		return ParamsOf(p), nil
	case TypeArray:
		v, err := DecodeValue(payload)
		if err != nil {
			return Value{}, err
		}
		if v.kind != KindArray {
			return Value{}, apierrors.NewDecodeError("array payload is not a JSON array", nil)
		}
		v.explicit = true
		return v, nil
	}
	// Unknown discriminators are carried through untouched.
	return OpaqueOf(typ, payload), nil
}

// numberPayload accepts a JSON number or a string holding one; the server sends
// 64-bit values as strings in some builds.
func numberPayload(payload json.RawMessage) (json.Number, error) {
	var num json.Number
	dec := newDecoder(payload)
	if err := dec.Decode(&num); err == nil {
		return num, nil
	}
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		return "", err
	}
	return json.Number(strings.TrimSpace(s)), nil
}

func decodeNumber(num json.Number, explicit bool) (Value, error) {
	if n, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
		v := inferredInt(n)
		v.explicit = explicit
		return v, nil
	}
	f, err := num.Float64()
	if err != nil {
		return Value{}, apierrors.NewDecodeError("invalid number "+num.String(), err)
	}
	v := inferredDouble(f)
	v.explicit = explicit
	return v, nil
}

// ParseTimestamp parses an ISO-8601 timestamp and rejects values without a UTC offset.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02"} {
		if _, perr := time.Parse(layout, s); perr == nil {
			return time.Time{}, apierrors.NewDecodeError(fmt.Sprintf("timestamp %q has no timezone", s), nil)
		}
	}
	return time.Time{}, apierrors.NewDecodeError(fmt.Sprintf("invalid timestamp %q", s), err)
}

func prefixDecodeError(key string, err error) error {
	if de, ok := apierrors.AsDecode(err); ok {
		cp := *de
		cp.Reason = fmt.Sprintf("key %q: %s", key, de.Reason)
		return &cp
	}
	return err
}
