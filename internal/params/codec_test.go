// ABOUTME: Tests for the typed value codec
// ABOUTME: Covers round trips, tagged and bare forms, timezone rules and opaque passthrough

package params

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	data, err := Encode(New().Set("v", v))
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	got, ok := decoded.Get("v")
	require.True(t, ok, "key v missing after round trip of %s", data)
	return got
}

func TestRoundTrip_ExplicitValues(t *testing.T) {
	nested := New().AddString("name", "Managed devices").AddInt32("id", 0)
	when := time.Date(2020, 4, 8, 12, 22, 35, 0, time.FixedZone("MSK", 3*60*60))

	cases := map[string]Value{
		"null":         Null(),
		"bool":         Bool(true),
		"string":       String("héllo \"world\""),
		"empty string": String(""),
		"int32":        Int32(-42),
		"int32 max":    Int32(math.MaxInt32),
		"int64":        Int64(5),
		"int64 large":  Int64(1 << 52),
		"double":       Double(1.25),
		"double whole": Double(3),
		"binary":       Binary([]byte{0x00, 0xff, 0x10}),
		"empty binary": Binary(nil),
		"datetime":     DateTime(when),
		"datetime utc": DateTime(time.Date(1999, 12, 31, 23, 59, 59, 500000000, time.UTC)),
		"params":       ParamsOf(nested),
		"empty params": ParamsOf(nil),
		"array":        Array(Int32(1), String("two"), ParamsOf(nested), Array(Bool(false))),
		"empty array":  Array(),
		"deep nesting": ParamsOf(New().AddParams("a", New().AddParams("b", New().AddArray("c", Array(DateTime(when)))))),
		"opaque":       OpaqueOf("guid", json.RawMessage(`"6f1c"`)),
	}

	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			got := roundTrip(t, v)
			assert.True(t, Equal(v, got), "want %s, got %s", v, got)
			assert.Equal(t, v.Kind(), got.Kind())
		})
	}
}

func TestRoundTrip_InferredNativeValues(t *testing.T) {
	cases := map[string]any{
		"small int":  7,
		"big int":    int64(1) << 40,
		"bool":       false,
		"string":     "KLHST_WKS_DN",
		"fraction":   2.5,
		"string map": map[string]any{"b": 1, "a": "x"},
		"slice":      []string{"KLHST_WKS_DN", "KLHST_WKS_HOSTNAME"},
	}
	for name, native := range cases {
		t.Run(name, func(t *testing.T) {
			v, err := FromNative(native)
			require.NoError(t, err)
			assert.False(t, v.Explicit())
			got := roundTrip(t, v)
			assert.True(t, Equal(v, got), "want %s, got %s", v, got)
		})
	}
}

func TestRoundTrip_BareWholeDoubleKeepsKind(t *testing.T) {
	v, err := FromNative(3.0)
	require.NoError(t, err)

	data, err := EncodeValue(v)
	require.NoError(t, err)
	assert.Equal(t, "3.0", string(data))

	got := roundTrip(t, v)
	assert.Equal(t, KindDouble, got.Kind())
	assert.True(t, Equal(v, got))

	p := New()
	require.NoError(t, p.Add("ratio", 2.0))
	body, err := Encode(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ratio":2.0}`, string(body))
	assert.Contains(t, string(body), "2.0")

	big, err := EncodeValue(MustNative(1e21))
	require.NoError(t, err)
	assert.Equal(t, "1e+21", string(big))
}

func TestEncode_TaggedAndBareForms(t *testing.T) {
	p := New()
	p.AddInt32("tagged32", 5)
	p.AddInt64("tagged64", 6)
	p.AddDouble("taggedDouble", 0.5)
	require.NoError(t, p.Add("bare", 5))
	require.NoError(t, p.Add("bareFloat", 0.5))
	p.AddBool("flag", true)
	p.AddString("name", "x")
	p.AddDateTime("when", time.Date(2020, 4, 8, 12, 22, 35, 0, time.UTC))
	p.AddBinary("blob", []byte("hi"))
	p.AddParams("nested", New().AddString("k", "v"))
	p.Set("nothing", Null())

	data, err := Encode(p)
	require.NoError(t, err)

	want := `{"tagged32":{"type":"int","value":5},` +
		`"tagged64":{"type":"long","value":6},` +
		`"taggedDouble":{"type":"double","value":0.5},` +
		`"bare":5,"bareFloat":0.5,"flag":true,"name":"x",` +
		`"when":{"type":"datetime","value":"2020-04-08T12:22:35Z"},` +
		`"blob":{"type":"binary","value":"aGk="},` +
		`"nested":{"type":"params","value":{"k":"v"}},` +
		`"nothing":null}`
	assert.Equal(t, want, string(data))
}

func TestEncode_RejectsNonFiniteAndAbsent(t *testing.T) {
	_, err := Encode(New().Set("nan", Double(math.NaN())))
	assert.Error(t, err)

	_, err = Encode(New().Set("gone", Value{}))
	assert.Error(t, err)

	_, err = Encode(New().Set("far", DateTime(time.Date(12000, 1, 1, 0, 0, 0, 0, time.UTC))))
	assert.Error(t, err)

	_, err = Encode(New().Set("edge", DateTime(time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))))
	assert.NoError(t, err)
}

func TestDecode_ServerChartSample(t *testing.T) {
	body := `{"KLRPT_CHART_DATA": [{"type": "params", "value": {"data": [20, 10, 1], "name": "2 days ago"}},
		{"type": "params", "value": {"data": [20, 10, 1], "name": "1 day ago"}}],
		"KLRPT_CHART_DATA_DESC": "Amounts of vulnerability instances",
		"KLRPT_CHART_SERIES": ["critical", "high-level", "warning-level"],
		"KLRPT_CHART_STACK_SERIES": true,
		"TIME_CREATED": {"type": "datetime", "value": "2020-04-08T12:22:35Z"}}`

	p, err := Decode([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"KLRPT_CHART_DATA", "KLRPT_CHART_DATA_DESC", "KLRPT_CHART_SERIES",
		"KLRPT_CHART_STACK_SERIES", "TIME_CREATED",
	}, p.Keys())
	assert.Equal(t, "2 days ago", p.Lookup("KLRPT_CHART_DATA", "0", "name").StringOr(""))
	assert.Equal(t, int64(10), p.Lookup("KLRPT_CHART_DATA", "1", "data", "1").Int64Or(-1))
	assert.True(t, p.Lookup("KLRPT_CHART_STACK_SERIES").BoolOr(false))

	created, ok := p.Value("TIME_CREATED").AsTime()
	require.True(t, ok)
	assert.True(t, created.Equal(time.Date(2020, 4, 8, 12, 22, 35, 0, time.UTC)))
}

func TestDecode_KeyOrderSurvivesReencode(t *testing.T) {
	body := `{"zeta":1,"alpha":{"type":"params","value":{"y":true,"b":"s"}},"mid":[3,2,1]}`

	p, err := Decode([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, p.Keys())

	again, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, body, string(again))
}

func TestDecode_UntaggedObjectBecomesParams(t *testing.T) {
	p, err := Decode([]byte(`{"host":{"KLHST_WKS_DN":"ws-01","KLHST_WKS_GRP":4}}`))
	require.NoError(t, err)

	host, ok := p.Value("host").AsParams()
	require.True(t, ok)
	assert.Equal(t, "ws-01", host.Value("KLHST_WKS_DN").StringOr(""))
	assert.Equal(t, KindInt32, host.Value("KLHST_WKS_GRP").Kind())
}

func TestDecode_RootWithTypeAndValueKeysIsPlain(t *testing.T) {
	p, err := Decode([]byte(`{"type":"x","value":1}`))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "x", p.Value("type").StringOr(""))
}

func TestDecode_NumberWidths(t *testing.T) {
	p, err := Decode([]byte(`{"small":2147483647,"big":2147483648,"neg":-2147483649,"f":1.5,"e":1e3,` +
		`"long":{"type":"long","value":"9007199254740993"}}`))
	require.NoError(t, err)

	assert.Equal(t, KindInt32, p.Value("small").Kind())
	assert.Equal(t, KindInt64, p.Value("big").Kind())
	assert.Equal(t, KindInt64, p.Value("neg").Kind())
	assert.Equal(t, KindDouble, p.Value("f").Kind())
	assert.Equal(t, KindDouble, p.Value("e").Kind())
	assert.Equal(t, int64(9007199254740993), p.Value("long").Int64Or(0))
	assert.True(t, p.Value("long").Explicit())
}

func TestDecode_TaggedIntegerMustBeIntegral(t *testing.T) {
	for _, body := range []string{
		`{"type":"long","value":18446744073709551615}`,
		`{"type":"long","value":"18446744073709551615"}`,
		`{"type":"int","value":1.5}`,
	} {
		_, err := DecodeValue([]byte(body))
		assert.True(t, apierrors.IsDecode(err), body)
	}
}

func TestDecode_DateTimeWithoutZoneFails(t *testing.T) {
	for _, ts := range []string{"2020-04-08T12:22:35", "2020-04-08 12:22:35", "2020-04-08"} {
		t.Run(ts, func(t *testing.T) {
			_, err := Decode([]byte(`{"t":{"type":"datetime","value":"` + ts + `"}}`))
			require.Error(t, err)
			de, ok := apierrors.AsDecode(err)
			require.True(t, ok, "expected DecodeError, got %T", err)
			assert.Contains(t, de.Reason, "no timezone")
			assert.Contains(t, de.Reason, `key "t"`)
		})
	}
}

func TestDecode_DateTimeOffsetsKept(t *testing.T) {
	p, err := Decode([]byte(`{"t":{"type":"datetime","value":"2021-01-02T03:04:05+05:30"}}`))
	require.NoError(t, err)
	got, ok := p.Value("t").AsTime()
	require.True(t, ok)
	_, offset := got.Zone()
	assert.Equal(t, 5*3600+30*60, offset)
}

func TestDecode_InvalidBase64Fails(t *testing.T) {
	_, err := Decode([]byte(`{"b":{"type":"binary","value":"@@@"}}`))
	_, ok := apierrors.AsDecode(err)
	assert.True(t, ok)
}

func TestDecode_UnknownTypeIsOpaque(t *testing.T) {
	body := `{"x":{"type":"guid","value":{"hi":1}}}`
	p, err := Decode([]byte(body))
	require.NoError(t, err)

	op, ok := p.Value("x").AsOpaque()
	require.True(t, ok)
	assert.Equal(t, "guid", op.Type)
	assert.JSONEq(t, `{"hi":1}`, string(op.Raw))

	again, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, body, string(again))
}

func TestDecode_TaggedNullPayload(t *testing.T) {
	p, err := Decode([]byte(`{"t":{"type":"datetime","value":null}}`))
	require.NoError(t, err)
	assert.True(t, p.Value("t").IsNull())
}

func TestDecode_MalformedInput(t *testing.T) {
	for name, body := range map[string]string{
		"not json":   `<html>oops</html>`,
		"truncated":  `{"a":1`,
		"root array": `[1,2]`,
		"trailing":   `{"a":1} {"b":2}`,
		"empty":      ``,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			require.Error(t, err)
			assert.Equal(t, apierrors.KindDecode, apierrors.KindOf(err))
		})
	}
}

func TestValue_JSONMarshalers(t *testing.T) {
	type envelope struct {
		Result Value   `json:"result"`
		Params *Params `json:"params"`
	}

	in := envelope{
		Result: Int64(9),
		Params: New().AddDateTime("t", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":{"type":"long","value":9},"params":{"t":{"type":"datetime","value":"2022-01-01T00:00:00Z"}}}`, string(data))

	var out envelope
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, Equal(in.Result, out.Result))
	assert.True(t, EqualParams(in.Params, out.Params))
}
