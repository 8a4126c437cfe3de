// ABOUTME: Tests for the RPC invoker's failure discrimination and envelope access
// ABOUTME: Uses a scripted doer plus the fake KSC server over a real transport

package rpc

import (
	"context"
	"errors"
	"net/http"
	"testing"

	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/ksctest"
	"github.com/harper/ksc-bridge/internal/params"
	"github.com/harper/ksc-bridge/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type scriptedDoer struct {
	status int
	body   string
	err    error

	gotMethod string
	gotBody   string
}

func (d *scriptedDoer) Invoke(_ context.Context, methodPath string, body []byte) (int, []byte, error) {
	d.gotMethod = methodPath
	d.gotBody = string(body)
	return d.status, []byte(d.body), d.err
}

func TestCall_SuccessEnvelope(t *testing.T) {
	doer := &scriptedDoer{status: 200, body: `{"PxgRetVal":"ok","strAccessor":"acc-1","nCount":{"type":"long","value":3}}`}
	inv := New(doer)

	resp, err := inv.Call(context.Background(), "HostGroup.FindHosts",
		params.New().AddString("wstrFilter", `(KLHST_WKS_DN="*")`).AddInt32("lMaxLifeTime", 600))
	require.NoError(t, err)

	assert.Equal(t, "HostGroup.FindHosts", doer.gotMethod)
	assert.Equal(t, `{"wstrFilter":"(KLHST_WKS_DN=\"*\")","lMaxLifeTime":{"type":"int","value":600}}`, doer.gotBody)

	rv, err := resp.ReturnValue()
	require.NoError(t, err)
	assert.Equal(t, "ok", rv.StringOr(""))

	acc, err := resp.OutParam("strAccessor")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.StringOr(""))

	assert.Equal(t, []string{"strAccessor", "nCount"}, resp.OutParams().Keys())
	assert.Equal(t, int64(3), resp.Lookup("nCount").Int64Or(0))
}

func TestCall_NilArgumentsSendEmptyObject(t *testing.T) {
	doer := &scriptedDoer{status: 200, body: `{}`}
	_, err := New(doer).Call(context.Background(), "HostGroup.GetDomains", nil)
	require.NoError(t, err)
	assert.Equal(t, `{}`, doer.gotBody)
}

func TestCall_MissingOutParamIsContractError(t *testing.T) {
	doer := &scriptedDoer{status: 200, body: `{"PxgRetVal":1}`}
	resp, err := New(doer).Call(context.Background(), "HostGroup.RemoveGroup", nil)
	require.NoError(t, err)

	_, err = resp.OutParam("strActionGuid")
	ce, ok := apierrors.AsContract(err)
	require.True(t, ok, "expected contract error, got %v", err)
	assert.Equal(t, "strActionGuid", ce.Param)
	assert.Equal(t, "HostGroup.RemoveGroup", ce.Method)

	_, err = (&Response{Method: "X.Y", Params: params.New()}).ReturnValue()
	assert.Equal(t, apierrors.KindContract, apierrors.KindOf(err))
}

func TestCall_OutParamParamsRejectsWrongKind(t *testing.T) {
	doer := &scriptedDoer{status: 200, body: `{"pChunk":5}`}
	resp, err := New(doer).Call(context.Background(), "ChunkAccessor.GetItemsChunk", nil)
	require.NoError(t, err)

	_, err = resp.OutParamParams("pChunk")
	assert.Equal(t, apierrors.KindContract, apierrors.KindOf(err))
}

func TestCall_FailureDiscrimination(t *testing.T) {
	cases := []struct {
		name       string
		doer       *scriptedDoer
		wantKind   apierrors.Kind
		wantStatus int
		wantCode   int64
	}{
		{
			name:     "transport error passes through",
			doer:     &scriptedDoer{err: apierrors.NewTransportError("m", "u", apierrors.ReasonRefused, errors.New("refused"))},
			wantKind: apierrors.KindTransport,
		},
		{
			name:       "non-2xx with empty body",
			doer:       &scriptedDoer{status: 500},
			wantKind:   apierrors.KindApplication,
			wantStatus: 500,
		},
		{
			name:       "non-2xx with html body",
			doer:       &scriptedDoer{status: 502, body: "<html>bad gateway</html>"},
			wantKind:   apierrors.KindApplication,
			wantStatus: 502,
		},
		{
			name:       "non-2xx with fault body",
			doer:       &scriptedDoer{status: 400, body: `{"PxgError":{"code":1950,"message":"Invalid argument"}}`},
			wantKind:   apierrors.KindApplication,
			wantStatus: 400,
			wantCode:   1950,
		},
		{
			name:       "2xx with fault",
			doer:       &scriptedDoer{status: 200, body: `{"PxgError":{"code":1184,"message":"Object not found","subcode":0}}`},
			wantKind:   apierrors.KindApplication,
			wantStatus: 200,
			wantCode:   1184,
		},
		{
			name:     "2xx with non-JSON body",
			doer:     &scriptedDoer{status: 200, body: "<html>login page</html>"},
			wantKind: apierrors.KindDecode,
		},
		{
			name:     "2xx with zone-less datetime",
			doer:     &scriptedDoer{status: 200, body: `{"PxgRetVal":{"type":"datetime","value":"2020-04-08T12:22:35"}}`},
			wantKind: apierrors.KindDecode,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.doer).Call(context.Background(), "HostGroup.GetHostInfo", nil)
			require.Error(t, err)
			assert.Equal(t, tc.wantKind, apierrors.KindOf(err))

			if ae, ok := apierrors.AsApplication(err); ok {
				assert.Equal(t, tc.wantStatus, ae.HTTPStatus)
				assert.Equal(t, tc.wantCode, ae.Code)
				assert.Equal(t, "HostGroup.GetHostInfo", ae.Method)
			}
			if de, ok := apierrors.AsDecode(err); ok {
				assert.Equal(t, "HostGroup.GetHostInfo", de.Method)
				assert.NotEmpty(t, de.Snippet)
			}
		})
	}
}

func TestCall_FaultFieldsKeptVerbatim(t *testing.T) {
	doer := &scriptedDoer{status: 200, body: `{"PxgError":{"code":1184,"file":"srvhrch.cpp","line":1178,` +
		`"locdata":{"format":"Group %1 not found","formatid":5,"locmod":"KLSRV","args":["7"]},` +
		`"message":"Group 7 not found","module":"KLSRV","subcode":2}}`}

	_, err := New(doer).Call(context.Background(), "HostGroup.RemoveGroup", nil)
	ae, ok := apierrors.AsApplication(err)
	require.True(t, ok)

	assert.Equal(t, int64(1184), ae.Code)
	assert.Equal(t, int64(2), ae.Subcode)
	assert.Equal(t, "Group 7 not found", ae.Message)
	assert.Equal(t, "KLSRV", ae.Module)
	assert.Equal(t, "srvhrch.cpp", ae.File)
	assert.Equal(t, int64(1178), ae.Line)
	require.Contains(t, ae.Details, "locdata")
	assert.Equal(t, "Group %1 not found", ae.Details["locdata"].(map[string]any)["format"])
}

func TestCall_EmptySuccessBodyIsEmptyEnvelope(t *testing.T) {
	resp, err := New(&scriptedDoer{status: 204}).Call(context.Background(), "ChunkAccessor.Release", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Params.Len())
}

func TestCall_ObserverSeesEveryCall(t *testing.T) {
	var records []CallRecord
	obs := ObserverFunc(func(r CallRecord) { records = append(records, r) })

	ok := New(&scriptedDoer{status: 200, body: `{}`}, WithObserver(obs))
	_, err := ok.Call(context.Background(), "HostGroup.GetDomains", nil)
	require.NoError(t, err)

	bad := New(&scriptedDoer{status: 200, body: `{"PxgError":{"code":7,"message":"no"}}`}, WithObserver(obs))
	_, err = bad.Call(context.Background(), "Tasks.RunTask", nil)
	require.Error(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "HostGroup.GetDomains", records[0].Method)
	assert.Empty(t, records[0].ErrKind)
	assert.NotEmpty(t, records[0].ID)
	assert.Equal(t, "Tasks.RunTask", records[1].Method)
	assert.Equal(t, string(apierrors.KindApplication), records[1].ErrKind)
	assert.Equal(t, int64(7), records[1].ErrCode)
	assert.Equal(t, 200, records[1].Status)
}

func TestCall_AgainstFakeServer(t *testing.T) {
	srv := ksctest.New(t)
	srv.HandleResult("HostGroup.GetDomains", ksctest.RetVal(params.Array(
		params.ParamsOf(params.New().AddString("KLHST_WKS_WINDOMAIN", "CORP")),
	)))
	srv.Handle("HostGroup.MoveHostsToGroup", func(ksctest.Call) ksctest.Reply {
		return ksctest.Fault(1184, "Group not found")
	})
	srv.Handle("Tasks.RunTask", func(ksctest.Call) ksctest.Reply {
		return ksctest.Status(http.StatusForbidden, "")
	})

	tr, err := transport.New(transport.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	inv := New(tr)

	resp, err := inv.Call(context.Background(), MethodPath("", "HostGroup", "GetDomains"), nil)
	require.NoError(t, err)
	assert.Equal(t, "CORP", resp.Lookup(RetValKey, "0", "KLHST_WKS_WINDOMAIN").StringOr(""))

	_, err = inv.Call(context.Background(), "HostGroup.MoveHostsToGroup",
		params.New().AddInt32("nGroup", 99).AddStrings("pHostNames", "ws-01"))
	ae, ok := apierrors.AsApplication(err)
	require.True(t, ok)
	assert.Equal(t, int64(1184), ae.Code)

	moved := srv.CallsTo("HostGroup.MoveHostsToGroup")
	require.Len(t, moved, 1)
	assert.Equal(t, int64(99), moved[0].Args.Value("nGroup").Int64Or(0))

	_, err = inv.Call(context.Background(), "Tasks.RunTask", params.New().AddString("strTask", "12"))
	ae, ok = apierrors.AsApplication(err)
	require.True(t, ok)
	assert.True(t, ae.IsAuthFailure())
}

func TestMethodPath(t *testing.T) {
	assert.Equal(t, "HostGroup.FindHosts", MethodPath("", "HostGroup", "FindHosts"))
	assert.Equal(t, "srv1.HostGroup.FindHosts", MethodPath("srv1", "HostGroup", "FindHosts"))
}

func TestCall_RecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ok := New(&scriptedDoer{status: 200, body: `{"PxgRetVal":1}`}, WithTracerProvider(tp))
	_, err := ok.Call(context.Background(), "HostGroup.GetDomains", nil)
	require.NoError(t, err)

	failing := New(&scriptedDoer{status: 200, body: `{"PxgError":{"code":1184,"message":"Object not found"}}`}, WithTracerProvider(tp))
	_, err = failing.Call(context.Background(), "HostGroup.GetHostInfo", nil)
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "ksc.call HostGroup.GetDomains", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	attrs := attribute.NewSet(spans[0].Attributes()...)
	method, _ := attrs.Value("rpc.method")
	assert.Equal(t, "HostGroup.GetDomains", method.AsString())
	status, _ := attrs.Value("http.response.status_code")
	assert.Equal(t, int64(200), status.AsInt64())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, "ksc.call HostGroup.GetHostInfo", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, string(apierrors.KindApplication), spans[1].Status().Description)
	require.NotEmpty(t, spans[1].Events())
	assert.Equal(t, "exception", spans[1].Events()[0].Name)
}
