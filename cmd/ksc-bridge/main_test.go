// ABOUTME: End-to-end tests of the wired bridge against the fake KSC server
// ABOUTME: Drives tools over HTTP and WebSocket and reads the journal back through management

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gorilla "github.com/gorilla/websocket"
	"github.com/harper/ksc-bridge/internal/config"
	"github.com/harper/ksc-bridge/internal/db"
	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/jsonrpc"
	"github.com/harper/ksc-bridge/internal/ksctest"
	"github.com/harper/ksc-bridge/internal/params"
	"github.com/harper/ksc-bridge/internal/service"
	"github.com/harper/ksc-bridge/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startApp(t *testing.T, srv *ksctest.Server, journal bool) *app {
	t.Helper()
	cfg := &config.Config{
		KSC: config.KSCConfig{
			Host: srv.URL, Username: "admin", Password: "pw", Internal: true,
			Login: true, TimeoutSeconds: 5, PageSize: 100, ListLimit: 50, PollFallbackMS: 10,
		},
		Journal: config.JournalConfig{Enabled: journal, Path: filepath.Join(t.TempDir(), "journal.db")},
	}
	require.NoError(t, cfg.Validate())

	a, err := newApp(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func callTool(t *testing.T, h http.Handler, name string, args any) *jsonrpc.Response {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

func TestBridge_ListHostsOverHTTP(t *testing.T) {
	srv := ksctest.New(t)
	hosts := make([]*params.Params, 3)
	for i := range hosts {
		hosts[i] = params.New().
			AddString("KLHST_WKS_DN", "WS-00"+string(rune('1'+i))).
			AddString("KLHST_WKS_HOSTNAME", "guid-"+string(rune('a'+i))).
			AddInt64("KLHST_WKS_GROUPID", 4).
			AddInt32("KLHST_WKS_STATUS_ID", 0)
	}
	srv.HandleResult("HostGroup.FindHosts", params.New().
		AddString("strAccessor", "acc-1").
		Set("PxgRetVal", params.MustNative(len(hosts))))
	srv.ServeAccessor("acc-1", hosts)

	a := startApp(t, srv, true)
	resp := callTool(t, a.rpc, "ksc.hosts.list", map[string]any{"limit": 2})
	require.Nil(t, resp.Error)

	var out tools.CallResult
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	var list service.HostList
	require.NoError(t, json.Unmarshal([]byte(out.Content[0].Text), &list))
	assert.Len(t, list.Hosts, 2)
	assert.Equal(t, 3, list.Total)
	assert.True(t, list.Truncated)
	assert.True(t, srv.Released("acc-1"))
	assert.Equal(t, 1, srv.Logins())

	rec := httptest.NewRecorder()
	a.mgmt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calls", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var calls []db.Call
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &calls))
	methods := make([]string, len(calls))
	for i, c := range calls {
		methods[i] = c.Method
	}
	assert.Contains(t, methods, "HostGroup.FindHosts")
	assert.Contains(t, methods, "ChunkAccessor.Release")
}

func TestBridge_ApplicationFaultBecomesToolError(t *testing.T) {
	srv := ksctest.New(t)
	srv.Handle("Tasks.RunTask", func(ksctest.Call) ksctest.Reply { return ksctest.Fault(1184, "Object not found") })

	a := startApp(t, srv, false)
	resp := callTool(t, a.rpc, "ksc.tasks.run", map[string]any{"task_id": "17"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.KSCApplicationError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "Object not found")
}

func TestBridge_PingOverWebSocket(t *testing.T) {
	srv := ksctest.New(t)
	srv.HandleResult("HostGroup.GetDomains", ksctest.RetVal(params.Array()))

	a := startApp(t, srv, false)
	wsSrv := httptest.NewServer(a.ws)
	defer wsSrv.Close()

	ws, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(wsSrv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]any{
		"jsonrpc": "2.0", "id": 5, "method": "tools/call",
		"params": map[string]any{"name": "ksc.ping"},
	}))
	var resp jsonrpc.Response
	require.NoError(t, ws.ReadJSON(&resp))
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), "pong")
}

func TestBridge_TracingWritesSpans(t *testing.T) {
	srv := ksctest.New(t)
	srv.HandleResult("HostGroup.GetDomains", ksctest.RetVal(params.Array()))

	traceFile := filepath.Join(t.TempDir(), "traces.jsonl")
	cfg := &config.Config{
		KSC: config.KSCConfig{
			Host: srv.URL, Username: "admin", Password: "pw", Internal: true,
			Login: true, TimeoutSeconds: 5, PageSize: 100, ListLimit: 50, PollFallbackMS: 10,
			Tracing: true, TraceFile: traceFile,
		},
	}
	a, err := newApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, a.tracing)

	resp := callTool(t, a.rpc, "ksc.ping", nil)
	require.Nil(t, resp.Error)
	a.Close(context.Background())

	data, err := os.ReadFile(traceFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ksc.call HostGroup.GetDomains")
	assert.Contains(t, string(data), "ksc HostGroup.GetDomains")
}

func TestNewApp_JournalDirectoryError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	cfg := &config.Config{
		KSC:     config.KSCConfig{Host: "https://ksc", Username: "u", Password: "p"},
		Journal: config.JournalConfig{Enabled: true, Path: filepath.Join(blocker, "sub", "journal.db")},
	}
	_, err := newApp(cfg)
	var pathErr *apierrors.XDGPathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "journal", pathErr.Variable)
}
