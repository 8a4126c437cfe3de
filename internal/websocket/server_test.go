package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/harper/ksc-bridge/internal/jsonrpc"
	"github.com/harper/ksc-bridge/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	httpSrv := httptest.NewServer(srv)
	t.Cleanup(httpSrv.Close)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func newRegistry() *tools.Registry {
	r := tools.NewRegistry()
	r.Register(tools.Tool{
		Name: "ksc.ping",
		Handler: func(context.Context, json.RawMessage) (any, error) {
			return map[string]string{"status": "pong"}, nil
		},
	})
	return r
}

func TestWebSocket_ToolsListAndCall(t *testing.T) {
	ws := dial(t, NewServer(newRegistry()))

	require.NoError(t, ws.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"}))
	var resp jsonrpc.Response
	require.NoError(t, ws.ReadJSON(&resp))
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), `"ksc.ping"`)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": "tools/call",
		"params": map[string]any{"name": "ksc.ping"},
	}))
	resp = jsonrpc.Response{}
	require.NoError(t, ws.ReadJSON(&resp))
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `2`, string(*resp.ID))
	assert.Contains(t, string(resp.Result), "pong")
}

func TestWebSocket_NotificationGetsNoReply(t *testing.T) {
	ws := dial(t, NewServer(newRegistry()))

	require.NoError(t, ws.WriteJSON(map[string]any{"jsonrpc": "2.0", "method": "ping"}))
	require.NoError(t, ws.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 9, "method": "ping"}))

	var resp jsonrpc.Response
	require.NoError(t, ws.ReadJSON(&resp))
	assert.JSONEq(t, `9`, string(*resp.ID))
}

func TestWebSocket_ParseError(t *testing.T) {
	ws := dial(t, NewServer(newRegistry()))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{oops")))
	var resp jsonrpc.Response
	require.NoError(t, ws.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.ParseError, resp.Error.Code)
}

func TestWebSocket_OriginCheck(t *testing.T) {
	httpSrv := httptest.NewServer(NewServer(newRegistry(), "https://allowed.example"))
	defer httpSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")

	header := map[string][]string{"Origin": {"https://evil.example"}}
	_, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	assert.Error(t, err)

	header["Origin"] = []string{"https://allowed.example"}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	_ = ws.Close()
}
