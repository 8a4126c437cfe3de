// ABOUTME: Tests for JSON-RPC message parsing
// ABOUTME: Checks requests, responses and error envelopes used by the tool surface

package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestParseRequest(t *testing.T) {
	data := []byte(`{
		"jsonrpc": "2.0",
		"method": "tools/call",
		"params": {"name": "ksc.hosts.list", "arguments": {"limit": 10}},
		"id": 1
	}`)

	var req Request
	err := json.Unmarshal(data, &req)
	if err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if req.JSONRPC != "2.0" {
		t.Errorf("expected jsonrpc 2.0, got %s", req.JSONRPC)
	}

	if req.Method != "tools/call" {
		t.Errorf("expected method tools/call, got %s", req.Method)
	}

	if req.ID == nil {
		t.Error("expected id to be set")
	}
}

func TestParseResponse(t *testing.T) {
	data := []byte(`{
		"jsonrpc": "2.0",
		"result": {"hosts": []},
		"id": 1
	}`)

	var resp Response
	err := json.Unmarshal(data, &resp)
	if err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if resp.Result == nil {
		t.Error("expected result to be set")
	}
}

func TestParseError(t *testing.T) {
	data := []byte(`{
		"jsonrpc": "2.0",
		"error": {
			"code": -32600,
			"message": "Invalid request",
			"data": {"detail": "test"}
		},
		"id": 1
	}`)

	var resp Response
	err := json.Unmarshal(data, &resp)
	if err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if resp.Error == nil {
		t.Fatal("expected error to be set")
	}

	if resp.Error.Code != -32600 {
		t.Errorf("expected code -32600, got %d", resp.Error.Code)
	}
}

func TestNotificationHasNoID(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"tools/list"}`), &req); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if !req.IsNotification() {
		t.Error("expected request without id to be a notification")
	}
}

func TestNewResultKeepsID(t *testing.T) {
	id := json.RawMessage(`"abc"`)
	resp, err := NewResult(&id, map[string]int{"count": 2})
	if err != nil {
		t.Fatalf("NewResult: %v", err)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","result":{"count":2},"id":"abc"}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}
