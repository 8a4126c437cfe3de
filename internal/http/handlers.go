// ABOUTME: HTTP handlers for the JSON-RPC tool endpoint
// ABOUTME: Decodes single or batch requests and writes JSON-RPC responses

package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/jsonrpc"
)

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		writeLLMError(w, errors.NewInvalidRequestError(fmt.Sprintf("failed to read body: %v", err)), nil)
		return
	}
	defer func() { _ = r.Body.Close() }()

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		s.handleBatch(w, r, trimmed)
		return
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		writeLLMError(w, errors.NewParseError(err.Error()), nil)
		return
	}

	log.Debug("request %s", req.Method)
	resp := s.dispatcher.Dispatch(r.Context(), &req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, resp)
}

// handleBatch answers a JSON-RPC batch in order, omitting notifications.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request, body []byte) {
	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		writeLLMError(w, errors.NewParseError(err.Error()), nil)
		return
	}
	if len(batch) == 0 {
		writeLLMError(w, errors.NewInvalidRequestError("empty batch"), nil)
		return
	}

	out := make([]*jsonrpc.Response, 0, len(batch))
	for _, raw := range batch {
		var req jsonrpc.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			out = append(out, jsonrpc.NewError(nil, errors.NewInvalidRequestError(err.Error())))
			continue
		}
		if resp := s.dispatcher.Dispatch(r.Context(), &req); resp != nil {
			out = append(out, resp)
		}
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("error encoding response: %v", err)
	}
}

func writeLLMError(w http.ResponseWriter, err *jsonrpc.Error, id *json.RawMessage) {
	resp := jsonrpc.NewError(id, err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // JSON-RPC errors still return 200
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("error encoding LLM error response: %v", err)
	}
}
