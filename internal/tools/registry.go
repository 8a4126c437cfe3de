// ABOUTME: Registry of named tools exposed over JSON-RPC
// ABOUTME: Handles tools/list and tools/call dispatch and maps failures to LLM-oriented errors

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/jsonrpc"
	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/service"
)

var log = logger.Named("tools")

// Handler runs one tool with its raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Handler     Handler        `json:"-"`
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.InputSchema == nil {
		t.InputSchema = object(nil)
	}
	r.tools[t.Name] = t
}

// List returns every tool sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, t := range list {
		names[i] = t.Name
	}
	return names
}

// Call runs a tool. Failures come back as JSON-RPC errors ready to send.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (any, *jsonrpc.Error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, apierrors.NewToolNotFoundError(name, r.Names())
	}
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		log.Warn("tool %s failed: %v", name, err)
		return nil, toJSONRPC(err)
	}
	return result, nil
}

func toJSONRPC(err error) *jsonrpc.Error {
	if errors.Is(err, service.ErrInvalidArgument) {
		return apierrors.NewInvalidParamsError("arguments", "a valid value", err.Error())
	}
	return apierrors.ToJSONRPCError(err)
}

// CallParams is the params object of tools/call.
type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallResult mirrors the content envelope tool clients expect.
type CallResult struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Dispatch answers one JSON-RPC request. It returns nil for notifications.
func (r *Registry) Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	resp := r.dispatch(ctx, req)
	if req.IsNotification() {
		return nil
	}
	return resp
}

func (r *Registry) dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if req.JSONRPC != jsonrpc.Version {
		return jsonrpc.NewError(req.ID, apierrors.NewInvalidRequestError(fmt.Sprintf("jsonrpc must be %q, got %q", jsonrpc.Version, req.JSONRPC)))
	}

	switch req.Method {
	case "tools/list":
		return result(req.ID, map[string]any{"tools": r.List()})

	case "tools/call":
		var p CallParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Name == "" {
			return jsonrpc.NewError(req.ID, apierrors.NewInvalidParamsError("name", "string", string(req.Params)))
		}
		value, rpcErr := r.Call(ctx, p.Name, p.Arguments)
		if rpcErr != nil {
			return jsonrpc.NewError(req.ID, rpcErr)
		}
		text, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return jsonrpc.NewError(req.ID, apierrors.NewInternalError(fmt.Sprintf("failed to marshal result: %v", err)))
		}
		return result(req.ID, CallResult{
			Content:           []Content{{Type: "text", Text: string(text)}},
			StructuredContent: value,
		})

	case "ping":
		return result(req.ID, map[string]any{})
	}

	return jsonrpc.NewError(req.ID, apierrors.NewMethodNotFoundError(req.Method, []string{"tools/list", "tools/call", "ping"}))
}

func result(id *json.RawMessage, v any) *jsonrpc.Response {
	resp, err := jsonrpc.NewResult(id, v)
	if err != nil {
		return jsonrpc.NewError(id, apierrors.NewInternalError(fmt.Sprintf("failed to marshal result: %v", err)))
	}
	return resp
}
