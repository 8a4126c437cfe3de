// ABOUTME: HTTP server exposing the KSC tools as a JSON-RPC endpoint
// ABOUTME: Routes POST /rpc to the tool registry dispatcher

package http

import (
	"context"
	"net/http"

	"github.com/harper/ksc-bridge/internal/jsonrpc"
	"github.com/harper/ksc-bridge/internal/logger"
)

var log = logger.Named("http")

// Dispatcher answers one JSON-RPC request; *tools.Registry implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response
}

type Server struct {
	dispatcher Dispatcher
	mux        *http.ServeMux
	maxBody    int64
}

// DefaultMaxBody bounds a request body.
const DefaultMaxBody = 1 << 20

func NewServer(d Dispatcher) *Server {
	s := &Server{
		dispatcher: d,
		mux:        http.NewServeMux(),
		maxBody:    DefaultMaxBody,
	}

	s.mux.HandleFunc("/rpc", s.handleRPC)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
