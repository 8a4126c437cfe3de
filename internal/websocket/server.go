// ABOUTME: WebSocket server for persistent JSON-RPC tool sessions
// ABOUTME: Each text frame carries one request; responses are written back in order

package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/jsonrpc"
	"github.com/harper/ksc-bridge/internal/logger"
)

var log = logger.Named("ws")

// Dispatcher answers one JSON-RPC request; *tools.Registry implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response
}

type Server struct {
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
}

// NewServer accepts connections from any origin when allowed is empty.
func NewServer(d Dispatcher, allowed ...string) *Server {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}
	return &Server{
		dispatcher: d,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return origins[r.Header.Get("Origin")]
			},
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed: %v", err)
		return
	}

	s.handleConnection(r.Context(), conn)
}

type connection struct {
	conn *websocket.Conn
}

func (c *connection) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("failed to marshal frame: %v", err)
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn("websocket write error: %v", err)
	}
}

func (s *Server) handleConnection(parent context.Context, conn *websocket.Conn) {
	defer conn.Close()

	// The upgrade hijacks the request, so its context ends with this handler.
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	c := &connection{conn: conn}
	log.Info("client connected from %s", conn.RemoteAddr())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read error: %v", err)
			}
			break
		}

		var req jsonrpc.Request
		if err := json.Unmarshal(message, &req); err != nil {
			c.send(jsonrpc.NewError(nil, errors.NewParseError(err.Error())))
			continue
		}

		log.Debug("request %s", req.Method)
		if resp := s.dispatcher.Dispatch(ctx, &req); resp != nil {
			c.send(resp)
		}
	}

	log.Info("client disconnected from %s", conn.RemoteAddr())
}
