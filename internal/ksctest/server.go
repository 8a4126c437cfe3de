// ABOUTME: Fake KSC OpenAPI server for tests, built on httptest
// ABOUTME: Dispatches on method path, records calls and serves accessors and async actions

package ksctest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/harper/ksc-bridge/internal/params"
)

const apiPrefix = "/api/v1.0/"

// Call is one request the fake server received.
type Call struct {
	Method string
	Args   *params.Params
	Header http.Header
}

// Reply is what a handler sends back.
type Reply struct {
	Status int
	Body   []byte
}

type HandlerFunc func(call Call) Reply

type Server struct {
	*httptest.Server

	mu          sync.Mutex
	handlers    map[string]HandlerFunc
	calls       []Call
	logins      int
	loginStatus int
	accessors   map[string][]*params.Params
	counts      map[string]int
	released    map[string]bool
	actions     map[string][]ActionState
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		handlers:    make(map[string]HandlerFunc),
		loginStatus: http.StatusOK,
		accessors:   make(map[string][]*params.Params),
		counts:      make(map[string]int),
		released:    make(map[string]bool),
		actions:     make(map[string][]ActionState),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	s.installAccessorHandlers()
	s.installActionHandlers()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, apiPrefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, apiPrefix)

	if method == "login" {
		s.mu.Lock()
		s.logins++
		status := s.loginStatus
		s.mu.Unlock()
		w.WriteHeader(status)
		return
	}

	data, _ := io.ReadAll(r.Body)
	args, err := params.Decode(data)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	call := Call{Method: method, Args: args, Header: r.Header.Clone()}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	h, ok := s.handlers[method]
	s.mu.Unlock()

	reply := Fault(-1, "method "+method+" is not implemented by the fake server")
	if ok {
		reply = h(call)
	}
	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	_, _ = w.Write(reply.Body)
}

// Handle registers a handler for a method path such as "HostGroup.FindHosts".
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// HandleResult always answers method with out.
func (s *Server) HandleResult(method string, out *params.Params) {
	s.Handle(method, func(Call) Reply { return OK(out) })
}

// SetLoginStatus changes the HTTP status returned by /login.
func (s *Server) SetLoginStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginStatus = status
}

func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Calls returns every recorded call in arrival order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsTo returns the recorded calls to one method.
func (s *Server) CallsTo(method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Methods returns the method path of every recorded call.
func (s *Server) Methods() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

// OK encodes out as a 200 reply.
func OK(out *params.Params) Reply {
	if out == nil {
		out = params.New()
	}
	body, err := params.Encode(out)
	if err != nil {
		panic(err)
	}
	return Reply{Status: http.StatusOK, Body: body}
}

// RetVal builds an envelope whose only key is PxgRetVal.
func RetVal(v params.Value) *params.Params {
	return params.New().Set("PxgRetVal", v)
}

// Fault is a 200 reply carrying a server error subtree.
func Fault(code int64, message string) Reply {
	body, err := json.Marshal(map[string]any{
		"PxgError": map[string]any{
			"code":    code,
			"file":    "srvhrch.cpp",
			"line":    1178,
			"message": message,
			"module":  "KLPRCI",
			"subcode": 0,
		},
	})
	if err != nil {
		panic(err)
	}
	return Reply{Status: http.StatusOK, Body: body}
}

// Status is a raw reply with an arbitrary status and body.
func Status(status int, body string) Reply {
	return Reply{Status: status, Body: []byte(body)}
}
