// ABOUTME: Session owns one authenticated connection to a KSC server
// ABOUTME: Serialises calls, reconnects once on session expiry and hands out iterators and pollers

package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harper/ksc-bridge/internal/async"
	"github.com/harper/ksc-bridge/internal/chunk"
	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/params"
	"github.com/harper/ksc-bridge/internal/rpc"
	"github.com/harper/ksc-bridge/internal/transport"
)

var log = logger.Named("session")

// ErrClosed is returned by every entry point after Close.
var ErrClosed = errors.New("session closed")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Caller is what a unit of work inside Do calls through.
type Caller interface {
	Call(ctx context.Context, methodPath string, in *params.Params) (*rpc.Response, error)
}

type Config struct {
	Transport transport.Config
	// Login opens a cookie session on connect instead of relying on per-request
	// credentials alone.
	Login bool
	// ExpiryCodes are server error codes that mean the session is no longer valid.
	ExpiryCodes   []int64
	PageSize      int
	FallbackDelay time.Duration
	Observers     []rpc.Observer
	InvokerOpts   []rpc.Option
}

type Session struct {
	ID  string
	cfg Config

	mu         sync.Mutex
	state      State
	closed     bool
	tr         *transport.Transport
	inv        *rpc.Invoker
	connected  time.Time
	reconnects int
}

func New(cfg Config) *Session {
	return &Session{
		ID:  "ksc_" + uuid.New().String()[:8],
		cfg: cfg,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info is a snapshot for health reporting.
type Info struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	Server      string    `json:"server"`
	ConnectedAt time.Time `json:"connected_at,omitzero"`
	Reconnects  int       `json:"reconnects"`
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:         s.ID,
		State:      s.state.String(),
		Server:     s.cfg.Transport.BaseURL,
		Reconnects: s.reconnects,
	}
	if s.state == StateConnected {
		info.ConnectedAt = s.connected
	}
	return info
}

// Connect establishes the session if it is not connected yet.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(ctx)
}

// EnsureConnected is Connect under the name collaborators use before a unit of work.
func (s *Session) EnsureConnected(ctx context.Context) error {
	return s.Connect(ctx)
}

func (s *Session) ensureLocked(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.state == StateConnected {
		return nil
	}
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	s.state = StateConnecting
	tr, err := transport.New(s.cfg.Transport)
	if err != nil {
		s.state = StateDisconnected
		return err
	}
	if s.cfg.Login {
		if err := tr.Login(ctx); err != nil {
			tr.Close()
			s.state = StateDisconnected
			return err
		}
	}

	opts := append([]rpc.Option(nil), s.cfg.InvokerOpts...)
	for _, o := range s.cfg.Observers {
		opts = append(opts, rpc.WithObserver(o))
	}
	s.tr = tr
	s.inv = rpc.New(tr, opts...)
	s.state = StateConnected
	s.connected = time.Now()
	log.Info("[%s] connected to %s", s.ID, s.cfg.Transport.BaseURL)
	return nil
}

func (s *Session) dropLocked() {
	if s.tr != nil {
		s.tr.Close()
	}
	s.tr = nil
	s.inv = nil
	s.state = StateDisconnected
}

// MarkStale forces the next unit of work to reconnect.
func (s *Session) MarkStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		log.Debug("[%s] marked stale", s.ID)
	}
	s.dropLocked()
}

// Close ends the server session best effort. The session cannot be reused.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.state == StateConnected && s.cfg.Login {
		s.tr.Logout(ctx)
	}
	s.dropLocked()
	s.closed = true
	log.Info("[%s] closed", s.ID)
}

// IsExpiry reports whether err means the server no longer accepts the session.
func (s *Session) IsExpiry(err error) bool {
	ae, ok := apierrors.AsApplication(err)
	if !ok {
		return false
	}
	return ae.IsAuthFailure() || (ae.Code != 0 && slices.Contains(s.cfg.ExpiryCodes, ae.Code))
}

// Do runs fn with exclusive use of the session. When fn fails with a session expiry
// signal the session reconnects and fn runs once more; any further failure is
// returned as is. Calls made through the Session itself from inside fn deadlock; use
// the Caller passed to fn.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context, c Caller) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(ctx); err != nil {
		return err
	}
	err := fn(ctx, s.inv)
	if err == nil || !s.IsExpiry(err) {
		return err
	}

	log.Warn("[%s] session expired (%v); reconnecting once", s.ID, err)
	s.dropLocked()
	s.reconnects++
	if cerr := s.connectLocked(ctx); cerr != nil {
		return cerr
	}
	return fn(ctx, s.inv)
}

// Call performs one method call as its own unit of work.
func (s *Session) Call(ctx context.Context, methodPath string, in *params.Params) (*rpc.Response, error) {
	var resp *rpc.Response
	err := s.Do(ctx, func(ctx context.Context, c Caller) error {
		var err error
		resp, err = c.Call(ctx, methodPath, in)
		return err
	})
	return resp, err
}

// Iterate returns an iterator whose every chunk call is its own unit of work.
func (s *Session) Iterate(acc chunk.Accessor, opts ...chunk.Option) *chunk.Iterator {
	if s.cfg.PageSize > 0 {
		opts = append([]chunk.Option{chunk.WithPageSize(s.cfg.PageSize)}, opts...)
	}
	return chunk.New(s, acc, opts...)
}

// Poll returns a poller for an async action token.
func (s *Session) Poll(token async.Token, opts ...async.Option) *async.Poller {
	if s.cfg.FallbackDelay > 0 {
		opts = append([]async.Option{async.WithFallbackDelay(s.cfg.FallbackDelay)}, opts...)
	}
	return async.New(s, token, opts...)
}
