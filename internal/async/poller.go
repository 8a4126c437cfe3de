// ABOUTME: Polls a server-side asynchronous action until it finalizes or a deadline passes
// ABOUTME: Sleeps exactly the delay the server suggests and reports timeouts as unknown outcomes

package async

import (
	"context"
	"errors"
	"time"

	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/params"
	"github.com/harper/ksc-bridge/internal/rpc"
)

const (
	classChecker = "AsyncActionStateChecker"

	// DefaultFallbackDelay is used when the server omits lNextCheckDelay.
	DefaultFallbackDelay = time.Second
)

var log = logger.Named("async")

// ErrStopped is returned when the stop check asks polling to end early.
var ErrStopped = errors.New("polling stopped on request")

// Caller is the slice of the invoker this package needs.
type Caller interface {
	Call(ctx context.Context, methodPath string, in *params.Params) (*rpc.Response, error)
}

// Token identifies one asynchronous action on the server.
type Token string

// State is one answer of CheckActionState.
type State struct {
	Finalized bool
	Succeeded bool
	StateCode int64
	Data      *params.Params
	// NextCheckDelay is meaningful only when HasDelay is set.
	NextCheckDelay time.Duration
	HasDelay       bool
}

// Fault turns a finalized, unsuccessful state into an application error. It returns
// nil for any other state.
func (s State) Fault(method string) error {
	if !s.Finalized || s.Succeeded {
		return nil
	}
	info := s.Data.Lookup("KLBLAG_ERROR_INFO")
	msg := s.Data.Lookup("GNRL_EA_DESCRIPTION").StringOr("")
	if msg == "" {
		msg = info.Lookup("KLBLAG_ERROR_MSG").StringOr("")
	}
	if msg == "" {
		msg = "asynchronous action failed"
	}
	return &apierrors.ApplicationError{
		Method:     method,
		HTTPStatus: 200,
		Code:       info.Lookup("KLBLAG_ERROR_CODE").Int64Or(s.StateCode),
		Subcode:    info.Lookup("KLBLAG_ERROR_SUBCODE").Int64Or(0),
		Message:    msg,
		Module:     info.Lookup("KLBLAG_ERROR_MODULE").StringOr(""),
		Details:    s.Data.Native(),
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Poller struct {
	caller   Caller
	token    Token
	instance string
	fallback time.Duration
	stop     func() bool
	sleep    Sleeper
	now      func() time.Time

	checks int
	last   State
}

type Option func(*Poller)

// WithFallbackDelay sets the wait used when the server suggests none.
func WithFallbackDelay(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.fallback = d
		}
	}
}

// WithStopCheck installs a function consulted before every check.
func WithStopCheck(stop func() bool) Option {
	return func(p *Poller) { p.stop = stop }
}

func WithSleeper(s Sleeper) Option {
	return func(p *Poller) {
		if s != nil {
			p.sleep = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func WithInstance(instance string) Option {
	return func(p *Poller) { p.instance = instance }
}

func New(caller Caller, token Token, opts ...Option) *Poller {
	p := &Poller{
		caller:   caller,
		token:    token,
		fallback: DefaultFallbackDelay,
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) Token() Token { return p.token }

// Checks is the number of state checks performed so far.
func (p *Poller) Checks() int { return p.checks }

// Last is the most recently observed state.
func (p *Poller) Last() State { return p.last }

// Check asks the server for the action's current state once.
func (p *Poller) Check(ctx context.Context) (State, error) {
	method := rpc.MethodPath(p.instance, classChecker, "CheckActionState")
	resp, err := p.caller.Call(ctx, method, params.New().AddString("wstrActionGuid", string(p.token)))
	if err != nil {
		return State{}, err
	}
	p.checks++

	finalized, err := resp.OutParam("bFinalized")
	if err != nil {
		return State{}, err
	}
	fin, ok := finalized.AsBool()
	if !ok {
		return State{}, &apierrors.ContractError{Method: method, Param: "bFinalized", Reason: "flag is " + finalized.Kind().String()}
	}

	st := State{
		Finalized: fin,
		Succeeded: resp.Lookup("bSuccededFinalized").BoolOr(false),
		StateCode: resp.Lookup("lStateCode").Int64Or(0),
		Data:      resp.Lookup("pStateData").ParamsOr(nil),
	}
	if ms, ok := resp.Lookup("lNextCheckDelay").AsInt(); ok && ms >= 0 {
		st.NextCheckDelay = time.Duration(ms) * time.Millisecond
		st.HasDelay = true
	}
	p.last = st
	return st, nil
}

// PollUntilDone checks until the action finalizes. Between checks it sleeps the delay
// the server suggested in the latest state. With maxWait > 0 it gives up once that
// much time has passed and returns a *PollTimeoutError; the action may still complete.
func (p *Poller) PollUntilDone(ctx context.Context, maxWait time.Duration) (State, error) {
	start := p.now()
	for {
		if p.stop != nil && p.stop() {
			return p.last, ErrStopped
		}

		st, err := p.Check(ctx)
		if err != nil {
			return st, err
		}
		if st.Finalized {
			log.Debug("action %s finalized after %d checks (success=%t)", p.token, p.checks, st.Succeeded)
			return st, nil
		}

		delay := p.fallback
		if st.HasDelay {
			delay = st.NextCheckDelay
		}
		if maxWait > 0 {
			elapsed := p.now().Sub(start)
			if elapsed >= maxWait {
				return st, &apierrors.PollTimeoutError{
					Token:         string(p.token),
					Waited:        elapsed,
					Checks:        p.checks,
					LastStateCode: st.StateCode,
				}
			}
			if remaining := maxWait - elapsed; delay > remaining {
				delay = remaining
			}
		}

		if err := p.sleep(ctx, delay); err != nil {
			return st, err
		}
	}
}

// CancelAction asks the server to abandon the action. Failures are logged only.
func (p *Poller) CancelAction(ctx context.Context) {
	method := rpc.MethodPath(p.instance, classChecker, "CancelAction")
	if _, err := p.caller.Call(ctx, method, params.New().AddString("wstrActionGuid", string(p.token))); err != nil {
		log.Warn("cancel of action %s failed: %v", p.token, err)
	}
}
