// ABOUTME: Five-kind error taxonomy for KSC OpenAPI calls
// ABOUTME: Transport, decode, application, contract and poll-timeout failures stay distinguishable

package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind names one branch of the taxonomy.
type Kind string

const (
	KindTransport   Kind = "transport"
	KindDecode      Kind = "decode"
	KindApplication Kind = "application"
	KindContract    Kind = "contract"
	KindPollTimeout Kind = "poll_timeout"
	KindOther       Kind = "other"
)

// ErrUnknownOutcome matches any *PollTimeoutError via errors.Is.
var ErrUnknownOutcome = errors.New("async action outcome unknown")

// TransportReason classifies failures that happen before a response body exists.
type TransportReason string

const (
	ReasonRefused  TransportReason = "refused"
	ReasonTLS      TransportReason = "tls"
	ReasonTimeout  TransportReason = "timeout"
	ReasonCanceled TransportReason = "canceled"
	ReasonNetwork  TransportReason = "network"
	ReasonRequest  TransportReason = "request"
)

type TransportError struct {
	Method string
	URL    string
	Reason TransportReason
	Err    error
}

func NewTransportError(method, url string, reason TransportReason, err error) *TransportError {
	return &TransportError{Method: method, URL: url, Reason: reason, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s calling %s (%s): %v", e.Reason, e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Kind() Kind    { return KindTransport }

// DecodeError means a body could not be turned into a typed value tree.
type DecodeError struct {
	Method  string
	Reason  string
	Snippet string
	Err     error
}

func NewDecodeError(reason string, err error) *DecodeError {
	return &DecodeError{Reason: reason, Err: err}
}

func (e *DecodeError) Error() string {
	msg := "decode"
	if e.Method != "" {
		msg += " " + e.Method
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }
func (e *DecodeError) Kind() Kind    { return KindDecode }

// ApplicationError is a fault reported by the server, either through a non-2xx status
// or through an error-shaped subtree in the body. Server fields are kept verbatim.
type ApplicationError struct {
	Method     string
	HTTPStatus int
	Code       int64
	Subcode    int64
	Message    string
	Module     string
	File       string
	Line       int64
	Details    map[string]any
}

func (e *ApplicationError) Error() string {
	switch {
	case e.Code != 0 && e.Message != "":
		return fmt.Sprintf("%s failed: server error %d: %s", e.Method, e.Code, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("%s failed: server error %d", e.Method, e.Code)
	case e.Message != "":
		return fmt.Sprintf("%s failed: HTTP %d: %s", e.Method, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s failed: HTTP %d", e.Method, e.HTTPStatus)
}

func (e *ApplicationError) Kind() Kind { return KindApplication }

// IsAuthFailure reports whether the server rejected the session's credentials.
func (e *ApplicationError) IsAuthFailure() bool {
	return e.HTTPStatus == 401 || e.HTTPStatus == 403
}

// ContractError signals that client and server disagree about the protocol: a missing
// output parameter, or a handle used after release.
type ContractError struct {
	Method string
	Param  string
	Reason string
}

func NewMissingParamError(method, param string) *ContractError {
	return &ContractError{Method: method, Param: param, Reason: "missing output parameter"}
}

func (e *ContractError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("contract violation in %s: %s %q", e.Method, e.Reason, e.Param)
	}
	return fmt.Sprintf("contract violation in %s: %s", e.Method, e.Reason)
}

func (e *ContractError) Kind() Kind { return KindContract }

// PollTimeoutError means a bounded poll ran out of time. The action may still succeed.
type PollTimeoutError struct {
	Token         string
	Waited        time.Duration
	Checks        int
	LastStateCode int64
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("async action %s not finalized after %s (%d checks): outcome unknown",
		e.Token, e.Waited.Round(time.Millisecond), e.Checks)
}

func (e *PollTimeoutError) Is(target error) bool { return target == ErrUnknownOutcome }
func (e *PollTimeoutError) Kind() Kind           { return KindPollTimeout }

// KindOf reports the taxonomy branch of the first classified error in err's chain.
func KindOf(err error) Kind {
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindOther
}

func AsApplication(err error) (*ApplicationError, bool) {
	var e *ApplicationError
	ok := errors.As(err, &e)
	return e, ok
}

func AsTransport(err error) (*TransportError, bool) {
	var e *TransportError
	ok := errors.As(err, &e)
	return e, ok
}

func AsContract(err error) (*ContractError, bool) {
	var e *ContractError
	ok := errors.As(err, &e)
	return e, ok
}

func AsDecode(err error) (*DecodeError, bool) {
	var e *DecodeError
	ok := errors.As(err, &e)
	return e, ok
}

func AsPollTimeout(err error) (*PollTimeoutError, bool) {
	var e *PollTimeoutError
	ok := errors.As(err, &e)
	return e, ok
}

func IsTransport(err error) bool   { return KindOf(err) == KindTransport }
func IsDecode(err error) bool      { return KindOf(err) == KindDecode }
func IsApplication(err error) bool { return KindOf(err) == KindApplication }
func IsContract(err error) bool    { return KindOf(err) == KindContract }
func IsPollTimeout(err error) bool { return KindOf(err) == KindPollTimeout }
