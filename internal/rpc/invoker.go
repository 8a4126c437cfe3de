// ABOUTME: Single choke point for KSC method calls: encode, post, decode, classify
// ABOUTME: Separates transport, decode and application failures and reports every call

package rpc

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/params"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/harper/ksc-bridge/internal/rpc"

var log = logger.Named("rpc")

// Doer posts one request body and returns the raw reply. *transport.Transport is the
// production implementation.
type Doer interface {
	Invoke(ctx context.Context, methodPath string, body []byte) (int, []byte, error)
}

// CallRecord summarises one call for observers.
type CallRecord struct {
	ID         string
	Method     string
	Started    time.Time
	Duration   time.Duration
	Status     int
	ErrKind    string
	ErrCode    int64
	ErrMessage string
}

// Observer is notified after every call, successful or not.
type Observer interface {
	ObserveCall(CallRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(CallRecord)

func (f ObserverFunc) ObserveCall(rec CallRecord) { f(rec) }

type Invoker struct {
	doer      Doer
	observers []Observer
	tracer    trace.Tracer
}

type Option func(*Invoker)

func WithObserver(o Observer) Option {
	return func(i *Invoker) {
		if o != nil {
			i.observers = append(i.observers, o)
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(i *Invoker) {
		i.tracer = tp.Tracer(tracerName)
	}
}

func New(doer Doer, opts ...Option) *Invoker {
	i := &Invoker{doer: doer, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// MethodPath joins an optional instance prefix with Class.Method.
func MethodPath(instance, class, method string) string {
	if instance == "" {
		return class + "." + method
	}
	return instance + "." + class + "." + method
}

// Call invokes methodPath with in (nil means no arguments) and returns the decoded
// envelope. Errors are *errors.TransportError, *errors.DecodeError or
// *errors.ApplicationError.
func (i *Invoker) Call(ctx context.Context, methodPath string, in *params.Params) (*Response, error) {
	ctx, span := i.tracer.Start(ctx, "ksc.call "+methodPath,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "ksc-openapi"),
			attribute.String("rpc.method", methodPath),
		))
	defer span.End()

	rec := CallRecord{ID: uuid.NewString(), Method: methodPath, Started: time.Now()}
	resp, err := i.call(ctx, methodPath, in, &rec)
	rec.Duration = time.Since(rec.Started)

	span.SetAttributes(attribute.Int("http.response.status_code", rec.Status))
	if err != nil {
		rec.ErrKind = string(apierrors.KindOf(err))
		rec.ErrMessage = err.Error()
		if ae, ok := apierrors.AsApplication(err); ok {
			rec.ErrCode = ae.Code
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, rec.ErrKind)
		log.Debug("%s failed after %s: %v", methodPath, rec.Duration.Round(time.Millisecond), err)
	}
	for _, o := range i.observers {
		o.ObserveCall(rec)
	}
	return resp, err
}

func (i *Invoker) call(ctx context.Context, methodPath string, in *params.Params, rec *CallRecord) (*Response, error) {
	if in == nil {
		in = params.New()
	}
	body, err := params.Encode(in)
	if err != nil {
		return nil, fmt.Errorf("encode %s arguments: %w", methodPath, err)
	}

	status, data, err := i.doer.Invoke(ctx, methodPath, body)
	rec.Status = status
	if err != nil {
		return nil, err
	}

	if status < 200 || status > 299 {
		return nil, statusFault(methodPath, status, data)
	}

	out, err := decodeBody(methodPath, data)
	if err != nil {
		return nil, err
	}
	if fault, ok := out.Get(ErrorKey); ok && !fault.IsNull() {
		ae := faultFromValue(methodPath, fault)
		ae.HTTPStatus = status
		return nil, ae
	}
	return &Response{Method: methodPath, Status: status, Params: out}, nil
}

// decodeBody treats an empty 2xx body as an empty envelope; some void methods reply
// with no content.
func decodeBody(methodPath string, data []byte) (*params.Params, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return params.New(), nil
	}
	out, err := params.Decode(data)
	if err != nil {
		if de, ok := apierrors.AsDecode(err); ok {
			cp := *de
			cp.Method = methodPath
			cp.Snippet = snippet(data)
			return nil, &cp
		}
		return nil, err
	}
	return out, nil
}

// statusFault builds the error for a non-2xx reply, using the body's fault fields when
// the body happens to carry them.
func statusFault(methodPath string, status int, data []byte) *apierrors.ApplicationError {
	if len(bytes.TrimSpace(data)) > 0 {
		if out, err := params.Decode(data); err == nil {
			if fault, ok := out.Get(ErrorKey); ok && fault.Present() {
				ae := faultFromValue(methodPath, fault)
				ae.HTTPStatus = status
				return ae
			}
		}
	}
	return &apierrors.ApplicationError{
		Method:     methodPath,
		HTTPStatus: status,
		Message:    http.StatusText(status),
	}
}

func faultFromValue(methodPath string, fault params.Value) *apierrors.ApplicationError {
	ae := &apierrors.ApplicationError{Method: methodPath}
	p, ok := fault.AsParams()
	if !ok {
		ae.Message = strings.TrimSpace(fault.String())
		return ae
	}
	ae.Code = p.Value("code").Int64Or(0)
	ae.Subcode = p.Value("subcode").Int64Or(0)
	ae.Message = p.Value("message").StringOr("")
	ae.Module = p.Value("module").StringOr("")
	ae.File = p.Value("file").StringOr("")
	ae.Line = p.Value("line").Int64Or(0)
	ae.Details = p.Native()
	return ae
}

func snippet(data []byte) string {
	const limit = 200
	s := string(data)
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
