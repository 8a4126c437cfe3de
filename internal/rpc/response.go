// ABOUTME: Decoded response envelope with return value and output parameter access
// ABOUTME: Missing outputs surface as contract errors, never as zero values

package rpc

import (
	"github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/params"
)

// Reserved envelope keys.
const (
	RetValKey = "PxgRetVal"
	ErrorKey  = "PxgError"
)

// Response is one decoded reply. Every key other than PxgRetVal is an output parameter.
type Response struct {
	Method string
	Status int
	Params *params.Params
}

// ReturnValue returns the method's primary result.
func (r *Response) ReturnValue() (params.Value, error) {
	return r.OutParam(RetValKey)
}

// ReturnValueOr is ReturnValue for methods whose result is optional.
func (r *Response) ReturnValueOr(def params.Value) params.Value {
	if v, ok := r.Params.Get(RetValKey); ok {
		return v
	}
	return def
}

// OutParam returns a named output. A missing name is a server contract violation.
func (r *Response) OutParam(name string) (params.Value, error) {
	v, ok := r.Params.Get(name)
	if !ok {
		return params.Value{}, errors.NewMissingParamError(r.Method, name)
	}
	return v, nil
}

// OutParamParams returns a named output that must be a params container.
func (r *Response) OutParamParams(name string) (*params.Params, error) {
	v, err := r.OutParam(name)
	if err != nil {
		return nil, err
	}
	p, ok := v.AsParams()
	if !ok {
		return nil, &errors.ContractError{Method: r.Method, Param: name, Reason: "output is " + v.Kind().String() + ", want params"}
	}
	return p, nil
}

// OutParams returns every output parameter except the return value, in wire order.
func (r *Response) OutParams() *params.Params {
	out := params.New()
	r.Params.Range(func(k string, v params.Value) bool {
		if k != RetValKey {
			out.Set(k, v)
		}
		return true
	})
	return out
}

// Lookup walks the envelope and never fails.
func (r *Response) Lookup(path ...string) params.Value {
	return r.Params.Lookup(path...)
}
