// ABOUTME: Endpoint stubs for the KSC HostGroup class
// ABOUTME: Each method assembles its arguments and forwards them through a Caller

package ksc

import (
	"context"

	"github.com/harper/ksc-bridge/internal/params"
	"github.com/harper/ksc-bridge/internal/rpc"
)

// Caller is the slice of the invoker the stubs need.
type Caller interface {
	Call(ctx context.Context, methodPath string, in *params.Params) (*rpc.Response, error)
}

// HostGroup wraps administration group and host methods.
type HostGroup struct {
	c        Caller
	instance string
}

func NewHostGroup(c Caller, instance string) *HostGroup {
	return &HostGroup{c: c, instance: instance}
}

func (h *HostGroup) call(ctx context.Context, method string, in *params.Params) (*rpc.Response, error) {
	return h.c.Call(ctx, rpc.MethodPath(h.instance, "HostGroup", method), in)
}

// FindHosts searches hosts with an LDAP-style filter. The result set is left behind
// strAccessor; the return value is the number of matches.
func (h *HostGroup) FindHosts(ctx context.Context, filter string, fields, order []string, opts *params.Params, maxLifetime int32) (*rpc.Response, error) {
	in := params.New().
		AddString("wstrFilter", filter).
		AddStrings("vecFieldsToReturn", fields...).
		Set("vecFieldsToOrder", orderArray(order)).
		AddParams("pParams", orEmpty(opts)).
		AddInt32("lMaxLifeTime", maxLifetime)
	return h.call(ctx, "FindHosts", in)
}

// FindGroups searches administration groups the same way FindHosts searches hosts.
func (h *HostGroup) FindGroups(ctx context.Context, filter string, fields, order []string, opts *params.Params, maxLifetime int32) (*rpc.Response, error) {
	in := params.New().
		AddString("wstrFilter", filter).
		AddStrings("vecFieldsToReturn", fields...).
		Set("vecFieldsToOrder", orderArray(order)).
		AddParams("pParams", orEmpty(opts)).
		AddInt32("lMaxLifeTime", maxLifetime)
	return h.call(ctx, "FindGroups", in)
}

// GetHostInfo returns the requested fields of one host as the return value.
func (h *HostGroup) GetHostInfo(ctx context.Context, hostName string, fields []string) (*rpc.Response, error) {
	in := params.New().
		AddString("strHostName", hostName).
		AddStrings("pFields2Return", fields...)
	return h.call(ctx, "GetHostInfo", in)
}

func (h *HostGroup) MoveHostsToGroup(ctx context.Context, group int64, hostNames ...string) (*rpc.Response, error) {
	in := params.New().
		AddInt64("nGroup", group).
		AddStrings("pHostNames", hostNames...)
	return h.call(ctx, "MoveHostsToGroup", in)
}

func (h *HostGroup) GetDomains(ctx context.Context) (*rpc.Response, error) {
	return h.call(ctx, "GetDomains", nil)
}

// GroupIdGroups returns the id of the root "Managed devices" group.
func (h *HostGroup) GroupIdGroups(ctx context.Context) (*rpc.Response, error) {
	return h.call(ctx, "GroupIdGroups", nil)
}

func (h *HostGroup) GetGroupInfo(ctx context.Context, group int64) (*rpc.Response, error) {
	return h.call(ctx, "GetGroupInfo", params.New().AddInt64("nGroupId", group))
}

// RemoveGroup starts asynchronous removal. strActionGuid names the action to poll.
func (h *HostGroup) RemoveGroup(ctx context.Context, group int64, flags int32) (*rpc.Response, error) {
	in := params.New().
		AddInt64("nGroup", group).
		AddInt32("nFlags", flags)
	return h.call(ctx, "RemoveGroup", in)
}

// orderArray builds vecFieldsToOrder entries of the form {Name, Asc}.
func orderArray(fields []string) params.Value {
	items := make([]params.Value, 0, len(fields))
	for _, f := range fields {
		items = append(items, params.ParamsOf(params.New().AddString("Name", f).AddBool("Asc", true)))
	}
	return params.Array(items...)
}

func orEmpty(p *params.Params) *params.Params {
	if p == nil {
		return params.New()
	}
	return p
}
