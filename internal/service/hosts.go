// ABOUTME: Host operations: search with paging, details lookup and moving between groups
// ABOUTME: Search result sets are always released, even when reading them fails

package service

import (
	"context"
	"fmt"
	"net/netip"
	"slices"

	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/params"
	"github.com/harper/ksc-bridge/internal/rpc"
	"github.com/harper/ksc-bridge/internal/session"
)

const allHostsFilter = `(KLHST_WKS_DN="*")`

var hostListFields = []string{
	"KLHST_WKS_DN",
	"KLHST_WKS_HOSTNAME",
	"KLHST_WKS_GROUPID",
	"KLHST_WKS_STATUS",
	"KLHST_WKS_STATUS_ID",
	"KLHST_WKS_IP_LONG",
}

var hostDetailFields = []string{
	"KLHST_WKS_DN",
	"KLHST_WKS_HOSTNAME",
	"KLHST_WKS_GROUPID",
	"KLHST_WKS_STATUS",
	"KLHST_WKS_STATUS_ID",
	"KLHST_WKS_LAST_VISIBLE",
	"KLHST_WKS_OS_NAME",
	"KLHST_WKS_OS_VER_MAJOR",
	"KLHST_WKS_OS_VER_MINOR",
	"KLHST_WKS_OS_BUILD_NUMBER",
	"KLHST_WKS_CPU_ARCH",
	"KLHST_APP_INFO",
}

var osInfoFields = map[string]string{
	"KLHST_WKS_OS_NAME":         "name",
	"KLHST_WKS_OS_VER_MAJOR":    "version_major",
	"KLHST_WKS_OS_VER_MINOR":    "version_minor",
	"KLHST_WKS_OS_BUILD_NUMBER": "build",
	"KLHST_WKS_CPU_ARCH":        "cpu_arch",
}

// ListHosts searches managed devices. The result is capped by q.Limit (or the
// configured default) and HostList.Truncated reports when more hosts matched.
func (s *Service) ListHosts(ctx context.Context, q HostQuery) (*HostList, error) {
	terms := []string{allHostsFilter}
	if q.Status != "" {
		id, ok := hostStatusFromQuery(q.Status)
		if !ok {
			return nil, invalid("unknown host status %q (want ok, critical or warning)", q.Status)
		}
		terms = append(terms, fmt.Sprintf("(KLHST_WKS_STATUS_ID=%d)", id))
	}

	var out *HostList
	err := s.sess.Do(ctx, func(ctx context.Context, c session.Caller) error {
		filter := terms
		if q.GroupName != "" {
			gid, err := s.findGroupID(ctx, c, q.GroupName)
			if err != nil {
				return err
			}
			filter = append(slices.Clone(terms), fmt.Sprintf("(KLHST_WKS_GROUPID=%d)", gid))
		}

		resp, err := s.hostGroup(c).FindHosts(ctx, andFilter(filter), hostListFields, []string{"KLHST_WKS_DN"},
			params.New().AddBool("KLGRP_FIND_FROM_CUR_VS_ONLY", true), s.cfg.AccessorLifetime)
		if err != nil {
			return err
		}
		items, total, truncated, err := s.collect(ctx, c, resp, s.limit(q.Limit))
		if err != nil {
			return err
		}

		hosts := make([]HostInfo, 0, len(items))
		for _, item := range items {
			hosts = append(hosts, hostFromItem(item, q.GroupName))
		}
		out = &HostList{Hosts: hosts, Total: total, Truncated: truncated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Truncated {
		log.Info("host list truncated at %d of %d", len(out.Hosts), out.Total)
	}
	return out, nil
}

func hostFromItem(item *params.Params, groupName string) HostInfo {
	dn := item.Value("KLHST_WKS_DN").StringOr("")
	name := item.Value("KLHST_WKS_HOSTNAME").StringOr("")
	id := name
	if id == "" {
		id = dn
	}
	if dn == "" {
		dn = "Unknown"
	}
	statusID := item.Value("KLHST_WKS_STATUS_ID").Int64Or(0)

	return HostInfo{
		ID:          id,
		Name:        id,
		DisplayName: dn,
		GroupID:     item.Value("KLHST_WKS_GROUPID").Int64Or(item.Value("KLHST_WKS_GRP").Int64Or(0)),
		GroupName:   groupName,
		Status:      hostStatusLabel(statusID),
		StatusCode:  statusID,
		StatusFlags: hostStatusFlags(item.Value("KLHST_WKS_STATUS").Int64Or(0)),
		IPAddress:   ipFromLong(item.Value("KLHST_WKS_IP_LONG").Int64Or(0)),
	}
}

// ipFromLong renders an IPv4 address stored as a big-endian integer.
func ipFromLong(v int64) string {
	if v <= 0 || v > 0xFFFFFFFF {
		return ""
	}
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}).String()
}

// GetHostDetails reads one host by its unique name.
func (s *Service) GetHostDetails(ctx context.Context, hostID string) (*HostDetail, error) {
	if hostID == "" {
		return nil, invalid("host id is required")
	}

	var resp *rpc.Response
	err := s.sess.Do(ctx, func(ctx context.Context, c session.Caller) error {
		var err error
		resp, err = s.hostGroup(c).GetHostInfo(ctx, hostID, hostDetailFields)
		return err
	})
	if err != nil {
		return nil, err
	}

	rv, err := resp.ReturnValue()
	if err != nil {
		return nil, err
	}
	data, ok := rv.AsParams()
	if !ok {
		return nil, &apierrors.ContractError{Method: resp.Method, Param: rpc.RetValKey, Reason: "host info is " + rv.Kind().String()}
	}
	return hostDetailFrom(hostID, data), nil
}

func hostDetailFrom(hostID string, data *params.Params) *HostDetail {
	statusID := data.Value("KLHST_WKS_STATUS_ID").Int64Or(0)
	d := &HostDetail{
		ID:          hostID,
		Name:        data.Value("KLHST_WKS_DN").StringOr("Unknown"),
		DisplayName: data.Value("KLHST_WKS_DN").StringOr(""),
		GroupID:     data.Value("KLHST_WKS_GROUPID").Int64Or(0),
		Status:      hostStatusLabel(statusID),
		StatusFlags: hostStatusFlags(data.Value("KLHST_WKS_STATUS").Int64Or(0)),
		Products:    []string{},
		OSInfo:      map[string]any{},
	}
	if hn := data.Value("KLHST_WKS_HOSTNAME").StringOr(""); hn != "" && d.DisplayName == "" {
		d.DisplayName = hn
	}
	if t, ok := data.Value("KLHST_WKS_LAST_VISIBLE").AsTime(); ok {
		d.LastVisible = &t
	}
	for key, name := range osInfoFields {
		if v := data.Value(key); v.Present() {
			d.OSInfo[name] = v.Native()
		}
	}
	if apps, ok := data.Value("KLHST_APP_INFO").AsParams(); ok {
		d.Products = append(d.Products, apps.Keys()...)
	}
	return d
}

// MoveHost moves one host into an administration group.
func (s *Service) MoveHost(ctx context.Context, hostID string, groupID int64) (*MoveResult, error) {
	if hostID == "" {
		return nil, invalid("host id is required")
	}
	if groupID < 0 {
		return nil, invalid("group id must not be negative, got %d", groupID)
	}
	err := s.sess.Do(ctx, func(ctx context.Context, c session.Caller) error {
		_, err := s.hostGroup(c).MoveHostsToGroup(ctx, groupID, hostID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info("moved host %s to group %d", hostID, groupID)
	return &MoveResult{HostID: hostID, GroupID: groupID, Moved: true}, nil
}
