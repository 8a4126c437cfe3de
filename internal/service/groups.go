// ABOUTME: Administration group operations: search, name resolution and async removal
// ABOUTME: Removal starts the server action and polls it to completion in a separate unit of work

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/harper/ksc-bridge/internal/async"
	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/params"
	"github.com/harper/ksc-bridge/internal/session"
)

const groupSearchLifetime = 100

var groupFields = []string{"id", "name", "grp_full_name", "parentId", "level", "KLGRP_CHLDHST_CNT"}

// ListGroups searches administration groups by name and parent.
func (s *Service) ListGroups(ctx context.Context, q GroupQuery) (*GroupList, error) {
	var terms []string
	name := q.Name
	if name == "" {
		name = "*"
	}
	terms = append(terms, "(name="+quoteFilter(name)+")")
	if q.ParentID != nil {
		terms = append(terms, fmt.Sprintf("(parentId=%d)", *q.ParentID))
	}

	var out *GroupList
	err := s.sess.Do(ctx, func(ctx context.Context, c session.Caller) error {
		resp, err := s.hostGroup(c).FindGroups(ctx, andFilter(terms), groupFields, []string{"grp_full_name"}, nil, groupSearchLifetime)
		if err != nil {
			return err
		}
		items, total, truncated, err := s.collect(ctx, c, resp, s.limit(q.Limit))
		if err != nil {
			return err
		}
		groups := make([]GroupInfo, 0, len(items))
		for _, item := range items {
			groups = append(groups, groupFromItem(item))
		}
		out = &GroupList{Groups: groups, Total: total, Truncated: truncated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func groupFromItem(item *params.Params) GroupInfo {
	name := item.Value("name").StringOr("")
	return GroupInfo{
		ID:        item.Value("id").Int64Or(0),
		Name:      name,
		FullName:  item.Value("grp_full_name").StringOr(name),
		ParentID:  item.Value("parentId").Int64Or(0),
		Level:     item.Value("level").Int64Or(0),
		HostCount: item.Value("KLGRP_CHLDHST_CNT").Int64Or(0),
	}
}

// findGroupID resolves an exact group name to its id.
func (s *Service) findGroupID(ctx context.Context, c session.Caller, name string) (int64, error) {
	resp, err := s.hostGroup(c).FindGroups(ctx, "(name="+quoteFilter(name)+")", []string{"id", "name"}, nil, nil, groupSearchLifetime)
	if err != nil {
		return 0, err
	}
	items, _, _, err := s.collect(ctx, c, resp, 2)
	if err != nil {
		return 0, err
	}
	switch len(items) {
	case 0:
		return 0, invalid("no administration group named %q", name)
	case 1:
		return items[0].Value("id").Int64Or(0), nil
	}
	return 0, invalid("group name %q is ambiguous", name)
}

// RemoveGroup deletes an administration group and waits for the server to finish.
// maxWait <= 0 uses the configured bound. When the bound passes first the error is a
// poll timeout: the removal may still complete.
func (s *Service) RemoveGroup(ctx context.Context, groupID int64, maxWait time.Duration) (*GroupRemoval, error) {
	if groupID <= 0 {
		return nil, invalid("group id must be positive, got %d", groupID)
	}
	if maxWait <= 0 {
		maxWait = s.cfg.RemoveGroupWait
	}

	var token string
	err := s.sess.Do(ctx, func(ctx context.Context, c session.Caller) error {
		hg := s.hostGroup(c)
		root, err := hg.GroupIdGroups(ctx)
		if err != nil {
			return err
		}
		if rootID, ok := root.ReturnValueOr(params.Null()).AsInt(); ok && rootID == groupID {
			return invalid("group %d is the root group and cannot be removed", groupID)
		}

		resp, err := hg.RemoveGroup(ctx, groupID, removeGroupFlags)
		if err != nil {
			return err
		}
		guid, err := resp.OutParam("strActionGuid")
		if err != nil {
			return err
		}
		var ok bool
		if token, ok = guid.AsString(); !ok || token == "" {
			return &apierrors.ContractError{Method: resp.Method, Param: "strActionGuid", Reason: fmt.Sprintf("action guid is %s %q", guid.Kind(), guid.StringOr(""))}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("removal of group %d started as action %s", groupID, token)

	result := &GroupRemoval{GroupID: groupID, ActionGUID: token}
	var st async.State
	var checks int
	err = s.sess.Do(ctx, func(ctx context.Context, c session.Caller) error {
		opts := []async.Option{async.WithInstance(s.cfg.Instance)}
		if s.cfg.FallbackDelay > 0 {
			opts = append(opts, async.WithFallbackDelay(s.cfg.FallbackDelay))
		}
		p := async.New(c, async.Token(token), opts...)
		var err error
		st, err = p.PollUntilDone(ctx, maxWait)
		checks += p.Checks()
		return err
	})
	result.Checks = checks
	if err != nil {
		return result, err
	}

	result.StateCode = st.StateCode
	if err := st.Fault("HostGroup.RemoveGroup"); err != nil {
		return result, err
	}
	result.Removed = true
	return result, nil
}
