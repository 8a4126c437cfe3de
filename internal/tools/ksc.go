// ABOUTME: KSC tool definitions: hosts, groups and tasks over the service layer
// ABOUTME: Decodes tool arguments, validates required fields and calls the service

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/service"
)

// Service is the domain surface the tools drive; *service.Service implements it.
type Service interface {
	Ping(ctx context.Context) (string, error)
	ListHosts(ctx context.Context, q service.HostQuery) (*service.HostList, error)
	GetHostDetails(ctx context.Context, hostID string) (*service.HostDetail, error)
	MoveHost(ctx context.Context, hostID string, groupID int64) (*service.MoveResult, error)
	ListGroups(ctx context.Context, q service.GroupQuery) (*service.GroupList, error)
	RemoveGroup(ctx context.Context, groupID int64, maxWait time.Duration) (*service.GroupRemoval, error)
	ListTasks(ctx context.Context, q service.TaskQuery) (*service.TaskList, error)
	RunTask(ctx context.Context, taskID string) (*service.TaskRunResult, error)
	GetTaskState(ctx context.Context, taskID string) (*service.TaskState, error)
}

func object(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func decode(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return apierrors.NewInvalidParamsError("arguments", "an object matching the input schema", err.Error())
	}
	return nil
}

func required(name, value string) error {
	if value == "" {
		return apierrors.NewInvalidParamsError(name, "non-empty string", "empty or missing")
	}
	return nil
}

// RegisterKSC adds every KSC tool to r.
//
//nolint:funlen // one block per tool
func RegisterKSC(r *Registry, svc Service) {
	r.Register(Tool{
		Name:        "ksc.ping",
		Description: "Check that the Kaspersky Security Center server answers. Reconnects once if the session went stale.",
		Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
			pong, err := svc.Ping(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]string{"status": pong}, nil
		},
	})

	r.Register(Tool{
		Name: "ksc.hosts.list",
		Description: "Search for managed devices (hosts). Filter by administration group name or status " +
			"(ok, critical, warning). The result says whether it was truncated by the limit.",
		InputSchema: object(map[string]any{
			"group_name": prop("string", "Exact administration group name."),
			"status":     prop("string", "One of ok, critical, warning."),
			"limit":      prop("integer", "Maximum hosts to return; 0 uses the server default, -1 returns all."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var q service.HostQuery
			if err := decode(args, &q); err != nil {
				return nil, err
			}
			return svc.ListHosts(ctx, q)
		},
	})

	r.Register(Tool{
		Name:        "ksc.hosts.get",
		Description: "Retrieve details of one host by its unique id (the host name returned by ksc.hosts.list).",
		InputSchema: object(map[string]any{
			"host_id": prop("string", "Unique identifier of the host."),
		}, "host_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				HostID string `json:"host_id"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if err := required("host_id", in.HostID); err != nil {
				return nil, err
			}
			return svc.GetHostDetails(ctx, in.HostID)
		},
	})

	r.Register(Tool{
		Name:        "ksc.hosts.move",
		Description: "Move a host to a different administration group.",
		InputSchema: object(map[string]any{
			"host_id":         prop("string", "Unique identifier of the host to move."),
			"target_group_id": prop("integer", "Id of the destination group."),
		}, "host_id", "target_group_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				HostID        string `json:"host_id"`
				TargetGroupID *int64 `json:"target_group_id"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if err := required("host_id", in.HostID); err != nil {
				return nil, err
			}
			if in.TargetGroupID == nil {
				return nil, apierrors.NewInvalidParamsError("target_group_id", "integer", "missing")
			}
			return svc.MoveHost(ctx, in.HostID, *in.TargetGroupID)
		},
	})

	r.Register(Tool{
		Name:        "ksc.groups.list",
		Description: "List administration groups, optionally filtered by name (wildcards * and ?) and parent group id.",
		InputSchema: object(map[string]any{
			"group_name": prop("string", "Group name filter."),
			"parent_id":  prop("integer", "Only groups directly below this group."),
			"limit":      prop("integer", "Maximum groups to return."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var q service.GroupQuery
			if err := decode(args, &q); err != nil {
				return nil, err
			}
			return svc.ListGroups(ctx, q)
		},
	})

	r.Register(Tool{
		Name: "ksc.groups.remove",
		Description: "Delete an administration group and wait for the server to finish. If the wait bound passes " +
			"first the outcome is unknown; check with ksc.groups.list before retrying.",
		InputSchema: object(map[string]any{
			"group_id":         prop("integer", "Id of the group to delete."),
			"max_wait_seconds": prop("integer", "How long to wait for completion."),
		}, "group_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				GroupID        *int64 `json:"group_id"`
				MaxWaitSeconds int    `json:"max_wait_seconds"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if in.GroupID == nil {
				return nil, apierrors.NewInvalidParamsError("group_id", "integer", "missing")
			}
			if in.MaxWaitSeconds < 0 {
				return nil, apierrors.NewInvalidParamsError("max_wait_seconds", "non-negative integer", fmt.Sprint(in.MaxWaitSeconds))
			}
			return svc.RemoveGroup(ctx, *in.GroupID, time.Duration(in.MaxWaitSeconds)*time.Second)
		},
	})

	r.Register(Tool{
		Name:        "ksc.tasks.list",
		Description: "Enumerate tasks. group_id -1 (the default) lists tasks of all groups.",
		InputSchema: object(map[string]any{
			"group_id": prop("integer", "Group whose tasks to list; -1 for all."),
			"limit":    prop("integer", "Maximum tasks to return."),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			q := service.TaskQuery{GroupID: -1}
			if err := decode(args, &q); err != nil {
				return nil, err
			}
			return svc.ListTasks(ctx, q)
		},
	})

	r.Register(Tool{
		Name:        "ksc.tasks.run",
		Description: "Start a task now by its id.",
		InputSchema: object(map[string]any{
			"task_id": prop("string", "Unique identifier of the task."),
		}, "task_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			id, err := taskID(args)
			if err != nil {
				return nil, err
			}
			return svc.RunTask(ctx, id)
		},
	})

	r.Register(Tool{
		Name:        "ksc.tasks.state",
		Description: "Get the execution statistics of a task: host counts per state and completion percentage.",
		InputSchema: object(map[string]any{
			"task_id": prop("string", "Unique identifier of the task."),
		}, "task_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			id, err := taskID(args)
			if err != nil {
				return nil, err
			}
			return svc.GetTaskState(ctx, id)
		},
	})
}

// taskID accepts the id as a string or a number.
func taskID(args json.RawMessage) (string, error) {
	var in struct {
		TaskID json.RawMessage `json:"task_id"`
	}
	if err := decode(args, &in); err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(in.TaskID, &s); err == nil {
		return s, required("task_id", s)
	}
	var n json.Number
	if err := json.Unmarshal(in.TaskID, &n); err == nil {
		return n.String(), nil
	}
	return "", apierrors.NewInvalidParamsError("task_id", "string", string(in.TaskID))
}
