// ABOUTME: Endpoint stubs for the KSC Tasks class
// ABOUTME: Task iterator management, task start and statistics

package ksc

import (
	"context"

	"github.com/harper/ksc-bridge/internal/params"
	"github.com/harper/ksc-bridge/internal/rpc"
)

type Tasks struct {
	c        Caller
	instance string
}

func NewTasks(c Caller, instance string) *Tasks {
	return &Tasks{c: c, instance: instance}
}

func (t *Tasks) call(ctx context.Context, method string, in *params.Params) (*rpc.Response, error) {
	return t.c.Call(ctx, rpc.MethodPath(t.instance, "Tasks", method), in)
}

// TaskFilter narrows ResetTasksIterator. Empty strings match everything.
type TaskFilter struct {
	GroupID            int64
	GroupIDSignificant bool
	ProductName        string
	Version            string
	ComponentName      string
	InstanceID         string
	TaskName           string
	IncludeSupergroups bool
}

// ResetTasksIterator opens a server-side task iterator named by strTaskIteratorId.
func (t *Tasks) ResetTasksIterator(ctx context.Context, f TaskFilter) (*rpc.Response, error) {
	in := params.New().
		AddInt64("nGroupId", f.GroupID).
		AddBool("bGroupIdSignificant", f.GroupIDSignificant).
		AddString("strProductName", f.ProductName).
		AddString("strVersion", f.Version).
		AddString("strComponentName", f.ComponentName).
		AddString("strInstanceId", f.InstanceID).
		AddString("strTaskName", f.TaskName).
		AddBool("bIncludeSupergroups", f.IncludeSupergroups)
	return t.call(ctx, "ResetTasksIterator", in)
}

// GetNextTask returns the next task as pTaskData; an empty or missing pTaskData ends
// the iteration.
func (t *Tasks) GetNextTask(ctx context.Context, iterator string) (*rpc.Response, error) {
	return t.call(ctx, "GetNextTask", params.New().AddString("strTaskIteratorId", iterator))
}

func (t *Tasks) ReleaseTasksIterator(ctx context.Context, iterator string) (*rpc.Response, error) {
	return t.call(ctx, "ReleaseTasksIterator", params.New().AddString("strTaskIteratorId", iterator))
}

func (t *Tasks) RunTask(ctx context.Context, task string) (*rpc.Response, error) {
	return t.call(ctx, "RunTask", params.New().AddString("strTask", task))
}

// GetTaskStatistics returns per-state host counts keyed by the state bit as a string.
func (t *Tasks) GetTaskStatistics(ctx context.Context, task string) (*rpc.Response, error) {
	return t.call(ctx, "GetTaskStatistics", params.New().AddString("strTask", task))
}
