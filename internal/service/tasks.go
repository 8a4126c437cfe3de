// ABOUTME: Task operations: listing through the server task iterator, starting and statistics
// ABOUTME: The task iterator is released on every exit path

package service

import (
	"context"
	"strconv"

	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/ksc"
	"github.com/harper/ksc-bridge/internal/params"
	"github.com/harper/ksc-bridge/internal/rpc"
	"github.com/harper/ksc-bridge/internal/session"
)

// ListTasks enumerates tasks up to the limit. One task past the limit is read to
// tell whether the list was cut short.
func (s *Service) ListTasks(ctx context.Context, q TaskQuery) (*TaskList, error) {
	limit := s.limit(q.Limit)

	var out *TaskList
	err := s.sess.Do(ctx, func(ctx context.Context, c session.Caller) error {
		tasks := s.tasks(c)
		resp, err := tasks.ResetTasksIterator(ctx, ksc.TaskFilter{
			GroupID:            q.GroupID,
			GroupIDSignificant: q.GroupID >= 0,
			IncludeSupergroups: true,
		})
		if err != nil {
			return err
		}
		iv, err := resp.OutParam("strTaskIteratorId")
		if err != nil {
			return err
		}
		iterator := iv.StringOr("")
		defer func() {
			if _, err := tasks.ReleaseTasksIterator(context.WithoutCancel(ctx), iterator); err != nil {
				log.Warn("release of task iterator failed: %v", err)
			}
		}()

		list := &TaskList{Tasks: []TaskInfo{}}
		for {
			data, err := nextTask(ctx, tasks, iterator)
			if err != nil {
				return err
			}
			if data == nil {
				break
			}
			if limit > 0 && len(list.Tasks) == limit {
				list.Truncated = true
				break
			}
			list.Tasks = append(list.Tasks, taskFromData(data))
		}
		out = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// nextTask returns nil once the iterator is drained.
func nextTask(ctx context.Context, tasks *ksc.Tasks, iterator string) (*params.Params, error) {
	resp, err := tasks.GetNextTask(ctx, iterator)
	if err != nil {
		return nil, err
	}
	v := resp.Lookup("pTaskData")
	if !v.Present() {
		return nil, nil
	}
	data, ok := v.AsParams()
	if !ok {
		return nil, &apierrors.ContractError{Method: resp.Method, Param: "pTaskData", Reason: "task data is " + v.Kind().String()}
	}
	if data.Len() == 0 {
		return nil, nil
	}
	return data, nil
}

func taskFromData(data *params.Params) TaskInfo {
	id := scalarString(data.Value("TASK_UNIQUE_ID"))
	if id == "" {
		id = data.Value("strName").StringOr("")
	}
	name := data.Value("TASK_NAME").StringOr("")
	if name == "" {
		name = data.Lookup("TASK_INFO_PARAMS", "DisplayName").StringOr("Unknown")
	}
	typ := scalarString(data.Value("TASKSCH_TYPE"))
	if typ == "" {
		typ = "Unknown"
	}
	return TaskInfo{
		ID:      id,
		Name:    name,
		Type:    typ,
		Product: data.Value("TASK_INFO_PARAMS").Lookup("PRTS_TASK_PRODUCT").StringOr(""),
		GroupID: data.Value("TASK_GROUP_ID").Int64Or(-1),
		State:   "unknown",
	}
}

func scalarString(v params.Value) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	if n, ok := v.AsInt(); ok {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// RunTask starts a task now.
func (s *Service) RunTask(ctx context.Context, taskID string) (*TaskRunResult, error) {
	if taskID == "" {
		return nil, invalid("task id is required")
	}
	err := s.sess.Do(ctx, func(ctx context.Context, c session.Caller) error {
		_, err := s.tasks(c).RunTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &TaskRunResult{TaskID: taskID, Status: "started"}, nil
}

// GetTaskState summarises the host counts reported by GetTaskStatistics.
func (s *Service) GetTaskState(ctx context.Context, taskID string) (*TaskState, error) {
	if taskID == "" {
		return nil, invalid("task id is required")
	}
	var resp *rpc.Response
	err := s.sess.Do(ctx, func(ctx context.Context, c session.Caller) error {
		var err error
		resp, err = s.tasks(c).GetTaskStatistics(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}

	rv, err := resp.ReturnValue()
	if err != nil {
		return nil, err
	}
	stats, ok := rv.AsParams()
	if !ok {
		return nil, &apierrors.ContractError{Method: resp.Method, Param: rpc.RetValKey, Reason: "statistics are " + rv.Kind().String()}
	}
	return taskStateFrom(taskID, stats), nil
}

func taskStateFrom(taskID string, stats *params.Params) *TaskState {
	st := &TaskState{TaskID: taskID, HostCounts: map[string]int64{}, StateDesc: "unknown"}

	var total, finished int64
	for _, k := range taskStatisticsKeys {
		n := stats.Value(k.key).Int64Or(0)
		st.HostCounts[k.label] = n
		total += n
		switch k.label {
		case "completed", "warning", "failed":
			finished += n
		}
		if n > 0 && st.StateDesc == "unknown" {
			st.StateDesc = k.label
		}
	}

	if code, ok := stats.Value("nState").AsInt(); ok {
		st.StateCode = code
		st.StateDesc = taskStateLabel(code)
	}
	switch pct, ok := stats.Value("nCompletion").AsInt(); {
	case ok:
		st.Percentage = pct
	case total > 0:
		st.Percentage = finished * 100 / total
	}
	return st
}
