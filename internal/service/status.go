// ABOUTME: Provisional lookup tables for host status and task state codes
// ABOUTME: Raw values are always reported next to the decoded labels

package service

import (
	"fmt"
	"strings"
)

// These tables are provisional: they cover the codes seen in practice and fall back
// to the raw number for anything else.

// hostStatusIDs maps KLHST_WKS_STATUS_ID.
var hostStatusIDs = map[int64]string{
	0: "ok",
	1: "critical",
	2: "warning",
}

// hostStatusBits maps bits of KLHST_WKS_STATUS.
var hostStatusBits = []struct {
	bit   int64
	label string
}{
	{0x0001, "visible"},
	{0x0004, "agent_installed"},
	{0x0008, "agent_alive"},
	{0x0010, "rtp_installed"},
	{0x0020, "temporarily_switched"},
	{0x0040, "in_controlled_network"},
	{0x0080, "update_agent"},
}

// taskStatisticsKeys maps the keys of GetTaskStatistics to state labels, in the
// order used to pick the overall description.
var taskStatisticsKeys = []struct {
	key   string
	label string
}{
	{"2", "running"},
	{"1", "not_distributed"},
	{"32", "scheduled"},
	{"64", "paused"},
	{"16", "failed"},
	{"8", "warning"},
	{"4", "completed"},
}

// taskStates maps nState and task_new_state values.
var taskStates = map[int64]string{
	0: "inactive",
	1: "running",
	2: "paused",
	3: "failed",
	4: "completed",
}

func hostStatusLabel(id int64) string {
	if label, ok := hostStatusIDs[id]; ok {
		return label
	}
	return fmt.Sprintf("status_%d", id)
}

// hostStatusFromQuery converts a query status to KLHST_WKS_STATUS_ID.
func hostStatusFromQuery(status string) (int64, bool) {
	want := strings.ToLower(strings.TrimSpace(status))
	for id, label := range hostStatusIDs {
		if label == want {
			return id, true
		}
	}
	return 0, false
}

func hostStatusFlags(mask int64) []string {
	var flags []string
	for _, b := range hostStatusBits {
		if mask&b.bit != 0 {
			flags = append(flags, b.label)
		}
	}
	return flags
}

func taskStateLabel(code int64) string {
	if label, ok := taskStates[code]; ok {
		return label
	}
	return fmt.Sprintf("state_%d", code)
}
