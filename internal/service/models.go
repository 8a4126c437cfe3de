// ABOUTME: Result and query types returned by the KSC service operations
// ABOUTME: JSON shapes are what the tool surface hands back to clients

package service

import "time"

// HostInfo is one managed device as listed by ListHosts.
type HostInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	GroupID     int64    `json:"group_id"`
	GroupName   string   `json:"group_name,omitempty"`
	Status      string   `json:"status"`
	StatusCode  int64    `json:"status_code"`
	StatusFlags []string `json:"status_flags,omitempty"`
	IPAddress   string   `json:"ip_address,omitempty"`
}

type HostQuery struct {
	GroupName string `json:"group_name,omitempty"`
	// Status is one of ok, critical or warning.
	Status string `json:"status,omitempty"`
	// Limit caps the number of hosts returned. Zero means the configured default;
	// a negative value reads everything.
	Limit int `json:"limit,omitempty"`
}

// HostList carries the hosts read plus what was left behind.
type HostList struct {
	Hosts     []HostInfo `json:"hosts"`
	Total     int        `json:"total"`
	Truncated bool       `json:"truncated"`
}

type HostDetail struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name"`
	GroupID     int64          `json:"group_id"`
	Status      string         `json:"status"`
	StatusFlags []string       `json:"status_flags,omitempty"`
	LastVisible *time.Time     `json:"last_visible,omitempty"`
	Products    []string       `json:"products"`
	OSInfo      map[string]any `json:"os_info"`
}

type MoveResult struct {
	HostID  string `json:"host_id"`
	GroupID int64  `json:"group_id"`
	Moved   bool   `json:"moved"`
}

type GroupInfo struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	FullName  string `json:"full_name"`
	ParentID  int64  `json:"parent_id"`
	Level     int64  `json:"level"`
	HostCount int64  `json:"host_count"`
}

type GroupQuery struct {
	// Name filters by group name; * and ? are wildcards.
	Name     string `json:"group_name,omitempty"`
	ParentID *int64 `json:"parent_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type GroupList struct {
	Groups    []GroupInfo `json:"groups"`
	Total     int         `json:"total"`
	Truncated bool        `json:"truncated"`
}

// GroupRemoval reports a finished asynchronous group removal.
type GroupRemoval struct {
	GroupID    int64  `json:"group_id"`
	ActionGUID string `json:"action_guid"`
	Removed    bool   `json:"removed"`
	StateCode  int64  `json:"state_code"`
	Checks     int    `json:"checks"`
}

type TaskInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Product string `json:"product,omitempty"`
	GroupID int64  `json:"group_id"`
	State   string `json:"state"`
}

type TaskQuery struct {
	// GroupID selects tasks of one group; a negative value lists tasks of all groups.
	GroupID int64 `json:"group_id"`
	Limit   int   `json:"limit,omitempty"`
}

type TaskList struct {
	Tasks     []TaskInfo `json:"tasks"`
	Truncated bool       `json:"truncated"`
}

type TaskRunResult struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskState summarises GetTaskStatistics.
type TaskState struct {
	TaskID     string           `json:"task_id"`
	Percentage int64            `json:"percentage"`
	StateCode  int64            `json:"state_code"`
	StateDesc  string           `json:"state_desc"`
	HostCounts map[string]int64 `json:"host_counts"`
}
