package models

import "time"

// Well-known pipeline stage labels. Stage is free text at write time;
// "Won" and "Lost" are only special-cased in the metrics and list queries.
const (
	StageOpen       = "Open"
	StageQualifying = "Qualifying"
	StageWon        = "Won"
	StageLost       = "Lost"
)

// Task status values. A NULL task_status means the lead is open.
const TaskStatusDone = "done"

type Lead struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"-"`
	IM          string    `json:"im"`
	CompanyName string    `json:"company_name"`
	AgentName   string    `json:"agent_name"`
	Email       string    `json:"email"`
	Task        string    `json:"task"`
	Stage       string    `json:"stage"`
	ActionDate  time.Time `json:"action_date"`
	TaskStatus  *string   `json:"task_status,omitempty"`
}

// Done reports whether the lead's follow-up task has been marked done.
func (l *Lead) Done() bool {
	return l.TaskStatus != nil && *l.TaskStatus == TaskStatusDone
}
