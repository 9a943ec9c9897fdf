// Package model holds the snapshot types the console reads from the Task/Schedule API.
package model

// ScheduleStatus represents the lifecycle status of a schedule
type ScheduleStatus string

const (
	// ScheduleStatusCreating indicates the schedule is waiting for approval or provisioning
	ScheduleStatusCreating ScheduleStatus = "CREATING"
	// ScheduleStatusEnabled indicates the schedule fires on its trigger
	ScheduleStatusEnabled ScheduleStatus = "ENABLED"
	// ScheduleStatusPause indicates the schedule was disabled by an operator
	ScheduleStatusPause ScheduleStatus = "PAUSE"
	// ScheduleStatusTerminated indicates the schedule was stopped for good
	ScheduleStatusTerminated ScheduleStatus = "TERMINATED"
	// ScheduleStatusCanceled indicates the schedule was refused or revoked before it started
	ScheduleStatusCanceled ScheduleStatus = "CANCELED"
	// ScheduleStatusCompleted indicates a one-time schedule finished
	ScheduleStatusCompleted ScheduleStatus = "COMPLETED"
	// ScheduleStatusExecutionFailed indicates the last execution failed and the schedule halted
	ScheduleStatusExecutionFailed ScheduleStatus = "EXECUTION_FAILED"
)

// AllScheduleStatuses returns every schedule status in declaration order
func AllScheduleStatuses() []ScheduleStatus {
	return []ScheduleStatus{
		ScheduleStatusCreating,
		ScheduleStatusEnabled,
		ScheduleStatusPause,
		ScheduleStatusTerminated,
		ScheduleStatusCanceled,
		ScheduleStatusCompleted,
		ScheduleStatusExecutionFailed,
	}
}

// Valid reports whether s is a known schedule status
func (s ScheduleStatus) Valid() bool {
	for _, known := range AllScheduleStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// IsActive reports whether a detail view showing this status must keep polling
func (s ScheduleStatus) IsActive() bool {
	switch s {
	case ScheduleStatusEnabled, ScheduleStatusPause, ScheduleStatusCreating:
		return true
	default:
		return false
	}
}

// TaskStatus represents the status of one schedule execution (sub-task)
type TaskStatus string

const (
	TaskStatusPreparing      TaskStatus = "PREPARING"
	TaskStatusRunning        TaskStatus = "RUNNING"
	TaskStatusAbnormal       TaskStatus = "ABNORMAL"
	TaskStatusPausing        TaskStatus = "PAUSING"
	TaskStatusPaused         TaskStatus = "PAUSED"
	TaskStatusResuming       TaskStatus = "RESUMING"
	TaskStatusCanceling      TaskStatus = "CANCELING"
	TaskStatusFailed         TaskStatus = "FAILED"
	TaskStatusExecTimeout    TaskStatus = "EXEC_TIMEOUT"
	TaskStatusCanceled       TaskStatus = "CANCELED"
	TaskStatusDone           TaskStatus = "DONE"
	TaskStatusDoneWithFailed TaskStatus = "DONE_WITH_FAILED"
)

// AllTaskStatuses returns every sub-task status in declaration order
func AllTaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusPreparing,
		TaskStatusRunning,
		TaskStatusAbnormal,
		TaskStatusPausing,
		TaskStatusPaused,
		TaskStatusResuming,
		TaskStatusCanceling,
		TaskStatusFailed,
		TaskStatusExecTimeout,
		TaskStatusCanceled,
		TaskStatusDone,
		TaskStatusDoneWithFailed,
	}
}

// Valid reports whether s is a known sub-task status
func (s TaskStatus) Valid() bool {
	for _, known := range AllTaskStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// IsActive reports whether the sub-task may still change without operator input
func (s TaskStatus) IsActive() bool {
	switch s {
	case TaskStatusPreparing, TaskStatusRunning, TaskStatusAbnormal,
		TaskStatusPausing, TaskStatusPaused, TaskStatusResuming, TaskStatusCanceling:
		return true
	default:
		return false
	}
}

// ScheduleType identifies the kind of job a schedule runs
type ScheduleType string

const (
	ScheduleTypeSQLPlan               ScheduleType = "SQL_PLAN"
	ScheduleTypePartitionPlan         ScheduleType = "PARTITION_PLAN"
	ScheduleTypeDataArchive           ScheduleType = "DATA_ARCHIVE"
	ScheduleTypeDataDelete            ScheduleType = "DATA_DELETE"
	ScheduleTypeLogicalDatabaseChange ScheduleType = "LOGICAL_DATABASE_CHANGE"
)

// AllScheduleTypes returns every schedule type in declaration order
func AllScheduleTypes() []ScheduleType {
	return []ScheduleType{
		ScheduleTypeSQLPlan,
		ScheduleTypePartitionPlan,
		ScheduleTypeDataArchive,
		ScheduleTypeDataDelete,
		ScheduleTypeLogicalDatabaseChange,
	}
}

// Valid reports whether t is a known schedule type
func (t ScheduleType) Valid() bool {
	for _, known := range AllScheduleTypes() {
		if t == known {
			return true
		}
	}
	return false
}
