package model

import "time"

// OperationType is the kind of change recorded against a schedule
type OperationType string

const (
	OperationCreate    OperationType = "CREATE"
	OperationUpdate    OperationType = "UPDATE"
	OperationPause     OperationType = "PAUSE"
	OperationTerminate OperationType = "TERMINATE"
	OperationResume    OperationType = "RESUME"
	OperationDelete    OperationType = "DELETE"
)

// OperationStatus tracks whether a recorded change took effect
type OperationStatus string

const (
	OperationStatusApproving OperationStatus = "APPROVING"
	OperationStatusSuccess   OperationStatus = "SUCCESS"
	OperationStatusFailed    OperationStatus = "FAILED"
	OperationStatusCanceled  OperationStatus = "CANCELED"
)

// Operation is an audit record of a change made to a schedule
type Operation struct {
	ID         string          `json:"id"`
	ScheduleID int64           `json:"scheduleId"`
	Type       OperationType   `json:"type"`
	Status     OperationStatus `json:"status"`
	Creator    User            `json:"creator"`
	// FlowInstanceID links the approval flow that gated this change (zero if none)
	FlowInstanceID int64 `json:"flowInstanceId,omitempty"`
	// Before and After are parameter snapshots around the change
	Before    map[string]interface{} `json:"before,omitempty"`
	After     map[string]interface{} `json:"after,omitempty"`
	CreatedAt time.Time              `json:"createTime"`
}

// FlowStatus is the status of an approval flow instance
type FlowStatus string

const (
	FlowStatusApproving FlowStatus = "APPROVING"
	FlowStatusApproved  FlowStatus = "APPROVED"
	FlowStatusRejected  FlowStatus = "REJECTED"
	FlowStatusCancelled FlowStatus = "CANCELLED"
)

// FlowNode is one step of an approval flow
type FlowNode struct {
	Name        string     `json:"name"`
	Status      FlowStatus `json:"status"`
	Operator    *User      `json:"operator,omitempty"`
	Comment     string     `json:"comment,omitempty"`
	CompletedAt *time.Time `json:"completeTime,omitempty"`
}

// FlowDetail is an approval flow instance
type FlowDetail struct {
	ID         int64      `json:"id"`
	ScheduleID int64      `json:"scheduleId"`
	Status     FlowStatus `json:"status"`
	// Candidates are the user IDs allowed to approve or refuse
	Candidates []int64    `json:"candidates"`
	Nodes      []FlowNode `json:"nodes"`
	CreatedAt  time.Time  `json:"createTime"`
}

// IsCandidate reports whether the user may approve the flow
func (f *FlowDetail) IsCandidate(userID int64) bool {
	if f == nil {
		return false
	}
	for _, id := range f.Candidates {
		if id == userID {
			return true
		}
	}
	return false
}
