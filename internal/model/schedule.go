package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// User identifies a console user
type User struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Account string `json:"account,omitempty"`
}

// Schedule is a recurring or deferred job definition
type Schedule struct {
	// ID is the numeric identifier assigned by the backend
	ID int64 `json:"id"`
	// Name is a human-readable label
	Name string `json:"name"`
	// Description is optional free text
	Description string `json:"description,omitempty"`
	// Type is the job kind the schedule runs
	Type ScheduleType `json:"type"`
	// Status is the current lifecycle status
	Status ScheduleStatus `json:"status"`
	// Approvable is true while an approval flow is pending for this schedule
	Approvable bool `json:"approvable"`
	// ApproveInstanceID references the pending approval flow (zero when not approvable)
	ApproveInstanceID int64 `json:"approveInstanceId,omitempty"`
	// Creator is the user who submitted the schedule
	Creator User `json:"creator"`
	// ProjectID is the owning project
	ProjectID int64 `json:"projectId"`
	// Trigger is the firing configuration
	Trigger Trigger `json:"trigger"`
	// NextFireTimes lists upcoming fire instants computed by the backend
	NextFireTimes []time.Time `json:"nextFireTimes,omitempty"`
	// Parameters is the job-kind specific payload, see Content
	Parameters json.RawMessage `json:"parameters,omitempty"`
	// Deleted marks a soft-deleted schedule
	Deleted bool `json:"deleted,omitempty"`
	// CreatedAt is when the schedule was created
	CreatedAt time.Time `json:"createTime"`
	// UpdatedAt is when the schedule was last changed
	UpdatedAt time.Time `json:"updateTime"`
}

// Validate checks the structural invariants of a schedule snapshot
func (s *Schedule) Validate() error {
	if s.ID <= 0 {
		return fmt.Errorf("schedule ID must be positive")
	}
	if !s.Type.Valid() {
		return fmt.Errorf("invalid schedule type %q", s.Type)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("invalid schedule status %q", s.Status)
	}

	// Exactly one of: approvable with a pending instance, or not approvable at all
	if s.Approvable && s.ApproveInstanceID == 0 {
		return fmt.Errorf("approvable schedule %d has no approval instance", s.ID)
	}
	if !s.Approvable && s.ApproveInstanceID != 0 {
		return fmt.Errorf("schedule %d references approval instance %d but is not approvable", s.ID, s.ApproveInstanceID)
	}

	return s.Trigger.Validate()
}

// UpdateStatus sets the status and bumps UpdatedAt
func (s *Schedule) UpdateStatus(status ScheduleStatus) {
	s.Status = status
	s.UpdatedAt = time.Now()
}

// Content decodes Parameters into the variant matching the schedule type
func (s *Schedule) Content() (Content, error) {
	return DecodeContent(s.Type, s.Parameters)
}

// ScheduleTask is one execution instance of a schedule
type ScheduleTask struct {
	ID         int64        `json:"id"`
	ScheduleID int64        `json:"scheduleId"`
	Type       ScheduleType `json:"type"`
	Status     TaskStatus   `json:"status"`
	// FireTime is when the schedule fired and produced this sub-task
	FireTime time.Time `json:"fireTime"`
	// StartedAt and EndedAt are nil until the sub-task reaches that point
	StartedAt *time.Time `json:"startTime,omitempty"`
	EndedAt   *time.Time `json:"endTime,omitempty"`
	// Progress is a percentage in [0, 100]
	Progress float64 `json:"progress"`
	// ResultSummary is a short, backend-supplied description of the outcome
	ResultSummary string `json:"resultSummary,omitempty"`
	// Log is the tail of the execution log
	Log       string    `json:"log,omitempty"`
	UpdatedAt time.Time `json:"updateTime"`
}

// UpdateStatus sets the status and bumps UpdatedAt
func (t *ScheduleTask) UpdateStatus(status TaskStatus) {
	t.Status = status
	t.UpdatedAt = time.Now()
}

// Page is one page of a paged listing
type Page[T any] struct {
	Contents []T `json:"contents"`
	Page     int `json:"page"`
	Size     int `json:"size"`
	Total    int `json:"total"`
}
