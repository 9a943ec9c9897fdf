// Package api defines the Task/Schedule API contract shared by the console,
// the HTTP client and the reference backend.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/muaviaUsmani/opsconsole/internal/model"
)

var (
	// ErrNotFound is returned for a missing or deleted record
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an action is illegal for the record's current status
	ErrConflict = errors.New("conflict")

	// ErrInvalidArgument is returned for malformed input
	ErrInvalidArgument = errors.New("invalid argument")
)

// ScheduleAction is a mutation applied to a schedule
type ScheduleAction string

const (
	ScheduleStop    ScheduleAction = "stop"
	ScheduleDisable ScheduleAction = "disable"
	ScheduleEnable  ScheduleAction = "enable"
	ScheduleDelete  ScheduleAction = "delete"
)

// Valid reports whether a is a known schedule action
func (a ScheduleAction) Valid() bool {
	switch a {
	case ScheduleStop, ScheduleDisable, ScheduleEnable, ScheduleDelete:
		return true
	}
	return false
}

// TaskAction is a mutation applied to a sub-task
type TaskAction string

const (
	TaskExecute TaskAction = "execute"
	TaskPause   TaskAction = "pause"
	TaskResume  TaskAction = "resume"
	TaskRetry   TaskAction = "retry"
	TaskStop    TaskAction = "stop"
)

// Valid reports whether a is a known sub-task action
func (a TaskAction) Valid() bool {
	switch a {
	case TaskExecute, TaskPause, TaskResume, TaskRetry, TaskStop:
		return true
	}
	return false
}

// ApprovalAction resolves a pending approval flow
type ApprovalAction string

const (
	ApprovalPass   ApprovalAction = "pass"
	ApprovalRefuse ApprovalAction = "refuse"
	ApprovalRevoke ApprovalAction = "revoke"
)

// Valid reports whether a is a known approval action
func (a ApprovalAction) Valid() bool {
	switch a {
	case ApprovalPass, ApprovalRefuse, ApprovalRevoke:
		return true
	}
	return false
}

// ScheduleAPI is the Task/Schedule API as seen by the console
type ScheduleAPI interface {
	GetSchedule(ctx context.Context, id int64) (*model.Schedule, error)
	GetScheduleTask(ctx context.Context, scheduleID, taskID int64) (*model.ScheduleTask, error)
	ListScheduleTasks(ctx context.Context, scheduleID int64, page, size int) (*model.Page[model.ScheduleTask], error)
	// ListOperations returns the change log, newest first
	ListOperations(ctx context.Context, scheduleID int64) ([]model.Operation, error)
	GetFlowDetail(ctx context.Context, instanceID int64) (*model.FlowDetail, error)

	MutateSchedule(ctx context.Context, id int64, action ScheduleAction) error
	MutateTask(ctx context.Context, scheduleID, taskID int64, action TaskAction) error
	Approve(ctx context.Context, instanceID int64, action ApprovalAction, comment string) error
}

type actorKey struct{}

// WithActor attaches the acting user to ctx; mutations record it in the change log
func WithActor(ctx context.Context, u model.User) context.Context {
	return context.WithValue(ctx, actorKey{}, u)
}

// ActorFrom returns the acting user stored by WithActor
func ActorFrom(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(actorKey{}).(model.User)
	return u, ok
}

// Error codes carried in HTTP error bodies
const (
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeInternal        = "INTERNAL"
)

// ErrorBody is the error half of the response envelope
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeOf maps an error onto its wire code
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	default:
		return CodeInternal
	}
}

// FromBody turns a wire error back into an error matching the sentinels
func FromBody(b ErrorBody) error {
	switch b.Code {
	case CodeNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, b.Message)
	case CodeConflict:
		return fmt.Errorf("%w: %s", ErrConflict, b.Message)
	case CodeInvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, b.Message)
	default:
		return fmt.Errorf("server error: %s", b.Message)
	}
}
