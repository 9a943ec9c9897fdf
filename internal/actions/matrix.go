// Package actions computes which operator actions are permitted for a
// schedule or sub-task, given its status, type and the caller's roles.
package actions

import (
	"errors"
	"fmt"

	"github.com/muaviaUsmani/opsconsole/internal/model"
)

var (
	// ErrUnknownStatus is returned for a status with no entry in the action table
	ErrUnknownStatus = errors.New("no action table entry for status")

	// ErrActionNotPermitted is returned when invoking an action that is not visible
	ErrActionNotPermitted = errors.New("action not permitted")
)

// Key identifies an action
type Key string

const (
	KeyStop    Key = "STOP"
	KeyDisable Key = "DISABLE"
	KeyEnable  Key = "ENABLE"
	KeyEdit    Key = "EDIT"
	KeyDelete  Key = "DELETE"
	KeyView    Key = "VIEW"
	KeyClone   Key = "CLONE"
	KeyShare   Key = "SHARE"

	KeyExecute Key = "EXECUTE"
	KeyPause   Key = "PAUSE"
	KeyResume  Key = "RESUME"
	KeyRetry   Key = "RETRY"

	KeyPass   Key = "PASS"
	KeyRevoke Key = "REVOKE"
	KeyRefuse Key = "REFUSE"
)

// Descriptor describes one action. Visibility is a pure function of roles and type.
type Descriptor struct {
	Key   Key
	Label string
	// Icon routes the action to the overflow menu when set
	Icon string
	// Require lists roles of which the caller needs at least one
	Require RoleSet
	// Types restricts the action to these job kinds; empty means all
	Types []model.ScheduleType
	// Mutating actions change backend state and are followed by a reload
	Mutating bool
}

// Visible reports whether the action applies to a caller with roles on an entity of type t
func (d Descriptor) Visible(roles RoleSet, t model.ScheduleType) bool {
	if !roles.Any(d.Require) {
		return false
	}
	if len(d.Types) == 0 {
		return true
	}
	for _, allowed := range d.Types {
		if allowed == t {
			return true
		}
	}
	return false
}

var (
	operators = NewRoleSet(RoleCreator, RoleProjectOwner, RoleProjectDBA)
	anyone    = NewRoleSet(RoleCreator, RoleProjectOwner, RoleProjectDBA, RoleApprover)

	periodicTypes = []model.ScheduleType{
		model.ScheduleTypeSQLPlan,
		model.ScheduleTypePartitionPlan,
		model.ScheduleTypeDataArchive,
		model.ScheduleTypeDataDelete,
	}
	suspendableTypes = []model.ScheduleType{
		model.ScheduleTypeDataArchive,
		model.ScheduleTypeDataDelete,
	}
)

var descriptors = map[Key]Descriptor{
	KeyStop:    {Key: KeyStop, Label: "Terminate", Require: operators, Mutating: true},
	KeyDisable: {Key: KeyDisable, Label: "Disable", Require: operators, Types: periodicTypes, Mutating: true},
	KeyEnable:  {Key: KeyEnable, Label: "Enable", Require: operators, Types: periodicTypes, Mutating: true},
	KeyEdit:    {Key: KeyEdit, Label: "Edit", Require: operators},
	KeyDelete:  {Key: KeyDelete, Label: "Delete", Icon: "delete", Require: operators, Mutating: true},
	KeyView:    {Key: KeyView, Label: "View", Require: anyone},
	KeyClone:   {Key: KeyClone, Label: "Clone", Icon: "copy", Require: operators},
	KeyShare:   {Key: KeyShare, Label: "Share", Icon: "share", Require: anyone},

	KeyExecute: {Key: KeyExecute, Label: "Execute", Require: operators, Mutating: true},
	KeyPause:   {Key: KeyPause, Label: "Pause", Require: operators, Types: suspendableTypes, Mutating: true},
	KeyResume:  {Key: KeyResume, Label: "Resume", Require: operators, Types: suspendableTypes, Mutating: true},
	KeyRetry:   {Key: KeyRetry, Label: "Retry", Require: operators, Mutating: true},

	KeyPass:   {Key: KeyPass, Label: "Approve", Require: NewRoleSet(RoleApprover), Mutating: true},
	KeyRevoke: {Key: KeyRevoke, Label: "Revoke", Require: NewRoleSet(RoleCreator), Mutating: true},
	KeyRefuse: {Key: KeyRefuse, Label: "Reject", Require: NewRoleSet(RoleApprover), Mutating: true},
}

// approvalKeys are prepended, in this order, while a schedule is approvable
var approvalKeys = []Key{KeyPass, KeyRevoke, KeyRefuse}

// Lookup returns the descriptor for key
func Lookup(key Key) (Descriptor, bool) {
	d, ok := descriptors[key]
	return d, ok
}

// ScheduleStatusActions returns the actions conceivable for a schedule status,
// independent of roles.
func ScheduleStatusActions(status model.ScheduleStatus) ([]Key, error) {
	switch status {
	case model.ScheduleStatusCreating:
		return []Key{KeyView, KeyShare}, nil
	case model.ScheduleStatusEnabled:
		return []Key{KeyStop, KeyDisable, KeyEdit, KeyDelete, KeyView, KeyClone, KeyShare}, nil
	case model.ScheduleStatusPause:
		return []Key{KeyStop, KeyEnable, KeyEdit, KeyDelete, KeyView, KeyClone, KeyShare}, nil
	case model.ScheduleStatusExecutionFailed:
		return []Key{KeyStop, KeyEdit, KeyDelete, KeyView, KeyClone, KeyShare}, nil
	case model.ScheduleStatusTerminated, model.ScheduleStatusCanceled, model.ScheduleStatusCompleted:
		return []Key{KeyDelete, KeyView, KeyClone, KeyShare}, nil
	default:
		return nil, fmt.Errorf("%w: schedule %q", ErrUnknownStatus, status)
	}
}

// TaskStatusActions returns the actions conceivable for a sub-task status,
// independent of roles.
func TaskStatusActions(status model.TaskStatus) ([]Key, error) {
	switch status {
	case model.TaskStatusPreparing:
		return []Key{KeyExecute, KeyStop, KeyView}, nil
	case model.TaskStatusRunning:
		return []Key{KeyPause, KeyStop, KeyView}, nil
	case model.TaskStatusAbnormal:
		return []Key{KeyRetry, KeyStop, KeyView}, nil
	case model.TaskStatusPaused:
		return []Key{KeyResume, KeyStop, KeyView}, nil
	case model.TaskStatusFailed, model.TaskStatusExecTimeout, model.TaskStatusDoneWithFailed:
		return []Key{KeyRetry, KeyView}, nil
	case model.TaskStatusPausing, model.TaskStatusResuming, model.TaskStatusCanceling,
		model.TaskStatusCanceled, model.TaskStatusDone:
		return []Key{KeyView}, nil
	default:
		return nil, fmt.Errorf("%w: sub-task %q", ErrUnknownStatus, status)
	}
}

// ForSchedule returns the permitted schedule actions: approval actions first
// when approvable, then the status actions, each group in table order.
func ForSchedule(status model.ScheduleStatus, approvable bool, roles RoleSet, t model.ScheduleType) ([]Descriptor, error) {
	keys, err := ScheduleStatusActions(status)
	if err != nil {
		return nil, err
	}

	var out []Descriptor
	if approvable {
		out = appendVisible(out, approvalKeys, roles, t)
	}
	return appendVisible(out, keys, roles, t), nil
}

// ForTask returns the permitted sub-task actions in table order
func ForTask(status model.TaskStatus, roles RoleSet, t model.ScheduleType) ([]Descriptor, error) {
	keys, err := TaskStatusActions(status)
	if err != nil {
		return nil, err
	}
	return appendVisible(nil, keys, roles, t), nil
}

func appendVisible(out []Descriptor, keys []Key, roles RoleSet, t model.ScheduleType) []Descriptor {
	for _, k := range keys {
		d := descriptors[k]
		if d.Visible(roles, t) {
			out = append(out, d)
		}
	}
	return out
}

// Split separates actions rendered inline from those placed in the overflow menu
func Split(list []Descriptor) (inline, overflow []Descriptor) {
	for _, d := range list {
		if d.Icon != "" {
			overflow = append(overflow, d)
		} else {
			inline = append(inline, d)
		}
	}
	return inline, overflow
}

// Keys extracts the action keys of list
func Keys(list []Descriptor) []Key {
	out := make([]Key, len(list))
	for i, d := range list {
		out[i] = d.Key
	}
	return out
}

// Permitted returns ErrActionNotPermitted unless key is in list
func Permitted(list []Descriptor, key Key) error {
	for _, d := range list {
		if d.Key == key {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrActionNotPermitted, key)
}
