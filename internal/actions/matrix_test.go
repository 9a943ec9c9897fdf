package actions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muaviaUsmani/opsconsole/internal/model"
)

// allRoleSets enumerates every subset of the four roles
func allRoleSets() []RoleSet {
	sets := make([]RoleSet, 0, 16)
	for mask := 0; mask < 1<<len(allRoles); mask++ {
		sets = append(sets, RoleSet(mask))
	}
	return sets
}

func TestForSchedule_CreatorOnEnabledSchedule(t *testing.T) {
	list, err := ForSchedule(model.ScheduleStatusEnabled, false, NewRoleSet(RoleCreator), model.ScheduleTypeSQLPlan)
	require.NoError(t, err)

	assert.Equal(t,
		[]Key{KeyStop, KeyDisable, KeyEdit, KeyDelete, KeyView, KeyClone, KeyShare},
		Keys(list))
}

func TestForSchedule_ApproverOnApprovableSchedule(t *testing.T) {
	list, err := ForSchedule(model.ScheduleStatusEnabled, true, NewRoleSet(RoleApprover), model.ScheduleTypeSQLPlan)
	require.NoError(t, err)

	assert.Equal(t, []Key{KeyPass, KeyRefuse, KeyView, KeyShare}, Keys(list))
}

func TestForSchedule_ApprovalPrecedence(t *testing.T) {
	for _, status := range model.AllScheduleStatuses() {
		for _, roles := range allRoleSets() {
			list, err := ForSchedule(status, true, roles, model.ScheduleTypeDataArchive)
			require.NoError(t, err)

			seenStatusAction := false
			for _, d := range list {
				isApproval := d.Key == KeyPass || d.Key == KeyRevoke || d.Key == KeyRefuse
				if isApproval {
					assert.False(t, seenStatusAction, "approval action %s after a status action (%s, %s)", d.Key, status, roles)
				} else {
					seenStatusAction = true
				}
			}
		}
	}

	list, err := ForSchedule(model.ScheduleStatusCreating, true, anyone, model.ScheduleTypeSQLPlan)
	require.NoError(t, err)
	assert.Equal(t, []Key{KeyPass, KeyRevoke, KeyRefuse, KeyView, KeyShare}, Keys(list))

	list, err = ForSchedule(model.ScheduleStatusCreating, false, anyone, model.ScheduleTypeSQLPlan)
	require.NoError(t, err)
	assert.Equal(t, []Key{KeyView, KeyShare}, Keys(list), "no approval actions when not approvable")
}

// Every declared status has a table entry, and every result is an in-order
// subsequence of approval keys followed by the status entry.
func TestMatrixCompleteness(t *testing.T) {
	for _, status := range model.AllScheduleStatuses() {
		keys, err := ScheduleStatusActions(status)
		require.NoError(t, err, "schedule status %s", status)
		require.NotEmpty(t, keys)

		declared := append(append([]Key{}, approvalKeys...), keys...)
		for _, typ := range model.AllScheduleTypes() {
			for _, roles := range allRoleSets() {
				for _, approvable := range []bool{false, true} {
					list, err := ForSchedule(status, approvable, roles, typ)
					require.NoError(t, err)
					assertSubsequence(t, declared, Keys(list))
				}
			}
		}
	}

	for _, status := range model.AllTaskStatuses() {
		keys, err := TaskStatusActions(status)
		require.NoError(t, err, "task status %s", status)
		require.NotEmpty(t, keys)

		for _, typ := range model.AllScheduleTypes() {
			for _, roles := range allRoleSets() {
				list, err := ForTask(status, roles, typ)
				require.NoError(t, err)
				assertSubsequence(t, keys, Keys(list))
			}
		}
	}

	for _, k := range approvalKeys {
		_, ok := Lookup(k)
		assert.True(t, ok, "missing descriptor for %s", k)
	}
}

func assertSubsequence(t *testing.T, declared, got []Key) {
	t.Helper()
	i := 0
	for _, k := range got {
		for i < len(declared) && declared[i] != k {
			i++
		}
		if i == len(declared) {
			t.Fatalf("%v is not an ordered subset of %v", got, declared)
		}
		i++
	}
}

func TestUnknownStatus(t *testing.T) {
	_, err := ForSchedule("ARCHIVED", false, anyone, model.ScheduleTypeSQLPlan)
	assert.True(t, errors.Is(err, ErrUnknownStatus))

	_, err = ForTask("LOST", anyone, model.ScheduleTypeSQLPlan)
	assert.True(t, errors.Is(err, ErrUnknownStatus))
}

func TestNoRoles_NoActions(t *testing.T) {
	list, err := ForSchedule(model.ScheduleStatusEnabled, true, 0, model.ScheduleTypeSQLPlan)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTypeGates(t *testing.T) {
	tests := []struct {
		name string
		typ  model.ScheduleType
		want []Key
	}{
		{"periodic kind can be disabled", model.ScheduleTypePartitionPlan, []Key{KeyStop, KeyDisable, KeyEdit, KeyDelete, KeyView, KeyClone, KeyShare}},
		{"one-off change cannot be disabled", model.ScheduleTypeLogicalDatabaseChange, []Key{KeyStop, KeyEdit, KeyDelete, KeyView, KeyClone, KeyShare}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := ForSchedule(model.ScheduleStatusEnabled, false, NewRoleSet(RoleProjectDBA), tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Keys(list))
		})
	}

	owner := NewRoleSet(RoleProjectOwner)
	list, err := ForTask(model.TaskStatusRunning, owner, model.ScheduleTypeDataArchive)
	require.NoError(t, err)
	assert.Equal(t, []Key{KeyPause, KeyStop, KeyView}, Keys(list))

	list, err = ForTask(model.TaskStatusRunning, owner, model.ScheduleTypeSQLPlan)
	require.NoError(t, err)
	assert.Equal(t, []Key{KeyStop, KeyView}, Keys(list))

	list, err = ForTask(model.TaskStatusPaused, owner, model.ScheduleTypeDataDelete)
	require.NoError(t, err)
	assert.Equal(t, []Key{KeyResume, KeyStop, KeyView}, Keys(list))
}

func TestTaskActions_ApproverOnlyViews(t *testing.T) {
	list, err := ForTask(model.TaskStatusFailed, NewRoleSet(RoleApprover), model.ScheduleTypeSQLPlan)
	require.NoError(t, err)
	assert.Equal(t, []Key{KeyView}, Keys(list))
}

func TestSplit(t *testing.T) {
	list, err := ForSchedule(model.ScheduleStatusEnabled, false, NewRoleSet(RoleCreator), model.ScheduleTypeSQLPlan)
	require.NoError(t, err)

	inline, overflow := Split(list)
	assert.Equal(t, []Key{KeyStop, KeyDisable, KeyEdit, KeyView}, Keys(inline))
	assert.Equal(t, []Key{KeyDelete, KeyClone, KeyShare}, Keys(overflow))
}

func TestPermitted(t *testing.T) {
	list, err := ForSchedule(model.ScheduleStatusTerminated, false, NewRoleSet(RoleCreator), model.ScheduleTypeSQLPlan)
	require.NoError(t, err)

	assert.NoError(t, Permitted(list, KeyDelete))
	err = Permitted(list, KeyStop)
	assert.True(t, errors.Is(err, ErrActionNotPermitted))
	assert.Contains(t, err.Error(), "STOP")
}

func TestRoleSet(t *testing.T) {
	s := NewRoleSet(RoleApprover, RoleCreator, "UNKNOWN")
	assert.True(t, s.Has(RoleCreator))
	assert.True(t, s.Has(RoleApprover))
	assert.False(t, s.Has(RoleProjectDBA))
	assert.False(t, s.Has("UNKNOWN"))
	assert.Equal(t, []Role{RoleCreator, RoleApprover}, s.Roles())
	assert.Equal(t, "{CREATOR,APPROVER}", s.String())
	assert.Equal(t, "{}", RoleSet(0).String())
}

func TestResolveRoles(t *testing.T) {
	schedule := &model.Schedule{
		ID:                102,
		Type:              model.ScheduleTypeSQLPlan,
		Status:            model.ScheduleStatusEnabled,
		Approvable:        true,
		ApproveInstanceID: 55,
		Creator:           model.User{ID: 7},
		ProjectID:         3,
	}
	flow := &model.FlowDetail{ID: 55, Candidates: []int64{9}}

	tests := []struct {
		name   string
		viewer model.Viewer
		flow   *model.FlowDetail
		want   RoleSet
	}{
		{"creator", model.Viewer{ID: 7}, flow, NewRoleSet(RoleCreator)},
		{"approver candidate", model.Viewer{ID: 9}, flow, NewRoleSet(RoleApprover)},
		{"approver without flow detail", model.Viewer{ID: 9}, nil, 0},
		{"flow for another instance", model.Viewer{ID: 9}, &model.FlowDetail{ID: 56, Candidates: []int64{9}}, 0},
		{
			"owner and dba of owning project",
			model.Viewer{ID: 11, Projects: map[int64][]model.ProjectRole{3: {model.ProjectRoleOwner, model.ProjectRoleDBA}}},
			flow,
			NewRoleSet(RoleProjectOwner, RoleProjectDBA),
		},
		{
			"roles in another project do not count",
			model.Viewer{ID: 11, Projects: map[int64][]model.ProjectRole{4: {model.ProjectRoleOwner}}},
			flow,
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRoles(tt.viewer, schedule, tt.flow))
		})
	}

	notApprovable := *schedule
	notApprovable.Approvable = false
	notApprovable.ApproveInstanceID = 0
	assert.Equal(t, RoleSet(0), ResolveRoles(model.Viewer{ID: 9}, &notApprovable, flow))
	assert.Equal(t, RoleSet(0), ResolveRoles(model.Viewer{ID: 9}, nil, flow))
}
