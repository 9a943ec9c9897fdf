package actions

import (
	"strings"

	"github.com/muaviaUsmani/opsconsole/internal/model"
)

// Role is a caller's relationship to a schedule
type Role string

const (
	RoleCreator      Role = "CREATOR"
	RoleProjectOwner Role = "PROJECT_OWNER"
	RoleProjectDBA   Role = "PROJECT_DBA"
	RoleApprover     Role = "APPROVER"
)

var allRoles = []Role{RoleCreator, RoleProjectOwner, RoleProjectDBA, RoleApprover}

// AllRoles returns every role in declaration order
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

func (r Role) bit() RoleSet {
	for i, known := range allRoles {
		if r == known {
			return 1 << uint(i)
		}
	}
	return 0
}

// RoleSet is a set of roles. The zero value is the empty set.
type RoleSet uint8

// NewRoleSet builds a set from roles; unknown roles are ignored
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s |= r.bit()
	}
	return s
}

// Has reports whether r is in the set
func (s RoleSet) Has(r Role) bool {
	b := r.bit()
	return b != 0 && s&b != 0
}

// Any reports whether the set shares at least one role with other
func (s RoleSet) Any(other RoleSet) bool {
	return s&other != 0
}

// Roles lists the members in declaration order
func (s RoleSet) Roles() []Role {
	var out []Role
	for _, r := range allRoles {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) String() string {
	roles := s.Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return "{" + strings.Join(names, ",") + "}"
}

// ResolveRoles derives the viewer's roles for a schedule. flow may be nil when
// the schedule is not approvable or the flow detail has not been fetched.
func ResolveRoles(viewer model.Viewer, s *model.Schedule, flow *model.FlowDetail) RoleSet {
	if s == nil {
		return 0
	}

	var roles RoleSet
	if viewer.ID != 0 && viewer.ID == s.Creator.ID {
		roles |= NewRoleSet(RoleCreator)
	}
	if viewer.HasProjectRole(s.ProjectID, model.ProjectRoleOwner) {
		roles |= NewRoleSet(RoleProjectOwner)
	}
	if viewer.HasProjectRole(s.ProjectID, model.ProjectRoleDBA) {
		roles |= NewRoleSet(RoleProjectDBA)
	}
	if s.Approvable && flow != nil && flow.ID == s.ApproveInstanceID && flow.IsCandidate(viewer.ID) {
		roles |= NewRoleSet(RoleApprover)
	}
	return roles
}
