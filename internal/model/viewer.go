package model

import "fmt"

// ProjectRole is a viewer's membership role within a project
type ProjectRole string

const (
	ProjectRoleOwner     ProjectRole = "OWNER"
	ProjectRoleDBA       ProjectRole = "DBA"
	ProjectRoleDeveloper ProjectRole = "DEVELOPER"
)

// Valid reports whether r is a known project role
func (r ProjectRole) Valid() bool {
	switch r {
	case ProjectRoleOwner, ProjectRoleDBA, ProjectRoleDeveloper:
		return true
	}
	return false
}

// Viewer is the user operating the console
type Viewer struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	// Projects maps project ID to the viewer's roles in it
	Projects map[int64][]ProjectRole `json:"projects" yaml:"projects"`
}

// HasProjectRole reports whether the viewer holds role in project
func (v Viewer) HasProjectRole(projectID int64, role ProjectRole) bool {
	for _, r := range v.Projects[projectID] {
		if r == role {
			return true
		}
	}
	return false
}

// IsMember reports whether the viewer has any role in project
func (v Viewer) IsMember(projectID int64) bool {
	return len(v.Projects[projectID]) > 0
}

// Validate checks the viewer identity
func (v Viewer) Validate() error {
	if v.ID <= 0 {
		return fmt.Errorf("viewer ID must be positive")
	}
	for project, roles := range v.Projects {
		for _, r := range roles {
			if !r.Valid() {
				return fmt.Errorf("invalid role %q for project %d", r, project)
			}
		}
	}
	return nil
}
