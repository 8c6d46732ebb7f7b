// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

// UserRole is the platform role of a user.
type UserRole string

const (
	// UserRoleVolunteer is a tutor volunteering time on the platform.
	UserRoleVolunteer UserRole = "volunteer"
	// UserRoleStudent is a learner being tutored.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin is platform staff with remediation powers.
	UserRoleAdmin UserRole = "admin"
)

// ParseUserRole normalizes a role string.
func ParseUserRole(raw string) (UserRole, bool) {
	switch UserRole(raw) {
	case UserRoleVolunteer, UserRoleStudent, UserRoleAdmin:
		return UserRole(raw), true
	}
	return "", false
}

// User is the key-value store representation of a platform user, mirrored
// from the profile service. The engine only reads the fields it needs for
// admission and authorization decisions.
type User struct {
	UID      string   `json:"uid"`
	Name     string   `json:"name,omitempty"`
	Role     UserRole `json:"role"`
	Timezone string   `json:"timezone,omitempty"`
}
