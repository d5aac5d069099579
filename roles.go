package auth

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// CanModerate checks if this role can moderate board content
func (r UserRole) CanModerate() bool {
	switch r {
	case RoleFaculty, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// CanAdministrate checks if this role can manage accounts and settings
func (r UserRole) CanAdministrate() bool {
	return r == RoleSuperAdmin
}

// IsAtLeast checks if this role meets the minimum required level
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleStudent:    0,
		RoleFaculty:    1,
		RoleSuperAdmin: 2,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleStudent,
		RoleFaculty,
		RoleSuperAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
