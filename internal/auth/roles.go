package auth

// Operator roles, tiered. The numeric level derived from the role gates
// every administrative capability.
const (
	RoleTeacher = "teacher"
	RoleITStaff = "it_staff"
	RoleAdmin   = "admin"
)

// Authorization levels per role.
const (
	LevelTeacher = 1
	LevelITStaff = 2
	LevelAdmin   = 3
)

// Level maps a role to its authorization level. Unknown roles map to 0 and
// are therefore rejected by every Require check.
func Level(role string) int {
	switch role {
	case RoleTeacher:
		return LevelTeacher
	case RoleITStaff:
		return LevelITStaff
	case RoleAdmin:
		return LevelAdmin
	default:
		return 0
	}
}

// ValidRole reports whether role is one of the known tiers.
func ValidRole(role string) bool {
	return Level(role) > 0
}
