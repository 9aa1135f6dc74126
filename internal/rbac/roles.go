package rbac

// Role names. Keep these stable; they are carried in issued tokens.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleSubmitter = "submitter"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// CanModerate reports whether role may resolve incidents and appeals.
func CanModerate(role string) bool { return role == RoleAdmin || role == RoleModerator }

// Known reports whether role is one this service issues.
func Known(role string) bool {
	switch role {
	case RoleAdmin, RoleModerator, RoleSubmitter:
		return true
	}
	return false
}
