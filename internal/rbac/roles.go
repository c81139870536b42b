package rbac

// Role names. Keep these stable; they are persisted on profiles.
const (
	RoleUser       = "USER"
	RoleSuperAdmin = "SUPERADMIN"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsValidRole(role string) bool { return role == RoleUser || role == RoleSuperAdmin }

// CanAccessProfile reports whether actor may read or modify the target user's profile.
// Users reach their own profile; super admins reach every profile.
func CanAccessProfile(actorRole, actorUserID, targetUserID string) bool {
	if actorUserID != "" && actorUserID == targetUserID {
		return true
	}
	return IsSuperAdmin(actorRole)
}
