package auth

import "slices"

// PermissionPolicy decides how a key's granted permissions are matched
// against the permissions a route requires.
type PermissionPolicy int

const (
	// RequireAll grants access when every required permission is held.
	RequireAll PermissionPolicy = iota
	// RequireAny grants access when at least one required permission is held.
	RequireAny
)

func (p PermissionPolicy) String() string {
	if p == RequireAny {
		return "any"
	}
	return "all"
}

// Allows reports whether granted satisfies required under the policy. An
// empty required set is always satisfied and PermissionAll satisfies
// everything.
func (p PermissionPolicy) Allows(granted, required []Permission) bool {
	if len(required) == 0 || slices.Contains(granted, PermissionAll) {
		return true
	}

	if p == RequireAny {
		for _, perm := range required {
			if slices.Contains(granted, perm) {
				return true
			}
		}
		return false
	}

	for _, perm := range required {
		if !slices.Contains(granted, perm) {
			return false
		}
	}
	return true
}
