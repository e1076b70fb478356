package rbac

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID      uint64
	Email       string
	Role        string
	Permissions Set
}

// Rule describes what a route demands.  A zero Rule only requires an
// authenticated principal.  Roles is a membership test on the principal's
// role; Permissions must all be held.
type Rule struct {
	Roles       []string
	Permissions []Permission
}

// Decision is the outcome of Authorize.
type Decision int

const (
	Allow Decision = iota
	// Unauthenticated means no verified principal; maps to 401.
	Unauthenticated
	// Forbidden means a valid principal lacking rights; maps to 403.
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	}
	return "unknown"
}

// Authorize is the single authorization function used by every gate.
func Authorize(p *Principal, r Rule) Decision {
	if p == nil || p.UserID == 0 {
		return Unauthenticated
	}
	if len(r.Roles) > 0 {
		member := false
		for _, role := range r.Roles {
			if role == p.Role {
				member = true
				break
			}
		}
		if !member {
			return Forbidden
		}
	}
	for _, perm := range r.Permissions {
		if !HasPermission(p.Permissions, perm.Resource, perm.Action) {
			return Forbidden
		}
	}
	return Allow
}
