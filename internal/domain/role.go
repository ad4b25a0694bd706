package domain

// Role is a named bundle of default permissions. The set is closed; roles are
// reference data, not stored per tenant.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleManager    Role = "manager"
	RoleSupervisor Role = "supervisor"
	RoleAnalyst    Role = "analyst"
	RoleAccountant Role = "accountant"
	RoleFeeder     Role = "feeder"
	RoleWorker     Role = "worker"
)

// AllRoles lists every known role.
var AllRoles = []Role{
	RoleOwner,
	RoleManager,
	RoleSupervisor,
	RoleAnalyst,
	RoleAccountant,
	RoleFeeder,
	RoleWorker,
}

// AdminRoles may manage other identities and bypass ownership checks.
var AdminRoles = []Role{RoleOwner, RoleManager}

// UnscopedRoles see every resource; everyone else is restricted to the
// explicit assigned list on their permission record.
var UnscopedRoles = []Role{RoleOwner, RoleManager, RoleAnalyst, RoleAccountant}

// ValidRole reports whether name is a member of the closed role set.
func ValidRole(name string) bool {
	for _, r := range AllRoles {
		if Role(name) == r {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the role belongs to the admin set.
func (r Role) IsAdmin() bool {
	for _, a := range AdminRoles {
		if r == a {
			return true
		}
	}
	return false
}

// IsUnscoped reports whether the role sees all resources without assignment.
func (r Role) IsUnscoped() bool {
	for _, u := range UnscopedRoles {
		if r == u {
			return true
		}
	}
	return false
}
