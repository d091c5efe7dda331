package user

import "strings"

// Roles, as issued by the portal backend.
const (
	RoleAdmin     = "admin"
	RoleReception = "recepcao"
	RoleGuest     = "cliente"
)

var (
	AllRoles = []string{RoleAdmin, RoleReception, RoleGuest}

	// roles allowed to check themselves in with the kiosk camera
	ScanRoles = []string{RoleGuest, RoleAdmin}

	rolePriorities = map[string]int{
		RoleAdmin:     30,
		RoleReception: 20,
		RoleGuest:     10,
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func IsValidRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

// Guest is the portal account acting on the kiosk.
// The kiosk never stores guests: they are rebuilt from the portal token on every request.
type Guest struct {
	ID        string `json:"id" validate:"required"`
	FullName  string `json:"full_name"`
	Phone     string `json:"phone"`
	GroupName string `json:"group_name"`
	IsAdmin   bool   `json:"is_admin"`
	Role      string `json:"role" validate:"required,guestrole"`
}

// EffectiveRole reconciles the legacy `is_admin` flag with the role name.
func (g Guest) EffectiveRole() string {
	if g.IsAdmin {
		return RoleAdmin
	}
	if g.Role == "" {
		return RoleGuest
	}
	return strings.ToLower(g.Role)
}

func (g Guest) HasAnyRole(roles ...string) bool {
	role := g.EffectiveRole()
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (g Guest) CanScan() bool {
	return g.HasAnyRole(ScanRoles...)
}

func (g Guest) CanAdminister() bool {
	return g.EffectiveRole() == RoleAdmin
}
