// Package authz decides what a caller may do. Ownership of domain rows is
// enforced by scoping every query by user id; this package covers the role
// hierarchy for account management and reporting.
package authz

import (
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/response"
)

// Identity is the authenticated caller of one request.
type Identity struct {
	UserID string
	Role   models.Role
}

func (id Identity) Valid() bool {
	return id.UserID != "" && id.Role.Valid()
}

// RequireElevated rejects callers below admin.
func RequireElevated(caller Identity) error {
	if !caller.Valid() || !caller.Role.AtLeast(models.RoleAdmin) {
		return response.NewForbidden("admin role required")
	}
	return nil
}

// ListableRoles returns the roles whose accounts caller may see.
// An empty result with nil error means every role.
func ListableRoles(caller Identity) ([]models.Role, error) {
	switch caller.Role {
	case models.RoleSuperadmin:
		return nil, nil
	case models.RoleAdmin:
		return []models.Role{models.RoleUser}, nil
	default:
		return nil, response.NewForbidden("admin role required")
	}
}

// ReportRoles returns the account roles included in admin reports for caller.
func ReportRoles(caller Identity) ([]models.Role, error) {
	switch caller.Role {
	case models.RoleSuperadmin:
		return []models.Role{models.RoleUser, models.RoleAdmin}, nil
	case models.RoleAdmin:
		return []models.Role{models.RoleUser}, nil
	default:
		return nil, response.NewForbidden("admin role required")
	}
}

// CanManageAccount checks whether caller may delete or reset the password of
// the account targetID holding role target. Superadmin accounts are never
// manageable and callers cannot manage themselves.
func CanManageAccount(caller Identity, targetID string, target models.Role) error {
	if err := RequireElevated(caller); err != nil {
		return err
	}
	if caller.UserID == targetID {
		return response.NewForbidden("cannot manage your own account")
	}
	switch target {
	case models.RoleSuperadmin:
		return response.NewForbidden("superadmin accounts cannot be managed")
	case models.RoleAdmin:
		if caller.Role != models.RoleSuperadmin {
			return response.NewForbidden("only a superadmin can manage admin accounts")
		}
		return nil
	case models.RoleUser:
		return nil
	default:
		return response.NewForbidden("unknown target role")
	}
}

// CanChangeRole checks whether caller may move targetID from current to next.
func CanChangeRole(caller Identity, targetID string, current, next models.Role) error {
	if caller.UserID == targetID {
		return response.NewForbidden("cannot change your own role")
	}
	if !next.Valid() {
		return response.NewBadRequest("invalid role")
	}
	switch caller.Role {
	case models.RoleSuperadmin:
		if current == models.RoleSuperadmin {
			return response.NewForbidden("superadmin accounts cannot be changed")
		}
		return nil
	case models.RoleAdmin:
		if current != models.RoleUser || next != models.RoleUser {
			return response.NewForbidden("admins may only manage user accounts")
		}
		return nil
	default:
		return response.NewForbidden("admin role required")
	}
}
