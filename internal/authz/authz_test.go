package authz

import (
	"net/http"
	"testing"

	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/pkg/response"
)

var (
	superadmin = Identity{UserID: "sa", Role: models.RoleSuperadmin}
	admin      = Identity{UserID: "ad", Role: models.RoleAdmin}
	user       = Identity{UserID: "us", Role: models.RoleUser}
)

func TestRequireElevated(t *testing.T) {
	tests := []struct {
		name   string
		caller Identity
		want   int
	}{
		{"superadmin", superadmin, http.StatusOK},
		{"admin", admin, http.StatusOK},
		{"user", user, http.StatusForbidden},
		{"unknown role", Identity{UserID: "x", Role: "ghost"}, http.StatusForbidden},
		{"empty identity", Identity{}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := response.StatusOf(RequireElevated(tt.caller)); got != tt.want {
				t.Errorf("RequireElevated() status = %d, expected %d", got, tt.want)
			}
		})
	}
}

func TestListableRoles(t *testing.T) {
	roles, err := ListableRoles(superadmin)
	if err != nil || roles != nil {
		t.Errorf("superadmin should see every role, got %v, %v", roles, err)
	}

	roles, err = ListableRoles(admin)
	if err != nil || len(roles) != 1 || roles[0] != models.RoleUser {
		t.Errorf("admin should only see users, got %v, %v", roles, err)
	}

	if _, err := ListableRoles(user); response.StatusOf(err) != http.StatusForbidden {
		t.Errorf("user should be forbidden, got %v", err)
	}
}

func TestReportRoles(t *testing.T) {
	roles, err := ReportRoles(superadmin)
	if err != nil || len(roles) != 2 {
		t.Errorf("superadmin report should cover user and admin, got %v, %v", roles, err)
	}
	for _, r := range roles {
		if r == models.RoleSuperadmin {
			t.Error("superadmin rows should never appear in reports")
		}
	}

	roles, err = ReportRoles(admin)
	if err != nil || len(roles) != 1 || roles[0] != models.RoleUser {
		t.Errorf("admin report should cover users only, got %v, %v", roles, err)
	}

	if _, err := ReportRoles(user); response.StatusOf(err) != http.StatusForbidden {
		t.Errorf("user should be forbidden, got %v", err)
	}
}

func TestCanManageAccount(t *testing.T) {
	tests := []struct {
		name     string
		caller   Identity
		targetID string
		target   models.Role
		want     int
	}{
		{"superadmin deletes admin", superadmin, "a2", models.RoleAdmin, http.StatusOK},
		{"superadmin deletes user", superadmin, "u2", models.RoleUser, http.StatusOK},
		{"superadmin deletes superadmin", superadmin, "sa2", models.RoleSuperadmin, http.StatusForbidden},
		{"admin deletes user", admin, "u2", models.RoleUser, http.StatusOK},
		{"admin deletes admin", admin, "a2", models.RoleAdmin, http.StatusForbidden},
		{"admin deletes superadmin", admin, "sa", models.RoleSuperadmin, http.StatusForbidden},
		{"user deletes user", user, "u2", models.RoleUser, http.StatusForbidden},
		{"admin deletes self", admin, "ad", models.RoleAdmin, http.StatusForbidden},
		{"unknown target role", superadmin, "x", "ghost", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanManageAccount(tt.caller, tt.targetID, tt.target)
			if got := response.StatusOf(err); got != tt.want {
				t.Errorf("CanManageAccount() status = %d, expected %d (err=%v)", got, tt.want, err)
			}
		})
	}
}

func TestCanChangeRole(t *testing.T) {
	tests := []struct {
		name     string
		caller   Identity
		targetID string
		current  models.Role
		next     models.Role
		want     int
	}{
		{"superadmin promotes user to admin", superadmin, "u2", models.RoleUser, models.RoleAdmin, http.StatusOK},
		{"superadmin promotes admin to superadmin", superadmin, "a2", models.RoleAdmin, models.RoleSuperadmin, http.StatusOK},
		{"superadmin demotes admin", superadmin, "a2", models.RoleAdmin, models.RoleUser, http.StatusOK},
		{"superadmin changes superadmin", superadmin, "sa2", models.RoleSuperadmin, models.RoleAdmin, http.StatusForbidden},
		{"admin keeps user as user", admin, "u2", models.RoleUser, models.RoleUser, http.StatusOK},
		{"admin promotes user", admin, "u2", models.RoleUser, models.RoleAdmin, http.StatusForbidden},
		{"admin demotes admin", admin, "a2", models.RoleAdmin, models.RoleUser, http.StatusForbidden},
		{"user changes user", user, "u2", models.RoleUser, models.RoleUser, http.StatusForbidden},
		{"superadmin changes self", superadmin, "sa", models.RoleSuperadmin, models.RoleUser, http.StatusForbidden},
		{"admin changes self", admin, "ad", models.RoleAdmin, models.RoleSuperadmin, http.StatusForbidden},
		{"self check precedes role validation", admin, "ad", models.RoleAdmin, "ghost", http.StatusForbidden},
		{"invalid next role", superadmin, "u2", models.RoleUser, "ghost", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanChangeRole(tt.caller, tt.targetID, tt.current, tt.next)
			if got := response.StatusOf(err); got != tt.want {
				t.Errorf("CanChangeRole() status = %d, expected %d (err=%v)", got, tt.want, err)
			}
		})
	}
}
