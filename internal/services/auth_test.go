package services

import (
	"net/http"
	"testing"
	"time"

	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/config"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/internal/utils"
	"gorm.io/gorm"
)

func newAuthService(t *testing.T, db *gorm.DB) *AuthService {
	t.Helper()
	utils.SetJWTSecret("test-secret")
	return NewAuthService(db, &config.JWTConfig{Secret: "test-secret", ExpireHour: 24})
}

func TestAuthService_RegisterFirstUserIsAdmin(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)

	first, err := svc.Register(&RegisterRequest{Username: "root", Password: "secret1", FullName: "Root"}, "127.0.0.1", "go-test")
	if err != nil {
		t.Fatalf("Register first: %v", err)
	}
	if first.User.Role != models.RoleAdmin {
		t.Errorf("first user role = %q, expected admin", first.User.Role)
	}
	if first.AccessToken == "" || first.RefreshToken == "" {
		t.Error("tokens should be issued on register")
	}

	claims, err := utils.ParseToken(first.AccessToken)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != first.User.ID || claims.Role != string(models.RoleAdmin) {
		t.Errorf("claims = %+v, expected admin identity of %s", claims, first.User.ID)
	}

	second, err := svc.Register(&RegisterRequest{Username: "alice", Password: "secret2"}, "", "")
	if err != nil {
		t.Fatalf("Register second: %v", err)
	}
	if second.User.Role != models.RoleUser {
		t.Errorf("second user role = %q, expected user", second.User.Role)
	}

	_, err = svc.Register(&RegisterRequest{Username: "alice", Password: "another"}, "", "")
	assertStatus(t, err, http.StatusConflict)
}

func TestAuthService_Login(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)
	if _, err := svc.Register(&RegisterRequest{Username: "alice", Password: "correct"}, "", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		want     int
	}{
		{"valid", "alice", "correct", http.StatusOK},
		{"wrong password", "alice", "wrong", http.StatusUnauthorized},
		{"unknown user", "bob", "correct", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(&LoginRequest{Username: tt.username, Password: tt.password}, "", "")
			assertStatus(t, err, tt.want)
		})
	}
}

func TestAuthService_RefreshRotates(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)
	clock := newFakeClock()
	svc.now = clock.Now

	issued, err := svc.Register(&RegisterRequest{Username: "alice", Password: "secret1"}, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rotated, err := svc.Refresh(issued.RefreshToken, "", "")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.RefreshToken == issued.RefreshToken {
		t.Error("refresh should issue a new refresh token")
	}

	_, err = svc.Refresh(issued.RefreshToken, "", "")
	assertStatus(t, err, http.StatusUnauthorized)

	_, err = svc.Refresh("not-a-token", "", "")
	assertStatus(t, err, http.StatusUnauthorized)

	if err := svc.RevokeRefreshToken(rotated.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	_, err = svc.Refresh(rotated.RefreshToken, "", "")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestAuthService_RefreshExpired(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)
	clock := newFakeClock()
	svc.now = clock.Now

	issued, err := svc.Register(&RegisterRequest{Username: "alice", Password: "secret1"}, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	clock.Advance(time.Duration(defaultRefreshTokenExpireHours+1) * time.Hour)
	_, err = svc.Refresh(issued.RefreshToken, "", "")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestAuthService_ChangePasswordClearsForcedChange(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)
	issued, err := svc.Register(&RegisterRequest{Username: "alice", Password: "old-pass"}, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	caller := authz.Identity{UserID: issued.User.ID, Role: issued.User.Role}
	if err := db.Model(&models.User{}).Where("id = ?", caller.UserID).Update("force_change_password", true).Error; err != nil {
		t.Fatalf("flag user: %v", err)
	}

	err = svc.ChangePassword(caller, &ChangePasswordRequest{OldPassword: "nope", NewPassword: "new-pass"})
	assertStatus(t, err, http.StatusBadRequest)

	if err := svc.ChangePassword(caller, &ChangePasswordRequest{OldPassword: "old-pass", NewPassword: "new-pass"}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	user, err := svc.GetCurrentUser(caller)
	if err != nil {
		t.Fatalf("GetCurrentUser: %v", err)
	}
	if user.ForceChangePassword {
		t.Error("force_change_password should be cleared")
	}
	if _, err := svc.Login(&LoginRequest{Username: "alice", Password: "new-pass"}, "", ""); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

func TestAuthService_UpdateProfile(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)
	alice := createUser(t, db, "alice", models.RoleUser)

	user, err := svc.UpdateProfile(alice, &UpdateProfileRequest{FullName: strPtr("  Alice Liddell ")})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if user.FullName != "Alice Liddell" {
		t.Errorf("FullName = %q, expected trimmed value", user.FullName)
	}
}

func TestAuthService_CreateSuperadminIfNotExists(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)
	cfg := &config.SuperadminConfig{Username: "owner", Password: "owner-pass", FullName: "Owner"}

	if err := svc.CreateSuperadminIfNotExists(cfg); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := svc.CreateSuperadminIfNotExists(cfg); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if n := countRows(t, db, &models.User{}, "role = ?", models.RoleSuperadmin); n != 1 {
		t.Errorf("superadmins = %d, expected 1", n)
	}

	if err := svc.CreateSuperadminIfNotExists(&config.SuperadminConfig{}); err != nil {
		t.Errorf("empty config should be a no-op, got %v", err)
	}
}

func TestAuthService_CreateSuperadminPromotesExisting(t *testing.T) {
	db := newTestDB(t)
	svc := newAuthService(t, db)
	createUser(t, db, "owner", models.RoleUser)

	if err := svc.CreateSuperadminIfNotExists(&config.SuperadminConfig{Username: "owner", Password: "x1x1x1"}); err != nil {
		t.Fatalf("CreateSuperadminIfNotExists: %v", err)
	}
	var user models.User
	if err := db.Where("username = ?", "owner").First(&user).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if user.Role != models.RoleSuperadmin {
		t.Errorf("role = %q, expected superadmin", user.Role)
	}
	if n := countRows(t, db, &models.User{}, ""); n != 1 {
		t.Errorf("users = %d, expected no new account", n)
	}
}
