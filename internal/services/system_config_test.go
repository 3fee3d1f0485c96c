package services

import (
	"net/http"
	"testing"

	"github.com/huangang/tasktimer/internal/models"
)

func TestSystemConfigService_UpdateSetting(t *testing.T) {
	db := newTestDB(t)
	svc := NewSystemConfigService(db)
	super := createUser(t, db, "root", models.RoleSuperadmin)
	admin := createUser(t, db, "alice", models.RoleAdmin)

	tests := []struct {
		name   string
		caller string
		key    string
		value  string
		want   int
	}{
		{"admin rejected", "admin", models.ConfigKeyAccessTokenExpireHours, "48", http.StatusForbidden},
		{"unknown key", "super", "smtp_host", "1", http.StatusNotFound},
		{"not a number", "super", models.ConfigKeyAccessTokenExpireHours, "two", http.StatusBadRequest},
		{"token lifetime zero", "super", models.ConfigKeyRefreshTokenExpireHours, "0", http.StatusBadRequest},
		{"retention zero", "super", models.ConfigKeyLogRetentionDays, "0", http.StatusOK},
		{"access hours", "super", models.ConfigKeyAccessTokenExpireHours, " 48 ", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := super
			if tt.caller == "admin" {
				caller = admin
			}
			_, err := svc.UpdateSetting(caller, tt.key, &UpdateSettingRequest{Value: tt.value})
			assertStatus(t, err, tt.want)
		})
	}

	if got := svc.GetPositiveInt(models.ConfigKeyAccessTokenExpireHours, 1); got != 48 {
		t.Errorf("access token hours = %d, expected 48", got)
	}
}

func TestSystemConfigService_List(t *testing.T) {
	db := newTestDB(t)
	svc := NewSystemConfigService(db)
	user := createUser(t, db, "bob", models.RoleUser)
	admin := createUser(t, db, "alice", models.RoleAdmin)

	if err := models.SeedDefaultData(db, 30); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := svc.List(user)
	assertStatus(t, err, http.StatusForbidden)

	configs, err := svc.List(admin)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(configs) != 2 || configs[0].Key != models.ConfigKeyRefreshTokenExpireHours || configs[1].Key != models.ConfigKeyLogRetentionDays {
		t.Errorf("unexpected settings: %+v", configs)
	}
}
