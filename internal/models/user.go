package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Role is the closed set of account roles, ordered superadmin > admin > user.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// ParseRole converts s into a Role, rejecting anything outside the known set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if r.Rank() == 0 {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Rank orders roles for hierarchy checks. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperadmin:
		return 3
	default:
		return 0
	}
}

func (r Role) Valid() bool { return r.Rank() > 0 }

// AtLeast reports whether r is a known role ranked at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// User represents an account. The first registered user becomes admin.
type User struct {
	ID                  string    `gorm:"primaryKey;size:36" json:"id"`
	Username            string    `gorm:"uniqueIndex;size:100;not null" json:"username"`
	PasswordHash        string    `gorm:"size:255;not null" json:"-"`
	FullName            string    `gorm:"size:200;not null;default:''" json:"full_name"`
	Role                Role      `gorm:"size:20;not null;default:user;index" json:"role"`
	ForceChangePassword bool      `gorm:"not null;default:false" json:"force_change_password"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}
