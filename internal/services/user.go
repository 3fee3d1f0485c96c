package services

import (
	"errors"
	"strings"
	"time"

	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/internal/utils"
	"github.com/huangang/tasktimer/pkg/logger"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

// UserService implements account management for admins and superadmins.
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

type UserListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Username string `form:"username"`
	Role     string `form:"role"`
}

type UserListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Items    []models.User `json:"items"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// List returns the accounts caller may see: everything for a superadmin,
// only plain users for an admin.
func (s *UserService) List(caller authz.Identity, req *UserListRequest) (*UserListResponse, error) {
	roles, err := authz.ListableRoles(caller)
	if err != nil {
		return nil, err
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.User{})
	if roles != nil {
		query = query.Where("role IN ?", roles)
	}
	if req.Username != "" {
		query = query.Where("username LIKE ?", "%"+strings.TrimSpace(req.Username)+"%")
	}
	if req.Role != "" {
		query = query.Where("role = ?", req.Role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, response.WrapServerError("failed to count users", err)
	}

	users := make([]models.User, 0)
	if err := query.Order("created_at DESC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&users).Error; err != nil {
		return nil, response.WrapServerError("failed to list users", err)
	}

	return &UserListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    users,
	}, nil
}

// Delete removes the account and everything it owns.
func (s *UserService) Delete(caller authz.Identity, id string) error {
	if err := authz.RequireElevated(caller); err != nil {
		return err
	}

	target, err := loadUser(s.db, id)
	if err != nil {
		return err
	}
	if err := authz.CanManageAccount(caller, target.ID, target.Role); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return deleteUserCascade(tx, target.ID)
	})
	if err != nil {
		return response.WrapServerError("failed to delete user", err)
	}

	logger.Info().Str("actor", caller.UserID).Str("user_id", target.ID).Msg("user deleted")
	return nil
}

// UpdateRole changes the role of account id.
func (s *UserService) UpdateRole(caller authz.Identity, id string, req *UpdateRoleRequest) (*models.User, error) {
	if caller.UserID == id {
		return nil, response.NewForbidden("cannot change your own role")
	}
	if err := authz.RequireElevated(caller); err != nil {
		return nil, err
	}
	next, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, response.NewBadRequest("invalid role")
	}

	target, err := loadUser(s.db, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanChangeRole(caller, target.ID, target.Role, next); err != nil {
		return nil, err
	}

	if target.Role != next {
		if err := s.db.Model(&models.User{}).Where("id = ?", target.ID).Update("role", next).Error; err != nil {
			return nil, response.WrapServerError("failed to update role", err)
		}
		logger.Info().
			Str("actor", caller.UserID).
			Str("user_id", target.ID).
			Str("from", string(target.Role)).
			Str("to", string(next)).
			Msg("user role changed")
	}
	return loadUser(s.db, target.ID)
}

// ResetPassword sets a new password on account id and forces the owner to
// change it at next login.
func (s *UserService) ResetPassword(caller authz.Identity, id string, req *ResetPasswordRequest) error {
	if err := authz.RequireElevated(caller); err != nil {
		return err
	}

	target, err := loadUser(s.db, id)
	if err != nil {
		return err
	}
	if err := authz.CanManageAccount(caller, target.ID, target.Role); err != nil {
		return err
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return response.WrapServerError("failed to hash password", err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", target.ID).Updates(map[string]interface{}{
			"password_hash":         hash,
			"force_change_password": true,
		}).Error; err != nil {
			return err
		}
		// outstanding sessions end with the old password
		return tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked_at IS NULL", target.ID).
			Update("revoked_at", time.Now().UTC()).Error
	})
	if err != nil {
		return response.WrapServerError("failed to reset password", err)
	}
	return nil
}

// deleteUserCascade removes a user's rows child-first. Storage foreign keys
// cascade the same way.
func deleteUserCascade(tx *gorm.DB, userID string) error {
	owned := []interface{}{
		&models.ActiveTimer{},
		&models.Subtask{},
		&models.TimeEntry{},
		&models.Task{},
		&models.Project{},
		&models.RefreshToken{},
	}
	for _, m := range owned {
		if err := tx.Where("user_id = ?", userID).Delete(m).Error; err != nil {
			return err
		}
	}
	res := tx.Where("id = ?", userID).Delete(&models.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("user vanished during delete")
	}
	return nil
}
