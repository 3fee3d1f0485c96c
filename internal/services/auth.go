package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/huangang/tasktimer/internal/authz"
	"github.com/huangang/tasktimer/internal/config"
	"github.com/huangang/tasktimer/internal/models"
	"github.com/huangang/tasktimer/internal/utils"
	"github.com/huangang/tasktimer/pkg/logger"
	"github.com/huangang/tasktimer/pkg/response"
	"gorm.io/gorm"
)

const defaultRefreshTokenExpireHours = 720

type AuthService struct {
	db        *gorm.DB
	jwtConfig *config.JWTConfig
	configSvc *SystemConfigService
	now       func() time.Time
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{
		db:        db,
		jwtConfig: jwtCfg,
		configSvc: NewSystemConfigService(db),
		now:       time.Now,
	}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	FullName *string `json:"full_name"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// AuthResult is returned by register, login and refresh.
type AuthResult struct {
	AccessToken     string       `json:"token"`
	AccessExpireAt  time.Time    `json:"expire_at"`
	RefreshToken    string       `json:"refresh_token"`
	RefreshExpireAt time.Time    `json:"refresh_expire_at"`
	User            *models.User `json:"user"`
}

// Register creates an account. The very first account becomes admin.
func (s *AuthService) Register(req *RegisterRequest, clientIP, userAgent string) (*AuthResult, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, response.NewBadRequest("username is required")
	}

	var existing int64
	if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&existing).Error; err != nil {
		return nil, response.WrapServerError("failed to check username", err)
	}
	if existing > 0 {
		return nil, response.NewConflict("username already exists")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, response.WrapServerError("failed to hash password", err)
	}

	var total int64
	if err := s.db.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, response.WrapServerError("failed to count users", err)
	}
	role := models.RoleUser
	if total == 0 {
		role = models.RoleAdmin
	}

	user := models.User{
		Username:     username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, response.NewConflict("username already exists")
		}
		return nil, response.WrapServerError("failed to create user", err)
	}

	logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	return s.issueTokens(&user, clientIP, userAgent)
}

func (s *AuthService) Login(req *LoginRequest, clientIP, userAgent string) (*AuthResult, error) {
	var user models.User
	if err := s.db.Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("invalid username or password")
		}
		return nil, response.WrapServerError("failed to load user", err)
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return nil, response.NewUnauthorized("invalid username or password")
	}

	return s.issueTokens(&user, clientIP, userAgent)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// access/refresh pair is issued.
func (s *AuthService) Refresh(refreshToken, clientIP, userAgent string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, response.NewUnauthorized("refresh token required")
	}

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ?", hashRefreshToken(refreshToken)).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("invalid refresh token")
		}
		return nil, response.WrapServerError("failed to load refresh token", err)
	}

	now := s.now().UTC()
	if stored.RevokedAt != nil {
		return nil, response.NewUnauthorized("refresh token revoked")
	}
	if now.After(stored.ExpiresAt) {
		return nil, response.NewUnauthorized("refresh token expired")
	}

	var user models.User
	if err := s.db.Where("id = ?", stored.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("user not found")
		}
		return nil, response.WrapServerError("failed to load user", err)
	}

	result, newRecord, err := s.buildTokens(&user, clientIP, userAgent)
	if err != nil {
		return nil, err
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(newRecord).Error; err != nil {
			return err
		}
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", stored.ID).
			Updates(map[string]interface{}{
				"revoked_at":           now,
				"replaced_by_token_id": newRecord.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errTokenReused
		}
		return nil
	}); err != nil {
		if errors.Is(err, errTokenReused) {
			return nil, response.NewUnauthorized("refresh token revoked")
		}
		return nil, response.WrapServerError("failed to rotate refresh token", err)
	}

	return result, nil
}

var errTokenReused = errors.New("refresh token already rotated")

func (s *AuthService) RevokeRefreshToken(refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashRefreshToken(refreshToken)).
		Update("revoked_at", s.now().UTC()).Error; err != nil {
		return response.WrapServerError("failed to revoke refresh token", err)
	}
	return nil
}

// GetCurrentUser returns the caller's account.
func (s *AuthService) GetCurrentUser(caller authz.Identity) (*models.User, error) {
	return loadUser(s.db, caller.UserID)
}

func (s *AuthService) UpdateProfile(caller authz.Identity, req *UpdateProfileRequest) (*models.User, error) {
	if req.FullName != nil {
		if err := s.db.Model(&models.User{}).
			Where("id = ?", caller.UserID).
			Update("full_name", strings.TrimSpace(*req.FullName)).Error; err != nil {
			return nil, response.WrapServerError("failed to update profile", err)
		}
	}
	return loadUser(s.db, caller.UserID)
}

// ChangePassword verifies the old password and clears any forced change.
func (s *AuthService) ChangePassword(caller authz.Identity, req *ChangePasswordRequest) error {
	user, err := loadUser(s.db, caller.UserID)
	if err != nil {
		return err
	}

	if !utils.CheckPassword(req.OldPassword, user.PasswordHash) {
		return response.NewBadRequest("incorrect old password")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return response.WrapServerError("failed to hash password", err)
	}

	if err := s.db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"password_hash":         hash,
		"force_change_password": false,
	}).Error; err != nil {
		return response.WrapServerError("failed to change password", err)
	}
	return nil
}

// CreateSuperadminIfNotExists seeds the configured superadmin account when
// no superadmin exists yet. An existing account with the configured username
// is promoted instead.
func (s *AuthService) CreateSuperadminIfNotExists(cfg *config.SuperadminConfig) error {
	if cfg == nil || cfg.Username == "" || cfg.Password == "" {
		return nil
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", models.RoleSuperadmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var existing models.User
	err := s.db.Where("username = ?", cfg.Username).First(&existing).Error
	if err == nil {
		logger.Info().Str("username", cfg.Username).Msg("promoting existing account to superadmin")
		return s.db.Model(&models.User{}).Where("id = ?", existing.ID).Update("role", models.RoleSuperadmin).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := utils.HashPassword(cfg.Password)
	if err != nil {
		return err
	}
	user := models.User{
		Username:     cfg.Username,
		PasswordHash: hash,
		FullName:     cfg.FullName,
		Role:         models.RoleSuperadmin,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return err
	}
	logger.Info().Str("username", cfg.Username).Msg("superadmin account created")
	return nil
}

func (s *AuthService) issueTokens(user *models.User, clientIP, userAgent string) (*AuthResult, error) {
	result, record, err := s.buildTokens(user, clientIP, userAgent)
	if err != nil {
		return nil, err
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, response.WrapServerError("failed to store refresh token", err)
	}
	return result, nil
}

func (s *AuthService) buildTokens(user *models.User, clientIP, userAgent string) (*AuthResult, *models.RefreshToken, error) {
	now := s.now().UTC()
	accessHours := s.configSvc.GetPositiveInt(models.ConfigKeyAccessTokenExpireHours, s.jwtConfig.ExpireHour)
	refreshHours := s.configSvc.GetPositiveInt(models.ConfigKeyRefreshTokenExpireHours, defaultRefreshTokenExpireHours)

	token, err := utils.GenerateToken(user.ID, user.Username, string(user.Role), accessHours)
	if err != nil {
		return nil, nil, response.WrapServerError("failed to sign token", err)
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, nil, response.WrapServerError("failed to generate refresh token", err)
	}

	record := &models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   refreshHash,
		ExpiresAt:   now.Add(time.Duration(refreshHours) * time.Hour),
		CreatedByIP: clientIP,
		UserAgent:   truncate(userAgent, 255),
	}

	return &AuthResult{
		AccessToken:     token,
		AccessExpireAt:  now.Add(time.Duration(accessHours) * time.Hour),
		RefreshToken:    refreshToken,
		RefreshExpireAt: record.ExpiresAt,
		User:            user,
	}, record, nil
}

func generateRefreshToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(randomBytes)
	tokenHash = hashRefreshToken(token)
	return token, tokenHash, nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func loadUser(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, lookupError("user", err)
	}
	return &user, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
