package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labelpizza/backend/internal/config"
	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/utils"
	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type AuthService struct {
	db        *gorm.DB
	jwtConfig *config.JWTConfig
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{db: db, jwtConfig: jwtCfg}
}

type LoginRequest struct {
	// Username also accepts an email address.
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	Token    string       `json:"token"`
	ExpireAt time.Time    `json:"expire_at"`
	User     *models.User `json:"user"`
}

// Login authenticates a human or admin account and issues a JWT. Model
// accounts have no password and cannot log in.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", req.Username, strings.ToLower(req.Username)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.IsArchived {
		return nil, &StateError{Entity: "user", Key: user.DisplayName(), Reason: "archived"}
	}
	if user.UserType == models.UserTypeModel || !utils.CheckPassword(req.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	hours := s.jwtConfig.ExpireHour
	if hours <= 0 {
		hours = 24
	}
	token, err := utils.GenerateToken(user.ID, user.Username, user.UserType, hours)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		logger.Warn().Err(err).Uint("user_id", user.ID).Msg("[Auth] Failed to record last login")
	}
	user.LastLogin = &now

	return &LoginResult{
		Token:    token,
		ExpireAt: now.Add(time.Duration(hours) * time.Hour),
		User:     &user,
	}, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return findUser(ctx, s.db, id)
}

// CreateAdminIfNotExists seeds the configured admin on a database without one.
func (s *AuthService) CreateAdminIfNotExists(ctx context.Context, cfg *config.AdminConfig) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("user_type = ?", models.UserTypeAdmin).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword(cfg.Password)
	if err != nil {
		return err
	}
	admin := models.User{
		Username: cfg.Username,
		Password: hashed,
		UserType: models.UserTypeAdmin,
	}
	if cfg.Email != "" {
		email := strings.ToLower(cfg.Email)
		admin.Email = &email
	}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return err
	}
	logger.Info().Str("username", admin.Username).Msg("[Auth] Default admin created")
	return nil
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, req *ChangePasswordRequest) error {
	user, err := findUser(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if user.UserType == models.UserTypeModel {
		return invalid("model accounts have no password")
	}
	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return invalid("incorrect old password")
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(user).Update("password", hashed).Error
}
