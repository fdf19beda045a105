// internal/domain/user/service.go
package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/your-org/pos-backend/internal/config"
	"github.com/your-org/pos-backend/internal/pkg/apperr"
	"github.com/your-org/pos-backend/internal/pkg/auth"
	"gorm.io/gorm"
)

// Service handles staff account operations
type Service struct {
	db              *gorm.DB
	config          *config.Config
	jwtManager      *auth.JWTManager
	passwordManager *auth.PasswordManager
}

// NewService creates a new user service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:              db,
		config:          cfg,
		jwtManager:      auth.NewJWTManager(cfg),
		passwordManager: auth.NewPasswordManager(cfg),
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// CreateUserRequest represents an account creation request
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// AuthResponse carries a token pair and the account profile
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Login authenticates a staff account and issues a token pair
func (s *Service) Login(req *LoginRequest) (*AuthResponse, error) {
	var account User
	if err := s.db.Where("username = ? AND is_active = ?", req.Username, true).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewValidation("invalid username or password")
		}
		return nil, apperr.NewPersistence("login", err)
	}

	if err := s.passwordManager.VerifyPassword(req.Password, account.Password); err != nil {
		return nil, apperr.NewValidation("invalid username or password")
	}

	now := time.Now().UTC()
	if err := s.db.Model(&account).UpdateColumn("last_login_at", now).Error; err == nil {
		account.LastLoginAt = &now
	}

	return s.issueTokens(&account)
}

// Refresh exchanges a valid refresh token for a new token pair
func (s *Service) Refresh(req *RefreshRequest) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, apperr.NewValidation("invalid refresh token")
	}

	var account User
	if err := s.db.Where("id = ? AND is_active = ?", claims.UserID, true).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewValidation("account no longer active")
		}
		return nil, apperr.NewPersistence("refresh token", err)
	}

	return s.issueTokens(&account)
}

// CreateUser creates a staff account
func (s *Service) CreateUser(req *CreateUserRequest) (*User, error) {
	role := req.Role
	if role == "" {
		role = RoleCashier
	}
	if role != RoleAdmin && role != RoleCashier {
		return nil, apperr.NewFieldValidation("role", "unknown role %q", role)
	}

	var count int64
	if err := s.db.Model(&User{}).Where("username = ?", req.Username).Count(&count).Error; err != nil {
		return nil, apperr.NewPersistence("check username", err)
	}
	if count > 0 {
		return nil, apperr.NewFieldValidation("username", "username %q is already taken", req.Username)
	}

	hashed, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.NewFieldValidation("password", "%s", err.Error())
	}

	account := &User{
		Username: req.Username,
		Password: hashed,
		FullName: req.FullName,
		Role:     role,
		IsActive: true,
	}

	if err := s.db.Create(account).Error; err != nil {
		return nil, apperr.NewPersistence("create user", err)
	}

	return account, nil
}

// GetUser returns an account by id
func (s *Service) GetUser(id uint) (*User, error) {
	var account User
	if err := s.db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFound("user", id)
		}
		return nil, apperr.NewPersistence("get user", err)
	}
	return &account, nil
}

func (s *Service) issueTokens(account *User) (*AuthResponse, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(account.ID, account.Username, account.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(account.ID, account.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         account,
	}, nil
}
