package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/meetsy/backend/internal/auth"
	"github.com/meetsy/backend/pkg/apperr"
	"github.com/meetsy/backend/pkg/validator"
)

// AuthService covers the authorization-boundary collaborator: account
// registration, credential login and token refresh. Sessions beyond the
// token pair are out of scope.
type AuthService struct {
	repo       UserRepository
	jwtManager *auth.JWTManager
}

func NewAuthService(repo UserRepository, jwtManager *auth.JWTManager) *AuthService {
	return &AuthService{
		repo:       repo,
		jwtManager: jwtManager,
	}
}

// AuthResult bundles the user with a fresh token pair.
type AuthResult struct {
	User   *UserResponse   `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

func (s *AuthService) Register(ctx context.Context, email, name, password string) (*AuthResult, error) {
	email = validator.SanitizeEmail(email)
	if !validator.ValidateEmail(email) {
		return nil, apperr.InvalidArg("invalid email address")
	}
	if !validator.ValidateName(name) {
		return nil, apperr.InvalidArg("name must be 2-100 characters")
	}
	if errs := validator.ValidatePassword(password); errs.HasErrors() {
		return nil, apperr.InvalidArg(errs.Error())
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        email,
		Name:         validator.SanitizeString(name, 100),
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}

	return s.issueTokens(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = validator.SanitizeEmail(email)

	user, hash, err := s.repo.GetUserWithPassword(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil, apperr.Unauthorized("invalid credentials")
		}
		return nil, err
	}

	if err := auth.VerifyPassword(password, hash); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperr.Unauthorized("invalid credentials")
		}
		return nil, err
	}

	return s.issueTokens(user)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token")
	}

	user, err := s.repo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("user no longer active")
	}

	return s.issueTokens(user)
}

func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.ToResponse(), nil
}

func (s *AuthService) UpdateFCMToken(ctx context.Context, userID uuid.UUID, token string) error {
	return s.repo.UpdateUserFCMToken(ctx, userID, token)
}

func (s *AuthService) issueTokens(user *User) (*AuthResult, error) {
	tokens, err := s.jwtManager.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user.ToResponse(), Tokens: tokens}, nil
}
