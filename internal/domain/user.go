package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User represents a user in the domain layer
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	FCMToken  *string   `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserResponse is the public representation of a user
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ToResponse converts a User to a UserResponse
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}

// CreateUserParams holds the fields for registering a user
type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
}

type UserRepository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserWithPassword(ctx context.Context, email string) (*User, string, error)
	UpdateUserFCMToken(ctx context.Context, userID uuid.UUID, token string) error
}
