package user

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultDisplayName = "User"

type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName is the name shown to the user, "User" when none was given.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return defaultDisplayName
}

type Repository interface {
	Register(ctx context.Context, email, password, name string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	VerifyPassword(hashedPassword, password string) error
	UpdateName(ctx context.Context, userID uuid.UUID, name string) error
}
