package users

import (
	"context"
	"errors"
	"time"
)

// Roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidInput       = errors.New("username, email and password required")
	ErrNoLocation         = errors.New("no location set for user")
	ErrInvalidLocation    = errors.New("invalid coordinates")
)

// Geofence is an admin-assigned work location.
type Geofence struct {
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lng"`
	RadiusMeters float64 `json:"radius_m"`
}

// User is a registered account.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Role             string    `json:"role"`
	Location         *Geofence `json:"location,omitempty"`
	CurrentSessionID string    `json:"current_session_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Store persists users.
type Store interface {
	Create(ctx context.Context, u User) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	ListByRole(ctx context.Context, role string) ([]User, error)
	SetLocation(ctx context.Context, id string, g Geofence) error
}
