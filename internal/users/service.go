package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"clockwork/internal/attendance"
)

// Service handles registration, login and geofences.
type Service struct {
	store         Store
	bcryptCost    int
	defaultRadius float64
}

// NewService creates a service. Non-positive values fall back to defaults.
func NewService(store Store, bcryptCost int, defaultRadiusMeters float64) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if defaultRadiusMeters <= 0 {
		defaultRadiusMeters = 100
	}
	return &Service{store: store, bcryptCost: bcryptCost, defaultRadius: defaultRadiusMeters}
}

// Register creates a user with a hashed password. An empty role means RoleUser.
func (s *Service) Register(ctx context.Context, username, email, password, role string) (User, error) {
	if role == "" {
		role = RoleUser
	}
	if role != RoleUser && role != RoleAdmin {
		return User{}, ErrInvalidRole
	}
	if strings.TrimSpace(username) == "" || strings.TrimSpace(email) == "" || password == "" {
		return User{}, ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.store.Create(ctx, User{
		Username:     strings.TrimSpace(username),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	})
}

// Login checks credentials. Unknown email and wrong password look the same.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.store.GetByID(ctx, id)
}

// ListWorkers returns every non-admin user.
func (s *Service) ListWorkers(ctx context.Context) ([]User, error) {
	return s.store.ListByRole(ctx, RoleUser)
}

// ResolveUser implements attendance.UserResolver.
func (s *Service) ResolveUser(ctx context.Context, userID string) (attendance.UserRef, error) {
	u, err := s.store.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return attendance.UserRef{}, attendance.ErrUserNotFound
	}
	if err != nil {
		return attendance.UserRef{}, err
	}
	return attendance.UserRef{ID: u.ID, DisplayName: u.Username, Email: u.Email}, nil
}

// SetLocation assigns a geofence. A non-positive radius uses the default.
func (s *Service) SetLocation(ctx context.Context, userID string, lat, lng, radius float64) (Geofence, error) {
	if !validCoordinates(lat, lng) {
		return Geofence{}, ErrInvalidLocation
	}
	if radius <= 0 {
		radius = s.defaultRadius
	}
	g := Geofence{Latitude: lat, Longitude: lng, RadiusMeters: radius}
	if err := s.store.SetLocation(ctx, userID, g); err != nil {
		return Geofence{}, err
	}
	return g, nil
}

// VerifyResult reports whether a position is inside the user's geofence.
type VerifyResult struct {
	Within         bool     `json:"within"`
	DistanceMeters float64  `json:"distance_m"`
	Geofence       Geofence `json:"geofence"`
}

// VerifyLocation compares a reported position with the user's geofence.
func (s *Service) VerifyLocation(ctx context.Context, userID string, lat, lng float64) (VerifyResult, error) {
	if !validCoordinates(lat, lng) {
		return VerifyResult{}, ErrInvalidLocation
	}
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return VerifyResult{}, err
	}
	if u.Location == nil {
		return VerifyResult{}, ErrNoLocation
	}
	d := DistanceMeters(u.Location.Latitude, u.Location.Longitude, lat, lng)
	return VerifyResult{
		Within:         d <= u.Location.RadiusMeters,
		DistanceMeters: d,
		Geofence:       *u.Location,
	}, nil
}

// EnsureAdmin creates an admin account for email unless one already exists.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (User, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if err == nil {
		if u.Role != RoleAdmin {
			return User{}, fmt.Errorf("bootstrap admin %s: %w", email, ErrInvalidRole)
		}
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	return s.Register(ctx, "admin", email, password, RoleAdmin)
}
