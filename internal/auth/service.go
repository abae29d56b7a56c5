// Package auth issues and verifies the JWT bearer tokens the HTTP and
// websocket surfaces authenticate with.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/terminal-bench/urbanflow/internal/model"
	"github.com/terminal-bench/urbanflow/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Store is the slice of the state store the auth layer needs.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
}

// Claims is the token payload. Zone scoping rides along so handlers can
// authorize without a user lookup on every request.
type Claims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   model.Role `json:"role"`
	ZoneID *uuid.UUID `json:"zone_id,omitempty"`
	jwt.RegisteredClaims
}

// Service authenticates users and mints tokens.
type Service struct {
	store  Store
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewService builds an auth service signing with secret. Tokens expire
// after expiry.
func NewService(store Store, secret string, expiry time.Duration) *Service {
	return &Service{
		store:  store,
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// Login verifies email and password and returns a signed token plus the
// authenticated user. Wrong email and wrong password are deliberately
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, model.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return "", model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", model.User{}, fmt.Errorf("look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", model.User{}, ErrInvalidCredentials
	}

	token, err := s.issue(user)
	if err != nil {
		return "", model.User{}, err
	}
	return token, user, nil
}

// Verify parses and validates a token string and returns its claims.
func (s *Service) Verify(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword derives a storable hash for a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) issue(user model.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		ZoneID: user.ZoneID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
