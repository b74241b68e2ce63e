// Package auth issues and verifies access tokens and guards HTTP routes by role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taxledger/internal/core"
	"taxledger/internal/ports"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input beyond this many bytes.
	maxPasswordLength = 72
)

var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrRegistrationDisabled = errors.New("registration is disabled")
	ErrInvalidToken         = errors.New("invalid token")
	ErrPasswordTooLong      = fmt.Errorf("password must be at most %d bytes", maxPasswordLength)
)

// Config carries the token parameters.
type Config struct {
	Key                 []byte
	Issuer              string
	Audience            string
	Expiry              time.Duration
	RegistrationEnabled bool
	// BcryptCost defaults to bcrypt.DefaultCost when zero.
	BcryptCost int
}

// Claims is the token payload.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Role   core.Role
}

// HasRole reports whether the principal holds one of roles.
func (p Principal) HasRole(roles ...core.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type Service struct {
	users ports.UserStore
	cfg   Config
	now   func() time.Time
	// dummyHash keeps unknown-email logins as slow as wrong-password ones.
	dummyHash []byte
}

func NewService(users ports.UserStore, cfg Config) (*Service, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if len(cfg.Key) == 0 {
		return nil, errors.New("auth: signing key is required")
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("placeholder-password"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth: prepare hash: %w", err)
	}
	return &Service{users: users, cfg: cfg, now: time.Now, dummyHash: dummy}, nil
}

// WithClock replaces the time source used for issuing and verifying tokens.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RegistrationEnabled reports whether new accounts may be created.
func (s *Service) RegistrationEnabled() bool { return s.cfg.RegistrationEnabled }

// Register creates an account and returns a token for it.
func (s *Service) Register(ctx context.Context, email, password string, role core.Role) (string, error) {
	if !s.cfg.RegistrationEnabled {
		return "", ErrRegistrationDisabled
	}
	u := core.User{ID: uuid.New(), Email: core.NormalizeEmail(email), Role: role}
	if err := u.Validate(); err != nil {
		return "", err
	}
	if len(password) < minPasswordLength {
		return "", core.ErrWeakPassword
	}
	if len(password) > maxPasswordLength {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	if err := s.users.CreateUser(ctx, u); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "User registered", "user_email", u.Email, "role", u.Role)
	return s.IssueToken(u)
}

// Login verifies credentials. Every mismatch yields ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			return "", fmt.Errorf("find user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		slog.WarnContext(ctx, "Login failed", "user_email", core.NormalizeEmail(email), "reason", "unknown email")
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		slog.WarnContext(ctx, "Login failed", "user_email", u.Email, "reason", "password mismatch")
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(u)
}

// IssueToken signs an HS256 token for u.
func (s *Service) IssueToken(u core.User) (string, error) {
	now := s.now()
	claims := Claims{
		Email: u.Email,
		Name:  u.Email,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.Expiry)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates signature method, issuer, audience and expiry.
func (s *Service) ParseToken(tokenString string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.cfg.Key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	role := core.Role(claims.Role)
	if !role.Valid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return Principal{UserID: id, Email: claims.Email, Role: role}, nil
}
