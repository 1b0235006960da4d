// Package authevents is the authentication collaborator of the audit engine:
// it records LOGIN, LOGOUT and FAILED_LOGIN events, and ships a minimal
// credential-checking service so the recording path has a realistic caller.
package authevents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"chronicle/internal/audit"
	"chronicle/pkg/requestcontext"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords
// alike; callers cannot distinguish the two.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is the minimal identity the service authenticates.
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
}

// UserStore resolves usernames to stored users.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (User, error)
}

// Service authenticates users and records every outcome in the audit trail.
type Service struct {
	users      UserStore
	recorder   *audit.Recorder
	signingKey []byte
	tokenTTL   time.Duration
	logger     *slog.Logger
}

// NewService constructs the authentication service.
func NewService(users UserStore, recorder *audit.Recorder, signingKey []byte, tokenTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:      users,
		recorder:   recorder,
		signingKey: signingKey,
		tokenTTL:   tokenTTL,
		logger:     logger,
	}
}

// Login checks the credential and returns a signed session token. A failed
// attempt records FAILED_LOGIN with no actor (the credential was not valid,
// so there is no authenticated identity, only IP/session context); success
// records LOGIN attributed to the user.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		s.recorder.RecordFailedLogin(ctx, username)
		return "", ErrInvalidCredentials
	}

	sessionKey := uuid.NewString()
	now := requestcontext.Now(ctx)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": user.ID,
		"sid": sessionKey,
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	ctx = requestcontext.WithActor(ctx, user.ID)
	ctx = requestcontext.WithSessionKey(ctx, sessionKey)
	s.recorder.RecordLogin(ctx, username)
	return signed, nil
}

// Logout records the LOGOUT event for the current actor.
func (s *Service) Logout(ctx context.Context, username string) {
	s.recorder.RecordLogout(ctx, username)
}
