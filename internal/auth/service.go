package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrMissingParameter   = errors.New("param is missing or the value is empty")
)

// RejectedUserError lists why a new account could not be created.
type RejectedUserError struct {
	Messages []string
}

func (e *RejectedUserError) Error() string {
	return strings.Join(e.Messages, ", ")
}

type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Username    string
	Created     bool
}

// Service logs users in, creating unknown usernames on first login.
type Service struct {
	users  *Users
	tokens *Tokens
}

func NewService(users *Users, tokens *Tokens) *Service {
	return &Service{users: users, tokens: tokens}
}

func (s *Service) Login(ctx context.Context, username string, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username", ErrMissingParameter)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password", ErrMissingParameter)
	}

	created := false
	user, err := s.users.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		slog.Warn("auto-creating user", "username", username)
		if verr := ValidatePassword(password); verr != nil {
			return nil, &RejectedUserError{Messages: []string{verr.Error()}}
		}
		digest, herr := HashPassword(password)
		if herr != nil {
			return nil, herr
		}
		user, err = s.users.Create(ctx, username, digest)
		if err != nil {
			return nil, err
		}
		created = true
	case err != nil:
		return nil, err
	case !VerifyPassword(user.PasswordDigest, password):
		slog.Warn("failed login attempt", "username", username)
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		Username:    user.Username,
		Created:     created,
	}, nil
}
