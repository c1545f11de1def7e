package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const BearerPrefix = "Bearer "

var (
	ErrMissingToken = errors.New("Authorization header missing or invalid format")
	ErrUnknownUser  = errors.New("User associated with token not found")
)

type AuthEngine interface {
	// AuthenticateRequest inspects the given HTTP request for valid
	// credentials and returns the user they belong to.
	AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error)
}

// BearerAuthEngine accepts access tokens issued by Tokens whose user still
// exists.
type BearerAuthEngine struct {
	tokens *Tokens
	users  *Users
}

func NewBearerAuthEngine(tokens *Tokens, users *Users) *BearerAuthEngine {
	return &BearerAuthEngine{tokens: tokens, users: users}
}

func (e *BearerAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, BearerPrefix) {
		return nil, ErrMissingToken
	}
	raw := strings.TrimSpace(header[len(BearerPrefix):])
	if raw == "" {
		return nil, ErrMissingToken
	}

	userID, err := e.tokens.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	user, err := e.users.FindByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
