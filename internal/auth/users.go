package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID             string
	Username       string
	PasswordDigest string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Users persists accounts in the users table.
type Users struct {
	db *sql.DB
}

func NewUsers(db *sql.DB) *Users {
	return &Users{db: db}
}

// Create inserts a user with a fresh id.
func (u *Users) Create(ctx context.Context, username string, passwordDigest string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:             uuid.NewString(),
		Username:       username,
		PasswordDigest: passwordDigest,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := u.db.ExecContext(ctx,
		`INSERT INTO users(id, username, password_digest, created_at, updated_at)
		 VALUES($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.PasswordDigest, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user %s: %w", username, err)
	}
	return user, nil
}

// FindByUsername matches usernames case-insensitively.
func (u *Users) FindByUsername(ctx context.Context, username string) (*User, error) {
	return u.findOne(ctx,
		`SELECT id, username, password_digest, created_at, updated_at
		 FROM users WHERE LOWER(username) = LOWER($1)`,
		username,
	)
}

func (u *Users) FindByID(ctx context.Context, id string) (*User, error) {
	return u.findOne(ctx,
		`SELECT id, username, password_digest, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	)
}

func (u *Users) findOne(ctx context.Context, query string, arg string) (*User, error) {
	var user User
	err := u.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Username, &user.PasswordDigest, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &user, nil
}
