package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("email address already registered")
)

// UserStore is the persistence boundary for user documents. Save overwrites
// the whole document in one write; callers buffer all mutation in memory and
// commit once per cycle. No partial-field update API is offered.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Save(ctx context.Context, u *User) error
}
