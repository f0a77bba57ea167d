package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// CreateUser inserts a new account row together with its initial document.
func (db *DB) CreateUser(ctx context.Context, u *User, passwordHash string) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("error encoding user document: %w", err)
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, document) VALUES (?, ?, ?, ?)",
		u.ID, u.Email, passwordHash, string(doc),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrEmailExists
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

// FindByID loads the user document for the given id.
func (db *DB) FindByID(ctx context.Context, id string) (*User, error) {
	return db.findUser(ctx, "SELECT document FROM users WHERE id = ?", id)
}

// FindByEmail loads the user document for the given email address.
func (db *DB) FindByEmail(ctx context.Context, email string) (*User, error) {
	return db.findUser(ctx, "SELECT document FROM users WHERE email = ?", email)
}

func (db *DB) findUser(ctx context.Context, query, arg string) (*User, error) {
	var doc string
	err := db.QueryRowContext(ctx, query, arg).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}

	var u User
	if err := json.Unmarshal([]byte(doc), &u); err != nil {
		return nil, fmt.Errorf("error decoding user document: %w", err)
	}
	return &u, nil
}

// Save overwrites the user's whole document. This is the only write path for
// dashboard state, so a sync cycle commits exactly once.
func (db *DB) Save(ctx context.Context, u *User) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("error encoding user document: %w", err)
	}

	result, err := db.ExecContext(ctx,
		"UPDATE users SET document = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(doc), u.ID,
	)
	if err != nil {
		return fmt.Errorf("error saving user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the account and, through the foreign key, its sessions.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
