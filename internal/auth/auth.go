package auth

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"dash/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrSessionNotFound    = errors.New("session not found")
	ErrServicesActive     = errors.New("account still has connected services")
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 2 * time.Hour
	sessionTTL       = 24 * time.Hour
)

type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Service handles account registration, login, and sessions.
type Service struct {
	db     *store.DB
	logger *log.Logger
}

func NewService(db *store.DB, logger *log.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Register creates a new account with a hashed password and an empty
// dashboard document.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := s.db.FindByEmail(ctx, email); err == nil {
		return nil, store.ErrEmailExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("error checking email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &store.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
		Avatar:      gravatarURL(email),
	}
	if err := s.db.CreateUser(ctx, user, string(hash)); err != nil {
		return nil, err
	}

	s.logger.Printf("Registered user %s", user.ID)
	return user, nil
}

func gravatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?d=retro"
}

// Authenticate verifies email and password and returns a new session.
// Repeated failures lock the account for a cooldown period; a successful
// login clears the counter.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var (
		id           string
		passwordHash string
		attempts     int
		lockedUntil  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, password_hash, login_attempts, locked_until FROM users WHERE email = ?",
		email,
	).Scan(&id, &passwordHash, &attempts, &lockedUntil)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}

	if lockedUntil.Valid && lockedUntil.Time.After(time.Now()) {
		return nil, ErrAccountLocked
	}

	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
		return nil, s.recordFailure(ctx, id, attempts)
	}

	if attempts > 0 || lockedUntil.Valid {
		if _, err := s.db.ExecContext(ctx,
			"UPDATE users SET login_attempts = 0, locked_until = NULL WHERE id = ?", id,
		); err != nil {
			return nil, fmt.Errorf("error resetting login attempts: %w", err)
		}
	}

	return s.CreateSession(ctx, id)
}

// recordFailure counts a failed attempt and locks the account once the
// limit is reached.
func (s *Service) recordFailure(ctx context.Context, id string, attempts int) error {
	attempts++
	if attempts >= maxLoginAttempts {
		if _, err := s.db.ExecContext(ctx,
			"UPDATE users SET login_attempts = 0, locked_until = ? WHERE id = ?",
			time.Now().Add(lockoutDuration), id,
		); err != nil {
			return fmt.Errorf("error locking account: %w", err)
		}
		s.logger.Printf("Locked account %s after %d failed logins", id, maxLoginAttempts)
		return ErrAccountLocked
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE users SET login_attempts = ? WHERE id = ?", attempts, id,
	); err != nil {
		return fmt.Errorf("error recording failed login: %w", err)
	}
	return ErrInvalidCredentials
}

// DeleteAccount removes the user and, through the schema's cascade, their
// sessions. Accounts with services still connected are refused so upstream
// tokens are revoked first.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	user, err := s.db.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Facebook != nil || user.YouTube != nil {
		return ErrServicesActive
	}
	if err := s.db.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Printf("Deleted account %s", userID)
	return nil
}

// CreateSession creates a new session for the user
func (s *Service) CreateSession(ctx context.Context, userID string) (*Session, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}

	session := &Session{
		ID:        base64.URLEncoding.EncodeToString(b),
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(sessionTTL),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		session.ID, session.UserID, session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	return session, nil
}

// ValidateSession checks if a session is valid and not expired
func (s *Service) ValidateSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at
         FROM sessions
         WHERE id = ? AND expires_at > ?`,
		sessionID, time.Now(),
	).Scan(&session.ID, &session.UserID, &session.CreatedAt, &session.ExpiresAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return &session, nil
}

// InvalidateSession removes a session from the database
func (s *Service) InvalidateSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}

// CleanExpiredSessions removes all expired sessions
func (s *Service) CleanExpiredSessions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", time.Now())
	return err
}
