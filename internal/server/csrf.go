package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"
)

var (
	ErrTokenMissing = errors.New("CSRF token missing")
	ErrTokenInvalid = errors.New("CSRF token invalid")
)

// CSRFConfig holds configuration for CSRF protection
type CSRFConfig struct {
	Cookie string
	Header string
	Secure bool
	Expiry time.Duration
}

// DefaultCSRFConfig returns the default CSRF configuration
func DefaultCSRFConfig() CSRFConfig {
	return CSRFConfig{
		Cookie: "csrf_token",
		Header: "X-CSRF-Token",
		Secure: true, // overridden by server config
		Expiry: 24 * time.Hour,
	}
}

// CSRF manages CSRF token generation and validation
type CSRF struct {
	config CSRFConfig
	tokens sync.Map
}

// NewCSRF creates a new CSRF instance
func NewCSRF(config CSRFConfig) *CSRF {
	c := &CSRF{config: config}
	go c.startCleanupLoop()
	return c
}

func (c *CSRF) generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// getOrCreateToken gets an existing token or creates a new one
func (c *CSRF) getOrCreateToken(w http.ResponseWriter, r *http.Request) (string, error) {
	cookie, err := r.Cookie(c.config.Cookie)
	if err == nil && cookie.Value != "" {
		if _, ok := c.tokens.Load(cookie.Value); ok {
			return cookie.Value, nil
		}
	}

	token, err := c.generateToken()
	if err != nil {
		return "", err
	}
	c.tokens.Store(token, time.Now().Add(c.config.Expiry))

	http.SetCookie(w, &http.Cookie{
		Name:     c.config.Cookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(c.config.Expiry.Seconds()),
	})
	return token, nil
}

// Middleware provides CSRF protection: safe methods receive a token cookie,
// unsafe methods must echo it back in the header.
func (c *CSRF) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			if _, err := c.getOrCreateToken(w, r); err != nil {
				http.Error(w, "Failed to generate CSRF token", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if err := c.validateRequest(r); err != nil {
			http.Error(w, "CSRF validation failed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validateRequest checks the header token against the cookie token in
// constant time and verifies it is one we issued and it has not expired.
func (c *CSRF) validateRequest(r *http.Request) error {
	requestToken := r.Header.Get(c.config.Header)
	cookie, err := r.Cookie(c.config.Cookie)
	if err != nil || requestToken == "" || cookie.Value == "" {
		return ErrTokenMissing
	}

	expiry, ok := c.tokens.Load(cookie.Value)
	if !ok || time.Now().After(expiry.(time.Time)) {
		return ErrTokenInvalid
	}

	if subtle.ConstantTimeCompare([]byte(requestToken), []byte(cookie.Value)) != 1 {
		return ErrTokenInvalid
	}
	return nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func (c *CSRF) startCleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		c.tokens.Range(func(key, value any) bool {
			if now.After(value.(time.Time)) {
				c.tokens.Delete(key)
			}
			return true
		})
	}
}
