package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"dash/internal/auth"
	"dash/internal/store"
)

const sessionCookieName = "session"

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if len(req.Password) < 8 {
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := s.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if errors.Is(err, store.ErrEmailExists) {
		respondError(w, http.StatusConflict, "email address already registered")
		return
	}
	if err != nil {
		s.logger.Printf("Registration failed: %v", err)
		respondError(w, http.StatusInternalServerError, s.catalog.GeneralError)
		return
	}

	session, err := s.auth.CreateSession(r.Context(), user.ID)
	if err != nil {
		s.logger.Printf("Session creation failed: %v", err)
		respondError(w, http.StatusInternalServerError, s.catalog.GeneralError)
		return
	}
	s.setSessionCookie(w, session)

	respondJSON(w, http.StatusCreated, map[string]string{"id": user.ID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.auth.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		respondError(w, http.StatusForbidden, "account temporarily locked, try again later")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	case err != nil:
		s.logger.Printf("Login failed: %v", err)
		respondError(w, http.StatusInternalServerError, s.catalog.GeneralError)
		return
	}
	s.setSessionCookie(w, session)

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if err := s.auth.InvalidateSession(r.Context(), cookie.Value); err != nil {
			s.logger.Printf("Error invalidating session: %v", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.UseHTTPS,
		MaxAge:   -1,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := getUserID(r.Context())

	err := s.auth.DeleteAccount(r.Context(), userID)
	if errors.Is(err, auth.ErrServicesActive) {
		respondJSON(w, http.StatusBadRequest, outcome{Message: s.catalog.ServicesActive})
		return
	}
	if err != nil {
		s.logger.Printf("Account deletion failed: %v", err)
		respondJSON(w, http.StatusInternalServerError, outcome{Message: s.catalog.GeneralError})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.UseHTTPS,
		MaxAge:   -1,
	})
	respondJSON(w, http.StatusOK, outcome{Message: s.catalog.AccountDeleted, Refresh: true})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.UseHTTPS,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
}
