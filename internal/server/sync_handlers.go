package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"dash/internal/feed"
	"dash/internal/store"
)

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	userID, _ := getUserID(r.Context())
	batch, err := s.engine.RefreshAll(r.Context(), userID, "A new update!")
	s.respondRefresh(w, batch, err)
}

func (s *Server) handleRefreshOne(w http.ResponseWriter, r *http.Request) {
	service, ok := parseService(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown service")
		return
	}
	userID, _ := getUserID(r.Context())

	description := fmt.Sprintf("Checking in with %s for updates!", service.Display())
	batch, err := s.engine.RefreshOne(r.Context(), userID, service, description)
	s.respondRefresh(w, batch, err)
}

// respondRefresh maps a sync cycle result onto the client outcomes: new
// posts, nothing new, expired access that needs a reconnect, or a generic
// failure.
func (s *Server) respondRefresh(w http.ResponseWriter, batch *store.Batch, err error) {
	if err != nil {
		var serr *feed.ServiceError
		switch {
		case errors.As(err, &serr) && errors.Is(err, feed.ErrNotConnected):
			respondJSON(w, http.StatusBadRequest, outcome{Message: s.catalog.Service(serr.Service).NotConnected})
		case errors.As(err, &serr) && (errors.Is(err, feed.ErrAuthExpired) || errors.Is(err, feed.ErrRefreshFailed)):
			respondJSON(w, http.StatusInternalServerError, outcome{
				Message: s.catalog.Service(serr.Service).AccessPrivileges,
				Refresh: true,
			})
		default:
			s.logger.Printf("Refresh failed: %v", err)
			respondJSON(w, http.StatusInternalServerError, outcome{Message: s.catalog.GeneralError})
		}
		return
	}

	if batch == nil {
		respondJSON(w, http.StatusOK, outcome{Message: s.catalog.NoPosts})
		return
	}
	respondJSON(w, http.StatusOK, outcome{Message: s.catalog.NewPosts, Refresh: true})
}

func (s *Server) handleToggleUpdates(w http.ResponseWriter, r *http.Request) {
	service, ok := parseService(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown service")
		return
	}
	userID, _ := getUserID(r.Context())

	enabled, err := s.engine.ToggleUpdates(r.Context(), userID, service)
	if errors.Is(err, feed.ErrNotConnected) {
		respondJSON(w, http.StatusBadRequest, outcome{Message: s.catalog.Service(service).NotConfigured})
		return
	}
	if err != nil {
		s.respondServiceError(w, service, err)
		return
	}

	msg := s.catalog.Service(service).UpdatesDisabled
	if enabled {
		msg = s.catalog.Service(service).UpdatesEnabled
	}
	respondJSON(w, http.StatusOK, outcome{Message: msg, Refresh: true})
}

func (s *Server) handleResetService(w http.ResponseWriter, r *http.Request) {
	service, ok := parseService(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown service")
		return
	}
	userID, _ := getUserID(r.Context())

	if err := s.engine.ResetService(r.Context(), userID, service); err != nil {
		s.respondServiceError(w, service, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome{Message: s.catalog.Service(service).Reset, Refresh: true})
}

func (s *Server) handleSetupContent(w http.ResponseWriter, r *http.Request) {
	service, ok := parseService(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown service")
		return
	}
	userID, _ := getUserID(r.Context())

	items, err := s.engine.SetupContent(r.Context(), userID, service, r.PathValue("kind"))
	if err != nil {
		s.respondServiceError(w, service, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]feed.SetupItem{"items": items})
}

func (s *Server) handleSaveSources(w http.ResponseWriter, r *http.Request) {
	service, ok := parseService(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown service")
		return
	}
	userID, _ := getUserID(r.Context())

	var req struct {
		Sources []store.Source `json:"sources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.engine.SaveSources(r.Context(), userID, service, r.PathValue("kind"), req.Sources); err != nil {
		s.respondServiceError(w, service, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (s *Server) handleDeauthorize(w http.ResponseWriter, r *http.Request) {
	service, ok := parseService(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown service")
		return
	}
	userID, _ := getUserID(r.Context())

	if err := s.engine.Deauthorize(r.Context(), userID, service); err != nil {
		s.respondServiceError(w, service, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome{Message: s.catalog.Service(service).Removed, Refresh: true})
}

type connectRequest struct {
	ProfileID    string `json:"profileId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	service, ok := parseService(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown service")
		return
	}
	userID, _ := getUserID(r.Context())

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	renewed, err := s.engine.Connect(r.Context(), userID, service, store.Connection{
		ProfileID:    req.ProfileID,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	})
	switch {
	case errors.Is(err, feed.ErrAlreadyConnected):
		respondJSON(w, http.StatusConflict, outcome{Message: s.catalog.Service(service).AlreadyConnected})
		return
	case errors.Is(err, feed.ErrMissingPermissions):
		respondJSON(w, http.StatusBadRequest, outcome{Message: s.catalog.Service(service).MissingPermissions})
		return
	case err != nil:
		s.logger.Printf("Connect failed: %v", err)
		respondJSON(w, http.StatusInternalServerError, outcome{Message: s.catalog.GeneralError})
		return
	}

	msg := s.catalog.Service(service).Connected
	if renewed {
		msg = s.catalog.Service(service).Renewed
	}
	respondJSON(w, http.StatusOK, outcome{Message: msg, Refresh: true})
}

// respondServiceError maps management operation failures onto responses.
func (s *Server) respondServiceError(w http.ResponseWriter, service store.Service, err error) {
	switch {
	case errors.Is(err, feed.ErrNotConnected):
		respondJSON(w, http.StatusBadRequest, outcome{Message: s.catalog.Service(service).NotConnected})
	case errors.Is(err, feed.ErrUnknownSourceKind):
		respondError(w, http.StatusNotFound, "unknown source kind")
	case errors.Is(err, feed.ErrAuthExpired) || errors.Is(err, feed.ErrRefreshFailed):
		respondJSON(w, http.StatusInternalServerError, outcome{
			Message: s.catalog.Service(service).AccessPrivileges,
			Refresh: true,
		})
	default:
		s.logger.Printf("%s operation failed: %v", service.Display(), err)
		respondJSON(w, http.StatusInternalServerError, outcome{Message: s.catalog.GeneralError})
	}
}
