package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"dash/internal/store"
)

type serviceStatus struct {
	Connected     bool       `json:"connected"`
	AcceptUpdates bool       `json:"acceptUpdates"`
	LastUpdate    *time.Time `json:"lastUpdate,omitempty"`
}

type userSummary struct {
	DisplayName string                          `json:"displayName"`
	Email       string                          `json:"email"`
	Avatar      string                          `json:"avatar"`
	TotalPosts  int                             `json:"totalPosts"`
	Services    map[store.Service]serviceStatus `json:"services"`
}

type dashboardResponse struct {
	User       userSummary   `json:"user"`
	Batches    []store.Batch `json:"batches"`
	Pagination pagination    `json:"pagination"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := getUserID(r.Context())
	user, err := s.db.FindByID(r.Context(), userID)
	if err != nil {
		s.logger.Printf("Error loading user %s: %v", userID, err)
		respondError(w, http.StatusInternalServerError, s.catalog.GeneralError)
		return
	}

	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}

	// Newest batches first
	batches := make([]store.Batch, len(user.Batches))
	for i, b := range user.Batches {
		batches[len(batches)-1-i] = b
	}

	meta, lo, hi := paginate(len(batches), page)

	services := make(map[store.Service]serviceStatus)
	for _, svc := range []store.Service{store.Facebook, store.YouTube} {
		status := serviceStatus{Connected: user.Connected(svc)}
		if c := user.Connection(svc); c != nil {
			status.AcceptUpdates = c.AcceptUpdates
		}
		if t, ok := user.Watermark(svc); ok {
			status.LastUpdate = &t
		}
		services[svc] = status
	}

	respondJSON(w, http.StatusOK, dashboardResponse{
		User: userSummary{
			DisplayName: user.DisplayName,
			Email:       user.Email,
			Avatar:      user.Avatar,
			TotalPosts:  user.TotalPosts(),
			Services:    services,
		},
		Batches:    batches[lo:hi],
		Pagination: meta,
	})
}

func (s *Server) handleDismissBatch(w http.ResponseWriter, r *http.Request) {
	userID, _ := getUserID(r.Context())

	err := s.engine.DismissBatch(r.Context(), userID, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		s.logger.Printf("Error dismissing batch: %v", err)
		respondError(w, http.StatusInternalServerError, s.catalog.GeneralError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": true})
}
