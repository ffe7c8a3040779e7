package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/purchase-tracker/internal/server/middleware"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// itemRequest resolves the caller and the {id} path value.
func (s *Server) itemRequest(w http.ResponseWriter, r *http.Request) (owner, id uuid.UUID, ok bool) {
	owner, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	id, err = pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return uuid.Nil, uuid.Nil, false
	}
	return owner, id, true
}

func (s *Server) handleTrackItem(w http.ResponseWriter, r *http.Request) {
	owner, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req types.AddTrackedItemRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	item, err := s.deps.Items.Track(r.Context(), owner, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, item)
}

func (s *Server) handleListTrackedItems(w http.ResponseWriter, r *http.Request) {
	owner, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	items, err := s.deps.Items.List(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, items)
}

// handleGetTrackedItem returns the item with its per-day price history.
func (s *Server) handleGetTrackedItem(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.itemRequest(w, r)
	if !ok {
		return
	}

	detail, err := s.deps.Items.Detail(r.Context(), owner, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, detail)
}

func (s *Server) handleRenameTrackedItem(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.itemRequest(w, r)
	if !ok {
		return
	}

	var req types.RenameTrackedItemRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	item, err := s.deps.Items.Rename(r.Context(), owner, id, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, item)
}

func (s *Server) handleDeleteTrackedItem(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.itemRequest(w, r)
	if !ok {
		return
	}

	if err := s.deps.Items.Delete(r.Context(), owner, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateThreshold sets or clears the notification threshold.
func (s *Server) handleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.itemRequest(w, r)
	if !ok {
		return
	}

	var req types.ThresholdRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	item, err := s.deps.Items.UpdateThreshold(r.Context(), owner, id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, item)
}
