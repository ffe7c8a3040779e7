package server

import (
	"net/http"

	"github.com/jonathan/purchase-tracker/internal/server/middleware"
	"github.com/jonathan/purchase-tracker/internal/types"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.userService.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req types.AdminCreateUserRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.userService.CreateUser(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("user created", "user_id", user.ID, "is_admin", user.IsAdmin)
	s.jsonResponse(w, http.StatusCreated, user)
}

// handleResetPassword sets another user's password.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.ResetPasswordRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.userService.ResetPassword(r.Context(), id, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "Password reset"})
}

// handleDeleteUser removes an account with its orders, items and jobs.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.userService.Delete(r.Context(), actor, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("user deleted", "user_id", id, "by", actor)
	w.WriteHeader(http.StatusNoContent)
}
