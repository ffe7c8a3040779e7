package server

import (
	"net/http"

	"github.com/jonathan/purchase-tracker/internal/server/middleware"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// handleRegister creates an account and returns a session token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req types.CreateUserRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.userService.Register(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issueToken(w, http.StatusCreated, user)
}

// handleLogin authenticates by username and password.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.userService.Login(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issueToken(w, http.StatusOK, user)
}

func (s *Server) issueToken(w http.ResponseWriter, status int, user *types.User) {
	token, err := s.deps.JWT.GenerateToken(user.ID, user.IsAdmin)
	if err != nil {
		s.log.Error("failed to generate token", "user_id", user.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	s.jsonResponse(w, status, types.LoginResponse{User: user, Token: token})
}

// handleMe returns the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.GetPrincipal(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := s.userService.Get(r.Context(), p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, user)
}

// handleUpdatePassword changes the caller's password after checking the current one.
func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.GetPrincipal(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req types.UpdatePasswordRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.userService.UpdatePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "Password updated"})
}
