package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/purchase-tracker/internal/jobs"
	"github.com/jonathan/purchase-tracker/internal/server/middleware"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// jobReadable lets admins read every job and users only their own.
func jobReadable(p middleware.Principal) jobs.Authorizer {
	return func(job *types.Job) error {
		if p.IsAdmin {
			return nil
		}
		if job.Owner != nil && *job.Owner == p.UserID {
			return nil
		}
		return &ErrForbidden{Reason: "You do not have access to this job"}
	}
}

// handleStartIngestion starts a manual import for the caller.
func (s *Server) handleStartIngestion(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.GetPrincipal(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req types.StartImportRequest
	if err := s.decodeRequest(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	owner := p.UserID
	id, err := s.deps.Starter.Start(r.Context(), jobs.StartRequest{
		Kind:        types.JobKindManual,
		Owner:       &owner,
		TriggeredBy: &owner,
		Days:        req.Days,
	})
	if errors.Is(err, jobs.ErrConflict) {
		s.errorResponse(w, http.StatusConflict, "An ingestion job is already running.")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"message": "Ingestion started",
		"job_id":  id,
	})
}

// handleManualStatus returns the snapshot of ?job_id, or the caller's latest
// manual job. The body is null when there is none.
func (s *Server) handleManualStatus(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.GetPrincipal(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var snap *jobs.Snapshot
	if raw := r.URL.Query().Get("job_id"); raw != "" {
		id, perr := uuid.Parse(raw)
		if perr != nil {
			s.writeError(w, r, &ErrValidation{Field: "job_id", Message: "must be a UUID"})
			return
		}
		snap, err = s.deps.Jobs.Snapshot(r.Context(), id, jobReadable(p))
	} else {
		owner := p.UserID
		snap, err = s.deps.Jobs.Latest(r.Context(), types.JobKindManual, &owner, jobReadable(p))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, snap)
}

// handleJobSeen acknowledges a finished job's completion notice.
func (s *Server) handleJobSeen(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.GetPrincipal(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req types.AcknowledgeJobRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	won, err := s.deps.Jobs.Acknowledge(r.Context(), req.JobID, jobReadable(p))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"job_id":       req.JobID,
		"acknowledged": won,
	})
}

// handleLatestScheduled returns the most recent scheduled job or null.
func (s *Server) handleLatestScheduled(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Jobs.Latest(r.Context(), types.JobKindScheduled, nil, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, snap)
}

// handleJobEvents relays the event stream of an existing job.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.GetPrincipal(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Jobs.Authorize(r.Context(), id, jobReadable(p)); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.stream(w, r, id, nil)
}

// handleSchedulerRun starts a scheduled run on behalf of an admin and streams it.
// A conflict is answered as JSON before the stream opens.
func (s *Server) handleSchedulerRun(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.GetPrincipal(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	admin := p.UserID
	id, startErr := s.deps.Starter.Start(r.Context(), jobs.StartRequest{
		Kind:        types.JobKindScheduled,
		TriggeredBy: &admin,
	})
	if errors.Is(startErr, jobs.ErrConflict) {
		s.errorResponse(w, http.StatusConflict, "A scheduled ingestion job is already running.")
		return
	}
	if startErr != nil {
		s.log.Error("failed to start scheduled job", "triggered_by", admin, "error", startErr)
	}

	s.stream(w, r, id, startErr)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, id uuid.UUID, startErr error) {
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.deps.Streamer.Stream(r.Context(), sse, id, startErr); err != nil {
		s.log.Debug("event stream ended", "job_id", id, "error", err)
	}
}
