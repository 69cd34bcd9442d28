package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/core"
	"github.com/ebogdum/jobgate/internal/idutil"
	"github.com/ebogdum/jobgate/server/middleware"
)

// LockListResponse represents the response for lock record listing
type LockListResponse struct {
	InstanceID string            `json:"instance_id"`
	Count      int               `json:"count"`
	Records    []core.LockRecord `json:"records"`
}

// LockedJobsResponse lists every job holding a slot
type LockedJobsResponse struct {
	Count int     `json:"count"`
	Jobs  []int64 `json:"jobs"`
}

// AdmissionResponse is the outcome of an admission request
type AdmissionResponse struct {
	JobID    int64 `json:"job_id"`
	Admitted bool  `json:"admitted"`
}

// V1ListLocks handles GET /v1/locks
// @Summary List lock records
// @Description Lists every initialized project lock record with the held jobs
// @Tags locks
// @Security BearerAuth
// @Success 200 {object} LockListResponse "Lock records"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /v1/locks [get]
func V1ListLocks(engine *core.Engine, timeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		records, err := engine.LockRecords(ctx)
		if err != nil {
			logger.Error("Failed to list lock records", zap.Error(err))
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, LockListResponse{
			InstanceID: engine.GetCurrentInstanceID(),
			Count:      len(records),
			Records:    records,
		})
	}
}

// V1GetLock handles GET /v1/locks/{projectID}
// @Summary Get a project lock record
// @Tags locks
// @Security BearerAuth
// @Param projectID path int true "Project ID"
// @Success 200 {object} core.LockRecord "Lock record"
// @Failure 400 {object} ErrorResponse "Bad Request"
// @Router /v1/locks/{projectID} [get]
func V1GetLock(engine *core.Engine, timeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := idutil.ParseID(chi.URLParam(r, "projectID"))
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		record, err := engine.LockRecord(ctx, projectID)
		if err != nil {
			logger.Error("Failed to read lock record", zap.Int64("project_id", projectID), zap.Error(err))
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, record)
	}
}

// V1ListLockedJobs handles GET /v1/locks/jobs
func V1ListLockedJobs(engine *core.Engine, timeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		ids, err := engine.LockedJobIDs(ctx)
		if err != nil {
			logger.Error("Failed to list locked jobs", zap.Error(err))
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, LockedJobsResponse{Count: len(ids), Jobs: ids})
	}
}

// V1ClearLock handles POST /v1/locks/{projectID}/clear
// @Summary Release every slot of a project
// @Tags locks
// @Security BearerAuth
// @Param projectID path int true "Project ID"
// @Success 204 "Cleared"
// @Router /v1/locks/{projectID}/clear [post]
func V1ClearLock(engine *core.Engine, timeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := idutil.ParseID(chi.URLParam(r, "projectID"))
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := engine.ClearProject(ctx, projectID); err != nil {
			logger.Error("Failed to clear lock record", zap.Int64("project_id", projectID), zap.Error(err))
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		clientID, _ := middleware.GetClientID(r.Context())
		logger.Warn("Project lock cleared by operator",
			zap.Int64("project_id", projectID),
			zap.String("client_id", clientID),
			zap.String("request_id", middleware.GetRequestID(r.Context())))
		w.WriteHeader(http.StatusNoContent)
	}
}

// V1DeleteLock handles DELETE /v1/locks/{projectID}
// @Summary Remove a project lock record
// @Description The next admission for the project rebuilds the record from the job store
// @Tags locks
// @Security BearerAuth
// @Param projectID path int true "Project ID"
// @Success 204 "Removed"
// @Router /v1/locks/{projectID} [delete]
func V1DeleteLock(engine *core.Engine, timeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := idutil.ParseID(chi.URLParam(r, "projectID"))
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := engine.RemoveProject(ctx, projectID); err != nil {
			logger.Error("Failed to remove lock record", zap.Int64("project_id", projectID), zap.Error(err))
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		clientID, _ := middleware.GetClientID(r.Context())
		logger.Warn("Project lock removed by operator",
			zap.Int64("project_id", projectID),
			zap.String("client_id", clientID),
			zap.String("request_id", middleware.GetRequestID(r.Context())))
		w.WriteHeader(http.StatusNoContent)
	}
}

// V1LockJob handles POST /v1/jobs/{jobID}/lock
// @Summary Request a project slot for a job
// @Description Returns admitted=false when the project is at its limit; callers retry later
// @Tags jobs
// @Security BearerAuth
// @Param jobID path int true "Job ID"
// @Success 200 {object} AdmissionResponse "Admission decision"
// @Failure 404 {object} ErrorResponse "Job not found"
// @Failure 409 {object} ErrorResponse "Exclusive job without project"
// @Router /v1/jobs/{jobID}/lock [post]
func V1LockJob(engine *core.Engine, timeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := idutil.ParseID(chi.URLParam(r, "jobID"))
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		admitted, err := engine.Admit(ctx, jobID)
		if err != nil {
			logger.Error("Admission failed", zap.Int64("job_id", jobID), zap.Error(err))
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, AdmissionResponse{JobID: jobID, Admitted: admitted})
	}
}

// V1UnlockJob handles DELETE /v1/jobs/{jobID}/lock
// @Summary Release the slot held by a job
// @Tags jobs
// @Security BearerAuth
// @Param jobID path int true "Job ID"
// @Success 204 "Released"
// @Router /v1/jobs/{jobID}/lock [delete]
func V1UnlockJob(engine *core.Engine, timeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := idutil.ParseID(chi.URLParam(r, "jobID"))
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := engine.Release(ctx, jobID); err != nil {
			logger.Error("Release failed", zap.Int64("job_id", jobID), zap.Error(err))
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
