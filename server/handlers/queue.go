package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/core"
	"github.com/ebogdum/jobgate/internal/idutil"
	"github.com/ebogdum/jobgate/jobs"
)

const defaultQueueLimit = 100

// QueueResponse lists chunks waiting for a worker
type QueueResponse struct {
	ProjectID *int64       `json:"project_id,omitempty"`
	Count     int          `json:"count"`
	Chunks    []jobs.Chunk `json:"chunks"`
}

// V1PendingQueue handles GET /v1/queue
// @Summary List queued chunks
// @Tags queue
// @Security BearerAuth
// @Param project_id query int false "Restrict to one project"
// @Param limit query int false "Maximum number of chunks (default: 100, max: 1000)"
// @Success 200 {object} QueueResponse "Pending chunks"
// @Failure 400 {object} ErrorResponse "Bad Request"
// @Router /v1/queue [get]
func V1PendingQueue(engine *core.Engine, timeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		projectID, err := idutil.ParseOptionalID(query.Get("project_id"))
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		limit, err := idutil.ParseLimit(query.Get("limit"), defaultQueueLimit)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		chunks, err := engine.PendingQueue(ctx, projectID, limit)
		if err != nil {
			logger.Error("Failed to list pending chunks", zap.Error(err))
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}
		if chunks == nil {
			chunks = []jobs.Chunk{}
		}

		SendJSONResponse(w, QueueResponse{ProjectID: projectID, Count: len(chunks), Chunks: chunks})
	}
}
