package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tagmate/tagmate-backend/internal/pkg/apperr"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/services"
)

type JobsHandler struct {
	jobService services.JobService
}

func NewJobsHandler(jobService services.JobService) *JobsHandler {
	return &JobsHandler{jobService: jobService}
}

type enqueueRequest struct {
	JobType      string         `json:"job_type"`
	Payload      map[string]any `json:"payload"`
	DelaySeconds int            `json:"delay_seconds"`
}

func (jh *JobsHandler) Enqueue(c *gin.Context) {
	id, err := activityID(c)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	job, err := jh.jobService.Enqueue(dbc, id, req.JobType, req.Payload, time.Duration(req.DelaySeconds)*time.Second)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

func jobID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad job id", apperr.ErrInvalidArgument)
	}
	return id, nil
}

func (jh *JobsHandler) Status(c *gin.Context) {
	id, err := jobID(c)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	status, err := jh.jobService.Status(dbc, id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": status})
}

func (jh *JobsHandler) Latest(c *gin.Context) {
	id, err := activityID(c)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	status, err := jh.jobService.LatestForActivity(dbc, id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": status})
}

func (jh *JobsHandler) Abort(c *gin.Context) {
	id, err := jobID(c)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := jh.jobService.Abort(dbc, id); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"aborted": true})
}

func (jh *JobsHandler) Resume(c *gin.Context) {
	id, err := jobID(c)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := jh.jobService.Resume(dbc, id); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"resumed": true})
}
