package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tagmate/tagmate-backend/internal/pkg/apperr"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/services"
)

// maxDatasetBytes caps uploaded CSV size.
const maxDatasetBytes = 32 << 20

type ActivityHandler struct {
	activityService services.ActivityService
}

func NewActivityHandler(activityService services.ActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

// Create accepts a multipart form: name, task, tags (JSON array or comma
// separated) and the dataset CSV under "file".
func (ah *ActivityHandler) Create(c *gin.Context) {
	name := c.PostForm("name")
	task := c.PostForm("task")
	tags := parseTags(c.PostForm("tags"))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("missing dataset file: %w", err))
		return
	}
	if fileHeader.Size > maxDatasetBytes {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("dataset exceeds %d bytes", maxDatasetBytes))
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, maxDatasetBytes+1))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	activity, err := ah.activityService.Create(dbc, name, task, tags, fileHeader.Filename, raw)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"activity": activity})
}

func parseTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	if strings.HasPrefix(raw, "[") {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err == nil {
			return tags
		}
	}
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (ah *ActivityHandler) List(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	activities, err := ah.activityService.List(dbc)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"activities": activities})
}

func activityID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad activity id", apperr.ErrInvalidArgument)
	}
	return id, nil
}

func (ah *ActivityHandler) Get(c *gin.Context) {
	id, err := activityID(c)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	activity, err := ah.activityService.Get(dbc, id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"activity": activity})
}

func (ah *ActivityHandler) GetData(c *gin.Context) {
	id, err := activityID(c)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	data, err := ah.activityService.GetData(dbc, id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, data)
}

type saveLabelsRequest struct {
	Labels []services.DocumentLabelInput `json:"labels"`
}

func (ah *ActivityHandler) SaveLabels(c *gin.Context) {
	id, err := activityID(c)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	var req saveLabelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := ah.activityService.SaveLabels(dbc, id, req.Labels); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"saved": true})
}

type shareRequest struct {
	Email string `json:"email"`
}

func (ah *ActivityHandler) Share(c *gin.Context) {
	id, err := activityID(c)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := ah.activityService.Share(dbc, id, req.Email); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"shared": true})
}
