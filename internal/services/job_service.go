package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tagmate/tagmate-backend/internal/data/repos"
	types "github.com/tagmate/tagmate-backend/internal/domain"
	jobstate "github.com/tagmate/tagmate-backend/internal/jobs"
	"github.com/tagmate/tagmate-backend/internal/pkg/apperr"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
	"github.com/tagmate/tagmate-backend/internal/pkg/requestdata"
)

// JobStarter hands a persisted job to the execution backend. The production
// implementation starts a Temporal workflow; tests substitute a fake so the
// service can be exercised without a running cluster.
type JobStarter interface {
	StartJobRun(ctx context.Context, job *types.JobRun) error
	SignalResume(ctx context.Context, jobID uuid.UUID) error
	CancelJobRun(ctx context.Context, jobID uuid.UUID) error
}

// JobStatusView is the polling shape returned to clients. Unknown job ids
// come back as not_found rather than an error.
type JobStatusView struct {
	ID       uuid.UUID      `json:"id"`
	JobType  string         `json:"job_type,omitempty"`
	Status   string         `json:"status"`
	Stage    string         `json:"stage,omitempty"`
	Progress int            `json:"progress"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	Result   datatypes.JSON `json:"result,omitempty"`
}

type JobService interface {
	Enqueue(dbc dbctx.Context, activityID uuid.UUID, jobType string, payload map[string]any, delay time.Duration) (*types.JobRun, error)
	Status(dbc dbctx.Context, jobID uuid.UUID) (*JobStatusView, error)
	LatestForActivity(dbc dbctx.Context, activityID uuid.UUID) (*JobStatusView, error)
	Abort(dbc dbctx.Context, jobID uuid.UUID) error
	Resume(dbc dbctx.Context, jobID uuid.UUID) error
}

type jobService struct {
	db           *gorm.DB
	log          *logger.Logger
	jobRepo      repos.JobRunRepo
	activityRepo repos.ActivityRepo
	starter      JobStarter
	notify       JobNotifier
}

func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobRepo repos.JobRunRepo,
	activityRepo repos.ActivityRepo,
	starter JobStarter,
	notify JobNotifier,
) JobService {
	if notify == nil {
		notify = NewNoopJobNotifier()
	}
	return &jobService{
		db:           db,
		log:          baseLog.With("service", "JobService"),
		jobRepo:      jobRepo,
		activityRepo: activityRepo,
		starter:      starter,
		notify:       notify,
	}
}

// Enqueue persists a new job and hands it to the execution backend. The
// single-runnable-job-per-activity check is advisory: it is not atomic with
// submission, so two racing calls can both pass. With a delay the job starts
// out deferred and becomes runnable once defer_until passes.
func (s *jobService) Enqueue(dbc dbctx.Context, activityID uuid.UUID, jobType string, payload map[string]any, delay time.Duration) (*types.JobRun, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	if !jobstate.ValidKind(jobType) {
		return nil, fmt.Errorf("%w: unknown job type %q", apperr.ErrInvalidArgument, jobType)
	}

	activity, err := s.activityRepo.GetForUser(dbc, rd.UserID, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, apperr.ErrNotFound
	}

	busy, err := s.jobRepo.HasRunnableForActivity(dbc, activityID)
	if err != nil {
		return nil, fmt.Errorf("admission check: %w", err)
	}
	if busy {
		return nil, apperr.ErrJobAlreadyInProgress
	}

	if payload == nil {
		payload = map[string]any{}
	}
	payload["activity_id"] = activityID.String()
	payload["user_id"] = rd.UserID.String()
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	job := &types.JobRun{
		ID:          uuid.New(),
		ActivityID:  activityID,
		OwnerUserID: rd.UserID,
		JobType:     jobType,
		Status:      string(jobstate.StatusQueued),
		Stage:       "queued",
		Payload:     datatypes.JSON(rawPayload),
	}
	if delay > 0 {
		until := time.Now().Add(delay)
		job.Status = string(jobstate.StatusDeferred)
		job.Stage = "deferred"
		job.DeferUntil = &until
	}

	if _, err := s.jobRepo.Create(dbc, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.starter.StartJobRun(dbc.Ctx, job); err != nil {
		now := time.Now()
		_ = s.jobRepo.UpdateFields(dbc, job.ID, map[string]interface{}{
			"status":        string(jobstate.StatusFailed),
			"error":         "queue dispatch failed",
			"last_error_at": now,
		})
		return nil, fmt.Errorf("%w: %v", apperr.ErrQueueUnavailable, err)
	}

	s.notify.JobCreated(rd.UserID, job)
	return job, nil
}

func statusView(job *types.JobRun) *JobStatusView {
	return &JobStatusView{
		ID:       job.ID,
		JobType:  job.JobType,
		Status:   job.Status,
		Stage:    job.Stage,
		Progress: job.Progress,
		Message:  job.Message,
		Error:    job.Error,
		Result:   job.Result,
	}
}

func (s *jobService) Status(dbc dbctx.Context, jobID uuid.UUID) (*JobStatusView, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	job, err := s.jobRepo.GetByID(dbc, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return &JobStatusView{ID: jobID, Status: string(jobstate.StatusNotFound)}, nil
	}
	if job.OwnerUserID != rd.UserID {
		if activity, err := s.activityRepo.GetForUser(dbc, rd.UserID, job.ActivityID); err != nil {
			return nil, err
		} else if activity == nil {
			return &JobStatusView{ID: jobID, Status: string(jobstate.StatusNotFound)}, nil
		}
	}
	return statusView(job), nil
}

func (s *jobService) LatestForActivity(dbc dbctx.Context, activityID uuid.UUID) (*JobStatusView, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	activity, err := s.activityRepo.GetForUser(dbc, rd.UserID, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, apperr.ErrNotFound
	}
	job, err := s.jobRepo.GetLatestByActivity(dbc, activityID)
	if err != nil {
		return nil, fmt.Errorf("get latest job: %w", err)
	}
	if job == nil {
		return &JobStatusView{Status: string(jobstate.StatusNotFound)}, nil
	}
	return statusView(job), nil
}

// Abort marks the job failed unless it already reached a terminal state.
// The running worker observes the terminal row at its next checkpoint and
// stops; workflow cancellation is best effort on top of that.
func (s *jobService) Abort(dbc dbctx.Context, jobID uuid.UUID) error {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return apperr.ErrUnauthorized
	}
	job, err := s.jobRepo.GetByID(dbc, jobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return apperr.ErrNotFound
	}
	if job.OwnerUserID != rd.UserID {
		return apperr.ErrUnauthorized
	}
	if jobstate.Status(job.Status).Terminal() {
		return nil
	}

	now := time.Now()
	terminal := []string{
		string(jobstate.StatusSuccess),
		string(jobstate.StatusFailed),
		string(jobstate.StatusNotFound),
	}
	wrote, err := s.jobRepo.UpdateFieldsUnlessStatus(dbc, job.ID, terminal, map[string]interface{}{
		"status":        string(jobstate.StatusFailed),
		"error":         "aborted by user",
		"last_error_at": now,
	})
	if err != nil {
		return fmt.Errorf("abort job: %w", err)
	}
	if wrote {
		job.Status = string(jobstate.StatusFailed)
		job.Error = "aborted by user"
		s.notify.JobFailed(rd.UserID, job, job.Stage, "aborted by user")
	}

	if err := s.starter.CancelJobRun(dbc.Ctx, job.ID); err != nil {
		s.log.Warn("workflow cancel failed", "job_id", job.ID, "error", err)
	}
	return nil
}

// Resume clears a deferral so the workflow picks the job up immediately.
func (s *jobService) Resume(dbc dbctx.Context, jobID uuid.UUID) error {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return apperr.ErrUnauthorized
	}
	job, err := s.jobRepo.GetByID(dbc, jobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return apperr.ErrNotFound
	}
	if job.OwnerUserID != rd.UserID {
		return apperr.ErrUnauthorized
	}
	if job.Status != string(jobstate.StatusDeferred) {
		return fmt.Errorf("%w: job is not deferred", apperr.ErrInvalidArgument)
	}

	if err := s.jobRepo.UpdateFields(dbc, job.ID, map[string]interface{}{
		"status":      string(jobstate.StatusQueued),
		"stage":       "queued",
		"defer_until": nil,
	}); err != nil {
		return fmt.Errorf("resume job: %w", err)
	}
	if err := s.starter.SignalResume(dbc.Ctx, job.ID); err != nil {
		s.log.Warn("resume signal failed", "job_id", job.ID, "error", err)
	}
	return nil
}
