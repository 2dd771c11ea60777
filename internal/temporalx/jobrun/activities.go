package jobrun

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"gorm.io/gorm"

	"github.com/tagmate/tagmate-backend/internal/data/repos"
	types "github.com/tagmate/tagmate-backend/internal/domain"
	jobstate "github.com/tagmate/tagmate-backend/internal/jobs"
	jobrt "github.com/tagmate/tagmate-backend/internal/jobs/runtime"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
	"github.com/tagmate/tagmate-backend/internal/services"
)

type Activities struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Jobs     repos.JobRunRepo
	Registry *jobrt.Registry
	Notify   services.JobNotifier
}

// Tick claims the job row, runs its handler to completion and derives the
// terminal status from the run outcome. A deferred job that is not due yet
// is reported back with its wait deadline instead of being claimed.
func (a *Activities) Tick(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.DB == nil || a.Jobs == nil || a.Registry == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}

	parsedJobID, err := uuid.Parse(res.JobID)
	if err != nil || parsedJobID == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id")
	}

	job, err := a.loadJob(ctx, parsedJobID)
	if err != nil {
		return res, err
	}
	if job == nil {
		// Evicted bookkeeping: nothing left to run.
		res.Status = string(jobstate.StatusNotFound)
		return res, nil
	}

	status := jobstate.Status(strings.ToLower(strings.TrimSpace(job.Status)))
	if status.Terminal() {
		if a.Notify != nil && job.OwnerUserID != uuid.Nil {
			switch status {
			case jobstate.StatusSuccess:
				a.Notify.JobDone(job.OwnerUserID, job)
			case jobstate.StatusFailed:
				a.Notify.JobFailed(job.OwnerUserID, job, job.Stage, strings.TrimSpace(job.Error))
			}
		}
		res.Status = job.Status
		res.Stage = job.Stage
		res.Progress = job.Progress
		res.Message = job.Message
		return res, nil
	}

	now := time.Now().UTC()
	if status == jobstate.StatusDeferred && job.DeferUntil != nil && job.DeferUntil.After(now) {
		res.Status = job.Status
		res.Stage = job.Stage
		res.Progress = job.Progress
		res.Message = job.Message
		res.WaitUntil = job.DeferUntil
		return res, nil
	}

	stopHB := a.startHeartbeat(ctx, parsedJobID)
	defer stopHB()

	// Claim: move to in_progress unless the row went terminal concurrently
	// (abort between load and claim).
	claim := a.DB.WithContext(ctx).
		Model(&types.JobRun{}).
		Where("id = ? AND status NOT IN ?", parsedJobID, []string{
			string(jobstate.StatusSuccess),
			string(jobstate.StatusFailed),
			string(jobstate.StatusNotFound),
		}).
		Updates(map[string]any{
			"status":       string(jobstate.StatusInProgress),
			"stage":        "starting",
			"attempts":     gorm.Expr("attempts + 1"),
			"defer_until":  nil,
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if claim.Error == nil && claim.RowsAffected == 0 {
		updated, rerr := a.loadJob(ctx, parsedJobID)
		if rerr == nil && updated != nil {
			res.Status = updated.Status
			res.Stage = updated.Stage
			res.Progress = updated.Progress
			res.Message = updated.Message
		}
		return res, nil
	}

	job.Status = string(jobstate.StatusInProgress)
	job.Stage = "starting"
	job.DeferUntil = nil
	job.LockedAt = &now
	job.HeartbeatAt = &now
	job.UpdatedAt = now

	handlerReturnedNil := false
	h, ok := a.Registry.Get(job.JobType)
	jc := jobrt.NewContext(ctx, a.DB, job, a.Jobs, a.Notify)
	if !ok {
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
	} else {
		func() {
			defer func() {
				if r := recover(); r != nil {
					if a.Log != nil {
						a.Log.Error("Job handler panic", "job_id", parsedJobID, "job_type", job.JobType, "panic", r)
					}
					jc.Fail("panic", fmt.Errorf("panic: unexpected error"))
				}
			}()
			if runErr := h.Run(jc); runErr != nil {
				jc.Fail("run", runErr)
				return
			}
			handlerReturnedNil = true
		}()
	}

	updated, err := a.loadJob(ctx, parsedJobID)
	if err != nil {
		return res, err
	}
	if updated == nil {
		return res, fmt.Errorf("jobrun: job not found after tick")
	}

	// Safety net: a handler that returns nil without calling Succeed would
	// otherwise park the job in in_progress forever. A clean return derives
	// to success.
	if handlerReturnedNil && strings.EqualFold(strings.TrimSpace(updated.Status), string(jobstate.StatusInProgress)) {
		if a.Log != nil {
			a.Log.Warn("Job handler returned nil without terminal status; marking success", "job_id", parsedJobID, "job_type", updated.JobType, "stage", updated.Stage)
		}
		finalStage := "done"
		if s := strings.TrimSpace(updated.Stage); s != "" && !strings.EqualFold(s, "queued") && !strings.EqualFold(s, "starting") {
			finalStage = s
		}
		var finalResult any
		if raw := strings.TrimSpace(string(updated.Result)); raw != "" && raw != "null" {
			finalResult = json.RawMessage(updated.Result)
		}
		jc.Succeed(finalStage, finalResult)

		if r2, rerr := a.loadJob(ctx, parsedJobID); rerr == nil && r2 != nil {
			updated = r2
		}
	}

	res.Status = updated.Status
	res.Stage = updated.Stage
	res.Progress = updated.Progress
	res.Message = updated.Message
	res.WaitUntil = updated.DeferUntil
	return res, nil
}

func (a *Activities) loadJob(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error) {
	return a.Jobs.GetByID(dbctx.Context{Ctx: ctx, Tx: a.DB}, jobID)
}

func (a *Activities) startHeartbeat(ctx context.Context, jobID uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		temporalHB := time.NewTicker(10 * time.Second)
		defer temporalHB.Stop()

		dbHB := time.NewTicker(30 * time.Second)
		defer dbHB.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-temporalHB.C:
				activity.RecordHeartbeat(ctx)
			case <-dbHB.C:
				if a == nil || a.DB == nil || a.Jobs == nil || jobID == uuid.Nil {
					continue
				}
				_ = a.Jobs.Heartbeat(dbctx.Context{Ctx: ctx, Tx: a.DB}, jobID)
			}
		}
	}()
	return func() { close(done) }
}
