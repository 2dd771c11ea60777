package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/tagmate/tagmate-backend/internal/data/repos/testutil"
	types "github.com/tagmate/tagmate-backend/internal/domain"
	jobstate "github.com/tagmate/tagmate-backend/internal/jobs"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
)

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	owner := testutil.SeedUser(t, ctx, tx, "jobs@example.com")
	activity := testutil.SeedActivity(t, ctx, tx, owner.ID, types.TaskMultiLabel)

	queued := &types.JobRun{
		ID:          uuid.New(),
		ActivityID:  activity.ID,
		OwnerUserID: owner.ID,
		JobType:     string(jobstate.KindMultiLabel),
		Status:      string(jobstate.StatusQueued),
		Stage:       "queued",
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-2 * time.Hour),
		UpdatedAt:   now.Add(-2 * time.Hour),
	}
	created, err := repo.Create(dbc, []*types.JobRun{queued})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("Create: expected 1, got %d", len(created))
	}

	got, err := repo.GetByID(dbc, queued.ID)
	if err != nil || got == nil || got.ID != queued.ID {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}

	// A queued job makes the activity busy.
	busy, err := repo.HasRunnableForActivity(dbc, activity.ID)
	if err != nil {
		t.Fatalf("HasRunnableForActivity: %v", err)
	}
	if !busy {
		t.Fatalf("expected activity to be busy with a queued job")
	}

	// Terminal statuses free the activity.
	if err := repo.UpdateFields(dbc, queued.ID, map[string]interface{}{
		"status": string(jobstate.StatusFailed),
		"stage":  "failed",
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	busy, err = repo.HasRunnableForActivity(dbc, activity.ID)
	if err != nil {
		t.Fatalf("HasRunnableForActivity after fail: %v", err)
	}
	if busy {
		t.Fatalf("failed job should not count as runnable")
	}

	// Deferred counts as runnable again.
	deferred := &types.JobRun{
		ID:          uuid.New(),
		ActivityID:  activity.ID,
		OwnerUserID: owner.ID,
		JobType:     string(jobstate.KindClustering),
		Status:      string(jobstate.StatusDeferred),
		Stage:       "deferred",
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-1 * time.Hour),
		UpdatedAt:   now.Add(-1 * time.Hour),
	}
	if _, err := repo.Create(dbc, []*types.JobRun{deferred}); err != nil {
		t.Fatalf("Create deferred: %v", err)
	}
	busy, err = repo.HasRunnableForActivity(dbc, activity.ID)
	if err != nil {
		t.Fatalf("HasRunnableForActivity deferred: %v", err)
	}
	if !busy {
		t.Fatalf("deferred job should count as runnable")
	}

	latest, err := repo.GetLatestByActivity(dbc, activity.ID)
	if err != nil {
		t.Fatalf("GetLatestByActivity: %v", err)
	}
	if latest == nil || latest.ID != deferred.ID {
		t.Fatalf("GetLatestByActivity: expected %v got %+v", deferred.ID, latest)
	}
}

func TestJobRunRepoGuardedWrites(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	owner := testutil.SeedUser(t, ctx, tx, "guarded@example.com")
	activity := testutil.SeedActivity(t, ctx, tx, owner.ID, types.TaskEntity)

	run := &types.JobRun{
		ID:          uuid.New(),
		ActivityID:  activity.ID,
		OwnerUserID: owner.ID,
		JobType:     string(jobstate.KindEntity),
		Status:      string(jobstate.StatusFailed),
		Stage:       "failed",
		Error:       "aborted by user",
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
	}
	if _, err := repo.Create(dbc, []*types.JobRun{run}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A late success must not overwrite the abort.
	wrote, err := repo.UpdateFieldsUnlessStatus(dbc, run.ID,
		[]string{string(jobstate.StatusFailed), string(jobstate.StatusSuccess)},
		map[string]interface{}{"status": string(jobstate.StatusSuccess), "stage": "complete"},
	)
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if wrote {
		t.Fatalf("guarded write should not touch a terminal row")
	}

	got, err := repo.GetByID(dbc, run.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	if got.Status != string(jobstate.StatusFailed) {
		t.Fatalf("status overwritten: %s", got.Status)
	}

	// Heartbeat only lands on in_progress rows.
	if err := repo.Heartbeat(dbc, run.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	got, _ = repo.GetByID(dbc, run.ID)
	if got.HeartbeatAt != nil {
		t.Fatalf("heartbeat should not land on a terminal row")
	}
}
