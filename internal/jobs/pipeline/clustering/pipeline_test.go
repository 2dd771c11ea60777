package clustering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	activityrepo "github.com/tagmate/tagmate-backend/internal/data/repos/activities"
	clusterrepo "github.com/tagmate/tagmate-backend/internal/data/repos/clusters"
	documentrepo "github.com/tagmate/tagmate-backend/internal/data/repos/documents"
	jobrepo "github.com/tagmate/tagmate-backend/internal/data/repos/jobs"
	"github.com/tagmate/tagmate-backend/internal/data/repos/testutil"
	types "github.com/tagmate/tagmate-backend/internal/domain"
	jobstate "github.com/tagmate/tagmate-backend/internal/jobs"
	"github.com/tagmate/tagmate-backend/internal/jobs/runtime"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/services"
)

// topicEmbedder puts every sentence mentioning the same topic word on the
// same axis, so communities fall out of exact keyword overlap.
type topicEmbedder struct {
	topics []string
}

func (e topicEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		vec := make([]float32, len(e.topics)+1)
		lower := strings.ToLower(text)
		hit := false
		for k, topic := range e.topics {
			if strings.Contains(lower, topic) {
				vec[k] = 1
				hit = true
			}
		}
		if !hit {
			vec[len(e.topics)] = 1
		}
		out[i] = vec
	}
	return out, nil
}

func newHandler(t *testing.T, tx *gorm.DB, topics ...string) *Handler {
	t.Helper()
	log := testutil.Logger(t)
	return New(
		log,
		documentrepo.NewDocumentRepo(tx, log),
		clusterrepo.NewClusterRepo(tx, log),
		activityrepo.NewActivityRepo(tx, log),
		topicEmbedder{topics: topics},
	)
}

func newJobContext(t *testing.T, tx *gorm.DB, activityID, userID uuid.UUID) *runtime.Context {
	t.Helper()
	jr := jobrepo.NewJobRunRepo(tx, testutil.Logger(t))
	payload, _ := json.Marshal(map[string]string{"activity_id": activityID.String()})
	job := &types.JobRun{
		ID:          uuid.New(),
		ActivityID:  activityID,
		OwnerUserID: userID,
		JobType:     jobstate.KindClustering,
		Status:      string(jobstate.StatusInProgress),
		Stage:       "starting",
		Payload:     payload,
	}
	if _, err := jr.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return runtime.NewContext(context.Background(), tx, job, jr, services.NewNoopJobNotifier())
}

func TestRunFindsCommunitiesWithRetry(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, tx, "clustering@example.com")
	activity := testutil.SeedActivity(t, ctx, tx, user.ID, types.TaskClustering)

	// Two topics of twelve documents each plus one outlier. Twelve is below
	// the starting minimum community size, so detection only succeeds after
	// the retry halving kicks in.
	texts := []string{}
	for i := 0; i < 12; i++ {
		texts = append(texts, fmt.Sprintf("the parking situation here is terrible, attempt %d noted.", i))
	}
	for i := 0; i < 12; i++ {
		texts = append(texts, fmt.Sprintf("my landlord complained about pets again, case %d logged.", i))
	}
	texts = append(texts, "completely unrelated remark about the weather today.")
	docs := testutil.SeedDocuments(t, ctx, tx, activity.ID, texts)

	h := newHandler(t, tx, "parking", "pets")
	jc := newJobContext(t, tx, activity.ID, user.ID)

	if err := h.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}
	if jc.Job.Status != string(jobstate.StatusSuccess) {
		t.Fatalf("job status = %q, want success", jc.Job.Status)
	}

	cr := clusterrepo.NewClusterRepo(tx, testutil.Logger(t))
	rows, err := cr.ListByActivity(dbctx.Context{Ctx: ctx}, activity.ID)
	if err != nil {
		t.Fatalf("list clusters: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("clusters = %d, want 2", len(rows))
	}

	dr := documentrepo.NewDocumentRepo(tx, testutil.Logger(t))
	got, err := dr.ListByActivity(dbctx.Context{Ctx: ctx}, activity.ID)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	outlierID := docs[len(docs)-1].ID
	for _, doc := range got {
		var members []string
		if err := json.Unmarshal(doc.Clusters, &members); err != nil {
			t.Fatalf("bad clusters on %s: %v", doc.ID, err)
		}
		if doc.ID == outlierID {
			if len(members) != 0 {
				t.Fatalf("outlier assigned to clusters %v, want none", members)
			}
			continue
		}
		if len(members) != 1 {
			t.Fatalf("document %q in clusters %v, want exactly one", doc.Text, members)
		}
	}

	// Topic mates share a cluster; the two topics do not.
	firstParking := clusterOf(t, got, docs[0].ID)
	lastParking := clusterOf(t, got, docs[11].ID)
	firstPets := clusterOf(t, got, docs[12].ID)
	if firstParking != lastParking {
		t.Fatalf("parking documents split across clusters %s and %s", firstParking, lastParking)
	}
	if firstParking == firstPets {
		t.Fatalf("parking and pets documents share cluster %s", firstParking)
	}
}

func clusterOf(t *testing.T, docs []*types.Document, id uuid.UUID) string {
	t.Helper()
	for _, doc := range docs {
		if doc.ID != id {
			continue
		}
		var members []string
		if err := json.Unmarshal(doc.Clusters, &members); err != nil || len(members) == 0 {
			t.Fatalf("document %s has no cluster", id)
		}
		return members[0]
	}
	t.Fatalf("document %s not found", id)
	return ""
}

func TestRunFailsOnEmptyActivity(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, tx, "clustering-empty@example.com")
	activity := testutil.SeedActivity(t, ctx, tx, user.ID, types.TaskClustering)

	h := newHandler(t, tx, "parking")
	jc := newJobContext(t, tx, activity.ID, user.ID)

	if err := h.Run(jc); err == nil {
		t.Fatal("expected error for activity without documents")
	}
}

func TestRunAbortsAtCheckpoint(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, tx, "clustering-abort@example.com")
	activity := testutil.SeedActivity(t, ctx, tx, user.ID, types.TaskClustering)
	testutil.SeedDocuments(t, ctx, tx, activity.ID, []string{
		"one sentence about parking problems.",
		"another sentence about parking problems.",
	})

	h := newHandler(t, tx, "parking")
	jc := newJobContext(t, tx, activity.ID, user.ID)

	jr := jobrepo.NewJobRunRepo(tx, testutil.Logger(t))
	if err := jr.UpdateFields(dbctx.Context{Ctx: ctx}, jc.Job.ID, map[string]interface{}{
		"status": string(jobstate.StatusFailed),
		"error":  "aborted by user",
	}); err != nil {
		t.Fatalf("mark aborted: %v", err)
	}

	if err := h.Run(jc); !errors.Is(err, runtime.ErrAborted) {
		t.Fatalf("run error = %v, want ErrAborted", err)
	}

	cr := clusterrepo.NewClusterRepo(tx, testutil.Logger(t))
	rows, err := cr.ListByActivity(dbctx.Context{Ctx: ctx}, activity.ID)
	if err != nil {
		t.Fatalf("list clusters: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("aborted run persisted %d clusters, want none", len(rows))
	}
}
