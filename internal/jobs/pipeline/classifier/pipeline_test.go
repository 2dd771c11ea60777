package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	activityrepo "github.com/tagmate/tagmate-backend/internal/data/repos/activities"
	documentrepo "github.com/tagmate/tagmate-backend/internal/data/repos/documents"
	jobrepo "github.com/tagmate/tagmate-backend/internal/data/repos/jobs"
	"github.com/tagmate/tagmate-backend/internal/data/repos/testutil"
	types "github.com/tagmate/tagmate-backend/internal/domain"
	jobstate "github.com/tagmate/tagmate-backend/internal/jobs"
	"github.com/tagmate/tagmate-backend/internal/jobs/runtime"
	"github.com/tagmate/tagmate-backend/internal/pkg/apperr"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/platform/gcp"
	"github.com/tagmate/tagmate-backend/internal/services"
)

// keywordEmbedder maps texts onto axis-aligned vectors by keyword so tests
// get a cleanly separable embedding space without a live API.
type keywordEmbedder struct {
	keywords []string
}

func (e keywordEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		vec := make([]float32, len(e.keywords)+1)
		lower := strings.ToLower(text)
		hit := false
		for k, kw := range e.keywords {
			if strings.Contains(lower, kw) {
				vec[k] = 5
				hit = true
			}
		}
		if !hit {
			vec[len(e.keywords)] = 5
		}
		out[i] = vec
	}
	return out, nil
}

func newJobContext(t *testing.T, tx *gorm.DB, activityID, userID uuid.UUID, jobType string) *runtime.Context {
	t.Helper()
	jr := jobrepo.NewJobRunRepo(tx, testutil.Logger(t))
	payload, _ := json.Marshal(map[string]string{"activity_id": activityID.String()})
	job := &types.JobRun{
		ID:          uuid.New(),
		ActivityID:  activityID,
		OwnerUserID: userID,
		JobType:     jobType,
		Status:      string(jobstate.StatusInProgress),
		Stage:       "starting",
		Payload:     payload,
	}
	if _, err := jr.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return runtime.NewContext(context.Background(), tx, job, jr, services.NewNoopJobNotifier())
}

func newDeps(t *testing.T, tx *gorm.DB, bucket gcp.BucketService, keywords ...string) Deps {
	t.Helper()
	log := testutil.Logger(t)
	return Deps{
		Log:        log,
		Documents:  documentrepo.NewDocumentRepo(tx, log),
		Activities: activityrepo.NewActivityRepo(tx, log),
		Embedder:   keywordEmbedder{keywords: keywords},
		Bucket:     bucket,
	}
}

// seedTaggedActivity creates an activity with the given vocabulary,
// taggedPerTag labeled documents per tag and untagged unlabeled ones.
func seedTaggedActivity(t *testing.T, tx *gorm.DB, userID uuid.UUID, tags []string, taggedPerTag, untagged int) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	activity := testutil.SeedActivity(t, ctx, tx, userID, types.TaskMultiLabel)
	tagsJSON, _ := json.Marshal(tags)
	if err := tx.WithContext(ctx).Model(activity).Update("tags", datatypes.JSON(tagsJSON)).Error; err != nil {
		t.Fatalf("set tags: %v", err)
	}

	docs := []*types.Document{}
	idx := 0
	for _, tag := range tags {
		for i := 0; i < taggedPerTag; i++ {
			labels, _ := json.Marshal([]string{tag})
			docs = append(docs, &types.Document{
				ID:         uuid.New(),
				ActivityID: activity.ID,
				Index:      idx,
				Text:       fmt.Sprintf("this review is about %s number %d", tag, i),
				Labels:     labels,
				Clusters:   datatypes.JSON([]byte("[]")),
			})
			idx++
		}
	}
	untaggedIDs := []uuid.UUID{}
	for i := 0; i < untagged; i++ {
		tag := tags[i%len(tags)]
		id := uuid.New()
		untaggedIDs = append(untaggedIDs, id)
		docs = append(docs, &types.Document{
			ID:         id,
			ActivityID: activity.ID,
			Index:      idx,
			Text:       fmt.Sprintf("another note about %s", tag),
			Labels:     datatypes.JSON([]byte("[]")),
			Clusters:   datatypes.JSON([]byte("[]")),
		})
		idx++
	}
	dr := documentrepo.NewDocumentRepo(tx, testutil.Logger(t))
	if _, err := dr.CreateBulk(dbctx.Context{Ctx: ctx}, docs); err != nil {
		t.Fatalf("seed documents: %v", err)
	}
	return activity.ID, untaggedIDs
}

func TestMultiLabelRunLabelsUntaggedDocuments(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, tx, "multilabel@example.com")
	tags := []string{"parking", "pets"}
	activityID, untaggedIDs := seedTaggedActivity(t, tx, user.ID, tags, 6, 4)

	bucket := gcp.NewMemoryBucketService(testutil.Logger(t))
	h := NewMultiLabel(newDeps(t, tx, bucket, "parking", "pets"))
	jc := newJobContext(t, tx, activityID, user.ID, h.Type())

	if err := h.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}
	if jc.Job.Status != string(jobstate.StatusSuccess) {
		t.Fatalf("job status = %q, want success", jc.Job.Status)
	}

	dr := documentrepo.NewDocumentRepo(tx, testutil.Logger(t))
	docs, err := dr.ListByActivity(dbctx.Context{Ctx: ctx}, activityID)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	byID := map[uuid.UUID]*types.Document{}
	for _, d := range docs {
		byID[d.ID] = d
	}
	for _, id := range untaggedIDs {
		doc := byID[id]
		if doc == nil {
			t.Fatalf("untagged document %s missing after run", id)
		}
		if !doc.AutoGenerated {
			t.Fatalf("document %s not marked auto_generated", id)
		}
		var labels []string
		if err := json.Unmarshal(doc.Labels, &labels); err != nil {
			t.Fatalf("bad labels on %s: %v", id, err)
		}
		if len(labels) != 1 {
			t.Fatalf("document %s labels = %v, want exactly one", id, labels)
		}
		want := "pets"
		if strings.Contains(doc.Text, "parking") {
			want = "parking"
		}
		if labels[0] != want {
			t.Fatalf("document %q labeled %v, want %s", doc.Text, labels, want)
		}
	}

	keys, err := bucket.ListKeys(ctx, gcp.BucketCategoryModel, fmt.Sprintf("%s/%s", user.ID, activityID))
	if err != nil {
		t.Fatalf("list model keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("model artifact keys = %v, want config.json and head.json", keys)
	}
}

func TestEntityRunAssignsSingleLabels(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, tx, "entity@example.com")
	tags := []string{"person", "place"}
	activityID, untaggedIDs := seedTaggedActivity(t, tx, user.ID, tags, 4, 2)

	bucket := gcp.NewMemoryBucketService(testutil.Logger(t))
	h := NewEntity(newDeps(t, tx, bucket, "person", "place"))
	jc := newJobContext(t, tx, activityID, user.ID, h.Type())

	if err := h.Run(jc); err != nil {
		t.Fatalf("run: %v", err)
	}

	dr := documentrepo.NewDocumentRepo(tx, testutil.Logger(t))
	docs, err := dr.ListByActivity(dbctx.Context{Ctx: ctx}, activityID)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	labeled := map[uuid.UUID]bool{}
	for _, id := range untaggedIDs {
		labeled[id] = true
	}
	for _, doc := range docs {
		if !labeled[doc.ID] {
			continue
		}
		var labels []string
		if err := json.Unmarshal(doc.Labels, &labels); err != nil {
			t.Fatalf("bad labels: %v", err)
		}
		if len(labels) != 1 {
			t.Fatalf("entity run produced %v, want exactly one label", labels)
		}
	}
}

func TestRunFailsWithoutTrainingData(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, tx, "notraining@example.com")
	activityID, _ := seedTaggedActivity(t, tx, user.ID, []string{"parking", "pets"}, 0, 5)

	bucket := gcp.NewMemoryBucketService(testutil.Logger(t))
	h := NewMultiLabel(newDeps(t, tx, bucket, "parking", "pets"))
	jc := newJobContext(t, tx, activityID, user.ID, h.Type())

	err := h.Run(jc)
	if !errors.Is(err, apperr.ErrNoTrainingData) {
		t.Fatalf("run error = %v, want ErrNoTrainingData", err)
	}

	keys, listErr := bucket.ListKeys(ctx, gcp.BucketCategoryModel, "")
	if listErr != nil {
		t.Fatalf("list keys: %v", listErr)
	}
	if len(keys) != 0 {
		t.Fatalf("no artifacts expected for a failed run, got %v", keys)
	}
}

func TestRerunOverwritesArtifactsInPlace(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, tx, "rerun@example.com")
	activityID, _ := seedTaggedActivity(t, tx, user.ID, []string{"parking", "pets"}, 6, 0)

	bucket := gcp.NewMemoryBucketService(testutil.Logger(t))
	deps := newDeps(t, tx, bucket, "parking", "pets")
	prefix := fmt.Sprintf("%s/%s", user.ID, activityID)

	for i := 0; i < 2; i++ {
		h := NewMultiLabel(deps)
		jc := newJobContext(t, tx, activityID, user.ID, h.Type())
		if err := h.Run(jc); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		keys, err := bucket.ListKeys(ctx, gcp.BucketCategoryModel, prefix)
		if err != nil {
			t.Fatalf("list keys: %v", err)
		}
		if len(keys) != 2 {
			t.Fatalf("after run %d artifact keys = %v, want 2", i, keys)
		}
	}
}

func TestRunAbortsAtTrainingCheckpoint(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, tx, "abort@example.com")
	activityID, _ := seedTaggedActivity(t, tx, user.ID, []string{"parking", "pets"}, 6, 0)

	bucket := gcp.NewMemoryBucketService(testutil.Logger(t))
	h := NewMultiLabel(newDeps(t, tx, bucket, "parking", "pets"))
	jc := newJobContext(t, tx, activityID, user.ID, h.Type())

	// Terminal status written out from under the run, as a user abort does.
	jr := jobrepo.NewJobRunRepo(tx, testutil.Logger(t))
	if err := jr.UpdateFields(dbctx.Context{Ctx: ctx}, jc.Job.ID, map[string]interface{}{
		"status": string(jobstate.StatusFailed),
		"error":  "aborted by user",
	}); err != nil {
		t.Fatalf("mark aborted: %v", err)
	}

	err := h.Run(jc)
	if !errors.Is(err, runtime.ErrAborted) {
		t.Fatalf("run error = %v, want ErrAborted", err)
	}
	keys, listErr := bucket.ListKeys(ctx, gcp.BucketCategoryModel, "")
	if listErr != nil {
		t.Fatalf("list keys: %v", listErr)
	}
	if len(keys) != 0 {
		t.Fatalf("aborted run must not upload artifacts, got %v", keys)
	}
}
