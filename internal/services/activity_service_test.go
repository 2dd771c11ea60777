package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"gorm.io/gorm"

	activityrepo "github.com/tagmate/tagmate-backend/internal/data/repos/activities"
	clusterrepo "github.com/tagmate/tagmate-backend/internal/data/repos/clusters"
	documentrepo "github.com/tagmate/tagmate-backend/internal/data/repos/documents"
	"github.com/tagmate/tagmate-backend/internal/data/repos/testutil"
	userrepo "github.com/tagmate/tagmate-backend/internal/data/repos/users"
	types "github.com/tagmate/tagmate-backend/internal/domain"
	"github.com/tagmate/tagmate-backend/internal/pkg/apperr"
	"github.com/tagmate/tagmate-backend/internal/platform/gcp"
)

func newActivityService(t *testing.T, tx *gorm.DB) (ActivityService, gcp.BucketService) {
	t.Helper()
	log := testutil.Logger(t)
	bucket := gcp.NewMemoryBucketService(log)
	svc := NewActivityService(tx, log,
		activityrepo.NewActivityRepo(tx, log),
		activityrepo.NewActivityUserMapRepo(tx, log),
		documentrepo.NewDocumentRepo(tx, log),
		clusterrepo.NewClusterRepo(tx, log),
		userrepo.NewUserRepo(tx, log),
		bucket)
	return svc, bucket
}

const sampleCSV = "id,review\n1,\"The parking here is terrible.\"\n2,\"My dog loves the park.\"\n3,\"\"\n4,\"Rent went up again.\"\n"

func TestActivityServiceCreateParsesCSV(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, tx, "create@example.com")
	svc, bucket := newActivityService(t, tx)
	dbc := authedCtx(user.ID, user.Email)

	activity, err := svc.Create(dbc, "reviews", types.TaskMultiLabel, []string{"parking", "pets"}, "reviews.csv", []byte(sampleCSV))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if activity.Status != types.ActivityStatusCreated {
		t.Fatalf("activity status = %q, want created", activity.Status)
	}

	data, err := svc.GetData(dbc, activity.ID)
	if err != nil {
		t.Fatalf("get data: %v", err)
	}
	// The empty review row is dropped.
	if len(data.Documents) != 3 {
		t.Fatalf("documents = %d, want 3", len(data.Documents))
	}
	if data.Documents[0].Text != "The parking here is terrible." {
		t.Fatalf("first document text = %q", data.Documents[0].Text)
	}

	var tags []string
	if err := json.Unmarshal(activity.Tags, &tags); err != nil || len(tags) != 2 {
		t.Fatalf("tags = %s, want two entries", activity.Tags)
	}

	// The raw upload is archived in the dataset bucket.
	keys, err := bucket.ListKeys(ctx, gcp.BucketCategoryDataset, user.ID.String())
	if err != nil {
		t.Fatalf("list dataset keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("dataset keys = %v, want one upload", keys)
	}
}

func TestActivityServiceCreateRejectsBadInput(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	user := testutil.SeedUser(t, context.Background(), tx, "badcreate@example.com")
	svc, _ := newActivityService(t, tx)
	dbc := authedCtx(user.ID, user.Email)

	cases := []struct {
		name string
		task string
		csv  string
	}{
		{"", types.TaskClustering, sampleCSV},
		{"a", "unknown_task", sampleCSV},
		{"a", types.TaskClustering, "id,price\n1,100\n"},
		{"a", types.TaskClustering, ""},
	}
	for _, tc := range cases {
		if _, err := svc.Create(dbc, tc.name, tc.task, nil, "f.csv", []byte(tc.csv)); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Fatalf("create(%q, %q) error = %v, want ErrInvalidArgument", tc.name, tc.task, err)
		}
	}
}

func TestActivityServiceSaveLabels(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	user := testutil.SeedUser(t, ctx, tx, "savelabels@example.com")
	activity := testutil.SeedActivity(t, ctx, tx, user.ID, types.TaskMultiLabel)
	docs := testutil.SeedDocuments(t, ctx, tx, activity.ID, []string{"first text here.", "second text here."})

	svc, _ := newActivityService(t, tx)
	dbc := authedCtx(user.ID, user.Email)

	err := svc.SaveLabels(dbc, activity.ID, []DocumentLabelInput{
		{DocumentID: docs[0].ID, Labels: []string{"parking"}},
		{DocumentID: docs[1].ID, Labels: nil},
	})
	if err != nil {
		t.Fatalf("save labels: %v", err)
	}

	data, err := svc.GetData(dbc, activity.ID)
	if err != nil {
		t.Fatalf("get data: %v", err)
	}
	if data.Activity.Status != types.ActivityStatusSaved {
		t.Fatalf("activity status = %q, want saved", data.Activity.Status)
	}
	var labels []string
	if err := json.Unmarshal(data.Documents[0].Labels, &labels); err != nil {
		t.Fatalf("bad labels: %v", err)
	}
	if len(labels) != 1 || labels[0] != "parking" {
		t.Fatalf("labels = %v, want [parking]", labels)
	}
	if data.Documents[0].AutoGenerated {
		t.Fatal("human edit left auto_generated set")
	}
}

func TestActivityServiceShare(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	owner := testutil.SeedUser(t, ctx, tx, "owner@example.com")
	friend := testutil.SeedUser(t, ctx, tx, "friend@example.com")
	activity := testutil.SeedActivity(t, ctx, tx, owner.ID, types.TaskClustering)

	svc, _ := newActivityService(t, tx)
	ownerCtx := authedCtx(owner.ID, owner.Email)
	friendCtx := authedCtx(friend.ID, friend.Email)

	// Invisible before sharing.
	if _, err := svc.Get(friendCtx, activity.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("get before share = %v, want ErrNotFound", err)
	}

	if err := svc.Share(ownerCtx, activity.ID, "friend@example.com"); err != nil {
		t.Fatalf("share: %v", err)
	}
	got, err := svc.Get(friendCtx, activity.ID)
	if err != nil {
		t.Fatalf("get after share: %v", err)
	}
	if got.ID != activity.ID {
		t.Fatalf("shared activity id = %s, want %s", got.ID, activity.ID)
	}

	// Sharing twice is idempotent.
	if err := svc.Share(ownerCtx, activity.ID, "friend@example.com"); err != nil {
		t.Fatalf("second share: %v", err)
	}

	// Non-owners cannot re-share.
	if err := svc.Share(friendCtx, activity.ID, "owner@example.com"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("share as non-owner = %v, want ErrUnauthorized", err)
	}

	// Unknown recipient.
	if err := svc.Share(ownerCtx, activity.ID, "nobody@example.com"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("share to unknown = %v, want ErrNotFound", err)
	}
}
