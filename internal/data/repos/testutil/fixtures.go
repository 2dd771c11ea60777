package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/tagmate/tagmate-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:       uuid.New(),
		Email:    email,
		Password: "pw",
		Name:     "Test User",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedActivity(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, task string) *types.Activity {
	tb.Helper()
	a := &types.Activity{
		ID:       uuid.New(),
		Name:     "activity",
		Task:     task,
		UserID:   userID,
		FileName: "docs.csv",
		Tags:     datatypes.JSON([]byte("[]")),
		Status:   types.ActivityStatusCreated,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed activity: %v", err)
	}
	m := &types.ActivityUserMap{
		ID:         uuid.New(),
		ActivityID: a.ID,
		UserID:     userID,
		IsOwner:    true,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed activity map: %v", err)
	}
	return a
}

func SeedDocuments(tb testing.TB, ctx context.Context, tx *gorm.DB, activityID uuid.UUID, texts []string) []*types.Document {
	tb.Helper()
	docs := make([]*types.Document, 0, len(texts))
	for i, text := range texts {
		docs = append(docs, &types.Document{
			ID:         uuid.New(),
			ActivityID: activityID,
			Index:      i,
			Text:       text,
			Labels:     datatypes.JSON([]byte("[]")),
			Clusters:   datatypes.JSON([]byte("[]")),
		})
	}
	if err := tx.WithContext(ctx).Create(&docs).Error; err != nil {
		tb.Fatalf("seed documents: %v", err)
	}
	return docs
}

func SeedLabeledDocuments(tb testing.TB, ctx context.Context, tx *gorm.DB, activityID uuid.UUID, n int, labels []string) []*types.Document {
	tb.Helper()
	texts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		texts = append(texts, fmt.Sprintf("document number %d talks about %s", i, labels[i%len(labels)]))
	}
	docs := SeedDocuments(tb, ctx, tx, activityID, texts)
	for i, d := range docs {
		b := fmt.Sprintf(`["%s"]`, labels[i%len(labels)])
		if err := tx.WithContext(ctx).Model(d).Update("labels", datatypes.JSON([]byte(b))).Error; err != nil {
			tb.Fatalf("seed labels: %v", err)
		}
		d.Labels = datatypes.JSON([]byte(b))
	}
	return docs
}
