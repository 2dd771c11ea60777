// Package clustering implements the topic-discovery job: documents are split
// into sentences, embedded, grouped into cosine-similarity communities and
// the memberships written back onto the documents.
package clustering

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tagmate/tagmate-backend/internal/data/repos"
	types "github.com/tagmate/tagmate-backend/internal/domain"
	jobstate "github.com/tagmate/tagmate-backend/internal/jobs"
	"github.com/tagmate/tagmate-backend/internal/jobs/runtime"
	"github.com/tagmate/tagmate-backend/internal/ml/community"
	"github.com/tagmate/tagmate-backend/internal/ml/sentencize"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
	"github.com/tagmate/tagmate-backend/internal/platform/embeddings"
)

type Handler struct {
	log        *logger.Logger
	documents  repos.DocumentRepo
	clusters   repos.ClusterRepo
	activities repos.ActivityRepo
	embedder   embeddings.Client
}

func New(
	baseLog *logger.Logger,
	documents repos.DocumentRepo,
	clusters repos.ClusterRepo,
	activities repos.ActivityRepo,
	embedder embeddings.Client,
) *Handler {
	return &Handler{
		log:        baseLog.With("pipeline", "clustering"),
		documents:  documents,
		clusters:   clusters,
		activities: activities,
		embedder:   embedder,
	}
}

func (h *Handler) Type() string { return jobstate.KindClustering }

type result struct {
	Clusters       int `json:"clusters"`
	Sentences      int `json:"sentences"`
	DocumentsTotal int `json:"documents_total"`
	DocumentsInAny int `json:"documents_in_any_cluster"`
}

func (h *Handler) Run(jc *runtime.Context) error {
	activityID := jc.PayloadUUID("activity_id")
	if activityID == uuid.Nil {
		return fmt.Errorf("clustering: payload missing activity_id")
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}

	jc.Progress("loading", 5, "loading documents")
	docs, err := h.documents.ListByActivity(dbc, activityID)
	if err != nil {
		return fmt.Errorf("clustering: list documents: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("clustering: activity has no documents")
	}

	// Units of clustering are sentences; short documents that sentencize to
	// nothing contribute their full text so no document is silently dropped.
	sentences := []string{}
	owner := []int{}
	for di, doc := range docs {
		parts := sentencize.Split(doc.Text)
		if len(parts) == 0 {
			text := strings.TrimSpace(doc.Text)
			if text == "" {
				continue
			}
			parts = []string{text}
		}
		for _, s := range parts {
			sentences = append(sentences, s)
			owner = append(owner, di)
		}
	}
	if len(sentences) == 0 {
		return fmt.Errorf("clustering: no usable text in documents")
	}

	if err := jc.Checkpoint(); err != nil {
		return err
	}
	jc.Progress("embedding", 25, fmt.Sprintf("embedding %d sentences", len(sentences)))
	vectors, err := h.embedder.Embed(jc.Ctx, sentences)
	if err != nil {
		return fmt.Errorf("clustering: embed: %w", err)
	}

	if err := jc.Checkpoint(); err != nil {
		return err
	}
	jc.Progress("clustering", 60, "detecting communities")
	found, err := community.DetectWithRetry(
		vectors,
		community.DefaultMinSize,
		community.DefaultThreshold,
		func(nextMinSize int) error {
			if err := jc.Checkpoint(); err != nil {
				return err
			}
			jc.Progress("clustering", 60, fmt.Sprintf("retrying with min community size %d", nextMinSize))
			return nil
		},
	)
	if err != nil {
		return err
	}

	jc.Progress("saving", 85, fmt.Sprintf("saving %d clusters", len(found)))

	rows := make([]*types.Cluster, 0, len(found))
	memberships := make(map[uuid.UUID][]string, len(docs))
	for ci, members := range found {
		row := &types.Cluster{
			ID:         uuid.New(),
			ActivityID: activityID,
			Index:      ci,
			Theme:      fmt.Sprintf("cluster_%d", ci),
		}
		rows = append(rows, row)
		for _, si := range members {
			doc := docs[owner[si]]
			id := row.ID.String()
			list := memberships[doc.ID]
			if len(list) == 0 || list[len(list)-1] != id {
				memberships[doc.ID] = append(list, id)
			}
		}
	}

	updates := make([]repos.ClusterUpdate, 0, len(docs))
	for _, doc := range docs {
		updates = append(updates, repos.ClusterUpdate{
			ID:       doc.ID,
			Clusters: memberships[doc.ID],
		})
	}

	// Cluster rows and document memberships land together or not at all.
	err = jc.DB.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: jc.Ctx, Tx: tx}
		if _, err := h.clusters.CreateBulk(inner, rows); err != nil {
			return fmt.Errorf("create clusters: %w", err)
		}
		if err := h.documents.BulkUpdateClusters(inner, updates); err != nil {
			return fmt.Errorf("update document clusters: %w", err)
		}
		return h.activities.UpdateFields(inner, activityID, map[string]interface{}{
			"status": types.ActivityStatusCompleted,
		})
	})
	if err != nil {
		return fmt.Errorf("clustering: persist: %w", err)
	}

	jc.Succeed("done", result{
		Clusters:       len(rows),
		Sentences:      len(sentences),
		DocumentsTotal: len(docs),
		DocumentsInAny: len(memberships),
	})
	return nil
}
