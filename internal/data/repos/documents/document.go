package documents

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/tagmate/tagmate-backend/internal/domain"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
)

// LabelUpdate carries one document's new label set for a bulk write.
type LabelUpdate struct {
	ID            uuid.UUID
	Labels        []string
	AutoGenerated bool
}

// ClusterUpdate carries one document's cluster-membership list.
type ClusterUpdate struct {
	ID       uuid.UUID
	Clusters []string
}

type DocumentRepo interface {
	CreateBulk(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error)
	ListByActivity(dbc dbctx.Context, activityID uuid.UUID) ([]*types.Document, error)
	BulkUpdateLabels(dbc dbctx.Context, updates []LabelUpdate) error
	BulkUpdateClusters(dbc dbctx.Context, updates []ClusterUpdate) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentRepo"),
	}
}

func (r *documentRepo) CreateBulk(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(docs) == 0 {
		return []*types.Document{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).CreateInBatches(&docs, 500).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) ListByActivity(dbc dbctx.Context, activityID uuid.UUID) ([]*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Document
	if activityID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("activity_id = ?", activityID).
		Order(`"index" ASC`).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BulkUpdateLabels rewrites labels and the auto_generated flag for each
// listed document in one transaction.
func (r *documentRepo) BulkUpdateLabels(dbc dbctx.Context, updates []LabelUpdate) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		for _, u := range updates {
			if u.ID == uuid.Nil {
				continue
			}
			labels := u.Labels
			if labels == nil {
				labels = []string{}
			}
			b, err := json.Marshal(labels)
			if err != nil {
				return err
			}
			if err := txx.Model(&types.Document{}).
				Where("id = ?", u.ID).
				Updates(map[string]interface{}{
					"labels":         datatypes.JSON(b),
					"auto_generated": u.AutoGenerated,
					"updated_at":     now,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// BulkUpdateClusters rewrites the cluster-membership list for each listed
// document in one transaction.
func (r *documentRepo) BulkUpdateClusters(dbc dbctx.Context, updates []ClusterUpdate) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		for _, u := range updates {
			if u.ID == uuid.Nil {
				continue
			}
			clusters := u.Clusters
			if clusters == nil {
				clusters = []string{}
			}
			b, err := json.Marshal(clusters)
			if err != nil {
				return err
			}
			if err := txx.Model(&types.Document{}).
				Where("id = ?", u.ID).
				Updates(map[string]interface{}{
					"clusters":   datatypes.JSON(b),
					"updated_at": now,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
