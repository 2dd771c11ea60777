package clusters

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/tagmate/tagmate-backend/internal/domain"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
)

type ClusterRepo interface {
	CreateBulk(dbc dbctx.Context, rows []*types.Cluster) ([]*types.Cluster, error)
	ListByActivity(dbc dbctx.Context, activityID uuid.UUID) ([]*types.Cluster, error)
}

type clusterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClusterRepo(db *gorm.DB, baseLog *logger.Logger) ClusterRepo {
	return &clusterRepo{
		db:  db,
		log: baseLog.With("repo", "ClusterRepo"),
	}
}

func (r *clusterRepo) CreateBulk(dbc dbctx.Context, rows []*types.Cluster) ([]*types.Cluster, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Cluster{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *clusterRepo) ListByActivity(dbc dbctx.Context, activityID uuid.UUID) ([]*types.Cluster, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Cluster
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
