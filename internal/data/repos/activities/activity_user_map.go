package activities

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/tagmate/tagmate-backend/internal/domain"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
)

type ActivityUserMapRepo interface {
	Create(dbc dbctx.Context, row *types.ActivityUserMap) (*types.ActivityUserMap, error)
	Get(dbc dbctx.Context, activityID uuid.UUID, userID uuid.UUID) (*types.ActivityUserMap, error)
	GetOwner(dbc dbctx.Context, activityID uuid.UUID) (*types.ActivityUserMap, error)
}

type activityUserMapRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityUserMapRepo(db *gorm.DB, baseLog *logger.Logger) ActivityUserMapRepo {
	return &activityUserMapRepo{
		db:  db,
		log: baseLog.With("repo", "ActivityUserMapRepo"),
	}
}

func (r *activityUserMapRepo) Create(dbc dbctx.Context, row *types.ActivityUserMap) (*types.ActivityUserMap, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *activityUserMapRepo) Get(dbc dbctx.Context, activityID uuid.UUID, userID uuid.UUID) (*types.ActivityUserMap, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if activityID == uuid.Nil || userID == uuid.Nil {
		return nil, nil
	}
	var row types.ActivityUserMap
	err := transaction.WithContext(dbc.Ctx).
		Where("activity_id = ? AND user_id = ?", activityID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *activityUserMapRepo) GetOwner(dbc dbctx.Context, activityID uuid.UUID) (*types.ActivityUserMap, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if activityID == uuid.Nil {
		return nil, nil
	}
	var row types.ActivityUserMap
	err := transaction.WithContext(dbc.Ctx).
		Where("activity_id = ? AND is_owner = ?", activityID, true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
