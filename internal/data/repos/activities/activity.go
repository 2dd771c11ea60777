package activities

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/tagmate/tagmate-backend/internal/domain"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
)

type ActivityRepo interface {
	Create(dbc dbctx.Context, activity *types.Activity) (*types.Activity, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Activity, error)
	GetForUser(dbc dbctx.Context, userID uuid.UUID, activityID uuid.UUID) (*types.Activity, error)
	ListForUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Activity, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type activityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityRepo(db *gorm.DB, baseLog *logger.Logger) ActivityRepo {
	return &activityRepo{
		db:  db,
		log: baseLog.With("repo", "ActivityRepo"),
	}
}

func (r *activityRepo) Create(dbc dbctx.Context, activity *types.Activity) (*types.Activity, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if activity == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(activity).Error; err != nil {
		return nil, err
	}
	return activity, nil
}

func (r *activityRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Activity, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var activity types.Activity
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&activity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// GetForUser resolves an activity visible to userID, owned or shared,
// through the activity_user_map association.
func (r *activityRepo) GetForUser(dbc dbctx.Context, userID uuid.UUID, activityID uuid.UUID) (*types.Activity, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || activityID == uuid.Nil {
		return nil, nil
	}
	var activity types.Activity
	err := transaction.WithContext(dbc.Ctx).
		Joins("JOIN activity_user_map aum ON aum.activity_id = activity.id").
		Where("activity.id = ? AND aum.user_id = ?", activityID, userID).
		First(&activity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *activityRepo) ListForUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Activity, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Activity
	if userID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Joins("JOIN activity_user_map aum ON aum.activity_id = activity.id").
		Where("aum.user_id = ? AND activity.status <> ?", userID, types.ActivityStatusDeleted).
		Order("activity.created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *activityRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Activity{}).
		Where("id = ?", id).
		Updates(updates).Error
}
