package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tagmate/tagmate-backend/internal/data/repos"
	types "github.com/tagmate/tagmate-backend/internal/domain"
	"github.com/tagmate/tagmate-backend/internal/pkg/apperr"
	"github.com/tagmate/tagmate-backend/internal/pkg/dbctx"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
	"github.com/tagmate/tagmate-backend/internal/pkg/requestdata"
	"github.com/tagmate/tagmate-backend/internal/platform/gcp"
)

// DocumentLabelInput carries one human label edit in a save request.
type DocumentLabelInput struct {
	DocumentID uuid.UUID `json:"document_id"`
	Labels     []string  `json:"labels"`
}

// ActivityData bundles everything the labeling UI needs in one read.
type ActivityData struct {
	Activity  *types.Activity   `json:"activity"`
	Documents []*types.Document `json:"documents"`
	Clusters  []*types.Cluster  `json:"clusters"`
}

type ActivityService interface {
	Create(dbc dbctx.Context, name, task string, tags []string, fileName string, raw []byte) (*types.Activity, error)
	List(dbc dbctx.Context) ([]*types.Activity, error)
	Get(dbc dbctx.Context, activityID uuid.UUID) (*types.Activity, error)
	GetData(dbc dbctx.Context, activityID uuid.UUID) (*ActivityData, error)
	SaveLabels(dbc dbctx.Context, activityID uuid.UUID, inputs []DocumentLabelInput) error
	Share(dbc dbctx.Context, activityID uuid.UUID, email string) error
}

type activityService struct {
	db           *gorm.DB
	log          *logger.Logger
	activityRepo repos.ActivityRepo
	mapRepo      repos.ActivityUserMapRepo
	documentRepo repos.DocumentRepo
	clusterRepo  repos.ClusterRepo
	userRepo     repos.UserRepo
	bucket       gcp.BucketService
}

func NewActivityService(
	db *gorm.DB,
	baseLog *logger.Logger,
	activityRepo repos.ActivityRepo,
	mapRepo repos.ActivityUserMapRepo,
	documentRepo repos.DocumentRepo,
	clusterRepo repos.ClusterRepo,
	userRepo repos.UserRepo,
	bucket gcp.BucketService,
) ActivityService {
	return &activityService{
		db:           db,
		log:          baseLog.With("service", "ActivityService"),
		activityRepo: activityRepo,
		mapRepo:      mapRepo,
		documentRepo: documentRepo,
		clusterRepo:  clusterRepo,
		userRepo:     userRepo,
		bucket:       bucket,
	}
}

func validTask(task string) bool {
	switch task {
	case types.TaskClustering, types.TaskMultiLabel, types.TaskEntity:
		return true
	}
	return false
}

func (s *activityService) Create(dbc dbctx.Context, name, task string, tags []string, fileName string, raw []byte) (*types.Activity, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: missing activity name", apperr.ErrInvalidArgument)
	}
	if !validTask(task) {
		return nil, fmt.Errorf("%w: unknown task %q", apperr.ErrInvalidArgument, task)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty dataset file", apperr.ErrInvalidArgument)
	}

	texts, err := parseDatasetCSV(raw)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: dataset has no text rows", apperr.ErrInvalidArgument)
	}

	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}

	storagePath := fmt.Sprintf("%s/%d__%s", rd.UserID, time.Now().UnixNano(), fileName)
	if err := s.bucket.UploadFile(dbc.Ctx, gcp.BucketCategoryDataset, storagePath, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: upload dataset: %v", apperr.ErrStorage, err)
	}

	activity := &types.Activity{
		ID:          uuid.New(),
		Name:        name,
		Task:        task,
		UserID:      rd.UserID,
		FileName:    fileName,
		StoragePath: storagePath,
		Tags:        datatypes.JSON(tagsJSON),
		Status:      types.ActivityStatusCreated,
	}

	err = s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if _, err := s.activityRepo.Create(inner, activity); err != nil {
			return fmt.Errorf("create activity: %w", err)
		}
		if _, err := s.mapRepo.Create(inner, &types.ActivityUserMap{
			ID:         uuid.New(),
			ActivityID: activity.ID,
			UserID:     rd.UserID,
			IsOwner:    true,
		}); err != nil {
			return fmt.Errorf("create activity map: %w", err)
		}

		docs := make([]*types.Document, 0, len(texts))
		for i, text := range texts {
			docs = append(docs, &types.Document{
				ID:         uuid.New(),
				ActivityID: activity.ID,
				Index:      i,
				Text:       text,
				Labels:     datatypes.JSON([]byte("[]")),
				Clusters:   datatypes.JSON([]byte("[]")),
			})
		}
		if _, err := s.documentRepo.CreateBulk(inner, docs); err != nil {
			return fmt.Errorf("create documents: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activity, nil
}

// parseDatasetCSV extracts the free-text column from an uploaded CSV. The
// header must name a "text" column; "review" is accepted as an alias for
// datasets exported from review tooling.
func parseDatasetCSV(raw []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable csv header", apperr.ErrInvalidArgument)
	}
	textCol := -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "text", "review":
			textCol = i
		}
		if textCol >= 0 {
			break
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("%w: csv needs a text column", apperr.ErrInvalidArgument)
	}

	texts := []string{}
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		if textCol >= len(rec) {
			continue
		}
		text := strings.TrimSpace(rec[textCol])
		if text == "" {
			continue
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (s *activityService) List(dbc dbctx.Context) ([]*types.Activity, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	return s.activityRepo.ListForUser(dbc, rd.UserID)
}

func (s *activityService) Get(dbc dbctx.Context, activityID uuid.UUID) (*types.Activity, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	activity, err := s.activityRepo.GetForUser(dbc, rd.UserID, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, apperr.ErrNotFound
	}
	return activity, nil
}

func (s *activityService) GetData(dbc dbctx.Context, activityID uuid.UUID) (*ActivityData, error) {
	activity, err := s.Get(dbc, activityID)
	if err != nil {
		return nil, err
	}
	docs, err := s.documentRepo.ListByActivity(dbc, activity.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	clusters, err := s.clusterRepo.ListByActivity(dbc, activity.ID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	return &ActivityData{Activity: activity, Documents: docs, Clusters: clusters}, nil
}

// SaveLabels applies a batch of human label edits and moves the activity to
// saved. Human edits clear the auto_generated flag.
func (s *activityService) SaveLabels(dbc dbctx.Context, activityID uuid.UUID, inputs []DocumentLabelInput) error {
	activity, err := s.Get(dbc, activityID)
	if err != nil {
		return err
	}

	updates := make([]repos.LabelUpdate, 0, len(inputs))
	for _, in := range inputs {
		if in.DocumentID == uuid.Nil {
			continue
		}
		updates = append(updates, repos.LabelUpdate{
			ID:            in.DocumentID,
			Labels:        in.Labels,
			AutoGenerated: false,
		})
	}

	return s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if err := s.documentRepo.BulkUpdateLabels(inner, updates); err != nil {
			return fmt.Errorf("save labels: %w", err)
		}
		return s.activityRepo.UpdateFields(inner, activity.ID, map[string]interface{}{
			"status": types.ActivityStatusSaved,
		})
	})
}

// Share grants another registered user read access via a non-owning map
// row. Only the owner can share; the Activity row is never duplicated.
func (s *activityService) Share(dbc dbctx.Context, activityID uuid.UUID, email string) error {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return apperr.ErrUnauthorized
	}
	activity, err := s.activityRepo.GetForUser(dbc, rd.UserID, activityID)
	if err != nil {
		return err
	}
	if activity == nil {
		return apperr.ErrNotFound
	}

	owner, err := s.mapRepo.GetOwner(dbc, activity.ID)
	if err != nil {
		return err
	}
	if owner == nil || owner.UserID != rd.UserID {
		return fmt.Errorf("%w: only the owner can share an activity", apperr.ErrUnauthorized)
	}

	target, err := s.userRepo.GetByEmail(dbc, normalizeEmail(email))
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("%w: no user with that email", apperr.ErrNotFound)
	}
	if target.ID == rd.UserID {
		return fmt.Errorf("%w: cannot share with yourself", apperr.ErrInvalidArgument)
	}

	existing, err := s.mapRepo.Get(dbc, activity.ID, target.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if _, err := s.mapRepo.Create(dbc, &types.ActivityUserMap{
		ID:         uuid.New(),
		ActivityID: activity.ID,
		UserID:     target.ID,
		IsOwner:    false,
	}); err != nil {
		return fmt.Errorf("share activity: %w", err)
	}
	if activity.Status != types.ActivityStatusShared {
		_ = s.activityRepo.UpdateFields(dbc, activity.ID, map[string]interface{}{
			"status": types.ActivityStatusShared,
		})
	}
	return nil
}
