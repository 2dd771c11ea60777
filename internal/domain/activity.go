package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Activity task kinds. Mirrors the job kinds dispatched by the worker.
const (
	TaskClustering = "clustering"
	TaskMultiLabel = "multi_label_classification"
	TaskEntity     = "entity_classification"
)

// Activity status lifecycle.
const (
	ActivityStatusCreated    = "created"
	ActivityStatusInProgress = "in_progress"
	ActivityStatusIncomplete = "incomplete"
	ActivityStatusCompleted  = "completed"
	ActivityStatusSaved      = "saved"
	ActivityStatusShared     = "shared"
	ActivityStatusTraining   = "training"
	ActivityStatusDeleted    = "deleted"
)

// Activity is a labeling/training project bound to one uploaded dataset.
// Tags is the fixed label vocabulary attached at creation time (JSON array
// of strings, may be empty for clustering activities).
type Activity struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string         `gorm:"not null" json:"name"`
	Task        string         `gorm:"not null;index" json:"task"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	FileName    string         `gorm:"not null" json:"file_name"`
	StoragePath string         `gorm:"not null" json:"storage_path"`
	Tags        datatypes.JSON `gorm:"type:jsonb" json:"tags"`
	Status      string         `gorm:"not null;default:created;index" json:"status"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Activity) TableName() string { return "activity" }

// ActivityUserMap associates users with activities they can see.
// Exactly one row per (activity, user); exactly one is_owner=true row per
// activity. Sharing adds non-owning rows, never duplicates the Activity.
type ActivityUserMap struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_activity_user" json:"activity_id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_activity_user" json:"user_id"`
	IsOwner    bool      `gorm:"not null;default:false" json:"is_owner"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ActivityUserMap) TableName() string { return "activity_user_map" }
