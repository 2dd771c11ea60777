package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Document is one text record of an Activity. Labels is a JSON array of
// strings (empty = untagged); Clusters is a JSON array of cluster id strings.
// AutoGenerated marks labels produced by the classifier rather than a human.
type Document struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"activity_id"`
	Index         int            `gorm:"not null" json:"index"`
	Text          string         `gorm:"not null" json:"text"`
	Labels        datatypes.JSON `gorm:"type:jsonb" json:"labels"`
	Clusters      datatypes.JSON `gorm:"type:jsonb" json:"clusters"`
	AutoGenerated bool           `gorm:"not null;default:false" json:"auto_generated"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Document) TableName() string { return "document" }

// Cluster is one topic group produced by a clustering run. Theme is
// human-assignable; fixed at creation in this version.
type Cluster struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID uuid.UUID `gorm:"type:uuid;not null;index" json:"activity_id"`
	Index      int       `gorm:"not null" json:"index"`
	Theme      string    `gorm:"not null" json:"theme"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Cluster) TableName() string { return "cluster" }
