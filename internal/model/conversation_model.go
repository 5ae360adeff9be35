package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Conversation struct {
	Id           uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserId       uuid.UUID      `gorm:"type:uuid;not null;index"`
	Title        string         `gorm:"type:text;not null"`
	Messages     datatypes.JSON `gorm:"type:jsonb;not null"`
	SelectedDocs datatypes.JSON `gorm:"type:jsonb;not null"`
	SessionToken *string        `gorm:"type:text"`
	CreatedAt    time.Time      `gorm:"not null;autoCreateTime:false"`
	UpdatedAt    time.Time      `gorm:"not null;index;autoUpdateTime:false"`
}

func (Conversation) TableName() string {
	return "conversations"
}
