package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserOwnedBy filters records by owner.
type UserOwnedBy struct {
	UserID uuid.UUID
}

func (s UserOwnedBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}

// OwnedConversation pins a query to one record of one user.
type OwnedConversation struct {
	UserID uuid.UUID
	ID     uuid.UUID
}

func (s OwnedConversation) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ? AND id = ?", s.UserID, s.ID)
}

// NewestFirst orders conversations by last activity.
type NewestFirst struct{}

func (s NewestFirst) Apply(db *gorm.DB) *gorm.DB {
	return OrderBy{Field: "updated_at", Desc: true}.Apply(db)
}
