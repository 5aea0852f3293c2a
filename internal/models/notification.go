package models

import (
	"gorm.io/datatypes"
)

// Notification priorities recognised by the queue.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Notification is the durable record of a business event that must be pushed
// to the owning user's devices. PushSent flips to true exactly once, when a
// dispatch worker claims the record.
type Notification struct {
	BaseModel

	UserID   string         `gorm:"type:uuid;index;not null" json:"user_id"`
	Type     string         `gorm:"type:varchar(64);not null;index" json:"type"`
	Title    string         `gorm:"type:varchar(255);not null" json:"title"`
	Content  string         `gorm:"type:text" json:"content"`
	Data     datatypes.JSON `json:"data"`
	Priority string         `gorm:"type:varchar(16);default:'medium'" json:"priority"`

	RelatedID   string `gorm:"type:varchar(64)" json:"related_id,omitempty"`
	RelatedType string `gorm:"type:varchar(64)" json:"related_type,omitempty"`

	IsRead   bool `gorm:"default:false;index" json:"is_read"`
	PushSent bool `gorm:"default:false;index" json:"push_sent"`
}
