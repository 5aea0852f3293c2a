package models

import "time"

// Supported device platforms.
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
)

// MaxDeviceTokenLength matches the varchar(191) column used for registrations.
const MaxDeviceTokenLength = 191

// DeviceToken records one push registration for a (user, physical device)
// pair. Re-registration of an existing pair reactivates the row instead of
// duplicating it.
type DeviceToken struct {
	BaseModel

	UserID      string `gorm:"type:uuid;not null;uniqueIndex:idx_user_device" json:"user_id"`
	DeviceToken string `gorm:"type:varchar(191);not null;uniqueIndex:idx_user_device" json:"device_token"`
	Platform    string `gorm:"type:varchar(16);not null" json:"platform"`

	DeviceModel string `gorm:"type:varchar(128)" json:"device_model,omitempty"`
	AppVersion  string `gorm:"type:varchar(32)" json:"app_version,omitempty"`

	IsActive   bool       `gorm:"default:true;index" json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}
