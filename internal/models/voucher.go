package models

import "time"

// Voucher is a discount coupon granted to a user. The expiring-voucher sweep
// reads this table to produce reminder notifications; the e-commerce side
// owns its lifecycle.
type Voucher struct {
	BaseModel

	UserID    string    `gorm:"type:uuid;index;not null" json:"user_id"`
	Code      string    `gorm:"type:varchar(64);not null;index" json:"code"`
	Discount  int64     `gorm:"not null" json:"discount"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
}
