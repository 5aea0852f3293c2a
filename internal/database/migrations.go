package database

import (
	"gorm.io/gorm"

	"github.com/socdo/notifyd/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Notification{},
		&models.DeviceToken{},
		&models.SystemSetting{},
		&models.Voucher{},
	)
}
