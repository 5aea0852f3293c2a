package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/socdo/notifyd/internal/models"
	"github.com/socdo/notifyd/pkg/logger"
)

const (
	expiringWindow = 24 * time.Hour
	// A voucher already warned about within this window is not warned again.
	expiringDedupWindow = 24 * time.Hour
)

// VoucherService produces expiring-voucher reminders from the voucher table.
type VoucherService struct {
	db            *gorm.DB
	notifications *NotificationService
	now           func() time.Time
	log           *zap.Logger
}

// NewVoucherService constructs a VoucherService.
func NewVoucherService(db *gorm.DB, notifications *NotificationService) (*VoucherService, error) {
	if db == nil {
		return nil, errors.New("voucher service: db is required")
	}
	if notifications == nil {
		return nil, errors.New("voucher service: notification service is required")
	}
	return &VoucherService{
		db:            db,
		notifications: notifications,
		now:           time.Now,
		log:           logger.WithModule("services.voucher"),
	}, nil
}

// NotifyExpiring scans for active vouchers inside their final day of
// validity and creates one reminder per voucher. Returns the number of
// reminders created.
func (s *VoucherService) NotifyExpiring(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	var vouchers []models.Voucher
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND expires_at > ? AND expires_at <= ?", true, now, now.Add(expiringWindow)).
		Order("expires_at ASC").
		Find(&vouchers).Error
	if err != nil {
		return 0, fmt.Errorf("voucher service: scan expiring vouchers: %w", err)
	}

	notified := 0
	for _, voucher := range vouchers {
		seen, err := s.alreadyNotified(ctx, voucher, now)
		if err != nil {
			return notified, err
		}
		if seen {
			continue
		}

		_, err = s.notifications.NotifyVoucherExpiring(ctx, voucher.UserID, voucher.Code, voucher.Discount, voucher.ExpiresAt)
		if err != nil {
			// Keep sweeping; one bad voucher should not starve the rest.
			s.log.Error("failed to create expiring-voucher reminder",
				zap.String("voucher_code", voucher.Code),
				zap.String("user_id", voucher.UserID),
				zap.Error(err))
			continue
		}
		notified++
	}

	if notified > 0 {
		s.log.Info("expiring-voucher sweep completed", zap.Int("notified", notified))
	}
	return notified, nil
}

func (s *VoucherService) alreadyNotified(ctx context.Context, voucher models.Voucher, now time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND type = ? AND created_at > ?", voucher.UserID, TypeVoucherExpiring, now.Add(-expiringDedupWindow)).
		Where("data LIKE ?", `%"voucher_code":"`+voucher.Code+`"%`).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("voucher service: dedup check: %w", err)
	}
	return count > 0, nil
}
